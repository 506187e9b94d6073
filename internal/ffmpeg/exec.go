package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is the terminal state of one external encoder run
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// ExecError contains detailed error information from a failed run
type ExecError struct {
	Message  string   // the error message
	Stderr   string   // bounded stderr tail (last ~64KB)
	ExitCode int      // encoder exit code
	Args     []string // command arguments
}

func (e *ExecError) Error() string {
	return e.Message
}

// RunResult is the structured outcome of one conversion run
type RunResult struct {
	Outcome     Outcome
	InputPath   string
	OutputPath  string
	Elapsed     time.Duration
	InputSize   int64
	OutputSize  int64
	ErrorDetail string
	Err         error
}

// maxStderrTail is the maximum amount of stderr retained for diagnostics
const maxStderrTail = 64 * 1024

// pipeWaitDelay bounds how long pipes stay open after the process exits or
// is killed, in case a child it spawned inherited them
const pipeWaitDelay = 5 * time.Second

// tailBuffer is a ring buffer that keeps only the last N bytes
type tailBuffer struct {
	buf   []byte
	size  int
	start int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{buf: make([]byte, size)}
}

func (b *tailBuffer) Write(p []byte) (n int, err error) {
	n = len(p)
	if n >= len(b.buf) {
		// Input larger than buffer, keep only the end
		copy(b.buf, p[n-len(b.buf):])
		b.size = len(b.buf)
		b.start = 0
	} else if b.size < len(b.buf) {
		space := len(b.buf) - b.size
		if n <= space {
			copy(b.buf[b.size:], p)
			b.size += n
		} else {
			copy(b.buf[b.size:], p[:space])
			copy(b.buf, p[space:])
			b.size = len(b.buf)
			b.start = n - space
		}
	} else {
		end := b.start + n
		if end <= len(b.buf) {
			copy(b.buf[b.start:], p)
		} else {
			first := len(b.buf) - b.start
			copy(b.buf[b.start:], p[:first])
			copy(b.buf, p[first:])
		}
		b.start = end % len(b.buf)
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	if b.size < len(b.buf) {
		return string(b.buf[:b.size])
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf[b.start:])
	copy(out[len(b.buf)-b.start:], b.buf[:b.start])
	return string(out)
}

// scanCRLF splits on both \n and \r so ffmpeg's carriage-return stats
// updates arrive as separate lines
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, c := range data {
		if c == '\n' || c == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Executor runs one external encoder invocation per call: it selects a
// strategy, launches the process, streams its stderr through a progress
// parser and converts the exit status into a RunResult. Cancellation is
// cooperative via the context; partially written output is left in place
// for the caller to deal with.
type Executor struct {
	ffmpegPath string
	selector   *Selector
	log        *logrus.Entry
}

// NewExecutor creates an Executor backed by the given ffmpeg binary
func NewExecutor(ffmpegPath string) *Executor {
	return &Executor{
		ffmpegPath: ffmpegPath,
		selector:   NewFFmpegSelector(ffmpegPath),
		log:        logrus.WithField("component", "executor"),
	}
}

// NewExecutorWithSelector creates an Executor with a custom selector
func NewExecutorWithSelector(ffmpegPath string, selector *Selector) *Executor {
	return &Executor{
		ffmpegPath: ffmpegPath,
		selector:   selector,
		log:        logrus.WithField("component", "executor"),
	}
}

// Run converts one request. totalDuration scales the progress percentage;
// pass 0 when unknown and the percentage stays 0. onProgress is invoked
// for every parsed sample, in the order the encoder produced them.
// Run never returns nil.
func (x *Executor) Run(ctx context.Context, req Request, totalDuration time.Duration, onProgress func(Progress)) *RunResult {
	startTime := time.Now()
	res := &RunResult{
		InputPath:  req.InputPath,
		OutputPath: req.OutputPath,
	}

	inputInfo, err := os.Stat(req.InputPath)
	if err != nil {
		return x.fail(ctx, res, startTime, fmt.Errorf("failed to stat input file: %w", err), "")
	}
	res.InputSize = inputInfo.Size()

	encoder, err := x.selector.Select(ctx, req.Mode)
	if err != nil {
		return x.fail(ctx, res, startTime, err, "")
	}

	args := encoder.BuildArgs(req)
	x.log.WithFields(logrus.Fields{
		"encoder": encoder.Name(),
		"input":   req.InputPath,
	}).Infof("running: %s %s", x.ffmpegPath, strings.Join(args, " "))

	if totalDuration == 0 {
		x.log.Warn("source duration unknown, progress will stay at 0%")
	}

	cmd := exec.CommandContext(ctx, x.ffmpegPath, args...)
	// Force the stderr pipe closed if the process tree lingers after exit
	// or cancellation, so the scanner below cannot block forever
	cmd.WaitDelay = pipeWaitDelay
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return x.fail(ctx, res, startTime, fmt.Errorf("failed to create stderr pipe: %w", err), "")
	}

	if err := cmd.Start(); err != nil {
		return x.fail(ctx, res, startTime, fmt.Errorf("failed to start encoder: %w", err), "")
	}

	// Read the diagnostic stream to completion before waiting on the
	// process. Samples are forwarded in production order.
	parser := NewParser(totalDuration)
	tail := newTailBuffer(maxStderrTail)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanCRLF)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		_, _ = tail.Write(append([]byte(line), '\n'))

		if sample, ok := parser.ParseLine(line); ok && onProgress != nil {
			onProgress(sample)
		}
	}
	if err := scanner.Err(); err != nil {
		x.log.WithError(err).Warn("stderr scanner error")
	}

	waitErr := cmd.Wait()
	res.Elapsed = time.Since(startTime)

	if ctx.Err() == context.Canceled {
		// Partial output stays on disk; cleanup is a caller concern.
		res.Outcome = OutcomeCancelled
		res.ErrorDetail = "conversion cancelled"
		return res
	}

	if waitErr != nil {
		exitCode := 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		execErr := &ExecError{
			Message:  fmt.Sprintf("encoder failed: %v", waitErr),
			Stderr:   tail.String(),
			ExitCode: exitCode,
			Args:     args,
		}
		return x.fail(ctx, res, startTime, execErr, tail.String())
	}

	outputInfo, err := os.Stat(req.OutputPath)
	if err != nil {
		return x.fail(ctx, res, startTime, fmt.Errorf("failed to stat output file: %w", err), tail.String())
	}
	res.OutputSize = outputInfo.Size()
	res.Outcome = OutcomeCompleted
	return res
}

// fail converts an error into the terminal result. Cancellation dominates:
// an error provoked by the caller tearing the context down is a cancelled
// run, not a failed one, no matter how early it landed.
func (x *Executor) fail(ctx context.Context, res *RunResult, startTime time.Time, err error, stderrTail string) *RunResult {
	res.Elapsed = time.Since(startTime)
	if ctx.Err() == context.Canceled {
		res.Outcome = OutcomeCancelled
		res.ErrorDetail = "conversion cancelled"
		return res
	}
	res.Outcome = OutcomeFailed
	res.Err = err
	res.ErrorDetail = err.Error()
	if stderrTail != "" {
		res.ErrorDetail = err.Error() + "\n" + lastLines(stderrTail, 10)
	}
	return res
}

// lastLines returns the final n lines of s for compact error detail
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
