package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor builds an Executor whose "encoder" is /bin/sh running the
// given script, so runs behave like a real process without needing ffmpeg
func scriptedExecutor(script string) *Executor {
	enc := &fakeEncoder{
		name:      "scripted",
		available: true,
		args: func(req Request) []string {
			return []string{"-c", script}
		},
	}
	return NewExecutorWithSelector("/bin/sh", NewSelector(enc, enc))
}

func writeInput(t *testing.T) (inputPath, outputPath string) {
	t.Helper()
	dir := t.TempDir()
	inputPath = filepath.Join(dir, "movie.mp4")
	outputPath = filepath.Join(dir, "movie_hevc.mp4")
	require.NoError(t, os.WriteFile(inputPath, []byte("0123456789"), 0644))
	return inputPath, outputPath
}

func TestRunSuccess(t *testing.T) {
	inputPath, outputPath := writeInput(t)

	script := fmt.Sprintf(
		`printf 'frame=  720 fps=180 q=32.0 size=   15360kB time=00:00:24.00 bitrate=5242.9kbits/s speed=6.0x\n' >&2; printf 'hevc' > %s`,
		outputPath)
	x := scriptedExecutor(script)

	var samples []Progress
	res := x.Run(context.Background(), Request{InputPath: inputPath, OutputPath: outputPath},
		120*time.Second, func(p Progress) { samples = append(samples, p) })

	require.Equal(t, OutcomeCompleted, res.Outcome, "detail: %s", res.ErrorDetail)
	assert.Equal(t, int64(10), res.InputSize)
	assert.Equal(t, int64(4), res.OutputSize)
	assert.Empty(t, res.ErrorDetail)

	require.Len(t, samples, 1)
	assert.Equal(t, int64(720), samples[0].Frame)
	assert.InDelta(t, 20.0, samples[0].Percent, 0.001)
}

func TestRunCarriageReturnStats(t *testing.T) {
	// ffmpeg separates stats updates with \r, not \n
	inputPath, outputPath := writeInput(t)

	script := fmt.Sprintf(
		`printf 'frame=  100 time=00:00:06.00\rframe=  200 time=00:00:12.00\r\n' >&2; : > %s`,
		outputPath)
	x := scriptedExecutor(script)

	var samples []Progress
	res := x.Run(context.Background(), Request{InputPath: inputPath, OutputPath: outputPath},
		60*time.Second, func(p Progress) { samples = append(samples, p) })

	require.Equal(t, OutcomeCompleted, res.Outcome, "detail: %s", res.ErrorDetail)
	require.Len(t, samples, 2)
	assert.InDelta(t, 10.0, samples[0].Percent, 0.001)
	assert.InDelta(t, 20.0, samples[1].Percent, 0.001)
}

func TestRunFailureCapturesStderrTail(t *testing.T) {
	inputPath, outputPath := writeInput(t)

	x := scriptedExecutor(`echo "conversion exploded" >&2; exit 3`)
	res := x.Run(context.Background(), Request{InputPath: inputPath, OutputPath: outputPath}, 0, nil)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.ErrorDetail, "conversion exploded")

	var execErr *ExecError
	require.True(t, errors.As(res.Err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Contains(t, execErr.Stderr, "conversion exploded")
}

func TestRunCancelled(t *testing.T) {
	inputPath, outputPath := writeInput(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	x := scriptedExecutor(`sleep 2`)
	res := x.Run(ctx, Request{InputPath: inputPath, OutputPath: outputPath}, 0, nil)

	assert.Equal(t, OutcomeCancelled, res.Outcome)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	// Cancellation landing before the process launches is still a
	// cancelled run, never a failed one
	inputPath, outputPath := writeInput(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := scriptedExecutor(`true`)
	res := x.Run(ctx, Request{InputPath: inputPath, OutputPath: outputPath}, 0, nil)

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, "conversion cancelled", res.ErrorDetail)
	assert.Nil(t, res.Err)
}

func TestRunMissingInput(t *testing.T) {
	x := scriptedExecutor(`true`)
	res := x.Run(context.Background(), Request{
		InputPath:  "/nonexistent/movie.mp4",
		OutputPath: "/nonexistent/out.mp4",
	}, 0, nil)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.ErrorDetail, "stat input")
}

func TestRunMissingOutput(t *testing.T) {
	// Encoder exits cleanly but never writes the output
	inputPath, outputPath := writeInput(t)

	x := scriptedExecutor(`true`)
	res := x.Run(context.Background(), Request{InputPath: inputPath, OutputPath: outputPath}, 0, nil)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.ErrorDetail, "stat output")
}

func TestRunEncoderUnavailable(t *testing.T) {
	inputPath, outputPath := writeInput(t)

	enc := &fakeEncoder{name: "none", available: false}
	x := NewExecutorWithSelector("/bin/sh", NewSelector(enc, enc))

	res := x.Run(context.Background(), Request{InputPath: inputPath, OutputPath: outputPath}, 0, nil)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrEncoderUnavailable)
}

func TestTailBufferKeepsOnlyEnd(t *testing.T) {
	b := newTailBuffer(8)

	_, _ = b.Write([]byte("abcd"))
	assert.Equal(t, "abcd", b.String())

	_, _ = b.Write([]byte("efgh"))
	assert.Equal(t, "abcdefgh", b.String())

	_, _ = b.Write([]byte("ij"))
	assert.Equal(t, "cdefghij", b.String())

	_, _ = b.Write([]byte("0123456789"))
	assert.Equal(t, "23456789", b.String())
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "b\nc", lastLines("a\nb\nc\n", 2))
	assert.Equal(t, "a\nb\nc", lastLines("a\nb\nc", 5))
}
