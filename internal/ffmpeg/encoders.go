package ffmpeg

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Encoder is the capability shared by the encoding strategies: each knows
// whether it can run on this host and how to turn a request into a full
// ffmpeg argument vector.
type Encoder interface {
	// Name returns the ffmpeg encoder identifier
	Name() string

	// Available reports whether this encoder works on the host.
	// Encoder availability cannot change mid-run, so a completed probe
	// is memoized for the instance's lifetime. A probe aborted by
	// context cancellation proves nothing and is not memoized; the next
	// call probes again.
	Available(ctx context.Context) bool

	// BuildArgs translates a request into the complete ffmpeg argument
	// vector. Out-of-range request values are clamped or replaced with
	// documented defaults here, never passed through to the process.
	BuildArgs(req Request) []string
}

const probeTimeout = 10 * time.Second

// probeEncoderList asks ffmpeg for its encoder list and checks it for the
// identifying token. A failed query means not available.
func probeEncoderList(ctx context.Context, ffmpegPath, token string, log *logrus.Entry) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		log.WithError(err).Warn("encoder probe failed")
		return false
	}

	found := strings.Contains(string(output), token)
	log.WithField("available", found).Debug("encoder probe complete")
	return found
}

// sharedArgs are the invocation pieces common to both strategies: metadata
// copy, playback-compatibility tagging and fast-start.
func sharedArgs(req Request) (head, tail []string) {
	head = []string{
		"-nostdin",
		"-i", req.InputPath,
		"-y",
		"-map_metadata", "0",
	}
	tail = append(tail, audioArgs(req.Audio)...)
	tail = append(tail,
		"-tag:v", "hvc1",
		"-movflags", "+faststart",
		req.OutputPath,
	)
	return head, tail
}

func audioArgs(mode AudioMode) []string {
	switch mode {
	case AudioAAC:
		return []string{"-c:a", "aac", "-b:a", "160k"}
	case AudioNone:
		return []string{"-an"}
	default:
		// copy, or anything unrecognized
		return []string{"-c:a", "copy"}
	}
}

// availabilityProbe latches the result of one encoder-list probe. Aborted
// probes (context cancelled mid-query) are not latched; sharing one
// strategy instance across a batch must not let the first task's
// cancellation mask an encoder the host actually has.
type availabilityProbe struct {
	mu        sync.Mutex
	probed    bool
	available bool
}

func (p *availabilityProbe) check(ctx context.Context, ffmpegPath, token string, log *logrus.Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed {
		return p.available
	}

	found := probeEncoderList(ctx, ffmpegPath, token, log)
	if ctx.Err() != nil {
		return false
	}
	p.probed = true
	p.available = found
	return found
}

// HardwareEncoder encodes with Apple VideoToolbox (hevc_videotoolbox)
type HardwareEncoder struct {
	ffmpegPath string
	log        *logrus.Entry
	probe      availabilityProbe
}

// Hardware quality bounds and default
const (
	minHWQuality     = 1
	maxHWQuality     = 100
	defaultHWQuality = 45
)

func NewHardwareEncoder(ffmpegPath string) *HardwareEncoder {
	return &HardwareEncoder{
		ffmpegPath: ffmpegPath,
		log:        logrus.WithField("encoder", "hevc_videotoolbox"),
	}
}

func (e *HardwareEncoder) Name() string { return "hevc_videotoolbox" }

func (e *HardwareEncoder) Available(ctx context.Context) bool {
	return e.probe.check(ctx, e.ffmpegPath, "hevc_videotoolbox", e.log)
}

func (e *HardwareEncoder) BuildArgs(req Request) []string {
	quality := req.Quality
	if quality == 0 {
		quality = defaultHWQuality
	}
	if quality < minHWQuality {
		quality = minHWQuality
	}
	if quality > maxHWQuality {
		quality = maxHWQuality
	}

	head, tail := sharedArgs(req)
	args := append(head,
		"-c:v", "hevc_videotoolbox",
		"-q:v", strconv.Itoa(quality),
	)
	return append(args, tail...)
}

// SoftwareEncoder encodes with libx265
type SoftwareEncoder struct {
	ffmpegPath string
	log        *logrus.Entry
	probe      availabilityProbe
}

// Software CRF bounds and default. A zero CRF means "unset" and gets the
// default; true lossless is not a target of this tool.
const (
	minCRF     = 0
	maxCRF     = 51
	defaultCRF = 28
)

const defaultPreset = "medium"

// x265Presets is the ordered speed/quality ladder accepted by libx265
var x265Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow", "placebo",
}

// hdrParams is the fixed BT.2020 PQ signaling appended for 10-bit HDR
// output: color primaries, PQ transfer, color matrix, HDR10 flag and
// repeated headers so players can join mid-stream.
const hdrParams = "colorprim=bt2020:transfer=smpte2084:colormatrix=bt2020nc:hdr10=1:repeat-headers=1"

func NewSoftwareEncoder(ffmpegPath string) *SoftwareEncoder {
	return &SoftwareEncoder{
		ffmpegPath: ffmpegPath,
		log:        logrus.WithField("encoder", "libx265"),
	}
}

func (e *SoftwareEncoder) Name() string { return "libx265" }

func (e *SoftwareEncoder) Available(ctx context.Context) bool {
	return e.probe.check(ctx, e.ffmpegPath, "libx265", e.log)
}

func (e *SoftwareEncoder) BuildArgs(req Request) []string {
	crf := req.CRF
	if crf == 0 {
		crf = defaultCRF
	}
	if crf < minCRF {
		crf = minCRF
	}
	if crf > maxCRF {
		crf = maxCRF
	}

	preset := req.Preset
	if !validPreset(preset) {
		preset = defaultPreset
	}

	bitDepth := req.BitDepth
	if bitDepth != 8 && bitDepth != 10 {
		bitDepth = 8
	}

	head, tail := sharedArgs(req)
	args := append(head,
		"-c:v", "libx265",
		"-crf", strconv.Itoa(crf),
		"-preset", preset,
	)

	if bitDepth == 10 {
		args = append(args, "-pix_fmt", "yuv420p10le")
		if req.HDR {
			args = append(args, "-x265-params", hdrParams)
		}
	}

	return append(args, tail...)
}

func validPreset(preset string) bool {
	for _, p := range x265Presets {
		if p == preset {
			return true
		}
	}
	return false
}
