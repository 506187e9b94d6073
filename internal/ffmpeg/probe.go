package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains the source metadata the engine needs: the duration
// scales progress percentages, the codec drives scan filtering.
type ProbeResult struct {
	Path       string        `json:"path"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"duration"`
	VideoCodec string        `json:"video_codec"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Bitrate    int64         `json:"bitrate"` // bits per second
	PixFmt     string        `json:"pix_fmt"`
	BitDepth   int           `json:"bit_depth"`
	IsH264     bool          `json:"is_h264"`
	IsHEVC     bool          `json:"is_hevc"`
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	PixFmt           string `json:"pix_fmt"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	Duration         string `json:"duration"`
}

// Prober wraps ffprobe
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{Path: path}

	if probeOutput.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(probeOutput.Format.Size, 10, 64)
	}
	if probeOutput.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(probeOutput.Format.BitRate, 10, 64)
	}
	if probeOutput.Format.Duration != "" {
		seconds, _ := strconv.ParseFloat(probeOutput.Format.Duration, 64)
		result.Duration = time.Duration(seconds * float64(time.Second))
	}

	var maxStreamDuration time.Duration
	for _, stream := range probeOutput.Streams {
		if stream.Duration != "" {
			if seconds, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				if d := time.Duration(seconds * float64(time.Second)); d > maxStreamDuration {
					maxStreamDuration = d
				}
			}
		}

		if stream.CodecType == "video" && result.VideoCodec == "" {
			// Take the first video stream
			result.VideoCodec = stream.CodecName
			result.Width = stream.Width
			result.Height = stream.Height
			result.PixFmt = stream.PixFmt
			result.BitDepth = detectBitDepth(stream.PixFmt, stream.BitsPerRawSample)

			codec := strings.ToLower(stream.CodecName)
			result.IsH264 = codec == "h264" || codec == "avc"
			result.IsHEVC = codec == "hevc" || codec == "h265" || codec == "x265"
		}
	}

	// Some containers only carry duration on the streams
	if result.Duration == 0 {
		result.Duration = maxStreamDuration
	}

	return result, nil
}

// detectBitDepth infers color depth from the pixel format, falling back to
// the raw-sample bits field
func detectBitDepth(pixFmt, bitsPerRawSample string) int {
	if strings.Contains(pixFmt, "10le") || strings.Contains(pixFmt, "10be") {
		return 10
	}
	if strings.Contains(pixFmt, "12le") || strings.Contains(pixFmt, "12be") {
		return 12
	}
	if bits, err := strconv.Atoi(bitsPerRawSample); err == nil && bits > 0 {
		return bits
	}
	if pixFmt != "" {
		return 8
	}
	return 0
}
