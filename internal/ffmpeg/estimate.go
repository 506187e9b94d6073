package ffmpeg

import "time"

// Estimate contains the expected outcome of converting a file, used for
// dry runs before any process is launched
type Estimate struct {
	CurrentSize    int64         `json:"current_size"`
	EstimatedSize  int64         `json:"estimated_size"`
	SpaceSaved     int64         `json:"space_saved"`
	SavingsPercent float64       `json:"savings_percent"`
	EstimatedTime  time.Duration `json:"estimated_time"`
	Warning        string        `json:"warning,omitempty"`
}

const (
	// HEVC reaches similar quality at roughly 40% less bitrate than H.264
	hevcEfficiencyGain = 0.40

	// Audio and other copied streams; typical share of the container
	nonVideoOverheadRatio = 0.15

	// Rough realtime multiplier for estimating conversion time. Hardware
	// encoders run far faster; this is the conservative software figure.
	assumedEncodeSpeed = 2.0
)

// EstimateConversion estimates output size and wall time for a source.
// Estimates are bitrate-based when the probe carries one, otherwise a
// flat ratio of the current size.
func EstimateConversion(probe *ProbeResult) *Estimate {
	est := &Estimate{CurrentSize: probe.Size}

	compressionRatio := 1.0 - hevcEfficiencyGain

	if probe.Bitrate > 0 && probe.Duration > 0 {
		targetBitrate := float64(probe.Bitrate) * compressionRatio
		videoBytes := targetBitrate / 8 * probe.Duration.Seconds()
		overhead := float64(probe.Size) * nonVideoOverheadRatio
		est.EstimatedSize = int64(videoBytes + overhead)
	} else {
		est.EstimatedSize = int64(float64(probe.Size) * (compressionRatio + nonVideoOverheadRatio))
		est.Warning = "no bitrate in probe, size estimate is approximate"
	}

	if est.EstimatedSize > probe.Size {
		est.EstimatedSize = probe.Size
		est.Warning = "source is unlikely to shrink"
	}

	est.SpaceSaved = probe.Size - est.EstimatedSize
	if probe.Size > 0 {
		est.SavingsPercent = float64(est.SpaceSaved) / float64(probe.Size) * 100
	}

	if probe.Duration > 0 {
		est.EstimatedTime = time.Duration(float64(probe.Duration) / assumedEncodeSpeed)
	}

	return est
}
