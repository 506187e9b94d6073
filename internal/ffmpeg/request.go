package ffmpeg

// Mode selects which encoder strategy services a request
type Mode string

const (
	ModeHardware Mode = "hardware" // VideoToolbox only
	ModeSoftware Mode = "software" // libx265 only
	ModeAuto     Mode = "auto"     // hardware first, software fallback
)

// AudioMode determines what happens to audio streams
type AudioMode string

const (
	AudioCopy AudioMode = "copy" // pass through unchanged
	AudioAAC  AudioMode = "aac"  // re-encode to AAC
	AudioNone AudioMode = "none" // drop audio
)

// Request describes one H.264 to H.265 conversion. It is immutable once
// built by the caller; strategies clamp or default any out-of-range field
// rather than rejecting the request.
type Request struct {
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Mode       Mode      `json:"mode"`
	Quality    int       `json:"quality"`   // hardware quality (1-100), 0 = default
	CRF        int       `json:"crf"`       // software CRF (0-51), 0 = default
	Preset     string    `json:"preset"`    // x265 preset, "" = default
	BitDepth   int       `json:"bit_depth"` // 8 or 10, anything else = 8
	HDR        bool      `json:"hdr"`       // BT.2020 PQ signaling (10-bit only)
	Audio      AudioMode `json:"audio"`
}
