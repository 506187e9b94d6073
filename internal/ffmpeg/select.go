package ffmpeg

import (
	"context"
	"errors"
	"fmt"
)

// ErrEncoderUnavailable means no strategy capable of satisfying the
// requested mode works on this host. This is terminal for the task:
// retrying on the same host configuration cannot succeed.
var ErrEncoderUnavailable = errors.New("no matching encoder available")

// Selector picks exactly one encoder strategy for a requested mode
type Selector struct {
	hardware Encoder
	software Encoder
}

// NewSelector creates a Selector over the given strategies
func NewSelector(hardware, software Encoder) *Selector {
	return &Selector{hardware: hardware, software: software}
}

// NewFFmpegSelector creates a Selector with the standard VideoToolbox and
// libx265 strategies backed by the given ffmpeg binary
func NewFFmpegSelector(ffmpegPath string) *Selector {
	return NewSelector(NewHardwareEncoder(ffmpegPath), NewSoftwareEncoder(ffmpegPath))
}

// Select returns the first available strategy matching the mode. Auto
// tries hardware first and falls back to software. An unrecognized mode
// is treated as auto, matching the clamp-don't-fail policy for request
// fields.
func (s *Selector) Select(ctx context.Context, mode Mode) (Encoder, error) {
	switch mode {
	case ModeHardware:
		if s.hardware.Available(ctx) {
			return s.hardware, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrEncoderUnavailable, s.hardware.Name())
	case ModeSoftware:
		if s.software.Available(ctx) {
			return s.software, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrEncoderUnavailable, s.software.Name())
	default:
		if s.hardware.Available(ctx) {
			return s.hardware, nil
		}
		if s.software.Available(ctx) {
			return s.software, nil
		}
		return nil, ErrEncoderUnavailable
	}
}
