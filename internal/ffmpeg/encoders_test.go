package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// argValue returns the argument following flag, or "" if flag is absent
func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func baseRequest() Request {
	return Request{
		InputPath:  "/media/movie.mp4",
		OutputPath: "/media/movie_hevc.mp4",
	}
}

// fakeFFmpegListing writes an executable that prints the given encoder
// list, standing in for `ffmpeg -hide_banner -encoders`
func fakeFFmpegListing(t *testing.T, listing string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\necho '" + listing + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestAvailabilityMemoized(t *testing.T) {
	ffmpeg := fakeFFmpegListing(t, "V....D hevc_videotoolbox")
	enc := NewHardwareEncoder(ffmpeg)

	require.True(t, enc.Available(context.Background()))

	// Deleting the binary must not change the latched answer
	require.NoError(t, os.Remove(ffmpeg))
	assert.True(t, enc.Available(context.Background()))
}

func TestAvailabilityAbortedProbeNotLatched(t *testing.T) {
	ffmpeg := fakeFFmpegListing(t, "V....D hevc_videotoolbox")
	enc := NewHardwareEncoder(ffmpeg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, enc.Available(ctx), "aborted probe reports unavailable for that call")

	// The aborted probe must not stick; the host does have the encoder
	assert.True(t, enc.Available(context.Background()))
}

func TestHardwareArgsDefaults(t *testing.T) {
	enc := NewHardwareEncoder("ffmpeg")
	args := enc.BuildArgs(baseRequest())

	assert.Equal(t, "hevc_videotoolbox", argValue(args, "-c:v"))
	assert.Equal(t, "45", argValue(args, "-q:v"), "unset quality takes the default")
	assert.Equal(t, "copy", argValue(args, "-c:a"))
}

func TestHardwareQualityClamped(t *testing.T) {
	enc := NewHardwareEncoder("ffmpeg")

	req := baseRequest()
	req.Quality = 500
	assert.Equal(t, "100", argValue(enc.BuildArgs(req), "-q:v"))

	req.Quality = -5
	assert.Equal(t, "1", argValue(enc.BuildArgs(req), "-q:v"))

	req.Quality = 60
	assert.Equal(t, "60", argValue(enc.BuildArgs(req), "-q:v"))
}

func TestSoftwareArgsDefaults(t *testing.T) {
	enc := NewSoftwareEncoder("ffmpeg")
	args := enc.BuildArgs(baseRequest())

	assert.Equal(t, "libx265", argValue(args, "-c:v"))
	assert.Equal(t, "28", argValue(args, "-crf"), "unset CRF takes the default")
	assert.Equal(t, "medium", argValue(args, "-preset"))
	assert.False(t, hasArg(args, "-pix_fmt"), "8-bit output needs no pixel format override")
	assert.False(t, hasArg(args, "-x265-params"))
}

func TestSoftwareCRFClamped(t *testing.T) {
	enc := NewSoftwareEncoder("ffmpeg")

	req := baseRequest()
	req.CRF = 99
	assert.Equal(t, "51", argValue(enc.BuildArgs(req), "-crf"))

	req.CRF = 22
	assert.Equal(t, "22", argValue(enc.BuildArgs(req), "-crf"))
}

func TestSoftwareInvalidPresetFallsBack(t *testing.T) {
	enc := NewSoftwareEncoder("ffmpeg")

	req := baseRequest()
	req.Preset = "ludicrous"
	assert.Equal(t, "medium", argValue(enc.BuildArgs(req), "-preset"))

	req.Preset = "veryslow"
	assert.Equal(t, "veryslow", argValue(enc.BuildArgs(req), "-preset"))
}

func TestSoftwareBitDepth(t *testing.T) {
	enc := NewSoftwareEncoder("ffmpeg")

	req := baseRequest()
	req.BitDepth = 10
	args := enc.BuildArgs(req)
	assert.Equal(t, "yuv420p10le", argValue(args, "-pix_fmt"))

	// Anything but 8 or 10 degrades to 8-bit
	req.BitDepth = 12
	args = enc.BuildArgs(req)
	assert.False(t, hasArg(args, "-pix_fmt"))
}

func TestSoftwareHDRParams(t *testing.T) {
	enc := NewSoftwareEncoder("ffmpeg")

	req := baseRequest()
	req.BitDepth = 10
	req.HDR = true
	args := enc.BuildArgs(req)
	require.True(t, hasArg(args, "-x265-params"))
	assert.Equal(t, hdrParams, argValue(args, "-x265-params"))

	// HDR signaling requires 10-bit output
	req.BitDepth = 8
	args = enc.BuildArgs(req)
	assert.False(t, hasArg(args, "-x265-params"))
}

func TestSharedArgsAlwaysPresent(t *testing.T) {
	req := baseRequest()
	for _, enc := range []Encoder{NewHardwareEncoder("ffmpeg"), NewSoftwareEncoder("ffmpeg")} {
		args := enc.BuildArgs(req)

		assert.Equal(t, "-nostdin", args[0], "%s must not read the terminal", enc.Name())
		assert.True(t, hasArg(args, "-y"))
		assert.Equal(t, "0", argValue(args, "-map_metadata"))
		assert.Equal(t, "hvc1", argValue(args, "-tag:v"))
		assert.Equal(t, "+faststart", argValue(args, "-movflags"))
		assert.Equal(t, req.InputPath, argValue(args, "-i"))
		assert.Equal(t, req.OutputPath, args[len(args)-1], "%s must put the output path last", enc.Name())
	}
}

func TestAudioArgs(t *testing.T) {
	enc := NewSoftwareEncoder("ffmpeg")

	req := baseRequest()
	req.Audio = AudioAAC
	args := enc.BuildArgs(req)
	assert.Equal(t, "aac", argValue(args, "-c:a"))
	assert.Equal(t, "160k", argValue(args, "-b:a"))

	req.Audio = AudioNone
	args = enc.BuildArgs(req)
	assert.True(t, hasArg(args, "-an"))
	assert.False(t, hasArg(args, "-c:a"))

	// Unrecognized modes degrade to copy
	req.Audio = AudioMode("flac")
	args = enc.BuildArgs(req)
	assert.Equal(t, "copy", argValue(args, "-c:a"))
}
