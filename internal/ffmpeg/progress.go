package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

// Progress represents one parsed encoder progress sample
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	Quality float64       `json:"quality"` // encoder q value
	Size    int64         `json:"size"`    // current output size in bytes
	Time    time.Duration `json:"time"`    // current position in source
	Bitrate float64       `json:"bitrate"` // current bitrate in kbits/s
	Speed   float64       `json:"speed"`   // encoding speed (1.0 = realtime)
	Percent float64       `json:"percent"` // 0-100
}

// Each metric is matched independently so a partially garbled stats line
// still yields whatever fields it does carry.
var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([0-9.]+)`)
	qualityRe = regexp.MustCompile(`q=\s*(-?[0-9.]+)`)
	sizeRe    = regexp.MustCompile(`size=\s*(\d+)kB`)
	timeRe    = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2})\.(\d+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([0-9.]+)kbits/s`)
	speedRe   = regexp.MustCompile(`speed=\s*([0-9.]+)x`)
)

// Parser turns raw ffmpeg stderr stats lines into Progress samples.
// One Parser serves one encode; totalDuration fixes the percentage scale.
// Unknown total duration (0) pins the percentage at 0 for the whole run.
type Parser struct {
	totalDuration time.Duration
	last          *Progress
}

// NewParser creates a Parser for a source of the given total duration
func NewParser(totalDuration time.Duration) *Parser {
	return &Parser{totalDuration: totalDuration}
}

// ParseLine extracts a progress sample from one line of encoder output.
// A sample is produced only when the line carries both a frame marker and
// a parseable time marker; every other metric defaults to zero when
// missing or malformed. Lines without progress return ok=false, which is
// not an error.
func (p *Parser) ParseLine(line string) (Progress, bool) {
	frameMatch := frameRe.FindStringSubmatch(line)
	timeMatch := timeRe.FindStringSubmatch(line)
	if frameMatch == nil || timeMatch == nil {
		return Progress{}, false
	}

	var prog Progress
	prog.Frame, _ = strconv.ParseInt(frameMatch[1], 10, 64)
	prog.Time = parseStatsTime(timeMatch)

	if m := fpsRe.FindStringSubmatch(line); m != nil {
		prog.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := qualityRe.FindStringSubmatch(line); m != nil {
		prog.Quality, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := sizeRe.FindStringSubmatch(line); m != nil {
		kb, _ := strconv.ParseInt(m[1], 10, 64)
		prog.Size = kb * 1024
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		prog.Bitrate, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		prog.Speed, _ = strconv.ParseFloat(m[1], 64)
	}

	if p.totalDuration > 0 {
		prog.Percent = float64(prog.Time) / float64(p.totalDuration) * 100
		if prog.Percent > 100 {
			prog.Percent = 100
		}
		if prog.Percent < 0 {
			prog.Percent = 0
		}
	}

	p.last = &prog
	return prog, true
}

// Last returns the most recent successfully parsed sample, or nil
func (p *Parser) Last() *Progress {
	return p.last
}

// parseStatsTime converts a matched HH:MM:SS.cc time marker to a duration.
// The fractional part is centiseconds in standard ffmpeg stats output, but
// any fraction length is scaled correctly.
func parseStatsTime(match []string) time.Duration {
	hours, _ := strconv.ParseInt(match[1], 10, 64)
	minutes, _ := strconv.ParseInt(match[2], 10, 64)
	seconds, _ := strconv.ParseInt(match[3], 10, 64)

	fraction := match[4]
	if len(fraction) > 9 {
		fraction = fraction[:9]
	}
	nanos, _ := strconv.ParseInt(fraction, 10, 64)
	for i := len(fraction); i < 9; i++ {
		nanos *= 10
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(nanos)
}
