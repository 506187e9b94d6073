// Package scan discovers convertible H.264 files under a directory tree.
package scan

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"hevcbatch/internal/ffmpeg"
)

// videoExtensions are the container types worth probing
var videoExtensions = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
	".avi": true,
	".mkv": true,
	".wmv": true,
	".ts":  true,
}

// IsVideoFile returns true if the filename has a recognized video extension
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// Prober supplies codec identity for discovered files
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Candidate is a file eligible for conversion together with its probe
type Candidate struct {
	Path  string
	Probe *ffmpeg.ProbeResult
}

// Scanner walks directory trees and probes video files
type Scanner struct {
	prober Prober
	log    *logrus.Entry
}

// New creates a Scanner using the given prober
func New(prober Prober) *Scanner {
	return &Scanner{
		prober: prober,
		log:    logrus.WithField("component", "scan"),
	}
}

// Find walks root and returns every H.264 file found, in walk order.
// Files that fail to probe or are not H.264 are skipped with a log line,
// never an error: one unreadable file must not abort discovery.
func (s *Scanner) Find(ctx context.Context, root string) ([]Candidate, error) {
	var found []Candidate

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsVideoFile(name) {
			return nil
		}

		candidate, ok := s.inspect(ctx, path)
		if ok {
			found = append(found, candidate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// inspect probes one file and decides whether it is convertible
func (s *Scanner) inspect(ctx context.Context, path string) (Candidate, bool) {
	probe, err := s.prober.Probe(ctx, path)
	if err != nil {
		s.log.WithError(err).WithField("file", path).Warn("probe failed, skipping")
		return Candidate{}, false
	}
	if probe.IsHEVC {
		s.log.WithField("file", path).Debug("already HEVC, skipping")
		return Candidate{}, false
	}
	if !probe.IsH264 {
		s.log.WithFields(logrus.Fields{
			"file":  path,
			"codec": probe.VideoCodec,
		}).Debug("not H.264, skipping")
		return Candidate{}, false
	}
	return Candidate{Path: path, Probe: probe}, true
}
