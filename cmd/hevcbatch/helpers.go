package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FormatBytes renders a byte count in human-readable form
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// buildOutputPath derives the converted file's path: the source name with an
// _hevc suffix and an .mp4 container, next to the source unless outputDir
// is set
func buildOutputPath(inputPath, outputDir string) string {
	dir := filepath.Dir(inputPath)
	if outputDir != "" {
		dir = outputDir
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+"_hevc.mp4")
}
