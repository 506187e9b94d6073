package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults holds the encoding parameters applied to a request when the
// caller leaves a field unset. Out-of-range values are clamped again by
// the strategies, so garbage here degrades rather than fails.
type Defaults struct {
	// Mode selects the encoder: "hardware", "software" or "auto"
	Mode string `yaml:"mode"`

	// Quality is the hardware encoder quality (1-100)
	Quality int `yaml:"quality"`

	// CRF is the software encoder constant rate factor (0-51)
	CRF int `yaml:"crf"`

	// Preset is the x265 speed/quality preset
	Preset string `yaml:"preset"`

	// BitDepth is the output color depth (8 or 10)
	BitDepth int `yaml:"bit_depth"`

	// Audio determines audio handling: "copy", "aac" or "none"
	Audio string `yaml:"audio"`
}

// Throttle holds host headroom thresholds checked before a conversion
// is dispatched. Zero values disable the corresponding check.
type Throttle struct {
	// MaxCPUPercent blocks dispatch while total CPU usage is above this
	MaxCPUPercent float64 `yaml:"max_cpu_percent"`

	// MinFreeMemMB blocks dispatch while available memory is below this
	MinFreeMemMB int64 `yaml:"min_free_mem_mb"`

	// MinFreeDiskMB blocks dispatch while free disk space is below this
	MinFreeDiskMB int64 `yaml:"min_free_disk_mb"`
}

// Ntfy holds optional push notification settings for batch completion
type Ntfy struct {
	Server string `yaml:"server"`
	Topic  string `yaml:"topic"`
	Token  string `yaml:"token"`
}

type Config struct {
	// FFmpegPath is the path to the ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to the ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// MaxConcurrent is the number of conversions allowed to run at once
	MaxConcurrent int `yaml:"max_concurrent"`

	// HistoryFile is the SQLite database recording finished conversions.
	// Empty disables history.
	HistoryFile string `yaml:"history_file"`

	Defaults Defaults `yaml:"defaults"`
	Throttle Throttle `yaml:"throttle"`
	Ntfy     Ntfy     `yaml:"ntfy"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		MaxConcurrent: 1,
		Defaults: Defaults{
			Mode:     "auto",
			Quality:  45,
			CRF:      28,
			Preset:   "medium",
			BitDepth: 8,
			Audio:    "copy",
		},
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Apply defaults for empty values
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Defaults.Mode == "" {
		cfg.Defaults.Mode = "auto"
	}
	if cfg.Defaults.Quality == 0 {
		cfg.Defaults.Quality = 45
	}
	if cfg.Defaults.CRF == 0 {
		cfg.Defaults.CRF = 28
	}
	if cfg.Defaults.Preset == "" {
		cfg.Defaults.Preset = "medium"
	}
	if cfg.Defaults.BitDepth == 0 {
		cfg.Defaults.BitDepth = 8
	}
	if cfg.Defaults.Audio == "" {
		cfg.Defaults.Audio = "copy"
	}

	return cfg, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
