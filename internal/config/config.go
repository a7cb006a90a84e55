package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

// Defaults for every optional setting.
const (
	DefaultConfigPath      = "config.toml"
	DefaultOutputDir       = "downloads"
	DefaultDatabasePath    = "media-fetch.db"
	DefaultBleveIndexPath  = "media-fetch.bleve"
	DefaultYtDlpPath       = "yt-dlp"
	DefaultExtractTimeout  = 30
	DefaultAudioContainer  = "mp3"
	DefaultMuxContainer    = "mp4"
	DefaultRetries         = 5
	DefaultListen          = ":3001"
	DefaultServePrefix     = "/api/serve-file/"
	DefaultRequestLogPath  = "requests.log"
	DefaultRetentionHours  = 24
	DefaultSweepIntervalMn = 60
)

// LoadConfig reads the TOML file at configFilePath (default "config.toml")
// and applies defaults. A missing file at the default path is not an error.
func LoadConfig(configFilePath string) (models.Config, error) {
	explicit := configFilePath != ""
	if !explicit {
		configFilePath = DefaultConfigPath
	}

	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	switch {
	case err == nil:
		log.Debugf("Configuration loaded from %s", configFilePath)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		log.Debugf("No %s found, using defaults", configFilePath)
	default:
		return ApplyDefaults(models.Config{}), fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}
	return ApplyDefaults(cfg), nil
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg models.Config) models.Config {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultDatabasePath
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = DefaultBleveIndexPath
	}
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = DefaultYtDlpPath
	}
	if cfg.ExtractTimeoutSec <= 0 {
		cfg.ExtractTimeoutSec = DefaultExtractTimeout
	}
	if cfg.AudioContainer == "" {
		cfg.AudioContainer = DefaultAudioContainer
	}
	if cfg.MuxContainer == "" {
		cfg.MuxContainer = DefaultMuxContainer
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.ServePrefix == "" {
		cfg.ServePrefix = DefaultServePrefix
	}
	if cfg.RequestLogPath == "" {
		cfg.RequestLogPath = DefaultRequestLogPath
	}
	if cfg.RetentionHours == 0 {
		cfg.RetentionHours = DefaultRetentionHours
	}
	if cfg.SweepIntervalMinutes <= 0 {
		cfg.SweepIntervalMinutes = DefaultSweepIntervalMn
	}
	return cfg
}

// Validate checks settings that have no sensible default.
func Validate(cfg models.Config) error {
	if cfg.AudioContainer == cfg.MuxContainer {
		return fmt.Errorf("AudioContainer and MuxContainer must differ (both %q)", cfg.AudioContainer)
	}
	if info, err := os.Stat(cfg.OutputDir); err == nil && !info.IsDir() {
		return fmt.Errorf("OutputDir %s is not a directory", cfg.OutputDir)
	}
	return nil
}
