package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

// Config collects runtime settings for the commander.
type Config struct {
	// Channel is the serial device of the SLCAN adapter (COM5,
	// /dev/ttyACM0, ...). Empty means not yet configured; the session
	// connects lazily on first bus use.
	Channel string
	// BitRate is the CAN bus bit rate in bit/s.
	BitRate uint32
	// ResponseID is the CAN id the module is told to send
	// acknowledgements to. Carried in every command payload.
	ResponseID uint32

	OutputDir string
	Filename  string
	// FlushEvery is the log sink's row-count flush threshold.
	FlushEvery int

	AckTimeout        time.Duration
	PollInterval      time.Duration
	StreamRecvTimeout time.Duration

	LogLevel string
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		BitRate:           500000,
		ResponseID:        frame.DefaultResponseID,
		OutputDir:         "Data",
		Filename:          "sensor_data.csv",
		FlushEvery:        defaultFlushEvery,
		AckTimeout:        5 * time.Second,
		PollInterval:      time.Second,
		StreamRecvTimeout: 100 * time.Millisecond,
		LogLevel:          "info",
	}
}

// rawConfig is the YAML file shape. Pointer fields distinguish "absent"
// from zero so absent keys keep their defaults; durations are strings
// ("2s", "500ms") since yaml does not parse time.Duration itself.
type rawConfig struct {
	Channel           *string `yaml:"channel"`
	BitRate           *uint32 `yaml:"bit_rate"`
	ResponseID        *uint32 `yaml:"response_id"`
	OutputDir         *string `yaml:"output_dir"`
	Filename          *string `yaml:"filename"`
	FlushEvery        *int    `yaml:"flush_every"`
	AckTimeout        *string `yaml:"ack_timeout"`
	PollInterval      *string `yaml:"poll_interval"`
	StreamRecvTimeout *string `yaml:"stream_recv_timeout"`
	LogLevel          *string `yaml:"log_level"`
}

// LoadConfigFile reads a YAML config file and merges it over the
// defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if raw.Channel != nil {
		cfg.Channel = *raw.Channel
	}
	if raw.BitRate != nil {
		cfg.BitRate = *raw.BitRate
	}
	if raw.ResponseID != nil {
		cfg.ResponseID = *raw.ResponseID
	}
	if raw.OutputDir != nil {
		cfg.OutputDir = *raw.OutputDir
	}
	if raw.Filename != nil {
		cfg.Filename = *raw.Filename
	}
	if raw.FlushEvery != nil {
		cfg.FlushEvery = *raw.FlushEvery
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	for _, field := range []struct {
		raw  *string
		into *time.Duration
	}{
		{raw.AckTimeout, &cfg.AckTimeout},
		{raw.PollInterval, &cfg.PollInterval},
		{raw.StreamRecvTimeout, &cfg.StreamRecvTimeout},
	} {
		if field.raw == nil {
			continue
		}
		d, err := time.ParseDuration(*field.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config file %s: invalid duration %q: %w", path, *field.raw, err)
		}
		*field.into = d
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside the
// session.
func (c Config) Validate() error {
	if c.ResponseID > 0x7FF {
		return fmt.Errorf("response id 0x%X exceeds 11 bits", c.ResponseID)
	}
	if c.AckTimeout <= 0 || c.PollInterval <= 0 || c.StreamRecvTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// OutputPath resolves the CSV destination, appending the .csv suffix if
// the configured filename lacks one.
func (c Config) OutputPath() string {
	name := c.Filename
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return filepath.Join(c.OutputDir, name)
}
