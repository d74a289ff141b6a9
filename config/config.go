package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete capture library configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Detector      DetectorConfig      `yaml:"detector"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig contains audio acquisition parameters
type CaptureConfig struct {
	SampleRate     int `yaml:"sample_rate"`      // Hz
	Channels       int `yaml:"channels"`         // must be 1 (mono)
	FrameSize      int `yaml:"frame_size"`       // samples per analysis frame
	PollIntervalMs int `yaml:"poll_interval_ms"` // energy sampling cadence
}

// DetectorConfig contains voice activity detection parameters
type DetectorConfig struct {
	Threshold        float64 `yaml:"threshold"`          // energy threshold in (0,1)
	SilenceTimeoutMs int     `yaml:"silence_timeout_ms"` // voice-activation stop delay
}

// TranscriptionConfig contains transcription API parameters
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with defaults suitable for a 16 kHz mono
// microphone sampled at display-refresh cadence.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SampleRate:     16000,
			Channels:       1,
			FrameSize:      1024,
			PollIntervalMs: 16,
		},
		Detector: DetectorConfig{
			Threshold:        0.2,
			SilenceTimeoutMs: 2000,
		},
		Transcription: TranscriptionConfig{
			Timeout:       30,
			MaxConcurrent: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}

	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", c.Channels)
	}

	if c.FrameSize < 256 || c.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 256 and 8192 samples, got %d", c.FrameSize)
	}

	if c.PollIntervalMs < 1 {
		return fmt.Errorf("poll_interval_ms must be at least 1, got %d", c.PollIntervalMs)
	}

	return nil
}

// Validate validates detector configuration
func (d *DetectorConfig) Validate() error {
	if d.Threshold <= 0 || d.Threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", d.Threshold)
	}

	if d.SilenceTimeoutMs < 1 {
		return fmt.Errorf("silence_timeout_ms must be at least 1, got %d", d.SilenceTimeoutMs)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetPollInterval returns the energy sampling interval as a time.Duration
func (c *CaptureConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (d *DetectorConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(d.SilenceTimeoutMs) * time.Millisecond
}

// GetTimeout returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
