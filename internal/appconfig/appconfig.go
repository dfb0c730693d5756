// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting benchmark configuration.
package appconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/prefetchbench/internal/models"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultLogFile is used when the configuration leaves logFile empty.
	defaultLogFile = "prefetchbench.log"

	DefaultNumStreams = 3
	DefaultWarmups    = 2
	DefaultIterations = 3
	DefaultSeqLen     = 1024

	// DefaultDeviceMemoryGB is the simulated device capacity, in GB.
	DefaultDeviceMemoryGB = 16.0
)

// Config represents the resolved benchmark configuration.
type Config struct {
	Model                string  `json:"model"`
	EnablePrefetch       bool    `json:"enablePrefetch"`
	EnableCudnnBenchmark bool    `json:"enableCudnnBenchmark"`
	NumStreams           int     `json:"numStreams"`
	Warmups              int     `json:"warmups"`
	Iterations           int     `json:"iterations"`
	SeqLen               int     `json:"seqLen"`
	Seed                 int64   `json:"seed"`
	TransferGBps         float64 `json:"transferGBps"`
	LaunchLatency        string  `json:"launchLatency,omitempty"`
	Device               int     `json:"device"`
	DeviceMemoryGB       float64 `json:"deviceMemoryGB"`
	ExportPath           string  `json:"export,omitempty" mapstructure:"export"`
	ShowStreams          bool    `json:"showStreams"`
	Progress             bool    `json:"progress"`
	Debug                bool    `json:"debug"`
	LogFile              string  `json:"logFile,omitempty"`
	ConfigPath           string  `json:"-" mapstructure:"-"`
}

// Default returns the configuration used when neither flags nor a file override a value.
func Default() Config {
	return Config{
		Model:          models.DefaultModel,
		NumStreams:     DefaultNumStreams,
		Warmups:        DefaultWarmups,
		Iterations:     DefaultIterations,
		SeqLen:         DefaultSeqLen,
		DeviceMemoryGB: DefaultDeviceMemoryGB,
		Progress:       true,
	}
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return defaultLogFile
}

// LaunchLatencyDuration parses LaunchLatency. An empty value means no latency.
func (c Config) LaunchLatencyDuration() (time.Duration, error) {
	if strings.TrimSpace(c.LaunchLatency) == "" {
		return 0, nil
	}
	return time.ParseDuration(c.LaunchLatency)
}

// TransferBandwidth converts TransferGBps to bytes per second.
func (c Config) TransferBandwidth() float64 { return c.TransferGBps * 1e9 }

// MemoryBytes converts DeviceMemoryGB to bytes.
func (c Config) MemoryBytes() int64 { return int64(c.DeviceMemoryGB * 1e9) }

// ModelConfig resolves the configured preset.
func (c Config) ModelConfig() (models.Config, error) { return models.Lookup(c.Model) }

// Validate checks every numeric parameter before any device work starts.
func (c Config) Validate() error {
	if _, err := c.ModelConfig(); err != nil {
		return err
	}
	checks := []struct {
		field  string
		value  any
		bad    bool
		reason string
	}{
		{"numStreams", c.NumStreams, c.NumStreams < 1, "must be at least 1"},
		{"warmups", c.Warmups, c.Warmups < 0, "must not be negative"},
		{"iterations", c.Iterations, c.Iterations < 1, "must be at least 1"},
		{"seqLen", c.SeqLen, c.SeqLen < 1, "must be at least 1"},
		{"transferGBps", c.TransferGBps, c.TransferGBps < 0, "must not be negative"},
		{"device", c.Device, c.Device < 0, "must not be negative"},
		{"deviceMemoryGB", c.DeviceMemoryGB, c.DeviceMemoryGB <= 0, "must be positive"},
	}
	for _, chk := range checks {
		if chk.bad {
			return &models.ConfigurationError{Field: chk.field, Value: chk.value, Reason: chk.reason}
		}
	}
	d, err := c.LaunchLatencyDuration()
	if err != nil || d < 0 {
		return &models.ConfigurationError{Field: "launchLatency", Value: c.LaunchLatency, Reason: "must be a non-negative duration"}
	}
	return nil
}

// Load reads a JSON configuration file over the defaults. The file is
// validated against Schema first.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := ValidateDocument(data); err != nil {
		return Config{}, fmt.Errorf("config file %q: %w", path, err)
	}

	config := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("could not decode config file %q: %w", path, err)
	}
	config.ConfigPath = path
	return config, nil
}

// ValidateDocument checks a JSON document against Schema. Violations are
// reported as a ConfigurationError.
func ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(Schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &models.ConfigurationError{Field: "config", Value: "file", Reason: "failed validation: " + strings.Join(details, "; ")}
}
