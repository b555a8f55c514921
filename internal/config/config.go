// Package config loads and validates the sdrcore YAML configuration file
// into a struct-of-structs with one yaml-tagged type per subsystem.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	RTLTCP   RTLTCPConfig   `yaml:"rtltcp"`
	Mux      MuxConfig      `yaml:"mux"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Store    StoreConfig    `yaml:"store"`
	Fanout   FanoutConfig   `yaml:"fanout"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RTLTCPConfig describes how to reach the rtl_tcp server.
type RTLTCPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Receiver describes a VirtualReceiver entry under mux.receivers. It is
// parsed and kept in MuxConfig; nothing in this module creates receivers
// from it at mux startup.
type Receiver struct {
	ID           string  `yaml:"id"`
	CenterFreqHz uint64  `yaml:"center_freq_hz"`
	BandwidthHz  uint32  `yaml:"bandwidth_hz"`
	OutputRateHz uint32  `yaml:"output_rate_hz"`
	Mode         string  `yaml:"mode"`
	DeemphasisUs float64 `yaml:"deemphasis_us"`
}

// MuxConfig configures the SDR Multiplexer.
type MuxConfig struct {
	FFTSize         int        `yaml:"fft_size"`
	FlushIntervalMs int        `yaml:"flush_interval_ms"`
	CenterFreqHz    uint64     `yaml:"center_freq_hz"`
	SampleRateHz    uint32     `yaml:"sample_rate_hz"`
	GainTenthsDB    int32      `yaml:"gain_tenths_db"`
	Receivers       []Receiver `yaml:"receivers"`
}

// Range is one scanner sweep range.
type Range struct {
	StartHz uint64 `yaml:"start_hz"`
	EndHz   uint64 `yaml:"end_hz"`
}

// ScannerConfig configures the UHF Scanner.
type ScannerConfig struct {
	Ranges             []Range `yaml:"ranges"`
	DwellMs            int     `yaml:"dwell_ms"`
	ThresholdDB        float64 `yaml:"threshold_db"`
	SquelchTimeoutMs   int     `yaml:"squelch_timeout_ms"`
	MaxParkMs          int     `yaml:"max_park_ms"`
	SampleRateHz       uint32  `yaml:"sample_rate_hz"`
	GainTenthsDB       int32   `yaml:"gain_tenths_db"`
	PriorityInterval   int     `yaml:"priority_interval"`
	LockoutSeedFile    string  `yaml:"lockout_seed_file"`
}

// StoreConfig configures the embedded Scanner Store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// FanoutConfig configures the per-subscriber queue limits.
type FanoutConfig struct {
	QueueDepth int   `yaml:"queue_depth"`
	QueueBytes int64 `yaml:"queue_bytes"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig configures optional event republishing.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses filename, fills in defaults and validates the
// result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RTLTCP.TimeoutMs == 0 {
		c.RTLTCP.TimeoutMs = 10000
	}
	if c.Mux.FFTSize == 0 {
		c.Mux.FFTSize = 2048
	}
	if c.Mux.FlushIntervalMs == 0 {
		c.Mux.FlushIntervalMs = 8
	}
	if c.Mux.SampleRateHz == 0 {
		c.Mux.SampleRateHz = 2_048_000
	}
	if c.Scanner.DwellMs == 0 {
		c.Scanner.DwellMs = 100
	}
	if c.Scanner.ThresholdDB == 0 {
		c.Scanner.ThresholdDB = 10
	}
	if c.Scanner.SquelchTimeoutMs == 0 {
		c.Scanner.SquelchTimeoutMs = 3000
	}
	if c.Scanner.MaxParkMs == 0 {
		c.Scanner.MaxParkMs = 15000
	}
	if c.Scanner.SampleRateHz == 0 {
		c.Scanner.SampleRateHz = 2_048_000
	}
	if c.Scanner.GainTenthsDB == 0 {
		c.Scanner.GainTenthsDB = 400
	}
	if c.Scanner.PriorityInterval == 0 {
		c.Scanner.PriorityInterval = 3
	}
	if c.Store.Path == "" {
		c.Store.Path = "sdrcore.db"
	}
	if c.Fanout.QueueDepth == 0 {
		c.Fanout.QueueDepth = 64
	}
	if c.Fanout.QueueBytes == 0 {
		c.Fanout.QueueBytes = 4 << 20
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports the first configuration error found via flat
// early returns.
func (c *Config) Validate() error {
	if c.RTLTCP.Host == "" {
		return fmt.Errorf("rtltcp.host is required")
	}
	if c.RTLTCP.Port <= 0 {
		return fmt.Errorf("rtltcp.port must be positive")
	}
	if c.Mux.FFTSize <= 0 || c.Mux.FFTSize&(c.Mux.FFTSize-1) != 0 {
		return fmt.Errorf("mux.fft_size must be a power of two")
	}
	for _, r := range c.Scanner.Ranges {
		if r.EndHz <= r.StartHz {
			return fmt.Errorf("scanner range end_hz must be greater than start_hz")
		}
	}
	if c.Scanner.DwellMs < 1 {
		return fmt.Errorf("scanner.dwell_ms must be at least 1")
	}
	return nil
}
