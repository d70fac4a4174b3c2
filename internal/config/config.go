package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// Config holds tunable defaults for plan capture, comparison, and reporting.
type Config struct {
	Capture CaptureConfig `json:"capture"`
	Compare CompareConfig `json:"compare"`
	Report  ReportConfig  `json:"report"`
}

// CaptureConfig defines connection and capture defaults.
type CaptureConfig struct {
	TimeoutSeconds int   `json:"timeout_seconds"`
	MaxConns       int32 `json:"max_conns"`
	Parallelism    int   `json:"parallelism"`
	CountRows      bool  `json:"count_rows"`
}

// CompareConfig defines comparison defaults.
type CompareConfig struct {
	TolerancePercent float64 `json:"tolerance_percent"`
	FullTree         bool    `json:"full_tree"`
}

// ReportConfig defines rendering defaults.
type ReportConfig struct {
	MaxNotes int  `json:"max_notes"`
	Color    bool `json:"color"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			TimeoutSeconds: 30,
			MaxConns:       4,
			Parallelism:    4,
			CountRows:      true,
		},
		Compare: CompareConfig{
			TolerancePercent: 5.0,
			FullTree:         false,
		},
		Report: ReportConfig{
			MaxNotes: 12,
			Color:    true,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from the provided path (JSON). Empty path resets to default.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, "parse config")
	}
	Use(cfg)
	return nil
}
