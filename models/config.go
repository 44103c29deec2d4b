// Package models defines data structures shared by the relay components:
// verification requests and results, the failure taxonomy, settings,
// cross-context messages and runtime configuration.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultShareBaseURL = "https://factcheck.example/share"
	DefaultListenAddr   = "127.0.0.1:8787"

	ImageEndpointGemini   = "gemini"
	ImageEndpointDetector = "detector"
)

// ScanConfig tunes the passive scan scheduler.
type ScanConfig struct {
	InitialDelay      time.Duration `yaml:"initial_delay"`
	RearmDelay        time.Duration `yaml:"rearm_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MinChars          int           `yaml:"min_chars"`
	MaxChars          int           `yaml:"max_chars"`
	AccuracyThreshold float64       `yaml:"accuracy_threshold"`
}

// PresentationConfig tunes the page presentation state machine.
type PresentationConfig struct {
	WarningTimeout time.Duration `yaml:"warning_timeout"`
}

// AppConfig holds runtime configuration. Values come from config.yaml,
// then .env / process environment, then CLI flags.
type AppConfig struct {
	DBPath             string             `yaml:"db_path"`      // empty means the user config directory
	APIBaseURL         string             `yaml:"api_base_url"` // seeds the settings store only when it is empty
	ShareBaseURL       string             `yaml:"share_base_url"`
	ImageEndpoint      string             `yaml:"image_endpoint"`
	RequestTimeout     time.Duration      `yaml:"request_timeout"`
	DeliveryTimeout    time.Duration      `yaml:"delivery_timeout"`
	DeliveryRetryDelay time.Duration      `yaml:"delivery_retry_delay"`
	ListenAddr         string             `yaml:"listen_addr"`
	Scan               ScanConfig         `yaml:"scan"`
	Presentation       PresentationConfig `yaml:"presentation"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() AppConfig {
	return AppConfig{
		ShareBaseURL:       DefaultShareBaseURL,
		ImageEndpoint:      ImageEndpointGemini,
		RequestTimeout:     120 * time.Second,
		DeliveryTimeout:    5 * time.Second,
		DeliveryRetryDelay: 150 * time.Millisecond,
		ListenAddr:         DefaultListenAddr,
		Scan: ScanConfig{
			InitialDelay:      1500 * time.Millisecond,
			RearmDelay:        3 * time.Second,
			PollInterval:      time.Second,
			MinChars:          50,
			MaxChars:          5000,
			AccuracyThreshold: 70,
		},
		Presentation: PresentationConfig{
			WarningTimeout: 10 * time.Second,
		},
	}
}

// LoadConfig reads path (if it exists) over the defaults and applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (AppConfig, error) {
	cfg := DefaultConfig()

	// .env is optional; the process environment wins over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if v := os.Getenv("FCR_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("FCR_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FCR_SHARE_BASE_URL"); v != "" {
		cfg.ShareBaseURL = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c AppConfig) Validate() error {
	switch c.ImageEndpoint {
	case ImageEndpointGemini, ImageEndpointDetector:
	default:
		return fmt.Errorf("image_endpoint must be %q or %q, got %q", ImageEndpointGemini, ImageEndpointDetector, c.ImageEndpoint)
	}
	if c.Scan.MinChars < 0 || c.Scan.MaxChars <= 0 {
		return fmt.Errorf("scan.min_chars and scan.max_chars must be positive")
	}
	if c.Scan.MinChars > c.Scan.MaxChars {
		return fmt.Errorf("scan.min_chars (%d) exceeds scan.max_chars (%d)", c.Scan.MinChars, c.Scan.MaxChars)
	}
	return nil
}
