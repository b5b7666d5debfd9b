package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Backend connection settings
	Backend BackendConfig `mapstructure:"backend"`

	// Upload queue behavior
	Upload UploadConfig `mapstructure:"upload"`

	// Proxy server settings
	Server ServerConfig `mapstructure:"server"`

	// Transfer journal
	History HistoryConfig `mapstructure:"history"`

	// Logging
	Log LogConfig `mapstructure:"log"`
}

// BackendConfig describes the upstream file server.
type BackendConfig struct {
	// BaseURL is the backend as this process reaches it. Empty means
	// not configured, which is a distinct state from any error.
	BaseURL string `mapstructure:"base_url"`

	// PublicBaseURL overrides the URL handed to browsers. When empty
	// and BaseURL points at a loopback host, the hostname is rewritten
	// to the inbound request's host.
	PublicBaseURL string `mapstructure:"public_base_url"`

	// RootPath prefixes every virtual path in the upstream path space.
	RootPath string `mapstructure:"root_path"`

	// Password is sent as a query parameter, never a header.
	Password string `mapstructure:"password"`

	// Cookie is a baseline cookie merged with forwarded ones.
	Cookie string `mapstructure:"cookie"`

	// Timeout bounds every control-plane request (listing, mutation,
	// ensure-directory). Upload transport is not subject to it.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Configured reports whether a backend base URL is set.
func (b *BackendConfig) Configured() bool {
	return strings.TrimSpace(b.BaseURL) != ""
}

// UploadConfig for the transfer queue.
type UploadConfig struct {
	MaxConcurrent       int `mapstructure:"max_concurrent"`        // in-flight upload cap
	MobileMaxConcurrent int `mapstructure:"mobile_max_concurrent"` // cap for touch clients
	HistoryLimit        int `mapstructure:"history_limit"`         // finished items retained
}

// ServerConfig for the JSON proxy server.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// HistoryConfig for the SQLite transfer journal.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Limit   int    `mapstructure:"limit"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// Default returns config with sensible defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			RootPath: "/",
			Timeout:  20 * time.Second,
		},
		Upload: UploadConfig{
			MaxConcurrent:       4,
			MobileMaxConcurrent: 2,
			HistoryLimit:        100,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8384",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    ".skiff/history.db",
			Limit:   1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Backend.Timeout <= 0 {
		return errors.New("backend.timeout must be positive")
	}

	if c.Upload.MaxConcurrent <= 0 {
		return errors.New("upload.max_concurrent must be positive")
	}

	if c.Upload.MobileMaxConcurrent <= 0 ||
		c.Upload.MobileMaxConcurrent > c.Upload.MaxConcurrent {
		return errors.New("upload.mobile_max_concurrent must be between 1 and upload.max_concurrent")
	}

	if c.Upload.HistoryLimit < 0 {
		return errors.New("upload.history_limit must not be negative")
	}

	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.path is required when history is enabled")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}
