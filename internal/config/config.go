// Package config loads the static process configuration: gateway lists,
// connection pool sizes, retry policy, and socket timeouts. Values come
// from a TOML file with defaults for every field, so a missing file yields
// a working configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the static settings for the remote storage core.
type Config struct {
	// Equivalent gateway hosts; one is chosen uniformly at random per request.
	APIGateways      []string `toml:"api_gateways"`
	UploadGateways   []string `toml:"upload_gateways"`
	DownloadGateways []string `toml:"download_gateways"`

	// Per-pool concurrency caps.
	MaxAPIConns      int64 `toml:"max_api_conns"`
	MaxUploadConns   int64 `toml:"max_upload_conns"`
	MaxDownloadConns int64 `toml:"max_download_conns"`

	// Retry policy.
	MaxRetryAPI      int `toml:"max_retry_api"`
	MaxRetryUpload   int `toml:"max_retry_upload"`
	MaxRetryDownload int `toml:"max_retry_download"`

	RetryAPITimeoutSec      int `toml:"retry_api_timeout_sec"`
	RetryUploadTimeoutSec   int `toml:"retry_upload_timeout_sec"`
	RetryDownloadTimeoutSec int `toml:"retry_download_timeout_sec"`

	// Socket timeouts.
	APITimeoutSec      int `toml:"api_timeout_sec"`
	UploadTimeoutSec   int `toml:"upload_timeout_sec"`
	DownloadTimeoutSec int `toml:"download_timeout_sec"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		APIGateways: []string{
			"https://api.filen.io",
			"https://api.filen.net",
			"https://api.filen-1.net",
			"https://api.filen-2.net",
		},
		UploadGateways: []string{
			"https://ingest.filen.io",
			"https://ingest.filen.net",
		},
		DownloadGateways: []string{
			"https://down.filen.io",
			"https://down.filen.net",
		},
		MaxAPIConns:             128,
		MaxUploadConns:          16,
		MaxDownloadConns:        16,
		MaxRetryAPI:             512,
		MaxRetryUpload:          16,
		MaxRetryDownload:        16,
		RetryAPITimeoutSec:      1,
		RetryUploadTimeoutSec:   1,
		RetryDownloadTimeoutSec: 1,
		APITimeoutSec:           500,
		UploadTimeoutSec:        3600,
		DownloadTimeoutSec:      86400,
	}
}

// Load reads the TOML config at path, layered over DefaultConfig. A missing
// file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("config: decoding %q: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: unknown keys in %q: %v", path, undecoded)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %q: %w", path, err)
	}

	return cfg, nil
}

// validate rejects configurations the transport cannot run with.
func (c Config) validate() error {
	if len(c.APIGateways) == 0 {
		return errors.New("api_gateways must not be empty")
	}

	if len(c.UploadGateways) == 0 {
		return errors.New("upload_gateways must not be empty")
	}

	if len(c.DownloadGateways) == 0 {
		return errors.New("download_gateways must not be empty")
	}

	if c.MaxAPIConns <= 0 || c.MaxUploadConns <= 0 || c.MaxDownloadConns <= 0 {
		return errors.New("connection pool sizes must be positive")
	}

	if c.MaxRetryAPI <= 0 || c.MaxRetryUpload <= 0 || c.MaxRetryDownload <= 0 {
		return errors.New("retry limits must be positive")
	}

	return nil
}

// RetryAPITimeout returns the API retry sleep as a duration.
func (c Config) RetryAPITimeout() time.Duration {
	return time.Duration(c.RetryAPITimeoutSec) * time.Second
}

// RetryUploadTimeout returns the upload retry sleep as a duration.
func (c Config) RetryUploadTimeout() time.Duration {
	return time.Duration(c.RetryUploadTimeoutSec) * time.Second
}

// RetryDownloadTimeout returns the download retry sleep as a duration.
func (c Config) RetryDownloadTimeout() time.Duration {
	return time.Duration(c.RetryDownloadTimeoutSec) * time.Second
}

// APITimeout returns the API request timeout.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSec) * time.Second
}

// UploadTimeout returns the upload socket timeout.
func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSec) * time.Second
}

// DownloadTimeout returns the download socket timeout.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}
