// Package config loads and validates JSON configuration for the rdmxwatch
// service. All fields are optional: a missing file or an omitted field
// falls back to the documented default, so partial configs are safe and
// explicit command-line flags always win over the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WatchConfig represents the on-disk configuration for the rdmxwatch
// service. Fields use pointers so that "not set in the file" can be told
// apart from an explicit zero; the Get* methods provide fallback defaults
// for any fields left nil.
type WatchConfig struct {
	// Network
	UDPPort    *int    `json:"udp_port,omitempty"`
	UDPAddress *string `json:"udp_addr,omitempty"`
	HTTPListen *string `json:"http_listen,omitempty"`
	RcvBuf     *int    `json:"rcvbuf,omitempty"`

	// Forwarding
	Forward     *bool   `json:"forward,omitempty"`
	ForwardAddr *string `json:"forward_addr,omitempty"`
	ForwardPort *int    `json:"forward_port,omitempty"`

	// Decode and reporting
	DisableDecode *bool   `json:"disable_decode,omitempty"`
	LogInterval   *string `json:"log_interval,omitempty"` // duration string like "2s"

	// Persistence
	DBPath *string `json:"db,omitempty"`
}

// EmptyWatchConfig returns a WatchConfig with all fields unset.
func EmptyWatchConfig() *WatchConfig {
	return &WatchConfig{}
}

// LoadWatchConfig loads a WatchConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadWatchConfig(path string) (*WatchConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyWatchConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path as indented JSON.
func (c *WatchConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *WatchConfig) Validate() error {
	if c.UDPPort != nil {
		if *c.UDPPort < 1 || *c.UDPPort > 65535 {
			return fmt.Errorf("udp_port must be between 1 and 65535, got %d", *c.UDPPort)
		}
	}

	if c.ForwardPort != nil {
		if *c.ForwardPort < 1 || *c.ForwardPort > 65535 {
			return fmt.Errorf("forward_port must be between 1 and 65535, got %d", *c.ForwardPort)
		}
	}

	if c.RcvBuf != nil {
		if *c.RcvBuf < 0 {
			return fmt.Errorf("rcvbuf must be non-negative, got %d", *c.RcvBuf)
		}
	}

	if c.LogInterval != nil && *c.LogInterval != "" {
		if _, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
	}

	return nil
}

// GetUDPPort returns the udp_port value or the default.
func (c *WatchConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return 4791 // default RDMX traffic port
	}
	return *c.UDPPort
}

// GetUDPAddress returns the udp_addr value or the default (all interfaces).
func (c *WatchConfig) GetUDPAddress() string {
	if c.UDPAddress == nil {
		return ""
	}
	return *c.UDPAddress
}

// GetHTTPListen returns the http_listen value or the default.
func (c *WatchConfig) GetHTTPListen() string {
	if c.HTTPListen == nil || *c.HTTPListen == "" {
		return ":8089" // default
	}
	return *c.HTTPListen
}

// GetRcvBuf returns the rcvbuf value or the default.
func (c *WatchConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return 4 << 20 // 4MB default
	}
	return *c.RcvBuf
}

// GetForward returns the forward value or the default.
func (c *WatchConfig) GetForward() bool {
	if c.Forward == nil {
		return false
	}
	return *c.Forward
}

// GetForwardAddr returns the forward_addr value or the default.
func (c *WatchConfig) GetForwardAddr() string {
	if c.ForwardAddr == nil || *c.ForwardAddr == "" {
		return "localhost"
	}
	return *c.ForwardAddr
}

// GetForwardPort returns the forward_port value or the default.
func (c *WatchConfig) GetForwardPort() int {
	if c.ForwardPort == nil {
		return 4792 // default
	}
	return *c.ForwardPort
}

// GetDisableDecode returns the disable_decode value or the default.
func (c *WatchConfig) GetDisableDecode() bool {
	if c.DisableDecode == nil {
		return false
	}
	return *c.DisableDecode
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *WatchConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetDBPath returns the db value or the default (no database).
func (c *WatchConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}
