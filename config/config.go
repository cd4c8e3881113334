// Package config provides the server configuration.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/freetable"
	"github.com/effective-security/x/configloader"
)

// Defaults
const (
	DefaultListenAddress = ":8080"
	DefaultServerName    = "FreeTable Restaurant Booking"
	DefaultServerVersion = "1.0.0"
)

// Config of the MCP server
type Config struct {
	// ListenAddress is the address the HTTP server listens on
	ListenAddress string `json:"listen_address,omitempty" yaml:"listen_address,omitempty"`
	// Server is reported to MCP clients on initialize
	Server ServerConfig `json:"server" yaml:"server"`
	// FreeTable configures the booking API client
	FreeTable FreeTableConfig `json:"freetable" yaml:"freetable"`
	// ToolsPageSize limits the number of tools per tools/list page, 0 disables pagination
	ToolsPageSize int `json:"tools_page_size,omitempty" yaml:"tools_page_size,omitempty"`
}

// ServerConfig specifies the MCP server implementation info
type ServerConfig struct {
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// FreeTableConfig specifies the booking API client
type FreeTableConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Timeout is a duration such as 10s, empty means no timeout
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TimeoutDuration returns the parsed client timeout
func (c *FreeTableConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid freetable.timeout %q", c.Timeout)
	}
	if d < 0 {
		return 0, errors.Errorf("invalid freetable.timeout %q: must not be negative", c.Timeout)
	}
	return d, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := new(Config)
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in the empty values
func (c *Config) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.Server.Name == "" {
		c.Server.Name = DefaultServerName
	}
	if c.Server.Version == "" {
		c.Server.Version = DefaultServerVersion
	}
	if c.FreeTable.BaseURL == "" {
		c.FreeTable.BaseURL = freetable.DefaultBaseURL
	}
}

// Validate returns an error if the configuration is not usable
func (c *Config) Validate() error {
	if c.ToolsPageSize < 0 {
		return errors.Errorf("invalid tools_page_size %d: must not be negative", c.ToolsPageSize)
	}
	if _, err := c.FreeTable.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// LoadConfig from file, the defaults are returned when file is empty
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		err := configloader.UnmarshalAndExpand(file, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load config %s", file)
		}
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
