// Package config loads the apyd service configuration from YAML, JSON or
// TOML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults.
type Config struct {
	Addr      string   `json:"addr" yaml:"addr" toml:"addr"`
	ModesDirs []string `json:"modes_dirs" yaml:"modes_dirs" toml:"modes_dirs"`

	MaxPipesPerPair  int   `json:"max_pipes_per_pair" yaml:"max_pipes_per_pair" toml:"max_pipes_per_pair"`
	MinPipesPerPair  int   `json:"min_pipes_per_pair" yaml:"min_pipes_per_pair" toml:"min_pipes_per_pair"`
	MaxUsersPerPipe  int   `json:"max_users_per_pipe" yaml:"max_users_per_pipe" toml:"max_users_per_pipe"`
	MaxIdleSecs      int   `json:"max_idle_secs" yaml:"max_idle_secs" toml:"max_idle_secs"`
	RestartPipeAfter int64 `json:"restart_pipe_after" yaml:"restart_pipe_after" toml:"restart_pipe_after"`
	TimeoutSecs      int   `json:"timeout_secs" yaml:"timeout_secs" toml:"timeout_secs"`

	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogPretty    bool   `json:"log_pretty" yaml:"log_pretty" toml:"log_pretty"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Watch        bool   `json:"watch" yaml:"watch" toml:"watch"`

	OneShotMarkers    []string `json:"oneshot_markers" yaml:"oneshot_markers" toml:"oneshot_markers"`
	NoRawFlagCommands []string `json:"no_raw_flag_commands" yaml:"no_raw_flag_commands" toml:"no_raw_flag_commands"`

	CORS    CORS    `json:"cors" yaml:"cors" toml:"cors"`
	Tracing Tracing `json:"tracing" yaml:"tracing" toml:"tracing"`
}

// CORS configures the opt-in CORS middleware.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Tracing configures the OTLP/gRPC trace exporter. An empty endpoint
// disables export.
type Tracing struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Insecure    bool   `json:"insecure" yaml:"insecure" toml:"insecure"`
	ServiceName string `json:"service_name" yaml:"service_name" toml:"service_name"`
}

// MaxIdle returns MaxIdleSecs as a duration.
func (c Config) MaxIdle() time.Duration { return time.Duration(c.MaxIdleSecs) * time.Second }

// Timeout returns TimeoutSecs as a duration.
func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// Validate rejects values that have no sensible default.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]int64{
		"max_pipes_per_pair": int64(c.MaxPipesPerPair),
		"min_pipes_per_pair": int64(c.MinPipesPerPair),
		"max_users_per_pipe": int64(c.MaxUsersPerPipe),
		"max_idle_secs":      int64(c.MaxIdleSecs),
		"restart_pipe_after": c.RestartPipeAfter,
		"timeout_secs":       int64(c.TimeoutSecs),
		"max_body_bytes":     c.MaxBodyBytes,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.MaxPipesPerPair > 0 && c.MinPipesPerPair > c.MaxPipesPerPair {
		errs = append(errs, fmt.Errorf("min_pipes_per_pair (%d) exceeds max_pipes_per_pair (%d)", c.MinPipesPerPair, c.MaxPipesPerPair))
	}
	return errors.Join(errs...)
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
