// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file (bigquery-mcp.yaml).
const DefaultConfigFileName = "bigquery-mcp"

// Config holds all configuration for the BigQuery MCP server.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// BigQuery connection and defaults
	BigQuery BigQueryConfig `mapstructure:"bigquery"`

	// Transport selection and HTTP binding
	Transport TransportConfig `mapstructure:"transport"`

	// Rate limiting per logical client
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// BigQueryConfig holds warehouse connection settings and query defaults.
type BigQueryConfig struct {
	// ProjectID is the default Google Cloud project for queries and listings.
	ProjectID string `mapstructure:"project_id"`

	// Location is the default job location (e.g. "US", "asia-northeast1").
	Location string `mapstructure:"location"`

	// CredentialsFile is a service account JSON key file.
	// Empty means Application Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`

	// Endpoint overrides the BigQuery API base URL (testing only).
	Endpoint string `mapstructure:"endpoint"`

	// QueryTimeoutSeconds bounds each backend operation.
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds"`

	// MaxRows caps the per-page row count a client may request.
	MaxRows int64 `mapstructure:"max_rows"`

	// ExposeResources enables bq:// resource URIs for schemas and result chunks.
	ExposeResources bool `mapstructure:"expose_resources"`
}

// TransportConfig selects and configures the MCP transport.
type TransportConfig struct {
	// Mode is "stdio" or "http".
	Mode string `mapstructure:"mode"`

	// Host for the HTTP transport. Keep this on loopback: the transport
	// has no authentication.
	Host string `mapstructure:"host"`

	// Port for the HTTP transport.
	Port int `mapstructure:"port"`

	// AllowedOrigins lists extra Origin header values the HTTP transport
	// accepts beyond localhost.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// SessionTTLMinutes is how long an idle HTTP session lives.
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`

	// Workers is the request worker pool size.
	Workers int `mapstructure:"workers"`
}

// RateLimitConfig gates incoming tool calls.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstCapacity     int     `mapstructure:"burst_capacity"`
}

// LoggingConfig controls log output. Logs never go to stdout: on the stdio
// transport stdout carries protocol frames.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level"`

	// File is the log destination; empty means stderr.
	File string `mapstructure:"file"`
}

// QueryTimeout returns the configured timeout as a duration.
func (c *BigQueryConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// SessionTTL returns the configured session TTL as a duration.
func (c *TransportConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Addr returns the HTTP listen address.
func (c *TransportConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file, environment, and bound flags.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/bigquery-mcp/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// No config file is fine; flags, env, and defaults apply.
	}

	viper.SetEnvPrefix("BQMCP")
	viper.AutomaticEnv()

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("bigquery.project_id", "")
	viper.SetDefault("bigquery.location", "")
	viper.SetDefault("bigquery.credentials_file", "")
	viper.SetDefault("bigquery.endpoint", "")
	viper.SetDefault("bigquery.query_timeout_seconds", 30)
	viper.SetDefault("bigquery.max_rows", 1000)
	viper.SetDefault("bigquery.expose_resources", false)

	viper.SetDefault("transport.mode", "stdio")
	viper.SetDefault("transport.host", "127.0.0.1")
	viper.SetDefault("transport.port", 8080)
	viper.SetDefault("transport.session_ttl_minutes", 30)
	viper.SetDefault("transport.workers", 4)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 5.0)
	viper.SetDefault("rate_limit.burst_capacity", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode %q (want stdio or http)", c.Transport.Mode)
	}

	if c.Transport.Mode == "http" && (c.Transport.Port < 1 || c.Transport.Port > 65535) {
		return fmt.Errorf("invalid port: %d", c.Transport.Port)
	}

	if c.BigQuery.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("query_timeout_seconds must be positive, got %d", c.BigQuery.QueryTimeoutSeconds)
	}

	if c.BigQuery.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive, got %d", c.BigQuery.MaxRows)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("requests_per_second must be positive, got %g", c.RateLimit.RequestsPerSecond)
		}
		if c.RateLimit.BurstCapacity <= 0 {
			return fmt.Errorf("burst_capacity must be positive, got %d", c.RateLimit.BurstCapacity)
		}
	}

	return nil
}
