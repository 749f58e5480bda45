// Package config loads flowtrace configuration from YAML or JSON files
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full flowtrace configuration.
type Config struct {
	Database Database             `yaml:"database" json:"database"`
	Realtime Realtime             `yaml:"realtime" json:"realtime"`
	Server   Server               `yaml:"server" json:"server"`
	Pricing  map[string]ModelRate `yaml:"pricing" json:"pricing"`
	Logging  Logging              `yaml:"logging" json:"logging"`
}

// Database selects the checkpoint store to inspect.
type Database struct {
	// Dialect is one of "sqlite", "postgres", "mysql".
	Dialect string `yaml:"dialect" json:"dialect"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" json:"dsn"`
}

// Realtime tunes the event pipeline.
type Realtime struct {
	BufferCapacity int      `yaml:"buffer_capacity" json:"buffer_capacity"`
	QueueSize      int      `yaml:"queue_size" json:"queue_size"`
	IdleTTL        Duration `yaml:"idle_ttl" json:"idle_ttl"`
	EvictInterval  Duration `yaml:"evict_interval" json:"evict_interval"`
	// StaticThreadID, when set, is the resolver's fallback thread.
	StaticThreadID string `yaml:"static_thread_id" json:"static_thread_id"`
}

// Server configures the HTTP and WebSocket surface.
type Server struct {
	Addr              string   `yaml:"addr" json:"addr"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ModelRate is a per-model price in USD per million tokens.
type ModelRate struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// Logging configures slog output.
type Logging struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" json:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: Database{
			Dialect: "sqlite",
			DSN:     "checkpoints.db",
		},
		Realtime: Realtime{
			BufferCapacity: 1000,
			QueueSize:      100,
			IdleTTL:        Duration(30 * time.Minute),
			EvictInterval:  Duration(time.Minute),
		},
		Server: Server{
			Addr:              ":8265",
			HeartbeatInterval: Duration(30 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Database.Dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.dialect: unsupported dialect %q", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn: must not be empty")
	}
	if c.Realtime.BufferCapacity <= 0 {
		return fmt.Errorf("realtime.buffer_capacity: must be positive, got %d", c.Realtime.BufferCapacity)
	}
	if c.Realtime.QueueSize <= 0 {
		return fmt.Errorf("realtime.queue_size: must be positive, got %d", c.Realtime.QueueSize)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr: must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported format %q", c.Logging.Format)
	}
	for model, rate := range c.Pricing {
		if rate.InputPerMTok < 0 || rate.OutputPerMTok < 0 {
			return fmt.Errorf("pricing.%s: rates must not be negative", model)
		}
	}
	return nil
}

// applyEnv overlays FLOWTRACE_* environment variables onto c.
func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString("FLOWTRACE_DATABASE_DIALECT", &c.Database.Dialect)
	setString("FLOWTRACE_DATABASE_DSN", &c.Database.DSN)
	setString("FLOWTRACE_SERVER_ADDR", &c.Server.Addr)
	setString("FLOWTRACE_LOG_LEVEL", &c.Logging.Level)
	setString("FLOWTRACE_LOG_FORMAT", &c.Logging.Format)
	setInt("FLOWTRACE_BUFFER_CAPACITY", &c.Realtime.BufferCapacity)
	setInt("FLOWTRACE_QUEUE_SIZE", &c.Realtime.QueueSize)
}
