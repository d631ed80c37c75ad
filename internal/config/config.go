// Package config handles loading, defaulting, and validation of the
// zbxstreamd configuration. Values layer in three steps: built-in defaults,
// then an optional TOML file, then environment variables. Every section maps
// to a typed struct so the rest of the codebase gets strong typing without
// manual key lookups.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Server  ServerConfig  `toml:"server"  json:"server"`
	Export  ExportConfig  `toml:"export"  json:"export"`
	Ring    RingConfig    `toml:"ring"    json:"ring"`
	SSE     SSEConfig     `toml:"sse"     json:"sse"`
	Tail    TailConfig    `toml:"tail"    json:"tail"`
	Demo    DemoConfig    `toml:"demo"    json:"demo"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

type ServerConfig struct {
	Port int `toml:"port" json:"port"`
}

type ExportConfig struct {
	// Dir is the Zabbix real-time export directory to follow.
	Dir string `toml:"dir" json:"dir"`
	// Include and Ignore are basename regexp patterns. Empty means the
	// Zabbix defaults; overriding them breaks compatibility with the
	// monitoring server's file layout, so most deployments leave them.
	Include []string `toml:"include" json:"include,omitempty"`
	Ignore  []string `toml:"ignore"  json:"ignore,omitempty"`
}

type RingConfig struct {
	Capacity int `toml:"capacity" json:"capacity"`
}

type SSEConfig struct {
	HeartbeatMS   int `toml:"heartbeat_ms"   json:"heartbeat_ms"`
	DropThreshold int `toml:"drop_threshold" json:"drop_threshold"`
}

type TailConfig struct {
	PollIntervalMS int  `toml:"poll_interval_ms" json:"poll_interval_ms"`
	MaxBackoffMS   int  `toml:"max_backoff_ms"   json:"max_backoff_ms"`
	FromEnd        bool `toml:"from_end"         json:"from_end"`
}

type DemoConfig struct {
	Enabled         bool `toml:"enabled"          json:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds" json:"interval_seconds"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// Default returns a Config populated with the documented defaults. Values
// here are used whenever the TOML file and environment omit a setting.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Export: ExportConfig{
			Dir: "./zbx-rtx",
		},
		Ring: RingConfig{
			Capacity: 50000,
		},
		SSE: SSEConfig{
			HeartbeatMS:   20000,
			DropThreshold: 65536,
		},
		Tail: TailConfig{
			PollIntervalMS: 250,
			MaxBackoffMS:   2000,
		},
		Demo: DemoConfig{
			Enabled:         false,
			IntervalSeconds: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path (skipped when path is empty), layers the
// environment on top, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyEnv overrides file values from the documented environment variables.
func applyEnv(cfg *Config) error {
	if err := envInt("PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("ZBX_RTX_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	if err := envInt("RB_CAPACITY", &cfg.Ring.Capacity); err != nil {
		return err
	}
	if err := envInt("HEARTBEAT_MS", &cfg.SSE.HeartbeatMS); err != nil {
		return err
	}
	if err := envInt("POLL_INTERVAL_MS", &cfg.Tail.PollIntervalMS); err != nil {
		return err
	}
	if err := envInt("MAX_BACKOFF_MS", &cfg.Tail.MaxBackoffMS); err != nil {
		return err
	}
	if err := envInt("SSE_DROP_THRESHOLD", &cfg.SSE.DropThreshold); err != nil {
		return err
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func validate(cfg Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if cfg.Export.Dir == "" {
		return errors.New("export.dir must not be empty")
	}
	if cfg.Ring.Capacity < 1 {
		return errors.New("ring.capacity must be >= 1")
	}
	if cfg.SSE.HeartbeatMS < 1 {
		return errors.New("sse.heartbeat_ms must be >= 1")
	}
	if cfg.SSE.DropThreshold < 1 {
		return errors.New("sse.drop_threshold must be >= 1")
	}
	if cfg.Tail.PollIntervalMS < 1 {
		return errors.New("tail.poll_interval_ms must be >= 1")
	}
	if cfg.Tail.MaxBackoffMS < cfg.Tail.PollIntervalMS {
		return errors.New("tail.max_backoff_ms must be >= tail.poll_interval_ms")
	}
	if cfg.Demo.IntervalSeconds < 0 {
		return errors.New("demo.interval_seconds must be >= 0")
	}
	for _, p := range append(append([]string{}, cfg.Export.Include...), cfg.Export.Ignore...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("export pattern %q: %w", p, err)
		}
	}
	return nil
}
