package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent thinkmate configuration stored as
// config.toml in the .thinkmate/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Backend     BackendConfig     `toml:"backend"`
	Chat        ChatConfig        `toml:"chat"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig selects where conversation history is kept.
type StorageConfig struct {
	// Provider is one of "file", "sqlite", "postgres" or "memory".
	Provider    string `toml:"provider,omitempty"`
	HistoryDir  string `toml:"history_dir,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// BackendConfig holds model server settings.
type BackendConfig struct {
	// Provider is one of "ollama" or "openai" (any OpenAI-compatible server).
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`

	// Durations use Go syntax, e.g. "10s" or "1m30s".
	ConnectTimeout  string `toml:"connect_timeout,omitempty"`
	MonitorInterval string `toml:"monitor_interval,omitempty"`
}

// ChatConfig holds conversation behaviour settings.
type ChatConfig struct {
	SystemPrompt string `toml:"system_prompt,omitempty"`
	TitleLength  uint   `toml:"title_length,omitempty"`

	// Plain disables markdown rendering of assistant replies.
	Plain bool `toml:"plain,omitempty"`

	// Generation options. Unset leaves the backend default.
	Temperature *float64 `toml:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p,omitempty"`
	MaxTokens   *int     `toml:"max_tokens,omitempty"`
	Seed        *int     `toml:"seed,omitempty"`
}

// EventStreamConfig configures where completed turns are published.
type EventStreamConfig struct {
	// Provider is one of "none" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// ConnectTimeoutDuration parses ConnectTimeout, falling back to the default.
func (b BackendConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(b.ConnectTimeout, defaultConnectTimeout)
}

// MonitorIntervalDuration parses MonitorInterval, falling back to the default.
func (b BackendConfig) MonitorIntervalDuration() time.Duration {
	return parseDurationOr(b.MonitorInterval, defaultMonitorInterval)
}

// BrokerList splits Brokers on commas, dropping empty entries.
func (e EventStreamConfig) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseDurationOr(s string, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func durationSetter(key string, field func(c *Config) *string) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*field(c) = v
		return nil
	}
}

func oneOfSetter(key string, allowed []string, field func(c *Config) *string) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		for _, a := range allowed {
			if v == a {
				*field(c) = v
				return nil
			}
		}
		return fmt.Errorf("invalid value for %s: %q (available: %s)", key, v, strings.Join(allowed, ", "))
	}
}

// floatSetter parses an optional float. An empty value clears the field.
func floatSetter(key string, valid func(float64) bool, field func(c *Config) **float64) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if v == "" {
			*field(c) = nil
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if !valid(f) {
			return fmt.Errorf("invalid value for %s: %s is out of range", key, v)
		}
		*field(c) = &f
		return nil
	}
}

// intSetter parses an optional int. An empty value clears the field.
func intSetter(key string, valid func(int) bool, field func(c *Config) **int) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if v == "" {
			*field(c) = nil
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if !valid(n) {
			return fmt.Errorf("invalid value for %s: %s is out of range", key, v)
		}
		*field(c) = &n
		return nil
	}
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func formatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func anyInt(int) bool { return true }

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: oneOfSetter("storage.provider", StorageProviders, func(c *Config) *string { return &c.Storage.Provider }),
	},
	"storage.history_dir": {
		get: func(c *Config) string { return c.Storage.HistoryDir },
		set: func(c *Config, v string) error { c.Storage.HistoryDir = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"backend.provider": {
		get: func(c *Config) string { return c.Backend.Provider },
		set: oneOfSetter("backend.provider", BackendProviders, func(c *Config) *string { return &c.Backend.Provider }),
	},
	"backend.target": {
		get: func(c *Config) string { return c.Backend.Target },
		set: func(c *Config, v string) error { c.Backend.Target = v; return nil },
	},
	"backend.model": {
		get: func(c *Config) string { return c.Backend.Model },
		set: func(c *Config, v string) error { c.Backend.Model = v; return nil },
	},
	"backend.api_key": {
		get: func(c *Config) string { return c.Backend.APIKey },
		set: func(c *Config, v string) error { c.Backend.APIKey = v; return nil },
	},
	"backend.connect_timeout": {
		get: func(c *Config) string { return c.Backend.ConnectTimeout },
		set: durationSetter("backend.connect_timeout", func(c *Config) *string { return &c.Backend.ConnectTimeout }),
	},
	"backend.monitor_interval": {
		get: func(c *Config) string { return c.Backend.MonitorInterval },
		set: durationSetter("backend.monitor_interval", func(c *Config) *string { return &c.Backend.MonitorInterval }),
	},
	"chat.system_prompt": {
		get: func(c *Config) string { return c.Chat.SystemPrompt },
		set: func(c *Config, v string) error { c.Chat.SystemPrompt = v; return nil },
	},
	"chat.title_length": {
		get: func(c *Config) string {
			if c.Chat.TitleLength == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Chat.TitleLength), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for chat.title_length: %w", err)
			}
			c.Chat.TitleLength = uint(n)
			return nil
		},
	},
	"chat.plain": {
		get: func(c *Config) string { return strconv.FormatBool(c.Chat.Plain) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for chat.plain: %w", err)
			}
			c.Chat.Plain = b
			return nil
		},
	},
	"chat.temperature": {
		get: func(c *Config) string { return formatFloat(c.Chat.Temperature) },
		set: floatSetter("chat.temperature", func(f float64) bool { return f >= 0 },
			func(c *Config) **float64 { return &c.Chat.Temperature }),
	},
	"chat.top_p": {
		get: func(c *Config) string { return formatFloat(c.Chat.TopP) },
		set: floatSetter("chat.top_p", func(f float64) bool { return f > 0 && f <= 1 },
			func(c *Config) **float64 { return &c.Chat.TopP }),
	},
	"chat.max_tokens": {
		get: func(c *Config) string { return formatInt(c.Chat.MaxTokens) },
		set: intSetter("chat.max_tokens", func(n int) bool { return n > 0 },
			func(c *Config) **int { return &c.Chat.MaxTokens }),
	},
	"chat.seed": {
		get: func(c *Config) string { return formatInt(c.Chat.Seed) },
		set: intSetter("chat.seed", anyInt, func(c *Config) **int { return &c.Chat.Seed }),
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: oneOfSetter("eventstream.provider", EventStreamProviders, func(c *Config) *string { return &c.EventStream.Provider }),
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}
