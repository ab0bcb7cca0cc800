package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/vincenthz/ThinkMate/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads config.toml from the
// resolved .thinkmate/ directory, and binds environment variables with the
// THINKMATE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (THINKMATE_BACKEND_MODEL, THINKMATE_STORAGE_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("THINKMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materialises a Config from the resolved viper values.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			HistoryDir:  v.GetString("storage.history_dir"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Backend: BackendConfig{
			Provider:        v.GetString("backend.provider"),
			Target:          v.GetString("backend.target"),
			Model:           v.GetString("backend.model"),
			APIKey:          v.GetString("backend.api_key"),
			ConnectTimeout:  v.GetString("backend.connect_timeout"),
			MonitorInterval: v.GetString("backend.monitor_interval"),
		},
		Chat: ChatConfig{
			SystemPrompt: v.GetString("chat.system_prompt"),
			TitleLength:  v.GetUint("chat.title_length"),
			Plain:        v.GetBool("chat.plain"),
			Temperature:  optionalFloat(v, "chat.temperature"),
			TopP:         optionalFloat(v, "chat.top_p"),
			MaxTokens:    optionalInt(v, "chat.max_tokens"),
			Seed:         optionalInt(v, "chat.seed"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
	}
}

// optionalFloat returns nil for keys with no default that nothing set.
func optionalFloat(v *viper.Viper, key string) *float64 {
	if !v.IsSet(key) {
		return nil
	}
	f := v.GetFloat64(key)
	return &f
}

func optionalInt(v *viper.Viper, key string) *int {
	if !v.IsSet(key) {
		return nil
	}
	n := v.GetInt(key)
	return &n
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.history_dir", d.Storage.HistoryDir)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Backend
	v.SetDefault("backend.provider", d.Backend.Provider)
	v.SetDefault("backend.target", d.Backend.Target)
	v.SetDefault("backend.model", d.Backend.Model)
	v.SetDefault("backend.api_key", d.Backend.APIKey)
	v.SetDefault("backend.connect_timeout", d.Backend.ConnectTimeout)
	v.SetDefault("backend.monitor_interval", d.Backend.MonitorInterval)

	// Chat
	v.SetDefault("chat.system_prompt", d.Chat.SystemPrompt)
	v.SetDefault("chat.title_length", d.Chat.TitleLength)
	v.SetDefault("chat.plain", d.Chat.Plain)
	// Generation options have no default so that IsSet tracks the user.

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}
