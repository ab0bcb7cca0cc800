package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// (e.g. --model on both "thinkmate chat" and "thinkmate models") cannot drift.
type Flag struct {
	// Name is the long flag name (e.g. "model").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "backend.model").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagBackendProvider = "provider"
	FlagBackendTarget   = "target"
	FlagModel           = "model"
	FlagStorageProvider = "storage"
	FlagHistoryDir      = "history-dir"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagSystemPrompt    = "system"
	FlagTitleLength     = "title-length"
)

// Flags is the registry shared by every thinkmate command.
var Flags = FlagSet{
	FlagBackendProvider: {Name: "provider", Shorthand: "p", ViperKey: "backend.provider", Description: "Model backend (ollama, openai)"},
	FlagBackendTarget:   {Name: "target", Shorthand: "t", ViperKey: "backend.target", Description: "Model backend URL"},
	FlagModel:           {Name: "model", Shorthand: "m", ViperKey: "backend.model", Description: "Model name for new conversations"},
	FlagStorageProvider: {Name: "storage", Shorthand: "s", ViperKey: "storage.provider", Description: "History storage (file, sqlite, postgres, memory)"},
	FlagHistoryDir:      {Name: "history-dir", ViperKey: "storage.history_dir", Description: "Directory for file based history (default: <config-dir>/history)"},
	FlagSQLite:          {Name: "sqlite", ViperKey: "storage.sqlite_path", Description: "Path to SQLite history database"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string for history"},
	FlagSystemPrompt:    {Name: "system", ViperKey: "chat.system_prompt", Description: "System prompt sent before every conversation"},
	FlagTitleLength:     {Name: "title-length", ViperKey: "chat.title_length", Description: "Maximum length of derived conversation titles"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
