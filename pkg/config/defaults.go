package config

const (
	defaultStorageProvider = "file"

	defaultBackendProvider = "ollama"
	defaultBackendTarget   = "http://localhost:11434"
	defaultModel           = "gemma3:latest"
	defaultConnectTimeout  = "10s"
	defaultMonitorInterval = "10s"

	defaultTitleLength = 40

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "thinkmate.turns"
)

var (
	// StorageProviders lists the accepted storage.provider values.
	StorageProviders = []string{"file", "sqlite", "postgres", "memory"}

	// BackendProviders lists the accepted backend.provider values.
	BackendProviders = []string{"ollama", "openai"}

	// EventStreamProviders lists the accepted eventstream.provider values.
	EventStreamProviders = []string{"none", "kafka"}
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		Backend: BackendConfig{
			Provider:        defaultBackendProvider,
			Target:          defaultBackendTarget,
			Model:           defaultModel,
			ConnectTimeout:  defaultConnectTimeout,
			MonitorInterval: defaultMonitorInterval,
		},
		Chat: ChatConfig{
			TitleLength: defaultTitleLength,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
