package credentials

// Credentials represents the stored API credentials in credentials.toml.
// Keys are stored per backend endpoint, named by host.
type Credentials struct {
	Version  int                          `toml:"version"`
	Backends map[string]BackendCredential `toml:"backends"`
}

// BackendCredential holds the API key for a single endpoint.
type BackendCredential struct {
	APIKey string `toml:"api_key"`
}
