// Package credentials stores API keys for OpenAI compatible backends in
// credentials.toml in the .thinkmate/ directory, apart from config.toml so
// the configuration can be shared without leaking keys.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/dotdir"
	"github.com/vincenthz/ThinkMate/pkg/utils"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0

	// EnvAPIKey is consulted when no key is configured or stored.
	EnvAPIKey = "OPENAI_API_KEY"
)

// Manager manages reading and writing credentials.toml.
type Manager struct {
	targetPath string
}

// NewManager creates a new credentials Manager for the resolved .thinkmate/
// directory. override is the --config-dir value.
func NewManager(override string) (*Manager, error) {
	target, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	return &Manager{targetPath: filepath.Join(target, credentialsFile)}, nil
}

// Load reads credentials.toml. Returns empty Credentials if the file does
// not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:  currentVersion,
				Backends: make(map[string]BackendCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Backends == nil {
		creds.Backends = make(map[string]BackendCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := utils.WriteFileAtomic(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the endpoint target points at.
func (m *Manager) SetKey(target, key string) error {
	host, err := HostKey(target)
	if err != nil {
		return err
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Backends[host] = BackendCredential{APIKey: key}
	return m.Save(creds)
}

// GetKey returns the stored API key for target, or "" if none is stored.
func (m *Manager) GetKey(target string) (string, error) {
	host, err := HostKey(target)
	if err != nil {
		return "", err
	}

	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Backends[host].APIKey, nil
}

// RemoveKey deletes the stored key for target. Removing a key that is not
// stored is not an error.
func (m *Manager) RemoveKey(target string) error {
	host, err := HostKey(target)
	if err != nil {
		return err
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Backends, host)
	return m.Save(creds)
}

// ListHosts returns the endpoints that have stored keys, sorted.
func (m *Manager) ListHosts() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	hosts := make([]string, 0, len(creds.Backends))
	for host := range creds.Backends {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	return hosts, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// HostKey names the endpoint of a backend URL: its lower-cased host and
// port. A bare host is accepted.
func HostKey(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("backend target is empty")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid backend target %q: %w", target, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid backend target %q: no host", target)
	}

	return strings.ToLower(u.Host), nil
}

// ResolveAPIKey returns the key to use for c. An explicit c.APIKey (from
// THINKMATE_BACKEND_API_KEY or config.toml) wins, then a key stored
// for c.Target, then OPENAI_API_KEY. Backends that take no key get "".
func ResolveAPIKey(c config.BackendConfig, configDir string) (string, error) {
	if c.APIKey != "" || c.Provider != "openai" {
		return c.APIKey, nil
	}

	mgr, err := NewManager(configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.GetKey(c.Target)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}

	return os.Getenv(EnvAPIKey), nil
}
