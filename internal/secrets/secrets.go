package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Type classifies what a secret holds
type Type string

const (
	TypeSSHKey  Type = "ssh_key"
	TypeToken   Type = "api_token"
	TypeGeneric Type = "generic"
)

// Source identifies where a secret was loaded from
type Source string

const (
	SourceMounted     Source = "mounted"
	SourceEnvironment Source = "environment"
)

// Secret is one named bundle of sensitive values
type Secret struct {
	Name   string
	Type   Type
	Source Source
	Data   map[string]string
	Path   string
}

// Summary describes a secret without exposing its values
type Summary struct {
	Name   string   `json:"name"`
	Type   Type     `json:"type"`
	Source Source   `json:"source"`
	Keys   []string `json:"keys"`
}

// Store loads and serves secrets from mounted files and the environment.
// Mounted secrets are read from the configured mount paths: a plain file
// becomes a secret with a single "value" entry, a directory becomes one
// secret with an entry per contained file. Environment secrets come from
// variables carrying the configured prefix.
type Store struct {
	mountPaths []string
	envPrefix  string
	logger     *slog.Logger

	mu      sync.RWMutex
	secrets map[string]*Secret
}

// NewStore creates a secret store for the given mount paths and
// environment prefix
func NewStore(mountPaths []string, envPrefix string, logger *slog.Logger) *Store {
	if len(mountPaths) == 0 {
		mountPaths = []string{"/secrets", "/run/secrets"}
	}
	if envPrefix == "" {
		envPrefix = "TABULARIUM_SECRET_"
	}
	return &Store{
		mountPaths: mountPaths,
		envPrefix:  envPrefix,
		logger:     logger,
		secrets:    make(map[string]*Secret),
	}
}

// Load scans the mount paths and the environment, replacing the current
// set of secrets. Called at startup and safe to call again to refresh.
func (s *Store) Load() error {
	loaded := make(map[string]*Secret)

	for _, base := range s.mountPaths {
		entries, err := os.ReadDir(base)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			s.logger.Warn("failed to scan secrets path", "path", base, "error", err)
			continue
		}

		for _, entry := range entries {
			// Kubernetes mounts ship ..data bookkeeping entries.
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			secret, err := s.loadEntry(base, entry)
			if err != nil {
				s.logger.Warn("failed to load mounted secret", "path", filepath.Join(base, entry.Name()), "error", err)
				continue
			}
			if secret != nil {
				loaded[secret.Name] = secret
			}
		}
	}

	s.loadEnv(loaded)

	s.mu.Lock()
	s.secrets = loaded
	s.mu.Unlock()

	s.logger.Info("secrets loaded", "count", len(loaded))
	return nil
}

// loadEntry reads one mount entry into a secret. Directories group their
// files into a single secret keyed by file name.
func (s *Store) loadEntry(base string, entry os.DirEntry) (*Secret, error) {
	path := filepath.Join(base, entry.Name())

	if !entry.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		return &Secret{
			Name:   name,
			Type:   inferType(name),
			Source: SourceMounted,
			Data:   map[string]string{"value": trimValue(data)},
			Path:   path,
		}, nil
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string)
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, f.Name()))
		if err != nil {
			return nil, err
		}
		values[f.Name()] = trimValue(data)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return &Secret{
		Name:   entry.Name(),
		Type:   inferType(entry.Name()),
		Source: SourceMounted,
		Data:   values,
		Path:   path,
	}, nil
}

// loadEnv collects secrets from prefixed environment variables. A
// variable named <base>_PASSPHRASE folds into the base secret when one
// exists, so paired key material stays together.
func (s *Store) loadEnv(loaded map[string]*Secret) {
	type envSecret struct {
		name  string
		value string
	}
	var plain, passphrases []envSecret

	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, s.envPrefix) {
			continue
		}
		eq := strings.Index(kv, "=")
		if eq < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(kv[:eq], s.envPrefix))
		value := kv[eq+1:]
		if name == "" || value == "" {
			continue
		}
		if strings.HasSuffix(name, "_passphrase") {
			passphrases = append(passphrases, envSecret{name: name, value: value})
		} else {
			plain = append(plain, envSecret{name: name, value: value})
		}
	}

	for _, e := range plain {
		loaded[e.name] = &Secret{
			Name:   e.name,
			Type:   inferType(e.name),
			Source: SourceEnvironment,
			Data:   map[string]string{"value": e.value},
		}
	}
	for _, e := range passphrases {
		base := strings.TrimSuffix(e.name, "_passphrase")
		if existing, ok := loaded[base]; ok {
			existing.Data["passphrase"] = e.value
			continue
		}
		loaded[e.name] = &Secret{
			Name:   e.name,
			Type:   TypeGeneric,
			Source: SourceEnvironment,
			Data:   map[string]string{"value": e.value},
		}
	}
}

// Get returns a secret by name
func (s *Store) Get(name string) (*Secret, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[name]
	return secret, ok
}

// Value returns one entry of a named secret. An empty or unknown key
// falls back to the "value" entry.
func (s *Store) Value(name, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[name]
	if !ok {
		return "", fmt.Errorf("secret %s not found", name)
	}
	if key == "" {
		key = "value"
	}
	if v, ok := secret.Data[key]; ok {
		return v, nil
	}
	if v, ok := secret.Data["value"]; ok {
		return v, nil
	}
	return "", fmt.Errorf("key %s not found in secret %s", key, name)
}

// List returns summaries of every loaded secret, sorted by name
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.secrets))
	for _, secret := range s.secrets {
		keys := make([]string, 0, len(secret.Data))
		for k := range secret.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		summaries = append(summaries, Summary{
			Name:   secret.Name,
			Type:   secret.Type,
			Source: secret.Source,
			Keys:   keys,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

// inferType guesses the secret type from its name
func inferType(name string) Type {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "ssh"), strings.Contains(lower, "id_rsa"),
		strings.Contains(lower, "id_ed25519"), strings.Contains(lower, "id_ecdsa"),
		strings.Contains(lower, "key"):
		return TypeSSHKey
	case strings.Contains(lower, "token"), strings.Contains(lower, "api"):
		return TypeToken
	}
	return TypeGeneric
}

// trimValue strips trailing newlines that mounted files usually carry
func trimValue(data []byte) string {
	return strings.TrimRight(string(data), "\r\n")
}
