package productgen

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"server/internal/infra"
)

// ProviderConfig holds one provider entry from the providers file.
type ProviderConfig struct {
	Type                  string   `yaml:"type"`
	APIKey                string   `yaml:"api_key"`
	BaseURL               string   `yaml:"base_url"`
	Model                 string   `yaml:"model"`
	SupportedAspectRatios []string `yaml:"supported_aspect_ratios"`
}

// FileConfig mirrors the on-disk providers YAML document.
type FileConfig struct {
	ActiveProvider string                    `yaml:"active_provider"`
	Providers      map[string]ProviderConfig `yaml:"providers"`
}

// LoadFileConfig reads the providers YAML. A missing file is not an error; it
// yields an empty config so the service can start with environment-configured
// defaults instead.
func LoadFileConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{Providers: map[string]ProviderConfig{}}, nil
		}
		return nil, fmt.Errorf("productgen: read providers config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("productgen: parse providers config %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return &cfg, nil
}

// Active resolves the entry the file marks active. The provider's type
// defaults to its map key when unset.
func (c *FileConfig) Active() (string, ProviderConfig, error) {
	name := strings.TrimSpace(c.ActiveProvider)
	if name == "" {
		return "", ProviderConfig{}, fmt.Errorf("productgen: no active_provider configured")
	}
	entry, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("productgen: active provider %q not found (available: %s)",
			name, strings.Join(c.providerNames(), ", "))
	}
	if entry.Type == "" {
		entry.Type = name
	}
	return name, entry, nil
}

func (c *FileConfig) providerNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constructor builds a generator from a provider entry.
type Constructor func(cfg ProviderConfig, logger infra.Logger) (Generator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a provider type constructible by name. Later registrations
// for the same type replace earlier ones.
func Register(providerType string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = ctor
}

// New instantiates a generator for a provider entry by its type.
func New(cfg ProviderConfig, logger infra.Logger) (Generator, error) {
	registryMu.RLock()
	ctor, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("productgen: unsupported provider type %q (registered: %s)",
			cfg.Type, strings.Join(registeredTypes(), ", "))
	}
	return ctor(cfg, logger)
}

// NewFromFile loads the providers file and instantiates its active provider.
func NewFromFile(path string, logger infra.Logger) (Generator, *FileConfig, error) {
	cfg, err := LoadFileConfig(path)
	if err != nil {
		return nil, nil, err
	}
	_, entry, err := cfg.Active()
	if err != nil {
		return nil, cfg, err
	}
	gen, err := New(entry, logger)
	if err != nil {
		return nil, cfg, err
	}
	return gen, cfg, nil
}

func registeredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
