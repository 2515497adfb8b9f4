package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry loads and caches source configurations from a directory of
// .yml files, one per source. It is the read-only supplier of the
// source list for aggregation runs.
type Registry struct {
	sourcesDir string
	mu         sync.RWMutex
	cache      map[string]*Source
	order      []string
}

func NewRegistry(sourcesDir string) *Registry {
	return &Registry{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Source),
	}
}

// Run loads every source file in the directory. File order (sorted by
// name) defines source order for aggregation runs.
func (r *Registry) Run() error {
	if _, err := os.Stat(r.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(r.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		src, err := r.LoadSource(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source loaded", "source", name, "url", src.URL, "enabled", src.Enabled)
	}

	return nil
}

func (r *Registry) LoadSource(name string) (*Source, error) {
	file := filepath.Join(r.sourcesDir, name+".yml")

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var src Source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	src.Name = name
	if src.Label == "" {
		src.Label = name
	}

	if err := validateSource(&src); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", file, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cache[name]; !exists {
		r.order = append(r.order, name)
	}
	r.cache[name] = &src

	return &src, nil
}

func (r *Registry) GetSource(name string) (*Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.cache[name]
	if !ok {
		return nil, fmt.Errorf("source with name '%s' not found", name)
	}
	return src, nil
}

// GetEnabled returns the enabled sources in load order.
func (r *Registry) GetEnabled() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		if src := r.cache[name]; src.Enabled {
			enabled = append(enabled, *src)
		}
	}
	return enabled
}

// GetAll returns every loaded source in load order.
func (r *Registry) GetAll() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		sources = append(sources, *r.cache[name])
	}
	return sources
}

func (r *Registry) GetSourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func validateSource(src *Source) error {
	if src.URL == "" {
		return fmt.Errorf("source URL is required")
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return fmt.Errorf("source URL is not valid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source URL must use http or https, got '%s'", u.Scheme)
	}

	return nil
}
