// Package plugin resolves plugin definitions from local manifests and the
// backend.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fleetconsole/pkg/models"

	"gopkg.in/yaml.v3"
)

var ErrInvalidManifest = errors.New("invalid plugin manifest")

// manifest is a plugin definition on disk. Code may be inlined or read from
// CodeFile, relative to the manifest.
type manifest struct {
	CodeFile string `json:"code_file"`
}

// Directory holds plugin definitions loaded from a directory of YAML or JSON
// manifests, keyed by plugin id.
type Directory struct {
	dir string

	mu      sync.RWMutex
	plugins map[int64]*models.Plugin
}

// NewDirectory creates a directory for dir. Call Load to read it.
func NewDirectory(dir string) *Directory {
	return &Directory{
		dir:     dir,
		plugins: make(map[int64]*models.Plugin),
	}
}

// Load scans the directory and replaces the known plugins. Manifests that
// fail to parse are logged and skipped. A missing directory yields no plugins.
func (d *Directory) Load() (int, error) {
	slog.Info("Scanning plugin manifests", "component", "PluginDirectory", "dir", d.dir)

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("Plugin directory does not exist", "component", "PluginDirectory", "dir", d.dir)
			d.replace(map[int64]*models.Plugin{})
			return 0, nil
		}
		return 0, fmt.Errorf("scan plugin directory: %w", err)
	}

	plugins := make(map[int64]*models.Plugin)
	for _, entry := range entries {
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}

		path := filepath.Join(d.dir, entry.Name())
		plugin, err := LoadManifest(path)
		if err != nil {
			slog.Error("Skipping plugin manifest", "component", "PluginDirectory", "file", path, "error", err)
			continue
		}
		if _, dup := plugins[plugin.ID]; dup {
			slog.Warn("Duplicate plugin id, keeping the first", "component", "PluginDirectory", "plugin_id", plugin.ID, "file", path)
			continue
		}
		plugins[plugin.ID] = plugin
		slog.Debug("Loaded plugin manifest", "component", "PluginDirectory", "plugin_id", plugin.ID, "name", plugin.Name)
	}

	d.replace(plugins)
	slog.Info("Plugin manifests loaded", "component", "PluginDirectory", "count", len(plugins))
	return len(plugins), nil
}

func (d *Directory) replace(plugins map[int64]*models.Plugin) {
	d.mu.Lock()
	d.plugins = plugins
	d.mu.Unlock()
}

// Get returns the plugin with the given id.
func (d *Directory) Get(id int64) (*models.Plugin, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	plugin, ok := d.plugins[id]
	return plugin, ok
}

// LoadManifest reads a single YAML or JSON plugin manifest.
func LoadManifest(path string) (*models.Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// YAML is a superset of JSON. Going through the JSON form lets both share
	// the lenient operation decoding of models.Operation.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	var plugin models.Plugin
	if err := json.Unmarshal(encoded, &plugin); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if plugin.ID <= 0 {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidManifest)
	}

	var m manifest
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if m.CodeFile != "" && plugin.Code == "" {
		code, err := os.ReadFile(filepath.Join(filepath.Dir(path), m.CodeFile))
		if err != nil {
			return nil, fmt.Errorf("read code file: %w", err)
		}
		plugin.Code = string(code)
	}
	return &plugin, nil
}

func isManifest(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Fetcher loads plugins by id.
type Fetcher interface {
	FetchPlugin(ctx context.Context, pluginID int64) (*models.Plugin, error)
}

// Source resolves plugins from the local directory first, then the backend.
type Source struct {
	dir     *Directory
	backend Fetcher
}

// NewSource chains dir and backend. dir may be nil.
func NewSource(dir *Directory, backend Fetcher) *Source {
	return &Source{dir: dir, backend: backend}
}

// FetchPlugin implements Fetcher.
func (s *Source) FetchPlugin(ctx context.Context, pluginID int64) (*models.Plugin, error) {
	if s.dir != nil {
		if plugin, ok := s.dir.Get(pluginID); ok {
			return plugin, nil
		}
	}
	return s.backend.FetchPlugin(ctx, pluginID)
}
