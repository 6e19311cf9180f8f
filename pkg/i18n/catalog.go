// Package i18n provides display strings for telemetry keys.
package i18n

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is consulted when a key is missing in the selected language.
const DefaultLanguage = "en"

// Catalog maps "namespace:dotted.key" to a display string per language.
//
// The file layout is language, then namespace, then nested keys:
//
//	en:
//	  devices:
//	    metrics:
//	      cpu: Processor
type Catalog struct {
	language string
	entries  map[string]map[string]string
}

// New returns an empty catalog; every lookup yields the fallback.
func New(language string) *Catalog {
	return &Catalog{language: language, entries: make(map[string]map[string]string)}
}

// Load reads a translation file. An empty path yields an empty catalog.
func Load(path, language string) (*Catalog, error) {
	catalog := New(language)
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("Translation file not found", "component", "I18n", "file", path)
			return catalog, nil
		}
		return nil, fmt.Errorf("read translations: %w", err)
	}
	if err := catalog.Parse(data); err != nil {
		return nil, err
	}
	slog.Info("Translations loaded", "component", "I18n", "file", path, "languages", len(catalog.entries))
	return catalog, nil
}

// Parse merges YAML translations into the catalog.
func (c *Catalog) Parse(data []byte) error {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse translations: %w", err)
	}

	for language, namespaces := range raw {
		entries, ok := c.entries[language]
		if !ok {
			entries = make(map[string]string)
			c.entries[language] = entries
		}
		for namespace, tree := range namespaces {
			flatten(entries, namespace+":", tree)
		}
	}
	return nil
}

func flatten(into map[string]string, prefix string, node any) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if strings.HasSuffix(prefix, ":") {
				flatten(into, prefix+key, child)
			} else {
				flatten(into, prefix+"."+key, child)
			}
		}
	case string:
		into[prefix] = v
	case nil:
	default:
		into[prefix] = fmt.Sprint(v)
	}
}

// Translate returns the string for key in the catalog language, then the
// default language, then fallback.
func (c *Catalog) Translate(key, fallback string) string {
	if value, ok := c.entries[c.language][key]; ok {
		return value
	}
	if value, ok := c.entries[DefaultLanguage][key]; ok {
		return value
	}
	return fallback
}

// Language returns the selected language.
func (c *Catalog) Language() string { return c.language }
