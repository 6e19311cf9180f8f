// Package telemetry infers how values of arbitrary device telemetry should be
// displayed.
package telemetry

import (
	"log/slog"
	"strings"

	"fleetconsole/pkg/models"

	"github.com/go-viper/mapstructure/v2"
)

// HeadlineLimit caps the number of headline metrics shown for a device.
const HeadlineLimit = 4

// Translator resolves a display string for a key, falling back to the given label.
type Translator interface {
	Translate(key, fallback string) string
}

var (
	// DefaultPositiveStatuses is the vocabulary marking a status string as positive.
	DefaultPositiveStatuses = []string{"online", "active", "running", "up", "connected", "enabled", "ok", "healthy"}

	// DefaultStatusKeyHints are key fragments that mark a field as a status indicator.
	DefaultStatusKeyHints = []string{"status", "connected", "online"}
)

// Classifier holds the heuristics used to classify telemetry fields.
// The zero value is not usable; use NewClassifier.
type Classifier struct {
	PercentageMax    float64  `mapstructure:"percentage_max"`
	BytesMin         float64  `mapstructure:"bytes_min"` // Values strictly greater are bytes
	PositiveStatuses []string `mapstructure:"positive_statuses"`
	StatusKeyHints   []string `mapstructure:"status_keys"`
	HeadlineLimit    int      `mapstructure:"headline_limit"`

	translator Translator
}

// NewClassifier returns a classifier with the default heuristics.
func NewClassifier(translator Translator) *Classifier {
	return &Classifier{
		PercentageMax:    100,
		BytesMin:         1000,
		PositiveStatuses: DefaultPositiveStatuses,
		StatusKeyHints:   DefaultStatusKeyHints,
		HeadlineLimit:    HeadlineLimit,
		translator:       translator,
	}
}

// ForPlugin returns a copy of the classifier with the plugin's overrides from
// ui_schema.properties.classification applied. Malformed overrides are logged
// and ignored.
func (c *Classifier) ForPlugin(plugin *models.Plugin) *Classifier {
	clone := *c
	if plugin == nil {
		return &clone
	}
	raw, ok := plugin.UISchema.Properties["classification"]
	if !ok {
		return &clone
	}

	overrides := clone
	overrides.PositiveStatuses = append([]string(nil), c.PositiveStatuses...)
	overrides.StatusKeyHints = append([]string(nil), c.StatusKeyHints...)
	if err := mapstructure.WeakDecode(raw, &overrides); err != nil {
		slog.Warn("Ignoring malformed classification overrides", "component", "Classifier", "plugin_id", plugin.ID, "error", err)
		return &clone
	}
	overrides.translator = c.translator
	return &overrides
}

// Classify returns the headline metrics of a snapshot, capped at HeadlineLimit.
func (c *Classifier) Classify(snapshot models.Snapshot) []models.ClassifiedField {
	return c.classify(snapshot, "devices:metrics.", c.HeadlineLimit)
}

// ClassifySystemInfo classifies every scalar field of a snapshot.
func (c *Classifier) ClassifySystemInfo(snapshot models.Snapshot) []models.ClassifiedField {
	return c.classify(snapshot, "devices:systemInfo.", 0)
}

func (c *Classifier) classify(snapshot models.Snapshot, namespace string, limit int) []models.ClassifiedField {
	fields := make([]models.ClassifiedField, 0)
	for _, key := range snapshot.Keys() {
		if key == "error" {
			continue
		}
		value, _ := snapshot.Get(key)
		if !isScalar(value) {
			continue
		}

		kind := c.Kind(key, value)
		fields = append(fields, models.ClassifiedField{
			Key:      key,
			Label:    c.label(namespace+key, key),
			Value:    value,
			Kind:     kind,
			Display:  Display(kind, value),
			Positive: c.positive(kind, value),
		})

		if limit > 0 && len(fields) >= limit {
			break
		}
	}
	return fields
}

// Kind infers the display kind of a scalar value.
func (c *Classifier) Kind(key string, value any) models.FieldKind {
	if _, ok := value.(bool); ok {
		return models.KindBoolean
	}
	if number, ok := toFloat(value); ok {
		if number >= 0 && number <= c.PercentageMax {
			return models.KindPercentage
		}
		if number > c.BytesMin {
			return models.KindBytes
		}
	}
	if c.isStatusKey(key) {
		return models.KindStatus
	}
	return models.KindText
}

func (c *Classifier) isStatusKey(key string) bool {
	lower := strings.ToLower(key)
	if lower == "status" {
		return true
	}
	for _, hint := range c.StatusKeyHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// IsPositive reports whether a status string matches the positive vocabulary.
func (c *Classifier) IsPositive(status string) bool {
	return matchesVocabulary(status, c.PositiveStatuses)
}

func (c *Classifier) positive(kind models.FieldKind, value any) bool {
	switch kind {
	case models.KindBoolean:
		return value.(bool)
	case models.KindStatus:
		switch v := value.(type) {
		case string:
			return c.IsPositive(v)
		default:
			number, ok := toFloat(v)
			return ok && number != 0
		}
	}
	return false
}

func (c *Classifier) label(translationKey, key string) string {
	fallback := Label(key)
	if c.translator == nil {
		return fallback
	}
	return c.translator.Translate(translationKey, fallback)
}

// Classify classifies headline metrics with the default heuristics.
func Classify(snapshot models.Snapshot, translator Translator) []models.ClassifiedField {
	return NewClassifier(translator).Classify(snapshot)
}

// ClassifySystemInfo classifies every scalar field with the default heuristics.
func ClassifySystemInfo(snapshot models.Snapshot, translator Translator) []models.ClassifiedField {
	return NewClassifier(translator).ClassifySystemInfo(snapshot)
}

// IsPositiveStatus reports whether status contains a word from the default
// positive vocabulary, ignoring case. Anything else is neutral, not negative.
func IsPositiveStatus(status string) bool {
	return matchesVocabulary(status, DefaultPositiveStatuses)
}

func matchesVocabulary(status string, vocabulary []string) bool {
	if status == "" {
		return false
	}
	lower := strings.ToLower(status)
	for _, keyword := range vocabulary {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
