package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Plugin is the user-supplied definition of a custom device: its connection
// schema, operations and (optionally) source code describing its behaviour.
type Plugin struct {
	ID          int64       `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string      `json:"version" yaml:"version"`
	Author      string      `json:"author,omitempty" yaml:"author,omitempty"`
	Code        string      `json:"code,omitempty" yaml:"code,omitempty"` // Opaque plugin source
	Operations  []Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
	UISchema    UISchema    `json:"ui_schema" yaml:"ui_schema"`
	IsActive    bool        `json:"is_active" yaml:"is_active"`
}

// UISchema describes how a plugin's telemetry and actions are presented.
type UISchema struct {
	Title      string                     `json:"title,omitempty" yaml:"title,omitempty"`
	Components map[string]ComponentSchema `json:"components,omitempty" yaml:"components,omitempty"`
	Buttons    []QuickAction              `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	Operations []Operation                `json:"operations,omitempty" yaml:"operations,omitempty"`
	Properties map[string]any             `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Component returns the schema declared for a telemetry key, if any.
func (schema UISchema) Component(key string) (ComponentSchema, bool) {
	component, ok := schema.Components[key]
	return component, ok
}

// ComponentSchema is the per-telemetry-key presentation hint.
type ComponentSchema struct {
	Type    string        `json:"type,omitempty" yaml:"type,omitempty"`
	Title   string        `json:"title,omitempty" yaml:"title,omitempty"`
	Actions []TableAction `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// TableAction is a row-level button declared for a table component.
type TableAction struct {
	Title       string `json:"title" yaml:"title"`
	Action      string `json:"action" yaml:"action"`
	ButtonType  string `json:"buttonType,omitempty" yaml:"buttonType,omitempty"`
	EnabledWhen string `json:"enabledWhen,omitempty" yaml:"enabledWhen,omitempty"`
}

// QuickAction is a device-level button declared under ui_schema.buttons.
type QuickAction struct {
	Title   string `json:"title" yaml:"title"`
	Action  string `json:"action" yaml:"action"`
	Variant string `json:"variant,omitempty" yaml:"variant,omitempty"`
	Icon    string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Confirm bool   `json:"confirm,omitempty" yaml:"confirm,omitempty"`
}

// QuickActions returns the declared buttons with defaults applied.
func (schema UISchema) QuickActions() []QuickAction {
	actions := make([]QuickAction, 0, len(schema.Buttons))
	for _, button := range schema.Buttons {
		if button.Variant == "" {
			button.Variant = "primary"
		}
		actions = append(actions, button)
	}
	return actions
}

// Operation is a named, parameterized action a device can perform on request.
// Params holds the ordered required parameter names; all are free text.
type Operation struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Params      []string `json:"params" yaml:"params"`
	Confirm     bool     `json:"confirm,omitempty" yaml:"confirm,omitempty"`
}

// UnmarshalJSON accepts params as a list of names, a list of {"name": ...}
// records, or an object keyed by parameter name.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          any             `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Params      json.RawMessage `json:"params"`
		Confirm     bool            `json:"confirm"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	params, err := decodeParams(raw.Params)
	if err != nil {
		return fmt.Errorf("operation params: %w", err)
	}

	op.ID = scalarString(raw.ID)
	op.Name = raw.Name
	op.Description = raw.Description
	op.Params = params
	op.Confirm = raw.Confirm
	if op.Name == "" {
		op.Name = op.ID
	}
	return nil
}

func decodeParams(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var names []any
	if err := json.Unmarshal(raw, &names); err == nil {
		params := make([]string, 0, len(names))
		for _, entry := range names {
			switch v := entry.(type) {
			case map[string]any:
				if name := scalarString(v["name"]); name != "" {
					params = append(params, name)
				}
			default:
				if name := scalarString(v); name != "" {
					params = append(params, name)
				}
			}
		}
		return params, nil
	}

	var keyed map[string]any
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, err
	}
	params := make([]string, 0, len(keyed))
	for name := range keyed {
		params = append(params, name)
	}
	sort.Strings(params)
	return params, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
