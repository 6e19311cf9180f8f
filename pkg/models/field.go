package models

// FieldKind is the inferred display kind of a telemetry value.
type FieldKind string

const (
	KindStatus     FieldKind = "status"
	KindBoolean    FieldKind = "boolean"
	KindPercentage FieldKind = "percentage"
	KindBytes      FieldKind = "bytes"
	KindText       FieldKind = "text"
)

// ClassifiedField is a telemetry value paired with how it should be shown.
// It is derived from a snapshot and never stored.
type ClassifiedField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Value    any       `json:"value"`
	Kind     FieldKind `json:"kind"`
	Display  string    `json:"display"`
	Positive bool      `json:"positive"`
}
