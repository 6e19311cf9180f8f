package telemetry

import "fleetconsole/pkg/models"

// TableField is a telemetry key whose value is a list of records.
type TableField struct {
	Key  string
	Rows []models.Snapshot
}

// Tables returns every field holding a non-empty array of objects, in snapshot
// order. Non-object elements of such an array are dropped.
func Tables(snapshot models.Snapshot) []TableField {
	var tables []TableField
	for _, key := range snapshot.Keys() {
		value, _ := snapshot.Get(key)
		if rows := Rows(value); len(rows) > 0 {
			tables = append(tables, TableField{Key: key, Rows: rows})
		}
	}
	return tables
}

// Rows converts an array-shaped value into records. It returns nil when the
// value is not an array or its first element is not an object.
func Rows(value any) []models.Snapshot {
	switch v := value.(type) {
	case []models.Snapshot:
		return v
	case []map[string]any:
		rows := make([]models.Snapshot, 0, len(v))
		for _, row := range v {
			rows = append(rows, models.NewSnapshot(row))
		}
		return rows
	case []any:
		if len(v) == 0 || asRow(v[0]) == nil {
			return nil
		}
		rows := make([]models.Snapshot, 0, len(v))
		for _, element := range v {
			if row := asRow(element); row != nil {
				rows = append(rows, *row)
			}
		}
		return rows
	}
	return nil
}

func asRow(value any) *models.Snapshot {
	switch v := value.(type) {
	case models.Snapshot:
		return &v
	case *models.Snapshot:
		return v
	case map[string]any:
		row := models.NewSnapshot(v)
		return &row
	}
	return nil
}
