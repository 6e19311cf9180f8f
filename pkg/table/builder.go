// Package table turns array-shaped telemetry into tables with row-level actions.
package table

import (
	"encoding/json"
	"log/slog"
	"strings"

	"fleetconsole/pkg/dispatch"
	"fleetconsole/pkg/expr"
	"fleetconsole/pkg/models"
	"fleetconsole/pkg/telemetry"
)

type CellKind string

const (
	CellCheck          CellKind = "check"
	CellCross          CellKind = "cross"
	CellStatusPositive CellKind = "status-positive"
	CellStatusNeutral  CellKind = "status-neutral"
	CellText           CellKind = "text"
)

// DefaultAction is offered when a plugin declares no actions for a table.
var DefaultAction = models.TableAction{Title: "Refresh", Action: "refresh"}

type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Cell struct {
	Column string   `json:"column"`
	Kind   CellKind `json:"kind"`
	Text   string   `json:"text"`
}

// RowAction is a table action resolved for one row.
type RowAction struct {
	models.TableAction
	Enabled bool `json:"enabled"`
}

type Row struct {
	Data    models.Snapshot `json:"data"`
	Cells   []Cell          `json:"cells"`
	Actions []RowAction     `json:"actions"`
}

type Table struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Build renders rows as a table. Columns come from the scalar fields of the
// first row; actions come from the component schema, or DefaultAction when it
// declares none.
func Build(key string, rows []models.Snapshot, schema models.ComponentSchema, translator telemetry.Translator) Table {
	table := Table{
		Key:   key,
		Title: schema.Title,
		Rows:  make([]Row, 0, len(rows)),
	}
	if table.Title == "" {
		table.Title = translate(translator, "devices:tables."+key, telemetry.Label(key))
	}
	if len(rows) == 0 {
		return table
	}

	for _, column := range rows[0].Keys() {
		value, _ := rows[0].Get(column)
		if !isScalar(value) {
			continue
		}
		table.Columns = append(table.Columns, Column{
			Key:   column,
			Label: translate(translator, "devices:columns."+column, telemetry.Label(column)),
		})
	}

	actions := schema.Actions
	if len(actions) == 0 {
		actions = []models.TableAction{DefaultAction}
	}

	for i, data := range rows {
		row := Row{Data: data}
		for _, column := range table.Columns {
			value, ok := data.Get(column.Key)
			row.Cells = append(row.Cells, cell(column.Key, value, ok))
		}
		for _, action := range actions {
			row.Actions = append(row.Actions, RowAction{
				TableAction: action,
				Enabled:     enabled(key, i, action, data),
			})
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// BuildAll builds a table for every array-of-objects field in a snapshot.
func BuildAll(snapshot models.Snapshot, schema models.UISchema, translator telemetry.Translator) []Table {
	fields := telemetry.Tables(snapshot)
	tables := make([]Table, 0, len(fields))
	for _, field := range fields {
		component, _ := schema.Component(field.Key)
		tables = append(tables, Build(field.Key, field.Rows, component, translator))
	}
	return tables
}

// ActionParams returns the parameters sent when a row action is triggered:
// the device's connection parameters overlaid with the row's fields.
func ActionParams(device *models.Device, row models.Snapshot) map[string]any {
	var connection map[string]any
	if device != nil {
		connection = device.ConnectionParams()
	}
	return dispatch.MergeParams(connection, row.Map())
}

func enabled(key string, index int, action models.TableAction, row models.Snapshot) bool {
	if strings.TrimSpace(action.EnabledWhen) == "" {
		return true
	}
	compiled, err := expr.Cached(action.EnabledWhen)
	if err == nil {
		var ok bool
		if ok, err = compiled.Eval(row); err == nil {
			return ok
		}
	}
	slog.Debug("Disabling row action", "component", "TableBuilder", "table", key, "row", index, "action", action.Action, "error", err)
	return false
}

func cell(column string, value any, present bool) Cell {
	if !present || value == nil {
		return Cell{Column: column, Kind: CellText}
	}
	if b, ok := value.(bool); ok {
		if b {
			return Cell{Column: column, Kind: CellCheck, Text: "Yes"}
		}
		return Cell{Column: column, Kind: CellCross, Text: "No"}
	}

	text := cellText(value)
	if column == "status" {
		if telemetry.IsPositiveStatus(text) {
			return Cell{Column: column, Kind: CellStatusPositive, Text: text}
		}
		return Cell{Column: column, Kind: CellStatusNeutral, Text: text}
	}
	return Cell{Column: column, Kind: CellText, Text: text}
}

func cellText(value any) string {
	if isScalar(value) {
		return telemetry.Text(value)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// isScalar reports whether value renders as a plain column; null is not.
func isScalar(value any) bool {
	switch value.(type) {
	case nil, models.Snapshot, *models.Snapshot, map[string]any, []any, []map[string]any, []models.Snapshot:
		return false
	}
	return true
}

func translate(translator telemetry.Translator, key, fallback string) string {
	if translator == nil {
		return fallback
	}
	return translator.Translate(key, fallback)
}
