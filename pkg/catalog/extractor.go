// Package catalog derives the list of operations a plugin exposes.
//
// The structured operations field is authoritative. Plugins that only ship
// source code are scanned for a get_operations accessor whose returned list
// literal is normalised into JSON. Extraction never fails loudly: anything
// that cannot be understood yields an empty catalog.
package catalog

import (
	"encoding/json"
	"log/slog"
	"regexp"

	"fleetconsole/pkg/models"
)

var (
	// declarationPattern locates a definition of the accessor: a def or
	// function keyword, or a method head followed by its body opener.
	declarationPattern = regexp.MustCompile(`(?m)(?:\bdef\s+|\bfunction\s+)get_operations\s*\([^)]*\)|(?:^|[^.\w])get_operations\s*\([^)]*\)\s*(?:->[^:{\n]*)?[:{]`)
	// accessorPattern matches any mention of the accessor, call sites included.
	accessorPattern = regexp.MustCompile(`get_operations\s*\([^)]*\)`)
)

// Extract returns the plugin's invocable operations.
func Extract(plugin *models.Plugin) (operations []models.Operation) {
	if plugin == nil {
		return []models.Operation{}
	}
	if plugin.Operations != nil {
		return plugin.Operations
	}
	if plugin.UISchema.Operations != nil {
		return plugin.UISchema.Operations
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Operation extraction panicked", "component", "Catalog", "plugin_id", plugin.ID, "panic", r)
			operations = []models.Operation{}
		}
	}()

	region, found := declarationRegion(plugin.Code)
	if !found {
		slog.Debug("No operation declaration found in plugin code", "component", "Catalog", "plugin_id", plugin.ID)
		return []models.Operation{}
	}

	normalized, err := Normalize(region)
	if err != nil {
		slog.Warn("Failed to normalise operation declaration", "component", "Catalog", "plugin_id", plugin.ID, "error", err)
		return []models.Operation{}
	}

	var parsed []models.Operation
	if err := json.Unmarshal([]byte(normalized), &parsed); err != nil {
		slog.Warn("Failed to parse operation declaration", "component", "Catalog", "plugin_id", plugin.ID, "error", err)
		return []models.Operation{}
	}
	if parsed == nil {
		parsed = []models.Operation{}
	}
	return parsed
}

// Find returns the operation with the given id.
func Find(operations []models.Operation, id string) (models.Operation, bool) {
	for _, op := range operations {
		if op.ID == id {
			return op, true
		}
	}
	return models.Operation{}, false
}

// declarationRegion returns the list literal returned by get_operations.
// Definitions are tried before bare mentions, each in source order, and the
// first one whose return value is a list wins.
func declarationRegion(code string) (string, bool) {
	for _, pattern := range []*regexp.Regexp{declarationPattern, accessorPattern} {
		for _, loc := range pattern.FindAllStringIndex(code, -1) {
			if region, ok := returnedList(code[loc[1]:]); ok {
				return region, true
			}
		}
	}
	return "", false
}

// returnedList returns the bracketed list after the first return in body.
func returnedList(body string) (string, bool) {
	start := findReturn(body)
	if start < 0 {
		return "", false
	}

	i := skipSpace(body, start)
	if i >= len(body) || body[i] != '[' {
		return "", false
	}

	end := matchBracket(body, i)
	if end < 0 {
		return "", false
	}
	return body[i : end+1], true
}

// findReturn returns the offset just past the first return keyword that is
// not inside a string literal or comment, or -1.
func findReturn(src string) int {
	for i := 0; i < len(src); {
		switch c := src[i]; {
		case isQuote(c):
			end, err := skipString(src, i)
			if err != nil {
				return -1
			}
			i = end
		case isComment(src, i):
			i = skipLine(src, i)
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			if src[i:j] == "return" {
				return j
			}
			i = j
		default:
			i++
		}
	}
	return -1
}

// matchBracket returns the index of the bracket closing the one at open.
func matchBracket(src string, open int) int {
	depth := 0
	for i := open; i < len(src); {
		c := src[i]
		switch {
		case isQuote(c):
			end, err := skipString(src, i)
			if err != nil {
				return -1
			}
			i = end
			continue
		case isComment(src, i):
			i = skipLine(src, i)
			continue
		case c == '[' || c == '{' || c == '(':
			depth++
		case c == ']' || c == '}' || c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// RequiresConfirmation reports whether the plugin marks operationID as
// needing operator confirmation, either in its catalog or on a quick action.
func RequiresConfirmation(plugin *models.Plugin, operationID string) bool {
	if plugin == nil {
		return false
	}
	if op, ok := Find(Extract(plugin), operationID); ok && op.Confirm {
		return true
	}
	for _, action := range plugin.UISchema.QuickActions() {
		if action.Action == operationID && action.Confirm {
			return true
		}
	}
	return false
}
