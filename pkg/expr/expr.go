// Package expr evaluates the small boolean language plugins use to decide
// whether a row-level action is enabled.
//
// Expressions see a single variable, row, and support field access
// (row.name, row["name"], row[0]), string, number, boolean and null literals,
// comparisons (== === != !== < <= > >=) and the logical operators
// && || ! (or their word forms and, or, not). Nothing else is callable.
package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	ErrSyntax       = errors.New("invalid expression")
	ErrMissingField = errors.New("field not present in row")
	ErrTypeMismatch = errors.New("operand type mismatch")
	ErrNotBoolean   = errors.New("expression did not produce a boolean")
)

// Expr is a compiled expression. It is safe for concurrent use.
type Expr struct {
	source string
	root   node
}

// Compile parses src into an Expr.
func Compile(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{source: src, root: root}, nil
}

// String returns the expression source.
func (e *Expr) String() string { return e.source }

// Eval evaluates the expression against row.
func (e *Expr) Eval(row any) (bool, error) {
	value, err := evalBool(e.root, row)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	return value, nil
}

const cacheLimit = 512

var cache = struct {
	sync.RWMutex
	entries map[string]*Expr
}{entries: make(map[string]*Expr)}

// Cached compiles src, reusing a previous compilation when available.
func Cached(src string) (*Expr, error) {
	cache.RLock()
	compiled, ok := cache.entries[src]
	cache.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := Compile(src)
	if err != nil {
		return nil, err
	}

	cache.Lock()
	if len(cache.entries) >= cacheLimit {
		clear(cache.entries)
	}
	cache.entries[src] = compiled
	cache.Unlock()
	return compiled, nil
}

// Enabled reports whether an action guarded by src is enabled for row. An
// empty condition is always enabled; any compile or evaluation failure
// disables the action.
func Enabled(src string, row any) bool {
	if strings.TrimSpace(src) == "" {
		return true
	}
	compiled, err := Cached(src)
	if err != nil {
		slog.Debug("Action condition rejected", "component", "Expr", "condition", src, "error", err)
		return false
	}
	enabled, err := compiled.Eval(row)
	if err != nil {
		slog.Debug("Action condition failed", "component", "Expr", "error", err)
		return false
	}
	return enabled
}
