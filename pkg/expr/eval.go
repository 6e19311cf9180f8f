package expr

import (
	"fmt"

	"fleetconsole/pkg/models"
)

func (n *literalNode) eval(any) (any, error) { return n.value, nil }

func (n *pathNode) eval(row any) (any, error) {
	current := row
	for _, segment := range n.segments {
		switch key := segment.(type) {
		case string:
			value, ok := field(current, key)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, n.source)
			}
			current = value
		case int:
			value, ok := index(current, key)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, n.source)
			}
			current = value
		}
	}
	return normalize(current), nil
}

func (n *notNode) eval(row any) (any, error) {
	value, err := evalBool(n.operand, row)
	if err != nil {
		return nil, err
	}
	return !value, nil
}

func (n *logicalNode) eval(row any) (any, error) {
	left, err := evalBool(n.left, row)
	if err != nil {
		return nil, err
	}
	if n.and && !left {
		return false, nil
	}
	if !n.and && left {
		return true, nil
	}
	return evalBool(n.right, row)
}

func (n *compareNode) eval(row any) (any, error) {
	left, err := n.left.eval(row)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(row)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==", "===":
		return equal(left, right)
	case "!=", "!==":
		same, err := equal(left, right)
		return !same, err
	}

	switch l := left.(type) {
	case float64:
		if r, ok := right.(float64); ok {
			return ordered(n.op, l, r), nil
		}
	case string:
		if r, ok := right.(string); ok {
			return ordered(n.op, l, r), nil
		}
	}
	return nil, fmt.Errorf("%w: cannot order %T and %T", ErrTypeMismatch, left, right)
}

func evalBool(n node, row any) (bool, error) {
	value, err := n.eval(row)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, value)
	}
	return b, nil
}

func equal(left, right any) (bool, error) {
	if !isScalar(left) || !isScalar(right) {
		return false, fmt.Errorf("%w: cannot compare %T and %T", ErrTypeMismatch, left, right)
	}
	return left == right, nil
}

func ordered[T float64 | string](op string, l, r T) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	}
	return l >= r
}

func isScalar(value any) bool {
	switch value.(type) {
	case nil, bool, float64, string:
		return true
	}
	return false
}

func field(container any, key string) (any, bool) {
	switch c := container.(type) {
	case models.Snapshot:
		return c.Get(key)
	case *models.Snapshot:
		if c == nil {
			return nil, false
		}
		return c.Get(key)
	case map[string]any:
		value, ok := c[key]
		return value, ok
	}
	return nil, false
}

func index(container any, i int) (any, bool) {
	switch c := container.(type) {
	case []any:
		if i < len(c) {
			return c[i], true
		}
	case []string:
		if i < len(c) {
			return c[i], true
		}
	case models.Snapshot, *models.Snapshot, map[string]any:
		return field(container, fmt.Sprint(i))
	}
	return nil, false
}

// normalize folds Go numeric types into float64 so rows built in code compare
// the same way as rows decoded from JSON.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	}
	return value
}
