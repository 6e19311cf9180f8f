package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"fleetconsole/pkg/models"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// FormatBytes renders a byte count with 1024-based units, rounded to decimals
// places with trailing zeros dropped: 1536 -> "1.5 KB".
func FormatBytes(bytes float64, decimals int) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	if bytes < 0 {
		return "-" + FormatBytes(-bytes, decimals)
	}
	if decimals < 0 {
		decimals = 0
	}

	exp := int(math.Floor(math.Log(bytes) / math.Log(1024)))
	exp = max(0, min(exp, len(byteUnits)-1))

	scaled := bytes / math.Pow(1024, float64(exp))
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(scaled, 'f', decimals, 64), 64)
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + byteUnits[exp]
}

// Label turns a raw telemetry key into a human-friendly label:
// "disk_used" -> "Disk Used", "errorCount" -> "Error Count".
func Label(key string) string {
	var spaced strings.Builder
	runes := []rune(strings.ReplaceAll(key, "_", " "))
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			spaced.WriteRune(' ')
		}
		spaced.WriteRune(r)
	}

	words := strings.Fields(spaced.String())
	for i, word := range words {
		first := []rune(word)
		first[0] = unicode.ToUpper(first[0])
		words[i] = string(first)
	}
	return strings.Join(words, " ")
}

// Display renders a classified value as text.
func Display(kind models.FieldKind, value any) string {
	switch kind {
	case models.KindPercentage:
		number, _ := toFloat(value)
		return strconv.FormatFloat(number, 'f', -1, 64) + "%"
	case models.KindBytes:
		number, _ := toFloat(value)
		return FormatBytes(number, 2)
	case models.KindBoolean:
		if value.(bool) {
			return "Yes"
		}
		return "No"
	}
	return Text(value)
}

// Text renders a scalar as plain text.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	if number, ok := toFloat(value); ok {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}
	return fmt.Sprint(value)
}

func isScalar(value any) bool {
	switch value.(type) {
	case models.Snapshot, *models.Snapshot, map[string]any, []any, []map[string]any, []models.Snapshot:
		return false
	}
	return true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToFloat converts a numeric telemetry value to float64.
func ToFloat(value any) (float64, bool) { return toFloat(value) }
