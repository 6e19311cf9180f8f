package telemetry

import (
	"testing"

	"fleetconsole/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapTranslator map[string]string

func (m mapTranslator) Translate(key, fallback string) string {
	if value, ok := m[key]; ok {
		return value
	}
	return fallback
}

func parse(t *testing.T, raw string) models.Snapshot {
	t.Helper()
	snapshot, err := models.ParseSnapshot([]byte(raw))
	require.NoError(t, err)
	return snapshot
}

func TestClassifyHeadlineMetrics(t *testing.T) {
	snapshot := parse(t, `{"cpu": 45, "status": "Online", "errorCount": 1200}`)

	fields := Classify(snapshot, nil)
	require.Len(t, fields, 3)

	assert.Equal(t, "cpu", fields[0].Key)
	assert.Equal(t, models.KindPercentage, fields[0].Kind)
	assert.Equal(t, "45%", fields[0].Display)
	assert.Equal(t, "Cpu", fields[0].Label)

	assert.Equal(t, models.KindStatus, fields[1].Kind)
	assert.True(t, fields[1].Positive)
	assert.Equal(t, "Online", fields[1].Display)

	assert.Equal(t, models.KindBytes, fields[2].Kind)
	assert.Equal(t, "1.17 KB", fields[2].Display)
	assert.Equal(t, "Error Count", fields[2].Label)
}

func TestClassifySkipsErrorAndNestedValues(t *testing.T) {
	snapshot := parse(t, `{"error": "", "disks": [{"name": "sda"}], "os": {"name": "linux"}, "uptime": 5}`)

	fields := Classify(snapshot, nil)
	require.Len(t, fields, 1)
	assert.Equal(t, "uptime", fields[0].Key)
}

func TestClassifyCapsHeadlineInDocumentOrder(t *testing.T) {
	snapshot := parse(t, `{"z": 1, "y": 2, "x": 3, "w": 4, "v": 5, "u": 6}`)

	fields := Classify(snapshot, nil)
	require.Len(t, fields, HeadlineLimit)

	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, field.Key)
	}
	assert.Equal(t, []string{"z", "y", "x", "w"}, keys)

	assert.Len(t, ClassifySystemInfo(snapshot, nil), 6)
}

func TestKindBoundaries(t *testing.T) {
	classifier := NewClassifier(nil)

	tests := []struct {
		name  string
		key   string
		value any
		want  models.FieldKind
	}{
		{name: "boolean", key: "enabled", value: true, want: models.KindBoolean},
		{name: "zero is percentage", key: "load", value: float64(0), want: models.KindPercentage},
		{name: "hundred is percentage", key: "load", value: float64(100), want: models.KindPercentage},
		{name: "thousand is text", key: "count", value: float64(1000), want: models.KindText},
		{name: "above thousand is bytes", key: "memory", value: float64(1001), want: models.KindBytes},
		{name: "negative is text", key: "delta", value: float64(-3), want: models.KindText},
		{name: "int percentage", key: "cpu", value: 42, want: models.KindPercentage},
		{name: "status key", key: "status", value: "degraded", want: models.KindStatus},
		{name: "status substring", key: "linkStatus", value: "down", want: models.KindStatus},
		{name: "connected substring", key: "vpn_connected", value: "no", want: models.KindStatus},
		{name: "plain text", key: "hostname", value: "web-01", want: models.KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Kind(tt.key, tt.value))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    float64
		decimals int
		want     string
	}{
		{bytes: 0, decimals: 2, want: "0 Bytes"},
		{bytes: 512, decimals: 2, want: "512 Bytes"},
		{bytes: 1024, decimals: 2, want: "1 KB"},
		{bytes: 1536, decimals: 2, want: "1.5 KB"},
		{bytes: 1200, decimals: 2, want: "1.17 KB"},
		{bytes: 1200, decimals: -1, want: "1 KB"},
		{bytes: 1073741824, decimals: 2, want: "1 GB"},
		{bytes: -2048, decimals: 2, want: "-2 KB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.bytes, tt.decimals))
	}
}

func TestIsPositiveStatus(t *testing.T) {
	for _, status := range []string{"Running", "ACTIVE", "online", "Connected", "ok", "Healthy"} {
		assert.True(t, IsPositiveStatus(status), status)
	}
	for _, status := range []string{"stopped", "", "failed", "degraded"} {
		assert.False(t, IsPositiveStatus(status), status)
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Disk Used", Label("disk_used"))
	assert.Equal(t, "Error Count", Label("errorCount"))
	assert.Equal(t, "Cpu", Label("cpu"))
	assert.Equal(t, "Ipv4 Address", Label("ipv4Address"))
	assert.Equal(t, "Total Bytes", Label("total__bytes"))
}

func TestTranslationTakesPrecedence(t *testing.T) {
	translator := mapTranslator{
		"devices:metrics.cpu":       "Processor",
		"devices:systemInfo.uptime": "Time Up",
	}
	snapshot := parse(t, `{"cpu": 10, "uptime": 20}`)

	headline := Classify(snapshot, translator)
	assert.Equal(t, "Processor", headline[0].Label)
	assert.Equal(t, "Uptime", headline[1].Label)

	info := ClassifySystemInfo(snapshot, translator)
	assert.Equal(t, "Cpu", info[0].Label)
	assert.Equal(t, "Time Up", info[1].Label)
}

func TestForPluginOverrides(t *testing.T) {
	plugin := &models.Plugin{
		ID: 7,
		UISchema: models.UISchema{
			Properties: map[string]any{
				"classification": map[string]any{
					"percentage_max":    "1",
					"positive_statuses": []any{"green"},
					"headline_limit":    2,
				},
			},
		},
	}

	classifier := NewClassifier(nil).ForPlugin(plugin)
	assert.Equal(t, float64(1), classifier.PercentageMax)
	assert.Equal(t, float64(1000), classifier.BytesMin)
	assert.Equal(t, 2, classifier.HeadlineLimit)
	assert.True(t, classifier.IsPositive("GREEN"))
	assert.False(t, classifier.IsPositive("running"))
	assert.Equal(t, models.KindText, classifier.Kind("load", float64(50)))
}

func TestForPluginIgnoresMalformedOverrides(t *testing.T) {
	plugin := &models.Plugin{
		UISchema: models.UISchema{
			Properties: map[string]any{"classification": "loose"},
		},
	}

	classifier := NewClassifier(nil).ForPlugin(plugin)
	assert.Equal(t, float64(100), classifier.PercentageMax)
	assert.Equal(t, HeadlineLimit, classifier.HeadlineLimit)
}

func TestTables(t *testing.T) {
	snapshot := parse(t, `{
		"cpu": 12,
		"services": [{"name": "sshd", "status": "running"}, {"name": "cron", "status": "stopped"}],
		"empty": [],
		"tags": ["a", "b"]
	}`)

	tables := Tables(snapshot)
	require.Len(t, tables, 1)
	assert.Equal(t, "services", tables[0].Key)
	require.Len(t, tables[0].Rows, 2)

	name, _ := tables[0].Rows[1].Get("name")
	assert.Equal(t, "cron", name)
}
