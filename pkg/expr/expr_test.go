package expr

import (
	"testing"

	"fleetconsole/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(t *testing.T, raw string) models.Snapshot {
	t.Helper()
	snapshot, err := models.ParseSnapshot([]byte(raw))
	require.NoError(t, err)
	return snapshot
}

func TestEval(t *testing.T) {
	r := row(t, `{
		"status": "running",
		"pid": 42,
		"enabled": true,
		"owner": null,
		"user name": "root",
		"ports": [22, 80],
		"meta": {"restarts": 3}
	}`)

	tests := []struct {
		src  string
		want bool
	}{
		{src: `row.status === 'running'`, want: true},
		{src: `row.status == "stopped"`, want: false},
		{src: `row.status !== 'stopped'`, want: true},
		{src: `row.pid > 0`, want: true},
		{src: `row.pid <= 41`, want: false},
		{src: `row.pid >= 42 && row.enabled`, want: true},
		{src: `row.enabled and not (row.pid < 10)`, want: true},
		{src: `!row.enabled || row.pid == 42`, want: true},
		{src: `row.owner == null`, want: true},
		{src: `row["user name"] == 'root'`, want: true},
		{src: `row.ports[1] == 80`, want: true},
		{src: `row.meta.restarts > 2`, want: true},
		{src: `row.status < 'stopped'`, want: true},
		{src: `row.pid == '42'`, want: false},
		{src: `true`, want: true},
		{src: `row.enabled == false or row.status == 'running'`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			compiled, err := Compile(tt.src)
			require.NoError(t, err)
			got, err := compiled.Eval(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileRejects(t *testing.T) {
	for _, src := range []string{
		`row.status = 'x'`,
		`alert(1)`,
		`row.status.toLowerCase()`,
		`window.location`,
		`row.status === `,
		`(row.pid > 1`,
		`row['unterminated]`,
		`row[-1]`,
		`row.pid > 1 row.pid`,
		`1 + 2`,
	} {
		_, err := Compile(src)
		assert.ErrorIs(t, err, ErrSyntax, src)
	}
}

func TestEvalErrors(t *testing.T) {
	r := row(t, `{"status": "running", "pid": 42, "ports": [22]}`)

	tests := []struct {
		src  string
		want error
	}{
		{src: `row.missing == 1`, want: ErrMissingField},
		{src: `row.ports[3] == 1`, want: ErrMissingField},
		{src: `row.pid > 'a'`, want: ErrTypeMismatch},
		{src: `row.ports == 1`, want: ErrTypeMismatch},
		{src: `row.status`, want: ErrNotBoolean},
		{src: `!row.pid`, want: ErrNotBoolean},
	}

	for _, tt := range tests {
		compiled, err := Compile(tt.src)
		require.NoError(t, err, tt.src)
		_, err = compiled.Eval(r)
		assert.ErrorIs(t, err, tt.want, tt.src)
	}
}

func TestShortCircuit(t *testing.T) {
	r := row(t, `{"enabled": false}`)

	compiled, err := Compile(`row.enabled && row.missing == 1`)
	require.NoError(t, err)
	got, err := compiled.Eval(r)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEnabled(t *testing.T) {
	r := row(t, `{"status": "running"}`)

	assert.True(t, Enabled("", r))
	assert.True(t, Enabled("   ", r))
	assert.True(t, Enabled(`row.status === 'running'`, r))
	assert.False(t, Enabled(`row.status === 'stopped'`, r))
	assert.False(t, Enabled(`row.nope === 'x'`, r))
	assert.False(t, Enabled(`process.exit()`, r))
}

func TestEnabledAcceptsPlainMaps(t *testing.T) {
	r := map[string]any{"count": 3, "name": "svc"}

	assert.True(t, Enabled(`row.count == 3`, r))
	assert.True(t, Enabled(`row.name != 'other'`, r))
}

func TestCachedReturnsSameExpr(t *testing.T) {
	first, err := Cached(`row.a == 1`)
	require.NoError(t, err)
	second, err := Cached(`row.a == 1`)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, `row.a == 1`, first.String())
}
