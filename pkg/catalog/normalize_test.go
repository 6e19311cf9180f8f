package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "single quotes", in: `['a', 'b']`, want: `["a", "b"]`},
		{name: "bare keys", in: `{id: 1, name: "x"}`, want: `{"id": 1, "name": "x"}`},
		{name: "trailing commas", in: `[{"a": 1,}, ]`, want: `[{"a": 1} ]`},
		{name: "python literals", in: `{'on': True, 'off': False, 'none': None}`, want: `{"on": true, "off": false, "none": null}`},
		{name: "embedded double quote", in: `['say "hi"']`, want: `["say \"hi\""]`},
		{name: "escaped single quote", in: `['it\'s']`, want: `["it's"]`},
		{name: "colon inside string untouched", in: `{url: 'http://host:80'}`, want: `{"url": "http://host:80"}`},
		{name: "comments dropped", in: "[1, # one\n 2]", want: "[1,  2]"},
		{name: "numbers kept", in: `[1e3, -2.5]`, want: `[1e3, -2.5]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "normalised output must be valid JSON: %s", got)
		})
	}
}

func TestNormalize_UnterminatedString(t *testing.T) {
	_, err := Normalize(`['abc]`)
	assert.ErrorIs(t, err, ErrUnterminatedString)
}
