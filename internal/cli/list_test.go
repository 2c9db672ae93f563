package cli

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestList_Table(t *testing.T) {
	env := newCLIEnv(t, fakeBackend())

	out, err := env.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "Double")
	assert.Contains(t, out, "Multiply a number by two")
	assert.Contains(t, out, "Other")
}

func TestList_Filters(t *testing.T) {
	env := newCLIEnv(t, fakeBackend())

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "all grouped by type", args: nil, want: []string{"1", "2", "3", "4"}},
		{name: "type", args: []string{"--type", "Math"}, want: []string{"1"}},
		{name: "other type", args: []string{"--type", "Other"}, want: []string{"3"}},
		{name: "search", args: []string{"--search", "UPPER"}, want: []string{"2"}},
		{name: "search and type", args: []string{"--search", "double", "--type", "Text"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.run(t, "", append([]string{"list", "-o", "json"}, tt.args...)...)
			require.NoError(t, err)

			var listings []toolListing
			require.NoError(t, json.Unmarshal([]byte(out), &listings))
			ids := []string{}
			for _, l := range listings {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestList_YAML(t *testing.T) {
	env := newCLIEnv(t, fakeBackend())

	out, err := env.run(t, "", "list", "--output", "yaml", "--type", "Math")
	require.NoError(t, err)

	var listings []toolListing
	require.NoError(t, yaml.Unmarshal([]byte(out), &listings))
	require.Len(t, listings, 1)
	assert.Equal(t, "Double", listings[0].Title)
	assert.Equal(t, "double", listings[0].Function)
	assert.Equal(t, []string{"Number (number)"}, listings[0].Inputs)
}

func TestList_Errors(t *testing.T) {
	env := newCLIEnv(t, fakeBackend())
	_, err := env.run(t, "", "list", "-o", "xml")
	assert.ErrorContains(t, err, "invalid output format")

	failing := newCLIEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	_, err = failing.run(t, "", "list")
	assert.ErrorContains(t, err, "Failed to fetch tools")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
