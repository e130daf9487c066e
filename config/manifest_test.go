package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamwoolhether/fetch/client/reqopt"
)

const manifestYAML = `
method: PUT
body:
  name: widget
  tags: [a, b]
options:
  bodyType: json
  timeout: 2.5
requests:
  - url: https://a.example.com/items
  - url: https://b.example.com/items
    options:
      followRedirects: false
      headers:
        Authorization: Bearer x
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestYAML))
	require.NoError(t, err)

	assert.Equal(t, "PUT", m.Method)
	assert.Equal(t, map[string]any{"name": "widget", "tags": []any{"a", "b"}}, m.Body)
	assert.Equal(t, reqopt.JSON, m.Options.Type)
	require.NotNil(t, m.Options.Timeout)
	assert.Equal(t, 2500*time.Millisecond, *m.Options.Timeout)

	require.Len(t, m.Requests, 2)
	assert.Equal(t, "https://a.example.com/items", m.Requests[0].URL)
	assert.Nil(t, m.Requests[0].Options.FollowRedirects)

	second := m.Requests[1].Options
	require.NotNil(t, second.FollowRedirects)
	assert.False(t, *second.FollowRedirects)
	assert.Equal(t, map[string]string{"authorization": "Bearer x"}, second.Headers)
}

func TestParseManifest_Errors(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
		msg  string
	}{
		{name: "not yaml", yaml: "method: [", msg: "failed to parse manifest"},
		{name: "missing url", yaml: "requests:\n  - options: {}", msg: "request 0: url is required"},
		{name: "bad batch option", yaml: "options:\n  verbose: true", msg: "manifest options"},
		{name: "bad request option", yaml: "requests:\n  - url: http://x\n  - url: http://y\n    options:\n      timeout: -1", msg: "request 1 options"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Requests, 2)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read manifest")
}
