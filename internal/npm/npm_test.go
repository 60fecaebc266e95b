package npm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elemforge/internal/toolexec"
)

const manifestJSON = `{
  "name": "@catalyst-elements/catalyst-tabs",
  "version": "1.2.3",
  "files": ["dist", "src/*.ts"],
  "scripts": {
    "test": "wct"
  }
}
`

func TestManifest_Fields(t *testing.T) {
	m, err := ParseManifest("package.json", []byte(manifestJSON))
	require.NoError(t, err)
	assert.Equal(t, "@catalyst-elements/catalyst-tabs", m.Name())
	assert.Equal(t, "1.2.3", m.Version())
	assert.Equal(t, []string{"dist", "src/*.ts"}, m.Files())
	assert.False(t, m.Private())

	script, ok := m.Script("test")
	assert.True(t, ok)
	assert.Equal(t, "wct", script)
	_, ok = m.Script("lint")
	assert.False(t, ok)
}

func TestManifest_SetVersionPreservesFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFile)
	require.NoError(t, os.WriteFile(path, []byte(manifestJSON), 0o600))

	m, err := ReadManifest(path)
	require.NoError(t, err)
	require.NoError(t, m.SetVersion("1.3.0"))
	require.NoError(t, m.Write())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"version": "1.3.0"`)
	assert.Contains(t, string(got), "\"scripts\": {\n    \"test\": \"wct\"\n  }")

	again, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", again.Version())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestParseManifest_Invalid(t *testing.T) {
	_, err := ParseManifest("package.json", []byte(""))
	assert.Error(t, err)
}

func TestUnscopedName(t *testing.T) {
	assert.Equal(t, "catalyst-tabs", UnscopedName("@catalyst-elements/catalyst-tabs"))
	assert.Equal(t, "catalyst-tabs", UnscopedName("catalyst-tabs"))
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		current, bump, preid string
		want                 string
	}{
		{"1.2.3", "patch", "", "1.2.4"},
		{"1.2.3", "", "", "1.2.4"},
		{"1.2.3", "minor", "", "1.3.0"},
		{"1.2.3", "MAJOR", "", "2.0.0"},
		{"1.2.3", "prerelease", "rc", "1.2.4-rc.0"},
		{"1.2.4-rc.0", "prerelease", "rc", "1.2.4-rc.1"},
		{"1.2.4-beta.3", "prerelease", "rc", "1.2.4-rc.0"},
		{"1.2.4-rc.1", "patch", "", "1.2.4"},
		{"1.2.3", "2.0.0-alpha.1", "", "2.0.0-alpha.1"},
		{"1.2.3", "v1.5.0", "", "1.5.0"},
	}
	for _, tt := range tests {
		got, err := NextVersion(tt.current, tt.bump, tt.preid)
		require.NoError(t, err, "%s %s", tt.current, tt.bump)
		assert.Equal(t, tt.want, got, "%s %s", tt.current, tt.bump)
	}
}

func TestNextVersion_Errors(t *testing.T) {
	_, err := NextVersion("not-a-version", "patch", "")
	assert.ErrorContains(t, err, "invalid current version")

	_, err = NextVersion("1.2.3", "sideways", "")
	assert.ErrorContains(t, err, "invalid bump")

	_, err = NextVersion("1.2.3", "1.2.3", "")
	assert.ErrorContains(t, err, "not greater")
}

func TestClient_Publish(t *testing.T) {
	fake := toolexec.NewFake()
	c := NewClient("/pkg", fake)
	require.NoError(t, c.Publish(context.Background(), "next", true))
	assert.Equal(t, []string{"npm publish --tag next --dry-run"}, fake.Calls())
	assert.Equal(t, "/pkg", fake.Commands()[0].Dir)
}

func TestClient_Published(t *testing.T) {
	fake := toolexec.NewFake().
		On("npm view x@1.0.0 version", toolexec.Result{Stdout: "1.0.0\n"}, nil).
		On("npm view x@2.0.0 version", toolexec.Result{}, &toolexec.ExitError{Command: "npm view", Code: 1, Stderr: "npm ERR! code E404"})
	c := NewClient(".", fake)

	ok, err := c.Published(context.Background(), "x", "1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Published(context.Background(), "x", "2.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}
