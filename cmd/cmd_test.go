package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/wisp/internal/cache"
	"github.com/conneroisu/wisp/internal/config"
)

const brokenComponent = `tag: broken-card
template: |-
  <div>
  <% if data.x { %>
  </div>
`

// project initializes a sample project in a temporary directory.
func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	opts := defaultProjectOptions()
	require.NoError(t, writeProject(&out, dir, opts))
	return dir
}

func TestWriteProject(t *testing.T) {
	dir := project(t)

	assert.FileExists(t, filepath.Join(dir, ".wisp.yml"))
	assert.FileExists(t, filepath.Join(dir, "components", "click-counter.wisp.yml"))
	assert.DirExists(t, filepath.Join(dir, ".wisp"))

	t.Run("generated config loads", func(t *testing.T) {
		v := viper.New()
		require.NoError(t, config.Init(v, filepath.Join(dir, ".wisp.yml")))
		cfg, err := config.LoadFrom(v)
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"./components"}, cfg.Components.ScanPaths)
		assert.Equal(t, ".wisp/cache.db", cfg.Cache.Path)
		assert.Equal(t, "text", cfg.Log.Format)
	})

	t.Run("existing files are kept", func(t *testing.T) {
		path := filepath.Join(dir, ".wisp.yml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

		var out bytes.Buffer
		require.NoError(t, writeProject(&out, dir, defaultProjectOptions()))
		assert.Contains(t, out.String(), "skip")

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "log:\n  level: debug\n", string(content))
	})

	t.Run("minimal skips the sample", func(t *testing.T) {
		dir := t.TempDir()
		opts := defaultProjectOptions()
		opts.Example = false
		require.NoError(t, writeProject(&bytes.Buffer{}, dir, opts))
		assert.NoFileExists(t, filepath.Join(dir, "components", "click-counter.wisp.yml"))
	})
}

func TestRenderFile(t *testing.T) {
	dir := project(t)
	file := filepath.Join(dir, "components", "click-counter.wisp.yml")
	cfg := config.Default()

	t.Run("initial data", func(t *testing.T) {
		out, err := renderFile(context.Background(), cfg, file, "", nil, nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "<click-counter"))
		assert.Contains(t, out, "Clicks: 0")
		assert.NotContains(t, out, "Reset")
	})

	t.Run("data and attrs", func(t *testing.T) {
		out, err := renderFile(context.Background(), cfg, file, "",
			map[string]string{"variant": "wide"}, map[string]any{"count": 3})
		require.NoError(t, err)
		assert.Contains(t, out, `variant="wide"`)
		assert.Contains(t, out, "Clicks: 3")
		assert.Contains(t, out, "Reset")
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := renderFile(context.Background(), cfg, file, "no-such-tag", nil, nil)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := renderFile(context.Background(), cfg, filepath.Join(dir, "nope.wisp.yml"), "", nil, nil)
		assert.Error(t, err)
	})
}

func TestValidateFiles(t *testing.T) {
	dir := project(t)
	components := filepath.Join(dir, "components")
	cfg := config.Default()

	files, err := definitionFiles([]string{components}, cfg.Components.ExcludePatterns)
	require.NoError(t, err)
	require.Len(t, files, 1)

	collector := validateFiles(context.Background(), cfg, files, nopReporter{})
	assert.Equal(t, 0, collector.Len())

	var table bytes.Buffer
	writeDiagnosticsTable(&table, files, collector)
	assert.Equal(t, "All 1 component files are valid\n", table.String())

	broken := filepath.Join(components, "broken-card.wisp.yml")
	require.NoError(t, os.WriteFile(broken, []byte(brokenComponent), 0o644))

	files, err = definitionFiles([]string{components}, cfg.Components.ExcludePatterns)
	require.NoError(t, err)
	require.Len(t, files, 2)

	collector = validateFiles(context.Background(), cfg, files, nopReporter{})
	require.Equal(t, 1, collector.Len())
	assert.Equal(t, map[string]bool{broken: true}, invalidFiles(collector))

	var report struct {
		Files       int  `json:"files"`
		Valid       bool `json:"valid"`
		Diagnostics []struct {
			File string `json:"file"`
		} `json:"diagnostics"`
	}
	var out bytes.Buffer
	require.NoError(t, writeDiagnosticsJSON(&out, files, collector))
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 2, report.Files)
	assert.False(t, report.Valid)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, broken, report.Diagnostics[0].File)
}

func TestDefinitionFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("tag: x-a\ntemplate: a\n"), 0o644))
		return path
	}
	keep := write("a.wisp.yml")
	nested := write("forms/b.wisp.yaml")
	write("c_test.wisp.yml")
	write(".hidden/d.wisp.yml")
	write("notes.yml")

	files, err := definitionFiles([]string{dir, filepath.Join(dir, "missing")}, []string{"*_test.wisp.yml"})
	require.NoError(t, err)

	want := []string{keep, nested}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("definitionFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseData(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(dataFile, []byte(`{"count": 2}`), 0o644))

	tests := []struct {
		name    string
		data    string
		want    any
		wantErr bool
	}{
		{name: "empty", data: "", want: nil},
		{name: "object", data: `{"title":"Hi"}`, want: map[string]any{"title": "Hi"}},
		{name: "array", data: `[1,2]`, want: []any{float64(1), float64(2)}},
		{name: "file", data: "@" + dataFile, want: map[string]any{"count": float64(2)}},
		{name: "scalar", data: `42`, wantErr: true},
		{name: "invalid json", data: `{`, wantErr: true},
		{name: "missing file", data: "@" + filepath.Join(dir, "nope.json"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &StandardFlags{Data: tt.data}
			got, err := f.ParseData()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttrs(t *testing.T) {
	f := &StandardFlags{Attrs: []string{"variant=wide", "title=a=b", "empty="}}
	attrs, err := f.ParseAttrs()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"variant": "wide", "title": "a=b", "empty": ""}, attrs)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := (&StandardFlags{Attrs: []string{bad}}).ParseAttrs()
		assert.Error(t, err, bad)
	}
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, (&StandardFlags{OutputFormat: "json"}).ValidateFlags())
	assert.Error(t, (&StandardFlags{OutputFormat: "xml"}).ValidateFlags())
	assert.Error(t, (&StandardFlags{Verbose: true, Quiet: true}).ValidateFlags())

	assert.NoError(t, ValidatePort("8080"))
	assert.Error(t, ValidatePort("0"))
	assert.Error(t, ValidatePort("http"))
}

func TestConfigYAML(t *testing.T) {
	opts := defaultProjectOptions()
	opts.Port = 9000
	opts.APIBase = "https://erp.example.com"
	opts.LogFormat = "json"

	content, err := configYAML(opts)
	require.NoError(t, err)

	v := viper.New()
	path := filepath.Join(t.TempDir(), "wisp.yml")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	require.NoError(t, config.Init(v, path))
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:9000")
	assert.Equal(t, "https://erp.example.com", cfg.API.BaseURL)
	assert.Equal(t, "json", cfg.Log.Format)
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCacheCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	t.Setenv("WISP_CACHE_PATH", path)
	t.Cleanup(func() { cacheBucket = "" })

	store, err := cache.Open(path)
	require.NoError(t, err)
	_, err = store.Set("DocType/Note", map[string]any{"name": "Note"})
	require.NoError(t, err)
	_, err = store.Set("List/Note", []any{"a"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := execute(t, "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, "DocType/Note\nList/Note\n", out)

	out, err = execute(t, "cache", "get", "DocType/Note")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Note"}`, out)

	_, err = execute(t, "cache", "get", "Missing")
	assert.Error(t, err)

	_, err = execute(t, "cache", "rm", "List/Note")
	require.NoError(t, err)
	out, err = execute(t, "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, "DocType/Note\n", out)

	_, err = execute(t, "cache", "clear")
	require.NoError(t, err)
	out, err = execute(t, "cache", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() { versionFormat = "text" })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wisp")

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "semver")
}
