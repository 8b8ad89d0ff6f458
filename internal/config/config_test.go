package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/validation"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(v *viper.Viper)
		expectError   bool
		expectedPaths []string
	}{
		{
			name: "successful load with defaults",
			setup: func(v *viper.Viper) {
				v.Set("server.port", 8080)
				v.Set("server.host", "localhost")
			},
			expectedPaths: []string{"./components"},
		},
		{
			name: "successful load with custom scan paths",
			setup: func(v *viper.Viper) {
				v.Set("server.port", 3000)
				v.Set("server.host", "0.0.0.0")
				v.Set("components.scan_paths", []string{"./custom", "./paths"})
			},
			expectedPaths: []string{"./custom", "./paths"},
		},
		{
			name: "invalid viper config",
			setup: func(v *viper.Viper) {
				// Set invalid configuration that would cause unmarshal to fail
				v.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "path traversal in scan paths",
			setup: func(v *viper.Viper) {
				v.Set("components.scan_paths", []string{"../outside"})
			},
			expectError: true,
		},
		{
			name: "non-positive render passes",
			setup: func(v *viper.Viper) {
				v.Set("runtime.max_render_passes", -1)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			config, err := LoadFrom(v)

			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, errors.IsConfiguration(err))
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			assert.Equal(t, tt.expectedPaths, config.Components.ScanPaths)
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	config, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, Default(), config)
	assert.Equal(t, "on:", config.Runtime.EventPrefix)
	assert.Equal(t, 16, config.Runtime.MaxIncludeDepth)
	assert.Equal(t, 8, config.Runtime.MaxRenderPasses)
	assert.True(t, config.Development.HotReload)
	assert.Equal(t, 30*time.Second, config.API.Timeout)
}

func TestLoadKeepsExplicitFalse(t *testing.T) {
	v := viper.New()
	v.Set("development.hot_reload", false)
	v.Set("server.port", 0)

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.False(t, config.Development.HotReload)
	assert.True(t, config.Development.ErrorOverlay)
	assert.Equal(t, 0, config.Server.Port)
}

func TestInitReadsFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "wisp.yml")
	content := `
runtime:
  event_prefix: "x-on:"
  max_include_depth: 4
server:
  port: 9000
api:
  base_url: https://erp.example.com
  timeout: 5s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	t.Setenv("WISP_SERVER_HOST", "127.0.0.1")

	v := viper.New()
	require.NoError(t, Init(v, file))

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "x-on:", config.Runtime.EventPrefix)
	assert.Equal(t, 4, config.Runtime.MaxIncludeDepth)
	assert.Equal(t, 8, config.Runtime.MaxRenderPasses)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, "https://erp.example.com", config.API.BaseURL)
	assert.Equal(t, 5*time.Second, config.API.Timeout)
	assert.Equal(t, "debug", config.Log.Level)
}

func TestInitMissingFile(t *testing.T) {
	err := Init(viper.New(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.True(t, errors.IsConfiguration(err))

	// Without an explicit file a missing .wisp.yml is fine
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()
	assert.NoError(t, Init(viper.New(), ""))
}

func TestValidateServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"valid", ServerConfig{Port: 8080, Host: "localhost"}, false},
		{"system assigned port", ServerConfig{Port: 0}, false},
		{"port too high", ServerConfig{Port: 70000}, true},
		{"negative port", ServerConfig{Port: -1}, true},
		{"command injection in host", ServerConfig{Port: 80, Host: "localhost; rm -rf /"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServerConfig(&tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	config := Default()
	assert.NoError(t, validateConfig(config))

	config.Components.ScanPaths = []string{"components/$(whoami)"}
	assert.Error(t, validateConfig(config))

	config = Default()
	config.Cache.Path = "../cache.db"
	assert.Error(t, validateConfig(config))

	config = Default()
	config.API.BaseURL = "javascript:alert(1)"
	assert.Error(t, validateConfig(config))

	config = Default()
	config.Server.Host = "localhost;reboot"
	assert.Error(t, validateConfig(config))
	assert.Error(t, validation.ValidatePath(config.Server.Host))
}

func TestValidateConfigWithDetails(t *testing.T) {
	config := Default()
	config.Server.Port = 80
	config.Server.AllowedOrigins = []string{"*", "not an origin"}
	config.Components.ScanPaths = []string{t.TempDir(), "./definitely-missing"}
	config.API.BaseURL = "ftp://files"
	config.Log.Format = "xml"

	result := ValidateConfigWithDetails(config)

	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors())
	assert.True(t, result.HasWarnings())

	fields := func(issues []ValidationError) []string {
		var out []string
		for _, issue := range issues {
			out = append(out, issue.Field)
		}
		return out
	}
	assert.ElementsMatch(t,
		[]string{"server.allowed_origins[1]", "api.base_url"},
		fields(result.Errors))
	assert.ElementsMatch(t,
		[]string{"server.port", "server.allowed_origins[0]", "components.scan_paths[1]", "log.format"},
		fields(result.Warnings))

	out := result.String()
	assert.Contains(t, out, "Validation errors:")
	assert.Contains(t, out, "Validation warnings:")
	assert.Contains(t, out, "hint: Example: http://localhost:8080")
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := Default()
	require.NoError(t, validateConfig(config))

	result := ValidateConfigWithDetails(config)
	assert.Empty(t, result.Errors)
}
