// Package config provides configuration management for wisp using Viper for
// loading from files, environment variables, and command-line flags.
//
// The configuration system reads .wisp.yml, honours WISP_ environment
// overrides, applies defaults and validates the result. It covers the
// component runtime limits, the preview server, component scanning, the
// persistent cache, the REST client used by data-driven views, and logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/validation"
)

// EnvPrefix is the prefix for environment overrides, e.g. WISP_SERVER_PORT.
const EnvPrefix = "WISP"

type Config struct {
	Runtime     RuntimeConfig     `yaml:"runtime" mapstructure:"runtime"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Components  ComponentsConfig  `yaml:"components" mapstructure:"components"`
	Development DevelopmentConfig `yaml:"development" mapstructure:"development"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	API         APIConfig         `yaml:"api" mapstructure:"api"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	TargetFiles []string          `yaml:"-" mapstructure:"-"` // CLI arguments, not from config file
}

type RuntimeConfig struct {
	EventPrefix     string `yaml:"event_prefix" mapstructure:"event_prefix"`
	MaxIncludeDepth int    `yaml:"max_include_depth" mapstructure:"max_include_depth"`
	MaxRenderPasses int    `yaml:"max_render_passes" mapstructure:"max_render_passes"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type ComponentsConfig struct {
	ScanPaths       []string `yaml:"scan_paths" mapstructure:"scan_paths"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

type DevelopmentConfig struct {
	HotReload    bool `yaml:"hot_reload" mapstructure:"hot_reload"`
	ErrorOverlay bool `yaml:"error_overlay" mapstructure:"error_overlay"`
}

type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			EventPrefix:     "on:",
			MaxIncludeDepth: 16,
			MaxRenderPasses: 8,
		},
		Server: ServerConfig{
			Port:           8080,
			Host:           "localhost",
			AllowedOrigins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
		},
		Components: ComponentsConfig{
			ScanPaths:       []string{"./components"},
			ExcludePatterns: []string{"*_test.wisp.yml", "*.bak"},
		},
		Development: DevelopmentConfig{
			HotReload:    true,
			ErrorOverlay: true,
		},
		Cache: CacheConfig{Path: ".wisp/cache.db"},
		API:   APIConfig{Timeout: 30 * time.Second},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers the defaults on v so that unset keys, environment
// variables and bound flags resolve consistently.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("runtime.event_prefix", d.Runtime.EventPrefix)
	v.SetDefault("runtime.max_include_depth", d.Runtime.MaxIncludeDepth)
	v.SetDefault("runtime.max_render_passes", d.Runtime.MaxRenderPasses)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("components.scan_paths", d.Components.ScanPaths)
	v.SetDefault("components.exclude_patterns", d.Components.ExcludePatterns)
	v.SetDefault("development.hot_reload", d.Development.HotReload)
	v.SetDefault("development.error_overlay", d.Development.ErrorOverlay)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Init prepares v to read .wisp.yml (or file, when given) and WISP_*
// environment overrides. A missing default config file is not an error.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".wisp")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && file == "" {
			return nil
		}
		return errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			"cannot read config file").WithCause(err)
	}
	return nil
}

// Load decodes the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes v, fills zero values from Default and validates.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			"cannot decode configuration").WithCause(err)
	}

	// Slices set through viper.Set are not always decoded
	if v.IsSet("components.scan_paths") && len(config.Components.ScanPaths) == 0 {
		config.Components.ScanPaths = v.GetStringSlice("components.scan_paths")
	}
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	applyDefaults(&config, v)

	if err := validateConfig(&config); err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			"invalid configuration").WithCause(err)
	}
	return &config, nil
}

func applyDefaults(config *Config, v *viper.Viper) {
	d := Default()
	if config.Runtime.EventPrefix == "" {
		config.Runtime.EventPrefix = d.Runtime.EventPrefix
	}
	if config.Runtime.MaxIncludeDepth == 0 {
		config.Runtime.MaxIncludeDepth = d.Runtime.MaxIncludeDepth
	}
	if config.Runtime.MaxRenderPasses == 0 {
		config.Runtime.MaxRenderPasses = d.Runtime.MaxRenderPasses
	}
	if config.Server.Host == "" {
		config.Server.Host = d.Server.Host
	}
	if !v.IsSet("server.port") {
		config.Server.Port = d.Server.Port
	}
	if len(config.Server.AllowedOrigins) == 0 && !v.IsSet("server.allowed_origins") {
		config.Server.AllowedOrigins = d.Server.AllowedOrigins
	}
	if len(config.Components.ScanPaths) == 0 {
		config.Components.ScanPaths = d.Components.ScanPaths
	}
	if len(config.Components.ExcludePatterns) == 0 {
		config.Components.ExcludePatterns = d.Components.ExcludePatterns
	}
	if !v.IsSet("development.hot_reload") {
		config.Development.HotReload = d.Development.HotReload
	}
	if !v.IsSet("development.error_overlay") {
		config.Development.ErrorOverlay = d.Development.ErrorOverlay
	}
	if config.Cache.Path == "" {
		config.Cache.Path = d.Cache.Path
	}
	if config.API.Timeout == 0 {
		config.API.Timeout = d.API.Timeout
	}
	if config.Log.Level == "" {
		config.Log.Level = d.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = d.Log.Format
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateRuntimeConfig(&config.Runtime); err != nil {
		return fmt.Errorf("runtime config: %w", err)
	}
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateComponentsConfig(&config.Components); err != nil {
		return fmt.Errorf("components config: %w", err)
	}
	if err := validateCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if config.API.BaseURL != "" {
		if err := validation.ValidateURL(config.API.BaseURL); err != nil {
			return fmt.Errorf("api config: %w", err)
		}
	}
	return nil
}

func validateRuntimeConfig(config *RuntimeConfig) error {
	if strings.ContainsAny(config.EventPrefix, " \t\n\"'<>=") {
		return fmt.Errorf("event_prefix %q cannot appear in an attribute name", config.EventPrefix)
	}
	if config.MaxIncludeDepth < 1 {
		return fmt.Errorf("max_include_depth must be positive, got %d", config.MaxIncludeDepth)
	}
	if config.MaxRenderPasses < 1 {
		return fmt.Errorf("max_render_passes must be positive, got %d", config.MaxRenderPasses)
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		for _, char := range validation.DangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}
	return nil
}

func validateComponentsConfig(config *ComponentsConfig) error {
	for _, path := range config.ScanPaths {
		if err := validation.ValidatePath(path); err != nil {
			return fmt.Errorf("invalid scan path '%s': %w", path, err)
		}
	}
	for _, pattern := range config.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern '%s'", pattern)
		}
	}
	return nil
}

func validateCacheConfig(config *CacheConfig) error {
	if config.Path == "" {
		return nil
	}
	return validation.ValidatePath(config.Path)
}
