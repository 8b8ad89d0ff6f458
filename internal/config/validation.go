package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/conneroisu/wisp/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	write("Validation errors", vr.Errors)
	if vr.HasErrors() && vr.HasWarnings() {
		builder.WriteString("\n")
	}
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateRuntimeConfigDetails(&config.Runtime, result)
	validateServerConfigDetails(&config.Server, result)
	validateComponentsConfigDetails(&config.Components, result)
	validateCacheConfigDetails(&config.Cache, result)
	validateAPIConfigDetails(&config.API, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateRuntimeConfigDetails(config *RuntimeConfig, result *ValidationResult) {
	if err := validateRuntimeConfig(config); err != nil {
		result.addError("runtime", config, err.Error(),
			"Use 'on:' as the event prefix unless it clashes with your markup",
			"Limits must be at least 1")
	}
	if config.MaxIncludeDepth > 64 {
		result.addWarning("runtime.max_include_depth", config.MaxIncludeDepth,
			"deep include nesting makes templates hard to follow",
			"Flatten partials that only forward to other partials")
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	for i, origin := range config.AllowedOrigins {
		if origin == "*" {
			result.addWarning(fmt.Sprintf("server.allowed_origins[%d]", i), origin,
				"wildcard origin lets any site drive preview sessions",
				"List the exact origins that open the preview")
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.addError(fmt.Sprintf("server.allowed_origins[%d]", i), origin,
				"origin must be scheme://host[:port]",
				"Example: http://localhost:8080")
		}
	}
}

func validateComponentsConfigDetails(config *ComponentsConfig, result *ValidationResult) {
	if len(config.ScanPaths) == 0 {
		result.addError("components.scan_paths", config.ScanPaths,
			"no scan paths specified - no components will be found",
			"Add './components' to scan for *.wisp.yml definitions")
	}

	for i, path := range config.ScanPaths {
		field := fmt.Sprintf("components.scan_paths[%d]", i)
		if err := validation.ValidatePath(path); err != nil {
			result.addError(field, path, err.Error(),
				"Use relative paths from project root",
				"Avoid parent directory references (..)")
			continue
		}
		if !pathExists(path) {
			result.addWarning(field, path, "directory does not exist",
				"Create the directory: mkdir -p "+path,
				"Remove the path if not needed")
		}
	}

	if len(config.ExcludePatterns) == 0 {
		result.addWarning("components.exclude_patterns", config.ExcludePatterns,
			"no exclusion patterns - test definitions and backups may be loaded",
			"Add '*_test.wisp.yml' to exclude test definitions")
	}
}

func validateCacheConfigDetails(config *CacheConfig, result *ValidationResult) {
	if err := validateCacheConfig(config); err != nil {
		result.addError("cache.path", config.Path, err.Error(),
			"Use a relative path like '.wisp/cache.db'")
	}
}

func validateAPIConfigDetails(config *APIConfig, result *ValidationResult) {
	if config.BaseURL != "" {
		if err := validation.ValidateURL(config.BaseURL); err != nil {
			result.addError("api.base_url", config.BaseURL, err.Error(),
				"Example: https://erp.example.com")
		}
	}
	if config.Timeout < 0 {
		result.addError("api.timeout", config.Timeout, "timeout cannot be negative")
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if config.Level != "" && !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(config.Level)) {
		result.addWarning("log.level", config.Level, "unknown log level, info is used",
			"Use one of debug, info, warn, error")
	}
	if config.Format != "" && !contains([]string{"text", "json"}, config.Format) {
		result.addWarning("log.format", config.Format, "unknown log format, text is used",
			"Use 'text' or 'json'")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	for _, char := range validation.DangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
