// config_validation.go - Startup validation of the environment.
//
// Every variable is checked before anything starts so a bad deployment
// fails fast with one message per field.
package server

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// ConfigValidationError represents a configuration validation error.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ConfigValidator collects configuration errors.
type ConfigValidator struct {
	errors []ConfigValidationError
}

// NewConfigValidator creates a new configuration validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// AddError adds a validation error.
func (v *ConfigValidator) AddError(field, message string) {
	v.errors = append(v.errors, ConfigValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *ConfigValidator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *ConfigValidator) Errors() []ConfigValidationError {
	return v.errors
}

// ErrorString returns a formatted string of all errors.
func (v *ConfigValidator) ErrorString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidatePort validates that a value is a valid port number. A leading
// colon is accepted.
func (v *ConfigValidator) ValidatePort(key, value string) {
	if value == "" {
		return
	}

	port, err := strconv.Atoi(strings.TrimPrefix(value, ":"))
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}
	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

// ValidateHostPort validates a listen address of the form host:port.
func (v *ConfigValidator) ValidateHostPort(key, value string) {
	if value == "" {
		return
	}
	i := strings.LastIndex(value, ":")
	if i < 0 {
		v.AddError(key, "must be host:port")
		return
	}
	v.ValidatePort(key, value[i+1:])
}

// ValidateSegment validates a single path segment (no separators, no
// parent references, not empty).
func (v *ConfigValidator) ValidateSegment(key, value string) {
	if value == "" {
		return
	}
	if value == "." || strings.Contains(value, "..") || strings.ContainsAny(value, "/\\\x00") {
		v.AddError(key, "must be a single file or folder name")
	}
}

// ValidateURL validates that a value is a valid URL.
func (v *ConfigValidator) ValidateURL(key, value string) {
	if value == "" {
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
	}
}

// ValidateEnum validates that a value is one of allowed options.
func (v *ConfigValidator) ValidateEnum(key, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidatePositiveInt validates that a value is a positive integer.
func (v *ConfigValidator) ValidatePositiveInt(key, value string) {
	if value == "" {
		return
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return
	}
	if num <= 0 {
		v.AddError(key, "must be a positive integer")
	}
}

// ValidateNonNegativeInt validates that a value is zero or a positive integer.
func (v *ConfigValidator) ValidateNonNegativeInt(key, value string) {
	if value == "" {
		return
	}

	num, err := strconv.Atoi(value)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return
	}
	if num < 0 {
		v.AddError(key, "must not be negative")
	}
}

// ValidateEnvironment validates every FFS_* variable and the optional
// collaborator settings.
func ValidateEnvironment() error {
	v := NewConfigValidator()

	v.ValidatePort("FFS_PORT", os.Getenv("FFS_PORT"))
	v.ValidateHostPort("FFS_OPS_ADDR", os.Getenv("FFS_OPS_ADDR"))
	v.ValidateSegment("FFS_UPLOAD_DIR", os.Getenv("FFS_UPLOAD_DIR"))
	v.ValidateSegment("FFS_INDEX", os.Getenv("FFS_INDEX"))
	v.ValidatePositiveInt("FFS_MAX_UPLOAD_BYTES", os.Getenv("FFS_MAX_UPLOAD_BYTES"))
	v.ValidateNonNegativeInt("FFS_RATE_LIMIT", os.Getenv("FFS_RATE_LIMIT"))

	if root := os.Getenv("FFS_ROOT"); root != "" {
		if info, err := os.Stat(root); err != nil {
			v.AddError("FFS_ROOT", "root directory does not exist")
		} else if !info.IsDir() {
			v.AddError("FFS_ROOT", "root must be a directory")
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if !strings.HasPrefix(dbURL, "postgres://") && !strings.HasPrefix(dbURL, "postgresql://") {
			v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
		}
	}

	if endpoint := os.Getenv("FFS_S3_ENDPOINT"); strings.Contains(endpoint, "://") {
		v.ValidateURL("FFS_S3_ENDPOINT", endpoint)
	}

	v.ValidateEnum("FFS_TRUST_PROXY", os.Getenv("FFS_TRUST_PROXY"), []string{"true", "false"})
	v.ValidateEnum("FFS_LOG_FORMAT", os.Getenv("FFS_LOG_FORMAT"), []string{"json", "text"})
	v.ValidateEnum("FFS_LOG_LEVEL", os.Getenv("FFS_LOG_LEVEL"), []string{"debug", "info", "warn", "error"})
	v.ValidateEnum("FFS_ENV", os.Getenv("FFS_ENV"), []string{"development", "production", "staging"})

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}
	return nil
}

// WarnOnOptionalMissingConfig logs which optional collaborators are off.
func WarnOnOptionalMissingConfig() {
	var warnings []string

	if os.Getenv("DATABASE_URL") == "" {
		warnings = append(warnings, "DATABASE_URL not set - audit trail disabled")
	}
	if os.Getenv("FFS_S3_ENDPOINT") == "" {
		warnings = append(warnings, "FFS_S3_ENDPOINT not set - object-store mirror disabled")
	}
	if os.Getenv("FFS_OPS_ADDR") == "" {
		warnings = append(warnings, "FFS_OPS_ADDR not set - probes, metrics and event feed disabled")
	}
	if os.Getenv("FFS_LOG_FORMAT") == "" {
		warnings = append(warnings, "FFS_LOG_FORMAT not set - using text format (consider 'json' for production)")
	}

	if len(warnings) > 0 {
		Info("configuration warnings", map[string]any{
			"count":    len(warnings),
			"warnings": warnings,
		})
	}
}
