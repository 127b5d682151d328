package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConfigurationError reports a configuration file that cannot be read or
// decoded, or a configuration that failed validation.
type ConfigurationError struct {
	FilePath    string           // File that caused the error, if any
	ErrorType   string           // "io", "parse" or "validation"
	Message     string           // Human-readable summary
	Details     string           // Underlying error text
	Fields      ValidationErrors // Offending fields for validation errors
	Suggestions []string         // Actionable fixes
}

// Error implements the error interface.
func (ce *ConfigurationError) Error() string {
	where := "configuration"
	if ce.FilePath != "" {
		where = filepath.Base(ce.FilePath)
	}
	if len(ce.Fields) > 0 {
		return fmt.Sprintf("%s: %s", where, ce.Fields.Error())
	}
	if ce.Details != "" {
		return fmt.Sprintf("%s: %s: %s", where, ce.Message, ce.Details)
	}
	return fmt.Sprintf("%s: %s", where, ce.Message)
}

// DetailedError returns a multi-line report with every field and suggestion.
func (ce *ConfigurationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Configuration error: %s", ce.Message))
	if ce.FilePath != "" {
		parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	}
	if ce.ErrorType != "" {
		parts = append(parts, fmt.Sprintf("  Type: %s", ce.ErrorType))
	}
	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}
	for _, f := range ce.Fields {
		parts = append(parts, fmt.Sprintf("  - %s", f.Error()))
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}
