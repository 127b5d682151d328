package config

import (
	"fmt"
	"net/url"
	"strings"

	"gatekeep/internal/loopback"
	"gatekeep/pkg/logging"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add appends a validation error.
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// Fields returns the names of the offending fields.
func (ve ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(ve))
	for _, err := range ve {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validate checks everything the session stack needs and reports every
// problem in a single ConfigurationError. Interactive sign-in settings are
// only checked when oauth.client_id is set.
func (c Config) Validate() error {
	var errs ValidationErrors

	validateHTTPURL(&errs, "provider.url", c.Provider.URL, true)
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		errs.Add("provider.api_key", "is required")
	}
	if c.Provider.Timeout < 0 {
		errs.Add("provider.timeout", "must not be negative")
	}

	if c.OAuth.Enabled() {
		if strings.TrimSpace(c.OAuth.ClientSecret) == "" {
			errs.Add("oauth.client_secret", "is required when oauth.client_id is set")
		}
		if _, err := c.RedirectURI(); err != nil {
			errs.Add("oauth.redirect_uri", err.Error())
		}
		validateHTTPURL(&errs, "oauth.auth_url", c.OAuth.AuthURL, false)
		validateHTTPURL(&errs, "oauth.token_url", c.OAuth.TokenURL, false)
		if c.OAuth.VerifyIDToken {
			validateHTTPURL(&errs, "oauth.issuer", c.OAuth.Issuer, false)
			validateHTTPURL(&errs, "oauth.jwks_url", c.OAuth.JWKSURL, false)
		}
		if strings.TrimSpace(c.OAuth.Provider) == "" {
			errs.Add("oauth.provider", "is required when oauth.client_id is set")
		}
		if c.OAuth.CallbackTimeout < 0 {
			errs.Add("oauth.callback_timeout", "must not be negative")
		}
	}

	if c.Session.SafetyMargin < 0 {
		errs.Add("session.safety_margin", "must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.Add("logging.level", "must be one of: debug, info, warn, error")
	}
	switch logging.Format(c.Logging.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs.Add("logging.format", "must be one of: text, json")
	}

	if !errs.HasErrors() {
		return nil
	}
	return &ConfigurationError{
		ErrorType: "validation",
		Message:   fmt.Sprintf("%d invalid field(s): %s", len(errs), strings.Join(errs.Fields(), ", ")),
		Fields:    errs,
		Suggestions: []string{
			"Set the fields in config.yaml or through the GATEKEEP_* environment variables",
		},
	}
}

// RedirectURI parses oauth.redirect_uri and checks that it is a plain-http
// loopback URI with an explicit port.
func (c Config) RedirectURI() (*url.URL, error) {
	u, _, err := loopback.ParseRedirectURI(c.OAuth.RedirectURI)
	return u, err
}

func validateHTTPURL(errs *ValidationErrors, field, value string, required bool) {
	if strings.TrimSpace(value) == "" {
		if required {
			errs.Add(field, "is required")
		}
		return
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(field, "must be an absolute http(s) URL")
	}
}
