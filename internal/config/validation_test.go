package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := GetDefaultConfig()
	cfg.Provider.URL = "https://project.example.co"
	cfg.Provider.APIKey = "anon"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	withOAuth := validConfig()
	withOAuth.OAuth.ClientID = "client"
	withOAuth.OAuth.ClientSecret = "secret"
	assert.NoError(t, withOAuth.Validate())
}

func TestValidate_ReportsEveryField(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Provider.URL = "ftp://nowhere"
	cfg.OAuth.ClientID = "client"
	cfg.OAuth.RedirectURI = "https://example.com/cb"
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "validation", ce.ErrorType)
	assert.ElementsMatch(t, []string{
		"provider.url",
		"provider.api_key",
		"oauth.client_secret",
		"oauth.redirect_uri",
		"logging.level",
		"logging.format",
	}, ce.Fields.Fields())
	assert.Contains(t, ce.Error(), "provider.api_key")
	assert.Contains(t, ce.DetailedError(), "Suggestions")
}

func TestValidate_OAuthSkippedWithoutClientID(t *testing.T) {
	cfg := validConfig()
	cfg.OAuth.RedirectURI = "not a uri"
	cfg.OAuth.ClientSecret = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_IssuerOnlyCheckedWhenVerifying(t *testing.T) {
	cfg := validConfig()
	cfg.OAuth.ClientID = "client"
	cfg.OAuth.ClientSecret = "secret"
	cfg.OAuth.Issuer = ""
	cfg.OAuth.JWKSURL = "::"

	cfg.OAuth.VerifyIDToken = false
	assert.NoError(t, cfg.Validate())

	cfg.OAuth.VerifyIDToken = true
	var ce *ConfigurationError
	require.True(t, errors.As(cfg.Validate(), &ce))
	assert.Equal(t, []string{"oauth.jwks_url"}, ce.Fields.Fields())
}

func TestRedirectURI(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{"http://localhost:53682/callback", false},
		{"http://127.0.0.1:8080/cb", false},
		{"http://[::1]:8080/cb", false},
		{"https://localhost:8080/cb", true},
		{"http://localhost/cb", true},
		{"http://example.com:8080/cb", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			cfg := validConfig()
			cfg.OAuth.RedirectURI = tt.uri
			u, err := cfg.RedirectURI()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http", u.Scheme)
		})
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("a", "is required")
	assert.Equal(t, "field 'a': is required", errs.Error())

	errs.Add("b", "is wrong")
	assert.Equal(t, "validation failed: field 'a': is required; field 'b': is wrong", errs.Error())
}
