package config

import "time"

// Config is the complete gatekeep configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig locates the identity provider's REST API.
type ProviderConfig struct {
	// URL is the project base URL; the client appends /auth/v1/...
	URL string `yaml:"url"`

	// APIKey is the public (anon) key sent as the apikey header.
	APIKey string `yaml:"api_key"`

	// Timeout bounds every request to the provider.
	Timeout time.Duration `yaml:"timeout"`
}

// OAuthConfig configures the interactive browser sign-in. Interactive
// sign-in is disabled while ClientID is empty.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	Issuer       string   `yaml:"issuer"`
	JWKSURL      string   `yaml:"jwks_url"`
	Scopes       []string `yaml:"scopes"`

	// Provider is the id-token provider name sent to the identity API.
	Provider string `yaml:"provider"`

	// CallbackTimeout is how long the loopback listener waits for the
	// browser redirect.
	CallbackTimeout time.Duration `yaml:"callback_timeout"`

	// VerifyIDToken checks the id_token signature, audience and nonce
	// before handing it to the identity provider.
	VerifyIDToken bool `yaml:"verify_id_token"`
}

// Enabled reports whether interactive sign-in is configured.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != ""
}

// SessionConfig controls the session manager and its credential file.
type SessionConfig struct {
	SafetyMargin   time.Duration `yaml:"safety_margin"`
	CredentialFile string        `yaml:"credential_file"`

	// Watch reloads the credential when another process changes the file.
	Watch bool `yaml:"watch"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
