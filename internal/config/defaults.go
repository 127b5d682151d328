package config

import (
	"time"

	"gatekeep/internal/identity"
	"gatekeep/internal/loopback"
	"gatekeep/internal/session"
)

const (
	// DefaultIDTokenProvider is the provider name used for id-token sign-in.
	DefaultIDTokenProvider = "google"

	// DefaultProviderTimeout bounds requests to the identity provider.
	DefaultProviderTimeout = 30 * time.Second
)

// GetDefaultConfig returns the configuration used when no file is present.
func GetDefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Timeout: DefaultProviderTimeout,
		},
		OAuth: OAuthConfig{
			RedirectURI:     loopback.DefaultRedirectURI,
			AuthURL:         identity.DefaultAuthURL,
			TokenURL:        identity.DefaultTokenURL,
			Issuer:          identity.DefaultIssuer,
			JWKSURL:         identity.DefaultJWKSURL,
			Scopes:          append([]string(nil), identity.DefaultScopes...),
			Provider:        DefaultIDTokenProvider,
			CallbackTimeout: loopback.DefaultTimeout,
			VerifyIDToken:   true,
		},
		Session: SessionConfig{
			SafetyMargin: session.DefaultSafetyMargin,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
