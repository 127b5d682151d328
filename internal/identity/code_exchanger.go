package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"gatekeep/internal/autherr"
	"gatekeep/pkg/logging"
)

// Google endpoints used when OAuthConfig leaves them empty.
const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DefaultIssuer   = "https://accounts.google.com"
	DefaultJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

// DefaultScopes are requested when OAuthConfig.Scopes is empty.
var DefaultScopes = []string{oidc.ScopeOpenID, "email", "profile"}

// OAuthConfig describes the confidential OAuth client used for interactive
// sign-in.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	// VerifyIDToken enables signature, issuer, audience, expiry and nonce
	// checks on the returned id_token.
	VerifyIDToken bool
	Issuer        string
	JWKSURL       string

	// KeySet overrides the remote JWKS, e.g. with an oidc.StaticKeySet.
	KeySet oidc.KeySet
}

// CodeExchanger performs the OAuth leg of interactive sign-in.
type CodeExchanger struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// ExchangerOption configures a CodeExchanger.
type ExchangerOption func(*exchangerOptions)

type exchangerOptions struct {
	httpClient *http.Client
	clock      Clock
}

// WithExchangerHTTPClient sets the HTTP client for token and JWKS requests.
func WithExchangerHTTPClient(httpClient *http.Client) ExchangerOption {
	return func(o *exchangerOptions) {
		o.httpClient = httpClient
	}
}

// WithExchangerClock sets the clock used for id_token expiry checks.
func WithExchangerClock(clock Clock) ExchangerOption {
	return func(o *exchangerOptions) {
		o.clock = clock
	}
}

// NewCodeExchanger validates cfg and builds an exchanger.
func NewCodeExchanger(cfg OAuthConfig, opts ...ExchangerOption) (*CodeExchanger, error) {
	if cfg.ClientID == "" {
		return nil, autherr.NewValidationError("oauth client id", "must not be empty")
	}
	if cfg.ClientSecret == "" {
		return nil, autherr.NewValidationError("oauth client secret", "must not be empty")
	}
	if cfg.RedirectURL == "" {
		return nil, autherr.NewValidationError("oauth redirect URI", "must not be empty")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	o := exchangerOptions{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &CodeExchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: o.httpClient,
	}

	if cfg.VerifyIDToken {
		if cfg.Issuer == "" {
			cfg.Issuer = DefaultIssuer
		}
		keySet := cfg.KeySet
		if keySet == nil {
			jwksURL := cfg.JWKSURL
			if jwksURL == "" {
				jwksURL = DefaultJWKSURL
			}
			keySet = oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), o.httpClient), jwksURL)
		}
		e.verifier = oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{
			ClientID: cfg.ClientID,
			Now:      o.clock.Now,
		})
	}

	return e, nil
}

// RedirectURL returns the configured redirect URI.
func (e *CodeExchanger) RedirectURL() string {
	return e.oauth.RedirectURL
}

// AuthCodeURL builds the authorization URL for one attempt. The raw nonce is
// sent hashed; codeVerifier is sent as an S256 challenge.
func (e *CodeExchanger) AuthCodeURL(state, nonce, codeVerifier string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	if nonce != "" {
		opts = append(opts, oidc.Nonce(HashNonce(nonce)))
	}
	return e.oauth.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for the provider's raw id_token.
func (e *CodeExchanger) Exchange(ctx context.Context, code, codeVerifier, nonce string) (string, error) {
	const op = "exchange authorization code"

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := e.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return "", classifyOAuthError(op, err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return "", &autherr.DecodeError{Op: op, Err: errors.New("token response has no id_token")}
	}

	if e.verifier != nil {
		idToken, err := e.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return "", &autherr.ProviderError{
				Op:         "verify id token",
				StatusCode: http.StatusUnauthorized,
				Code:       "invalid_id_token",
				Message:    err.Error(),
			}
		}
		if nonce != "" && idToken.Nonce != HashNonce(nonce) {
			return "", &autherr.ProviderError{
				Op:         "verify id token",
				StatusCode: http.StatusUnauthorized,
				Code:       "invalid_nonce",
				Message:    "id_token nonce does not match the sign-in attempt",
			}
		}
		logging.Debug("Identity", "Verified id_token for subject %s", idToken.Subject)
	}

	return rawIDToken, nil
}

// HashNonce returns the hex SHA-256 of a raw nonce. The hash goes to the
// authorization server; the raw value goes to the identity API, which
// hashes it again to compare.
func HashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}

func classifyOAuthError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &autherr.ProviderError{
			Op:         op,
			StatusCode: status,
			Body:       string(retrieveErr.Body),
			Code:       retrieveErr.ErrorCode,
			Message:    retrieveErr.ErrorDescription,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &autherr.TransportError{Op: op, Err: err}
	}
	return &autherr.DecodeError{Op: op, Err: fmt.Errorf("unexpected token response: %w", err)}
}
