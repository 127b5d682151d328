package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatekeep/internal/autherr"
	"gatekeep/internal/credential"
	"gatekeep/pkg/logging"
)

const (
	// DefaultHTTPTimeout bounds every request, including refreshes that are
	// detached from the caller's context.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultIDTokenProvider is the provider name sent with id_token grants.
	DefaultIDTokenProvider = "google"

	apiPrefix       = "/auth/v1"
	maxResponseSize = 1 << 20
	clientInfo      = "gatekeep-go"
)

// Clock is the time source used to turn expires_in into an absolute expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Client talks to the identity API. It is safe for concurrent use.
type Client struct {
	baseURL         *url.URL
	apiKey          string
	httpClient      *http.Client
	clock           Clock
	idTokenProvider string
	exchanger       *CodeExchanger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock sets the clock used to compute credential expiry.
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithIDTokenProvider sets the provider name sent with id_token grants.
func WithIDTokenProvider(provider string) ClientOption {
	return func(c *Client) {
		if provider != "" {
			c.idTokenProvider = provider
		}
	}
}

// WithCodeExchanger enables ExchangeAuthorizationCode.
func WithCodeExchanger(exchanger *CodeExchanger) ClientOption {
	return func(c *Client) {
		c.exchanger = exchanger
	}
}

// NewClient creates a client for the identity API at providerURL
// (e.g. https://xyz.supabase.co) authenticating with apiKey.
func NewClient(providerURL, apiKey string, opts ...ClientOption) (*Client, error) {
	if providerURL == "" {
		return nil, autherr.NewValidationError("provider URL", "must not be empty")
	}
	if apiKey == "" {
		return nil, autherr.NewValidationError("API key", "must not be empty")
	}
	u, err := url.Parse(strings.TrimSuffix(providerURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, autherr.NewValidationError("provider URL", fmt.Sprintf("%q is not an http(s) URL", providerURL))
	}

	c := &Client{
		baseURL:         u,
		apiKey:          apiKey,
		httpClient:      &http.Client{Timeout: DefaultHTTPTimeout},
		clock:           systemClock{},
		idTokenProvider: DefaultIDTokenProvider,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CodeExchanger returns the configured exchanger, or nil.
func (c *Client) CodeExchanger() *CodeExchanger {
	return c.exchanger
}

// SignUp registers a new account. When the provider withholds the session
// until the email address is confirmed, the error wraps
// autherr.ErrConfirmationPending.
func (c *Client) SignUp(ctx context.Context, email, password string, profile credential.Profile) (*credential.Credential, error) {
	const op = "sign up"
	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}

	var resp sessionResponse
	body := signUpRequest{Email: email, Password: password, Data: profile}
	if err := c.do(ctx, op, http.MethodPost, "/signup", nil, "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" && (resp.ID != "" || resp.User != nil) {
		logging.Info("Identity", "Account %s created, email confirmation pending", email)
		return nil, fmt.Errorf("%s: %w", op, autherr.ErrConfirmationPending)
	}
	return c.credentialFrom(op, &resp)
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*credential.Credential, error) {
	const op = "sign in"
	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}
	return c.grant(ctx, op, "password", passwordRequest{Email: email, Password: password})
}

// ExchangeOptions carries the per-attempt values bound into the
// authorization request.
type ExchangeOptions struct {
	// CodeVerifier is the PKCE verifier whose challenge was sent.
	CodeVerifier string

	// Nonce is the raw nonce whose hash was sent.
	Nonce string
}

// ExchangeAuthorizationCode trades a one-time authorization code for a
// credential: the code is exchanged at the OAuth token endpoint for an
// id_token, which is then exchanged with the identity API.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string, opts ExchangeOptions) (*credential.Credential, error) {
	if code == "" {
		return nil, autherr.NewValidationError("authorization code", "must not be empty")
	}
	if c.exchanger == nil {
		return nil, autherr.NewValidationError("oauth", "interactive sign-in is not configured")
	}

	idToken, err := c.exchanger.Exchange(ctx, code, opts.CodeVerifier, opts.Nonce)
	if err != nil {
		return nil, err
	}
	return c.ExchangeIDToken(ctx, idToken, opts.Nonce)
}

// ExchangeIDToken signs in with an id_token issued by the external provider.
// nonce is the raw nonce the token was requested with, or empty.
func (c *Client) ExchangeIDToken(ctx context.Context, idToken, nonce string) (*credential.Credential, error) {
	if idToken == "" {
		return nil, autherr.NewValidationError("id token", "must not be empty")
	}
	body := idTokenRequest{IDToken: idToken, Provider: c.idTokenProvider, Nonce: nonce}
	return c.grant(ctx, "exchange id token", "id_token", body)
}

// Refresh obtains a new credential with a refresh token. A rejected token is
// a terminal ProviderError; a network failure is a TransportError. The
// provider may omit the user object, so profile fields can be empty.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*credential.Credential, error) {
	if refreshToken == "" {
		return nil, autherr.NewValidationError("refresh token", "must not be empty")
	}
	return c.grant(ctx, "refresh", "refresh_token", refreshRequest{RefreshToken: refreshToken})
}

// SignOut ends the provider session. A session the provider no longer knows
// about counts as signed out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	const op = "sign out"
	if accessToken == "" {
		return autherr.NewValidationError("access token", "must not be empty")
	}

	err := c.do(ctx, op, http.MethodPost, "/logout", nil, accessToken, nil, nil)
	var provErr *autherr.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			logging.Debug("Identity", "Session already ended at provider (status %d)", provErr.StatusCode)
			return nil
		}
	}
	return err
}

// RequestPasswordReset asks the provider to email a recovery link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return autherr.NewValidationError("email", "must not be empty")
	}
	return c.do(ctx, "request password reset", http.MethodPost, "/recover", nil, "", emailRequest{Email: email}, nil)
}

// UpdatePassword sets a new password for the user owning accessToken.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	if accessToken == "" {
		return autherr.NewValidationError("access token", "must not be empty")
	}
	if newPassword == "" {
		return autherr.NewValidationError("password", "must not be empty")
	}
	var user userResponse
	return c.do(ctx, "update password", http.MethodPut, "/user", nil, accessToken, updateUserRequest{Password: newPassword}, &user)
}

// ResendVerification re-sends the sign-up confirmation email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	if email == "" {
		return autherr.NewValidationError("email", "must not be empty")
	}
	return c.do(ctx, "resend verification", http.MethodPost, "/resend", nil, "", otpRequest{Type: "signup", Email: email}, nil)
}

// VerifyEmail confirms a sign-up with the one-time token from the
// confirmation email. It returns the session the provider opens on success,
// or nil if it opened none.
func (c *Client) VerifyEmail(ctx context.Context, email, token string) (*credential.Credential, error) {
	const op = "verify email"
	if email == "" {
		return nil, autherr.NewValidationError("email", "must not be empty")
	}
	if token == "" {
		return nil, autherr.NewValidationError("verification token", "must not be empty")
	}

	var resp sessionResponse
	if err := c.do(ctx, op, http.MethodPost, "/verify", nil, "", otpRequest{Type: "signup", Email: email, Token: token}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, nil
	}
	return c.credentialFrom(op, &resp)
}

func requireCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return autherr.NewValidationError("email", "must not be empty")
	}
	if password == "" {
		return autherr.NewValidationError("password", "must not be empty")
	}
	return nil
}

func (c *Client) grant(ctx context.Context, op, grantType string, body interface{}) (*credential.Credential, error) {
	var resp sessionResponse
	query := url.Values{"grant_type": {grantType}}
	if err := c.do(ctx, op, http.MethodPost, "/token", query, "", body, &resp); err != nil {
		return nil, err
	}
	return c.credentialFrom(op, &resp)
}

func (c *Client) credentialFrom(op string, resp *sessionResponse) (*credential.Credential, error) {
	cred, err := resp.toCredential(c.clock.Now())
	if err != nil {
		return nil, &autherr.DecodeError{Op: op, Err: err}
	}
	if cred.Degraded() {
		logging.Warn("Identity", "%s: provider returned no refresh token", op)
	}
	return cred, nil
}

// do performs one request against the identity API. A non-empty bearer is sent
// as the user's access token; otherwise the API key doubles as bearer.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, bearer string, in, out interface{}) error {
	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + apiPrefix + path
	endpoint.RawQuery = query.Encode()

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Info", clientInfo)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Debug("Identity", "%s %s failed after %s: %v", method, endpoint.Path, time.Since(start), err)
		return &autherr.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &autherr.TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	logging.Debug("Identity", "%s %s -> %d (%s)", method, endpoint.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, message := parseErrorBody(body)
		return &autherr.ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Code:       code,
			Message:    message,
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		if out != nil {
			return &autherr.DecodeError{Op: op, Err: errors.New("empty response body")}
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &autherr.DecodeError{Op: op, Err: err}
	}
	return nil
}
