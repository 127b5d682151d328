package mock

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Endpoint names used for call counting and failure injection.
const (
	EndpointSignUp     = "signup"
	EndpointPassword   = "password"
	EndpointRefresh    = "refresh_token"
	EndpointIDToken    = "id_token"
	EndpointLogout     = "logout"
	EndpointRecover    = "recover"
	EndpointUpdateUser = "update_user"
	EndpointVerify     = "verify"
	EndpointResend     = "resend"
	EndpointAuthorize  = "authorize"
	EndpointOAuthToken = "oauth_token"
)

// accessTokenSecret signs the HS256 access tokens handed out by the stub.
// Clients never verify them; they only read claims.
const accessTokenSecret = "mock-access-token-secret"

// IDTokenClaims describes an id_token minted by the stub OAuth token endpoint.
type IDTokenClaims struct {
	Issuer    string
	Subject   string
	Audience  string
	Email     string
	Name      string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IdentityProviderConfig configures the stub identity provider.
type IdentityProviderConfig struct {
	// APIKey is the expected value of the apikey header. Defaults to "test-anon-key".
	APIKey string

	// ClientID and ClientSecret are the expected OAuth client credentials.
	ClientID     string
	ClientSecret string

	// IDTokenProvider is the provider name accepted by the id_token grant.
	// Defaults to "google".
	IDTokenProvider string

	// TokenLifetime is reported as expires_in. Defaults to one hour.
	TokenLifetime time.Duration

	// Clock drives issued-at and expiry claims. Defaults to RealClock.
	Clock Clock

	// RequireEmailConfirmation makes sign-up return a bare user until the
	// address is verified.
	RequireEmailConfirmation bool

	// VerificationToken is the only OTP the verify endpoint accepts.
	// Defaults to "123456".
	VerificationToken string

	// AuthorizeEmail is the user the authorize endpoint signs in automatically.
	AuthorizeEmail string

	// AuthorizeError, when set, makes the authorize endpoint redirect back
	// with error=AuthorizeError instead of a code.
	AuthorizeError string

	// Issuer is the iss claim of minted id_tokens. Defaults to the server URL.
	Issuer string

	// SignIDToken overrides id_token minting, e.g. to sign with an RSA key
	// that a verifier under test trusts. Defaults to unverifiable HS256 tokens.
	SignIDToken func(claims IDTokenClaims) (string, error)
}

// Failure is a canned answer injected in place of an endpoint's behavior.
type Failure struct {
	// Status and Body are written as the response.
	Status int
	Body   string

	// Drop closes the connection without a response.
	Drop bool
}

type stubUser struct {
	id        string
	email     string
	password  string
	fullName  string
	confirmed bool
}

type stubSession struct {
	email        string
	refreshToken string
}

type pendingCode struct {
	email         string
	nonce         string
	redirectURI   string
	codeChallenge string
}

// IdentityProvider is an httptest-backed stand-in for a GoTrue-style
// identity API plus the OAuth authorize and token endpoints of an external
// identity provider.
type IdentityProvider struct {
	config IdentityProviderConfig
	server *httptest.Server

	mu            sync.Mutex
	users         map[string]*stubUser
	sessions      map[string]*stubSession // by access token
	refreshTokens map[string]string       // refresh token -> access token
	codes         map[string]*pendingCode
	idTokens      map[string]string // id_token -> email
	calls         map[string]int
	failures      map[string][]Failure
	headers       map[string]http.Header
	bodies        map[string]map[string]interface{}
	refreshGate   chan struct{}
	releaseGate   func()
}

// NewIdentityProvider starts a stub provider. Call Close when done.
func NewIdentityProvider(config IdentityProviderConfig) *IdentityProvider {
	if config.APIKey == "" {
		config.APIKey = "test-anon-key"
	}
	if config.ClientID == "" {
		config.ClientID = "test-client"
	}
	if config.ClientSecret == "" {
		config.ClientSecret = "test-secret"
	}
	if config.IDTokenProvider == "" {
		config.IDTokenProvider = "google"
	}
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.VerificationToken == "" {
		config.VerificationToken = "123456"
	}
	if config.AuthorizeEmail == "" {
		config.AuthorizeEmail = "oauth@example.com"
	}

	p := &IdentityProvider{
		config:        config,
		users:         make(map[string]*stubUser),
		sessions:      make(map[string]*stubSession),
		refreshTokens: make(map[string]string),
		codes:         make(map[string]*pendingCode),
		idTokens:      make(map[string]string),
		calls:         make(map[string]int),
		failures:      make(map[string][]Failure),
		headers:       make(map[string]http.Header),
		bodies:        make(map[string]map[string]interface{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", p.apiHandler(EndpointSignUp, http.MethodPost, p.handleSignUp))
	mux.HandleFunc("/auth/v1/token", p.handleToken)
	mux.HandleFunc("/auth/v1/logout", p.apiHandler(EndpointLogout, http.MethodPost, p.handleLogout))
	mux.HandleFunc("/auth/v1/recover", p.apiHandler(EndpointRecover, http.MethodPost, p.handleRecover))
	mux.HandleFunc("/auth/v1/user", p.apiHandler(EndpointUpdateUser, http.MethodPut, p.handleUpdateUser))
	mux.HandleFunc("/auth/v1/verify", p.apiHandler(EndpointVerify, http.MethodPost, p.handleVerify))
	mux.HandleFunc("/auth/v1/resend", p.apiHandler(EndpointResend, http.MethodPost, p.handleResend))
	mux.HandleFunc("/oauth/authorize", p.handleAuthorize)
	mux.HandleFunc("/oauth/token", p.handleOAuthToken)

	p.server = httptest.NewServer(mux)
	if p.config.Issuer == "" {
		p.config.Issuer = p.server.URL
	}
	return p
}

// Close shuts the server down.
func (p *IdentityProvider) Close() {
	p.mu.Lock()
	release := p.releaseGate
	p.mu.Unlock()
	if release != nil {
		release()
	}
	p.server.Close()
}

// URL is the base URL of the identity API (without /auth/v1).
func (p *IdentityProvider) URL() string { return p.server.URL }

// APIKey returns the expected apikey header value.
func (p *IdentityProvider) APIKey() string { return p.config.APIKey }

// ClientID returns the expected OAuth client id.
func (p *IdentityProvider) ClientID() string { return p.config.ClientID }

// ClientSecret returns the expected OAuth client secret.
func (p *IdentityProvider) ClientSecret() string { return p.config.ClientSecret }

// Issuer returns the iss claim of minted id_tokens.
func (p *IdentityProvider) Issuer() string { return p.config.Issuer }

// AuthorizeURL is the OAuth authorization endpoint.
func (p *IdentityProvider) AuthorizeURL() string { return p.server.URL + "/oauth/authorize" }

// TokenURL is the OAuth token endpoint.
func (p *IdentityProvider) TokenURL() string { return p.server.URL + "/oauth/token" }

// AddUser registers a confirmed user and returns its id.
func (p *IdentityProvider) AddUser(email, password, fullName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := &stubUser{id: uuid.NewString(), email: email, password: password, fullName: fullName, confirmed: true}
	p.users[email] = u
	return u.id
}

// Calls returns how many requests reached endpoint.
func (p *IdentityProvider) Calls(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[endpoint]
}

// LastHeader returns the headers of the most recent request to endpoint.
func (p *IdentityProvider) LastHeader(endpoint string) http.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers[endpoint].Clone()
}

// LastBody returns the decoded JSON or form body of the most recent request
// to endpoint.
func (p *IdentityProvider) LastBody(endpoint string) map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[endpoint]
}

// FailNext queues a one-shot failure for endpoint.
func (p *IdentityProvider) FailNext(endpoint string, f Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[endpoint] = append(p.failures[endpoint], f)
}

// BlockRefresh holds every refresh request until the returned release
// function is called.
func (p *IdentityProvider) BlockRefresh() (release func()) {
	gate := make(chan struct{})
	var once sync.Once
	release = func() {
		once.Do(func() {
			p.mu.Lock()
			if p.refreshGate == gate {
				p.refreshGate = nil
				p.releaseGate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}

	p.mu.Lock()
	p.refreshGate = gate
	p.releaseGate = release
	p.mu.Unlock()
	return release
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (p *IdentityProvider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = make(map[string]string)
}

// SessionActive reports whether accessToken belongs to a live session.
func (p *IdentityProvider) SessionActive(accessToken string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[accessToken]
	return ok
}

// IssueAuthorizationCode creates a code as if email had approved the
// authorization request, bypassing the authorize endpoint.
func (p *IdentityProvider) IssueAuthorizationCode(email, nonce, redirectURI, codeChallenge string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	code := "code-" + uuid.NewString()
	p.codes[code] = &pendingCode{email: email, nonce: nonce, redirectURI: redirectURI, codeChallenge: codeChallenge}
	return code
}

// RegisterIDToken makes the id_token grant accept idToken for email.
func (p *IdentityProvider) RegisterIDToken(idToken, email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokens[idToken] = email
}

// record counts the call, captures headers and body, and pops a queued failure.
func (p *IdentityProvider) record(endpoint string, r *http.Request, body map[string]interface{}) (Failure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[endpoint]++
	p.headers[endpoint] = r.Header.Clone()
	p.bodies[endpoint] = body

	queue := p.failures[endpoint]
	if len(queue) == 0 {
		return Failure{}, false
	}
	p.failures[endpoint] = queue[1:]
	return queue[0], true
}

func writeFailure(w http.ResponseWriter, f Failure) {
	if f.Drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.Status)
	_, _ = w.Write([]byte(f.Body))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError writes the error document shape of the identity API.
func apiError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]interface{}{"code": status, "error_code": code, "msg": msg})
}

// grantError writes the OAuth-style error document of the token endpoints.
func grantError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func decodeBody(r *http.Request) map[string]interface{} {
	body := map[string]interface{}{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func str(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

type apiFunc func(w http.ResponseWriter, r *http.Request, body map[string]interface{})

func (p *IdentityProvider) apiHandler(endpoint, method string, fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(r)
		if f, ok := p.record(endpoint, r, body); ok {
			writeFailure(w, f)
			return
		}
		if r.Method != method {
			apiError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if r.Header.Get("apikey") != p.config.APIKey {
			apiError(w, http.StatusUnauthorized, "no_api_key", "Invalid API key")
			return
		}
		fn(w, r, body)
	}
}

func (p *IdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	grantType := r.URL.Query().Get("grant_type")
	endpoint := grantType
	switch grantType {
	case EndpointPassword, EndpointRefresh, EndpointIDToken:
	default:
		endpoint = "token"
	}

	p.apiHandler(endpoint, http.MethodPost, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		switch grantType {
		case EndpointPassword:
			p.handlePasswordGrant(w, body)
		case EndpointRefresh:
			p.handleRefreshGrant(w, body)
		case EndpointIDToken:
			p.handleIDTokenGrant(w, body)
		default:
			grantError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
		}
	})(w, r)
}

func (p *IdentityProvider) handleSignUp(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
	email, password := str(body, "email"), str(body, "password")
	if email == "" || password == "" {
		apiError(w, http.StatusUnprocessableEntity, "validation_failed", "Signup requires a valid password")
		return
	}
	if len(password) < 6 {
		apiError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	var fullName string
	if data, ok := body["data"].(map[string]interface{}); ok {
		fullName = str(data, "full_name")
	}

	p.mu.Lock()
	if _, exists := p.users[email]; exists {
		p.mu.Unlock()
		apiError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	u := &stubUser{
		id:        uuid.NewString(),
		email:     email,
		password:  password,
		fullName:  fullName,
		confirmed: !p.config.RequireEmailConfirmation,
	}
	p.users[email] = u
	p.mu.Unlock()

	if !u.confirmed {
		writeJSON(w, http.StatusOK, userJSON(u))
		return
	}
	writeJSON(w, http.StatusOK, p.newSession(u))
}

func (p *IdentityProvider) handlePasswordGrant(w http.ResponseWriter, body map[string]interface{}) {
	email, password := str(body, "email"), str(body, "password")

	p.mu.Lock()
	u, ok := p.users[email]
	p.mu.Unlock()

	if !ok || u.password != password {
		grantError(w, http.StatusBadRequest, "invalid_grant", "Invalid login credentials")
		return
	}
	if !u.confirmed {
		grantError(w, http.StatusBadRequest, "invalid_grant", "Email not confirmed")
		return
	}
	writeJSON(w, http.StatusOK, p.newSession(u))
}

func (p *IdentityProvider) handleRefreshGrant(w http.ResponseWriter, body map[string]interface{}) {
	p.mu.Lock()
	gate := p.refreshGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}

	refreshToken := str(body, "refresh_token")

	p.mu.Lock()
	accessToken, ok := p.refreshTokens[refreshToken]
	var u *stubUser
	if ok {
		delete(p.refreshTokens, refreshToken)
		if sess, live := p.sessions[accessToken]; live {
			u = p.users[sess.email]
			delete(p.sessions, accessToken)
		}
	}
	p.mu.Unlock()

	if u == nil {
		grantError(w, http.StatusBadRequest, "invalid_grant", "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	writeJSON(w, http.StatusOK, p.newSession(u))
}

func (p *IdentityProvider) handleIDTokenGrant(w http.ResponseWriter, body map[string]interface{}) {
	if str(body, "provider") != p.config.IDTokenProvider {
		grantError(w, http.StatusBadRequest, "invalid_request", "Unsupported provider")
		return
	}

	p.mu.Lock()
	email, ok := p.idTokens[str(body, "id_token")]
	var u *stubUser
	if ok {
		u = p.users[email]
		if u == nil {
			u = &stubUser{id: uuid.NewString(), email: email, confirmed: true}
			p.users[email] = u
		}
	}
	p.mu.Unlock()

	if u == nil {
		grantError(w, http.StatusBadRequest, "invalid_grant", "Bad ID token")
		return
	}
	writeJSON(w, http.StatusOK, p.newSession(u))
}

func (p *IdentityProvider) handleLogout(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
	token := bearer(r)

	p.mu.Lock()
	sess, ok := p.sessions[token]
	if ok {
		delete(p.sessions, token)
		delete(p.refreshTokens, sess.refreshToken)
	}
	p.mu.Unlock()

	if !ok {
		apiError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *IdentityProvider) handleRecover(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
	if str(body, "email") == "" {
		apiError(w, http.StatusUnprocessableEntity, "validation_failed", "Password recovery requires an email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (p *IdentityProvider) handleUpdateUser(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
	p.mu.Lock()
	sess, ok := p.sessions[bearer(r)]
	var u *stubUser
	if ok {
		u = p.users[sess.email]
	}
	p.mu.Unlock()

	if u == nil {
		apiError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: session not found")
		return
	}

	password := str(body, "password")
	if len(password) < 6 {
		apiError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	p.mu.Lock()
	u.password = password
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (p *IdentityProvider) handleVerify(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
	p.mu.Lock()
	u := p.users[str(body, "email")]
	valid := u != nil && str(body, "type") == "signup" && str(body, "token") == p.config.VerificationToken
	if valid {
		u.confirmed = true
	}
	p.mu.Unlock()

	if !valid {
		apiError(w, http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
		return
	}
	writeJSON(w, http.StatusOK, p.newSession(u))
}

func (p *IdentityProvider) handleResend(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
	if str(body, "email") == "" || str(body, "type") == "" {
		apiError(w, http.StatusUnprocessableEntity, "validation_failed", "Resend requires an email and type")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleAuthorize auto-approves the request for AuthorizeEmail and redirects
// back to redirect_uri.
func (p *IdentityProvider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p.record(EndpointAuthorize, r, nil)

	redirectURI, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("redirect_uri") == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	if q.Get("client_id") != p.config.ClientID {
		http.Error(w, "unknown client", http.StatusBadRequest)
		return
	}

	params := url.Values{}
	params.Set("state", q.Get("state"))
	if p.config.AuthorizeError != "" {
		params.Set("error", p.config.AuthorizeError)
		params.Set("error_description", "The user denied the request")
	} else {
		code := p.IssueAuthorizationCode(p.config.AuthorizeEmail, q.Get("nonce"), redirectURI.String(), q.Get("code_challenge"))
		params.Set("code", code)
	}
	redirectURI.RawQuery = params.Encode()
	http.Redirect(w, r, redirectURI.String(), http.StatusFound)
}

func (p *IdentityProvider) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		grantError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	form := map[string]interface{}{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	if f, ok := p.record(EndpointOAuthToken, r, form); ok {
		writeFailure(w, f)
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if ok {
		clientID, _ = url.QueryUnescape(clientID)
		clientSecret, _ = url.QueryUnescape(clientSecret)
	} else {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != p.config.ClientID || clientSecret != p.config.ClientSecret {
		grantError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		grantError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
		return
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	pending, found := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()

	if !found {
		grantError(w, http.StatusBadRequest, "invalid_grant", "Malformed auth code.")
		return
	}
	if pending.redirectURI != "" && pending.redirectURI != r.PostForm.Get("redirect_uri") {
		grantError(w, http.StatusBadRequest, "redirect_uri_mismatch", "Bad Request")
		return
	}
	if pending.codeChallenge != "" {
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != pending.codeChallenge {
			grantError(w, http.StatusBadRequest, "invalid_grant", "Invalid code verifier.")
			return
		}
	}

	now := p.config.Clock.Now()
	claims := IDTokenClaims{
		Issuer:    p.config.Issuer,
		Subject:   "google-" + pending.email,
		Audience:  p.config.ClientID,
		Email:     pending.email,
		Nonce:     pending.nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	sign := p.config.SignIDToken
	if sign == nil {
		sign = signIDTokenHS256
	}
	idToken, err := sign(claims)
	if err != nil {
		grantError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	p.RegisterIDToken(idToken, pending.email)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": "ya29." + uuid.NewString(),
		"token_type":   "Bearer",
		"expires_in":   3599,
		"scope":        "openid email profile",
		"id_token":     idToken,
	})
}

func signIDTokenHS256(c IDTokenClaims) (string, error) {
	claims := jwt.MapClaims{
		"iss":   c.Issuer,
		"sub":   c.Subject,
		"aud":   c.Audience,
		"email": c.Email,
		"iat":   c.IssuedAt.Unix(),
		"exp":   c.ExpiresAt.Unix(),
	}
	if c.Nonce != "" {
		claims["nonce"] = c.Nonce
	}
	if c.Name != "" {
		claims["name"] = c.Name
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(accessTokenSecret))
}

// newSession issues a fresh access/refresh pair for u and returns the
// session document.
func (p *IdentityProvider) newSession(u *stubUser) map[string]interface{} {
	now := p.config.Clock.Now()
	expiresAt := now.Add(p.config.TokenLifetime)

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        u.id,
		"email":      u.email,
		"role":       "authenticated",
		"session_id": uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
		"user_metadata": map[string]interface{}{
			"full_name": u.fullName,
		},
	}).SignedString([]byte(accessTokenSecret))
	if err != nil {
		panic(fmt.Sprintf("mock: failed to sign access token: %v", err))
	}
	refreshToken := "refresh-" + uuid.NewString()

	p.mu.Lock()
	p.sessions[accessToken] = &stubSession{email: u.email, refreshToken: refreshToken}
	p.refreshTokens[refreshToken] = accessToken
	p.mu.Unlock()

	return map[string]interface{}{
		"access_token":  accessToken,
		"token_type":    "bearer",
		"expires_in":    int(p.config.TokenLifetime.Seconds()),
		"expires_at":    expiresAt.Unix(),
		"refresh_token": refreshToken,
		"user":          userJSON(u),
	}
}

func userJSON(u *stubUser) map[string]interface{} {
	return map[string]interface{}{
		"id":    u.id,
		"aud":   "authenticated",
		"role":  "authenticated",
		"email": u.email,
		"user_metadata": map[string]interface{}{
			"full_name": u.fullName,
		},
	}
}
