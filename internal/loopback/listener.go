package loopback

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gatekeep/internal/autherr"
	"gatekeep/pkg/logging"
)

const (
	// DefaultRedirectURI is the redirect URI registered for the desktop client.
	DefaultRedirectURI = "http://localhost:53682/callback"

	// DefaultTimeout is how long to wait for the browser to come back.
	DefaultTimeout = 120 * time.Second

	shutdownTimeout = 2 * time.Second
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Config configures a Listener.
type Config struct {
	// RedirectURI must be an http URI on a loopback host with an explicit port.
	RedirectURI string

	// Timeout bounds the wait for the redirect. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Launch opens the authorization URL. Nil means the URL is only reported
	// through OnURL, for environments without a browser.
	Launch Launcher

	// OnURL, if set, receives the authorization URL before Launch runs.
	OnURL func(authURL string)
}

// Authorization is the successful result of one attempt.
type Authorization struct {
	Code         string
	Nonce        string
	CodeVerifier string
	FlowID       string
}

// AuthURLFunc builds the provider authorization URL for a pending request.
type AuthURLFunc func(p *PendingRequest) string

// Listener runs interactive authorization attempts against one redirect URI.
// Attempts are independent; each binds and releases the port.
type Listener struct {
	redirect *url.URL
	bindAddr string
	timeout  time.Duration
	launch   Launcher
	onURL    func(string)
}

// New validates cfg and returns a Listener.
func New(cfg Config) (*Listener, error) {
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = DefaultRedirectURI
	}
	redirect, bindAddr, err := ParseRedirectURI(cfg.RedirectURI)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Listener{
		redirect: redirect,
		bindAddr: bindAddr,
		timeout:  cfg.Timeout,
		launch:   cfg.Launch,
		onURL:    cfg.OnURL,
	}, nil
}

// ParseRedirectURI checks that raw is an http URI on a loopback host with an
// explicit port and returns it with the address to bind.
func ParseRedirectURI(raw string) (*url.URL, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", autherr.NewValidationError("redirect URI", err.Error())
	}
	if u.Scheme != "http" {
		return nil, "", autherr.NewValidationError("redirect URI", "scheme must be http")
	}
	if u.Port() == "" {
		return nil, "", autherr.NewValidationError("redirect URI", "an explicit port is required")
	}

	host := u.Hostname()
	switch {
	case host == "localhost":
		host = "127.0.0.1"
	case net.ParseIP(host) != nil && net.ParseIP(host).IsLoopback():
	default:
		return nil, "", autherr.NewValidationError("redirect URI", fmt.Sprintf("host %q is not a loopback address", u.Hostname()))
	}

	if u.Path == "" {
		u.Path = "/"
	}
	return u, net.JoinHostPort(host, u.Port()), nil
}

// RedirectURI returns the redirect URI the listener serves.
func (l *Listener) RedirectURI() string {
	return l.redirect.String()
}

// Authorize runs one interactive attempt and blocks until the redirect
// arrives, the timeout elapses or ctx is done. The port is released before
// Authorize returns.
func (l *Listener) Authorize(ctx context.Context, buildURL AuthURLFunc) (*Authorization, error) {
	pending, err := NewPendingRequest()
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", l.bindAddr)
	if err != nil {
		return nil, &autherr.EnvironmentError{Err: fmt.Errorf("failed to listen on %s: %w", l.bindAddr, err)}
	}

	server := &http.Server{
		Handler:           l.handler(pending),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer l.shutdown(server, pending.ID)

	logging.Info("Loopback", "Waiting for OAuth redirect on %s (flow %s)", l.bindAddr, pending.ID)

	authURL := buildURL(pending)
	if l.onURL != nil {
		l.onURL(authURL)
	}
	if l.launch != nil {
		if err := l.launch(authURL); err != nil {
			logging.Warn("Loopback", "Could not open browser: %v", err)
			return nil, &autherr.EnvironmentError{URL: authURL, Err: err}
		}
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case out := <-pending.done:
		if out.err != nil {
			return nil, out.err
		}
		logging.Info("Loopback", "Received authorization code (flow %s)", pending.ID)
		return &Authorization{
			Code:         out.code,
			Nonce:        pending.Nonce,
			CodeVerifier: pending.CodeVerifier,
			FlowID:       pending.ID,
		}, nil

	case err := <-serveErr:
		return nil, &autherr.EnvironmentError{Err: fmt.Errorf("callback server failed: %w", err)}

	case <-timer.C:
		logging.Warn("Loopback", "No redirect within %s (flow %s)", l.timeout, pending.ID)
		return nil, &autherr.TimeoutError{After: l.timeout}

	case <-ctx.Done():
		logging.Info("Loopback", "Interactive login cancelled (flow %s)", pending.ID)
		return nil, fmt.Errorf("%w: %v", autherr.ErrCancelled, ctx.Err())
	}
}

// shutdown lets an in-flight response finish, then closes everything.
func (l *Listener) shutdown(server *http.Server, flowID string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
	}
	logging.Debug("Loopback", "Released %s (flow %s)", l.bindAddr, flowID)
}

func (l *Listener) handler(pending *PendingRequest) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != l.redirect.Path {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		l.handleRedirect(w, r, pending)
	})
}

func (l *Listener) handleRedirect(w http.ResponseWriter, r *http.Request, pending *PendingRequest) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	code := query.Get("code")

	var redirectErr *autherr.RedirectError
	switch {
	case !pending.matchesState(query.Get("state")):
		redirectErr = &autherr.RedirectError{Reason: "state mismatch"}
	case query.Get("error") != "":
		redirectErr = &autherr.RedirectError{
			Reason:       "authorization server returned an error",
			ProviderCode: query.Get("error"),
			Description:  query.Get("error_description"),
		}
	case code == "":
		redirectErr = &autherr.RedirectError{Reason: "authorization code missing"}
	}

	var resolved bool
	if redirectErr != nil {
		resolved = pending.resolve("", redirectErr)
	} else {
		resolved = pending.resolve(code, nil)
	}
	if !resolved {
		http.Error(w, "This sign-in attempt has already completed.", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if redirectErr != nil {
		logging.Warn("Loopback", "Rejected redirect (flow %s): %s", pending.ID, redirectErr.Reason)
		w.WriteHeader(http.StatusBadRequest)
		l.render(w, "failure.html", map[string]string{
			"Reason":      capitalize(redirectErr.Reason) + ".",
			"Code":        redirectErr.ProviderCode,
			"Description": redirectErr.Description,
		})
		return
	}
	l.render(w, "success.html", nil)
}

func (l *Listener) render(w http.ResponseWriter, name string, data interface{}) {
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logging.Error("Loopback", err, "Failed to render %s", name)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
