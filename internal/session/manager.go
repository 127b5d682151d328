package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gatekeep/internal/autherr"
	"gatekeep/internal/credential"
	"gatekeep/internal/identity"
	"gatekeep/internal/loopback"
	"gatekeep/pkg/logging"
)

const (
	// DefaultSafetyMargin is how long before expiry a token is refreshed.
	DefaultSafetyMargin = 60 * time.Second

	// DefaultRefreshTimeout bounds a refresh, which does not follow the
	// caller's cancellation.
	DefaultRefreshTimeout = identity.DefaultHTTPTimeout

	refreshKey = "refresh"
)

// IdentityClient is the subset of the identity API the manager drives.
type IdentityClient interface {
	SignUp(ctx context.Context, email, password string, profile credential.Profile) (*credential.Credential, error)
	SignIn(ctx context.Context, email, password string) (*credential.Credential, error)
	ExchangeAuthorizationCode(ctx context.Context, code string, opts identity.ExchangeOptions) (*credential.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (*credential.Credential, error)
	SignOut(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	ResendVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, email, token string) (*credential.Credential, error)
}

// Authorizer runs the browser leg of interactive sign-in.
type Authorizer interface {
	Authorize(ctx context.Context, buildURL loopback.AuthURLFunc) (*loopback.Authorization, error)
}

// AuthCodeURLFunc builds the provider authorization URL for one attempt.
type AuthCodeURLFunc func(state, nonce, codeVerifier string) string

// Clock is the time source for expiry decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config wires a Manager.
type Config struct {
	Client IdentityClient
	Store  credential.Store

	// Authorizer and AuthCodeURL enable SignInInteractive. Both or neither.
	Authorizer  Authorizer
	AuthCodeURL AuthCodeURLFunc

	// SafetyMargin defaults to DefaultSafetyMargin.
	SafetyMargin time.Duration

	// RefreshTimeout defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration

	// Clock defaults to the system clock.
	Clock Clock
}

// EndedFunc is told why a session ended without the user signing out.
type EndedFunc func(reason error)

// Manager is the single owner of the credential slot.
type Manager struct {
	client         IdentityClient
	store          credential.Store
	authorizer     Authorizer
	authCodeURL    AuthCodeURLFunc
	margin         time.Duration
	refreshTimeout time.Duration
	clock          Clock

	// mu guards the slot. Store writes happen under it so that the durable
	// copy follows the same order as the in-memory one.
	mu         sync.RWMutex
	cred       *credential.Credential
	generation uint64
	refreshing bool

	group singleflight.Group

	subsMu sync.Mutex
	subs   map[int]EndedFunc
	nextID int
}

// New creates a manager and loads the stored credential. No network call is
// made.
func New(cfg Config) (*Manager, error) {
	if cfg.Client == nil {
		return nil, errors.New("session: identity client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session: credential store is required")
	}
	if (cfg.Authorizer == nil) != (cfg.AuthCodeURL == nil) {
		return nil, errors.New("session: authorizer and authorization URL builder must be set together")
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}

	m := &Manager{
		client:         cfg.Client,
		store:          cfg.Store,
		authorizer:     cfg.Authorizer,
		authCodeURL:    cfg.AuthCodeURL,
		margin:         cfg.SafetyMargin,
		refreshTimeout: cfg.RefreshTimeout,
		clock:          cfg.Clock,
		subs:           make(map[int]EndedFunc),
	}

	cred, err := cfg.Store.Load()
	if err != nil {
		logging.Error("Session", err, "Failed to load stored credential, starting signed out")
	}
	if cred != nil {
		m.cred = cred
		logging.Info("Session", "Restored session for %s (expires %s)", cred.Email, cred.ExpiresAt.Format(time.RFC3339))
		if cred.Degraded() {
			logging.Warn("Session", "Restored session cannot be refreshed; sign in again before %s", cred.ExpiresAt.Format(time.RFC3339))
		}
	}
	return m, nil
}

// State reports the lifecycle state of the slot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.cred == nil:
		return Unauthenticated
	case m.refreshing:
		return Refreshing
	case m.cred.ExpiresWithin(m.clock.Now(), m.margin):
		return Expiring
	default:
		return Authenticated
	}
}

// Snapshot returns the caller view of the current session.
func (m *Manager) Snapshot() credential.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.Snapshot()
}

// IsAuthenticated reports whether a credential is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred != nil
}

// OnSessionEnded registers fn for sessions that end because the provider
// rejected the refresh token, or that expire with no way to refresh. The
// returned function unregisters it.
func (m *Manager) OnSessionEnded(fn EndedFunc) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notifyEnded(reason error) {
	m.subsMu.Lock()
	subs := make([]EndedFunc, 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(reason)
	}
}

// SignIn authenticates with email and password and adopts the result.
func (m *Manager) SignIn(ctx context.Context, email, password string) (credential.Snapshot, error) {
	cred, err := m.client.SignIn(ctx, email, password)
	if err != nil {
		return credential.Snapshot{}, err
	}
	return m.adopt(cred, "password sign-in"), nil
}

// SignUp registers an account and adopts the session the provider opens. If
// the provider requires email confirmation first, the error wraps
// autherr.ErrConfirmationPending and the slot is unchanged.
func (m *Manager) SignUp(ctx context.Context, email, password string, profile credential.Profile) (credential.Snapshot, error) {
	cred, err := m.client.SignUp(ctx, email, password, profile)
	if err != nil {
		return credential.Snapshot{}, err
	}
	return m.adopt(cred, "sign-up"), nil
}

// SignInInteractive runs the browser flow: the loopback listener waits for
// the authorization code, which is then exchanged for a credential.
func (m *Manager) SignInInteractive(ctx context.Context) (credential.Snapshot, error) {
	if m.authorizer == nil {
		return credential.Snapshot{}, autherr.NewValidationError("oauth", "interactive sign-in is not configured")
	}

	auth, err := m.authorizer.Authorize(ctx, func(p *loopback.PendingRequest) string {
		return m.authCodeURL(p.State, p.Nonce, p.CodeVerifier)
	})
	if err != nil {
		return credential.Snapshot{}, err
	}

	cred, err := m.client.ExchangeAuthorizationCode(ctx, auth.Code, identity.ExchangeOptions{
		CodeVerifier: auth.CodeVerifier,
		Nonce:        auth.Nonce,
	})
	if err != nil {
		return credential.Snapshot{}, err
	}
	return m.adopt(cred, "interactive sign-in"), nil
}

// VerifyEmail confirms a sign-up. When the provider opens a session on
// confirmation it is adopted.
func (m *Manager) VerifyEmail(ctx context.Context, email, token string) (credential.Snapshot, error) {
	cred, err := m.client.VerifyEmail(ctx, email, token)
	if err != nil {
		return credential.Snapshot{}, err
	}
	if cred == nil {
		return m.Snapshot(), nil
	}
	return m.adopt(cred, "email verification"), nil
}

// ResendVerification re-sends the sign-up confirmation email.
func (m *Manager) ResendVerification(ctx context.Context, email string) error {
	return m.client.ResendVerification(ctx, email)
}

// RequestPasswordReset asks the provider to email a recovery link.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	return m.client.RequestPasswordReset(ctx, email)
}

// UpdatePassword changes the password of the signed-in user, or of the user
// owning recoveryToken when one is given.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword, recoveryToken string) error {
	token := recoveryToken
	if token == "" {
		var err error
		token, err = m.GetAccessToken(ctx)
		if err != nil {
			return err
		}
	}
	return m.client.UpdatePassword(ctx, token, newPassword)
}

// adopt replaces the slot with cred. A failed save is logged; the session is
// still usable for the lifetime of the process.
func (m *Manager) adopt(cred *credential.Credential, how string) credential.Snapshot {
	m.mu.Lock()
	m.cred = cred
	m.generation++
	if err := m.store.Save(cred); err != nil {
		logging.Error("Session", err, "Signed in but could not persist the session")
	}
	snap := cred.Snapshot()
	m.mu.Unlock()

	logging.Info("Session", "Signed in as %s via %s", cred.Email, how)
	if cred.Degraded() {
		logging.Warn("Session", "Provider issued no refresh token; the session ends at %s", cred.ExpiresAt.Format(time.RFC3339))
	}
	return snap
}

// SignOut ends the session locally and at the provider. The local state is
// cleared even if the provider cannot be reached.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	cred := m.cred
	m.cred = nil
	m.generation++
	clearErr := m.store.Clear()
	m.mu.Unlock()

	if cred != nil {
		if err := m.client.SignOut(ctx, cred.AccessToken); err != nil {
			logging.Warn("Session", "Provider sign-out failed, local session cleared anyway: %v", err)
		}
		logging.Info("Session", "Signed out %s", cred.Email)
	}
	return clearErr
}

// GetAccessToken returns a token that is valid for at least the safety
// margin, refreshing first if needed. Concurrent callers share one refresh.
// If the refresh fails transiently the current token is returned as is.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()

	if cred == nil {
		return "", autherr.ErrNotAuthenticated
	}
	if !cred.ExpiresWithin(m.clock.Now(), m.margin) {
		return cred.AccessToken, nil
	}

	fresh, err := m.refresh(ctx, false)
	if err == nil {
		return fresh.AccessToken, nil
	}
	if errors.Is(err, autherr.ErrNotAuthenticated) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	logging.Warn("Session", "Refresh failed, using current token: %v", err)
	return cred.AccessToken, nil
}

// AuthorizationHeader returns "Bearer <token>" for a valid access token.
func (m *Manager) AuthorizationHeader(ctx context.Context) (string, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Refresh refreshes the credential now, regardless of its expiry. It joins a
// refresh already in flight.
func (m *Manager) Refresh(ctx context.Context) (credential.Snapshot, error) {
	cred, err := m.refresh(ctx, true)
	if err != nil {
		return credential.Snapshot{}, err
	}
	return cred.Snapshot(), nil
}

// refresh joins or starts the single in-flight refresh. The refresh itself
// runs detached from ctx; ctx only bounds how long this caller waits.
func (m *Manager) refresh(ctx context.Context, force bool) (*credential.Credential, error) {
	ch := m.group.DoChan(refreshKey, func() (interface{}, error) {
		return m.doRefresh(force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*credential.Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) doRefresh(force bool) (*credential.Credential, error) {
	now := m.clock.Now()

	m.mu.Lock()
	cred := m.cred
	gen := m.generation
	switch {
	case cred == nil:
		m.mu.Unlock()
		return nil, autherr.ErrNotAuthenticated
	case !force && !cred.ExpiresWithin(now, m.margin):
		// Refreshed by an earlier flight.
		m.mu.Unlock()
		return cred, nil
	case !cred.CanRefresh() && force:
		m.mu.Unlock()
		return nil, autherr.NewValidationError("refresh token", "the current session cannot be refreshed")
	case !cred.CanRefresh():
		m.mu.Unlock()
		return m.expireDegraded(cred, gen, now)
	}
	m.refreshing = true
	m.mu.Unlock()

	logging.Debug("Session", "Refreshing access token for %s", cred.Email)

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()
	fresh, err := m.client.Refresh(ctx, cred.RefreshToken)

	m.mu.Lock()
	m.refreshing = false

	if gen != m.generation {
		current := m.cred
		m.mu.Unlock()
		logging.Info("Session", "Discarding refresh result, session changed while it was in flight")
		if current == nil {
			return nil, autherr.ErrNotAuthenticated
		}
		return current, nil
	}

	if err != nil {
		if autherr.IsTerminal(err) {
			m.cred = nil
			m.generation++
			if clearErr := m.store.Clear(); clearErr != nil {
				logging.Error("Session", clearErr, "Failed to clear rejected credential")
			}
			m.mu.Unlock()

			logging.Warn("Session", "Refresh token rejected, session for %s ended: %v", cred.Email, err)
			reason := fmt.Errorf("%w: session ended: %w", autherr.ErrNotAuthenticated, err)
			m.notifyEnded(reason)
			return nil, reason
		}
		m.mu.Unlock()
		return nil, err
	}

	fresh = fresh.WithProfileFrom(cred)
	m.cred = fresh
	if saveErr := m.store.Save(fresh); saveErr != nil {
		logging.Error("Session", saveErr, "Refreshed session could not be persisted")
	}
	m.mu.Unlock()

	logging.Info("Session", "Refreshed session for %s (expires %s)", fresh.Email, fresh.ExpiresAt.Format(time.RFC3339))
	if fresh.Degraded() {
		logging.Warn("Session", "Refresh returned no refresh token; the session ends at %s", fresh.ExpiresAt.Format(time.RFC3339))
	}
	return fresh, nil
}

// expireDegraded handles a credential without refresh token that has reached
// the safety margin. It stays usable until it actually expires.
func (m *Manager) expireDegraded(cred *credential.Credential, gen uint64, now time.Time) (*credential.Credential, error) {
	if !cred.Expired(now) {
		return cred, nil
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil, autherr.ErrNotAuthenticated
	}
	m.cred = nil
	m.generation++
	if err := m.store.Clear(); err != nil {
		logging.Error("Session", err, "Failed to clear expired credential")
	}
	m.mu.Unlock()

	reason := fmt.Errorf("%w: session expired and cannot be refreshed", autherr.ErrNotAuthenticated)
	logging.Warn("Session", "Session for %s expired without a refresh token", cred.Email)
	m.notifyEnded(reason)
	return nil, reason
}
