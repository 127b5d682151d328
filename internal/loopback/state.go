package loopback

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const randomBytes = 32

// PendingRequest is the in-memory state of one interactive attempt. It lives
// only as long as the Listener waits for the redirect.
type PendingRequest struct {
	// ID correlates log lines of one attempt.
	ID string

	// State is the CSRF token echoed back by the authorization server.
	State string

	// Nonce binds the id_token to this attempt.
	Nonce string

	// CodeVerifier is the PKCE secret whose challenge goes into the URL.
	CodeVerifier string

	once sync.Once
	done chan outcome
}

type outcome struct {
	code string
	err  error
}

// NewPendingRequest generates fresh random values for one attempt.
func NewPendingRequest() (*PendingRequest, error) {
	state, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return &PendingRequest{
		ID:           uuid.NewString(),
		State:        state,
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		done:         make(chan outcome, 1),
	}, nil
}

// resolve completes the attempt. Only the first call has an effect.
func (p *PendingRequest) resolve(code string, err error) bool {
	resolved := false
	p.once.Do(func() {
		resolved = true
		p.done <- outcome{code: code, err: err}
	})
	return resolved
}

// matchesState compares in constant time.
func (p *PendingRequest) matchesState(state string) bool {
	return subtle.ConstantTimeCompare([]byte(p.State), []byte(state)) == 1
}

func randomToken() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
