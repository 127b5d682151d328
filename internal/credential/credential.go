package credential

import (
	"errors"
	"time"
)

// Profile is the minimal user profile carried by a Credential and sent as
// metadata on sign-up.
type Profile struct {
	FullName string `json:"full_name,omitempty"`
}

// Credential is the access/refresh token pair plus expiry and minimal profile.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`

	// DisplayName is optional; empty means unknown.
	DisplayName string `json:"display_name,omitempty"`
}

// Validate checks the structural invariant: an access token requires an
// expiry. A missing refresh token is allowed (see Degraded).
func (c *Credential) Validate() error {
	if c == nil {
		return errors.New("credential is nil")
	}
	if c.AccessToken == "" {
		return errors.New("credential has no access token")
	}
	if c.ExpiresAt.IsZero() {
		return errors.New("credential has an access token but no expiry")
	}
	return nil
}

// Degraded reports a usable credential that cannot be renewed.
func (c *Credential) Degraded() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken == ""
}

// CanRefresh reports whether a refresh token is available.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.RefreshToken != ""
}

// ExpiresWithin reports whether less than margin of lifetime remains at now.
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(c.ExpiresAt)
}

// Expired reports whether the access token is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// WithProfileFrom returns a copy of c with identity fields that c lacks taken
// from prev. Refresh responses do not always repeat the user object.
func (c *Credential) WithProfileFrom(prev *Credential) *Credential {
	out := *c
	if prev == nil {
		return &out
	}
	if out.UserID == "" {
		out.UserID = prev.UserID
	}
	if out.Email == "" {
		out.Email = prev.Email
	}
	if out.DisplayName == "" {
		out.DisplayName = prev.DisplayName
	}
	return &out
}

// Snapshot is the read-only view of authentication state exposed to callers.
type Snapshot struct {
	IsAuthenticated bool      `json:"is_authenticated"`
	UserID          string    `json:"user_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	DisplayName     string    `json:"display_name,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitempty"`
	CanRefresh      bool      `json:"can_refresh"`
}

// Snapshot computes the caller view of c. A nil credential yields an
// unauthenticated snapshot.
func (c *Credential) Snapshot() Snapshot {
	if c == nil || c.AccessToken == "" {
		return Snapshot{}
	}
	return Snapshot{
		IsAuthenticated: true,
		UserID:          c.UserID,
		Email:           c.Email,
		DisplayName:     c.DisplayName,
		ExpiresAt:       c.ExpiresAt,
		CanRefresh:      c.CanRefresh(),
	}
}

// Equal reports whether two credentials carry the same tokens and expiry.
func (c *Credential) Equal(other *Credential) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.AccessToken == other.AccessToken &&
		c.RefreshToken == other.RefreshToken &&
		c.ExpiresAt.Equal(other.ExpiresAt)
}
