package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims of interest in a provider-issued JWT access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// FullName returns user_metadata.full_name if present.
func (c *AccessClaims) FullName() string {
	if c.UserMetadata == nil {
		return ""
	}
	name, _ := c.UserMetadata["full_name"].(string)
	return name
}

// ClaimsFromAccessToken decodes the claims of a JWT access token WITHOUT
// verifying its signature. The result is only used to fill in identity and
// expiry details the provider omitted from a response; it is never used for
// authorization decisions.
func ClaimsFromAccessToken(accessToken string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token claims: %w", err)
	}
	return claims, nil
}

// ExpiryFromAccessToken returns the exp claim of a JWT access token, or the
// zero time if the token is opaque or carries no expiry.
func ExpiryFromAccessToken(accessToken string) time.Time {
	claims, err := ClaimsFromAccessToken(accessToken)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
