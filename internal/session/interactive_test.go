package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeep/internal/autherr"
	"gatekeep/internal/credential"
	"gatekeep/internal/identity"
	"gatekeep/internal/loopback"
	"gatekeep/internal/testing/mock"
)

func freeRedirectURI(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// followingBrowser opens the authorization URL like a browser would, following
// the provider's redirect back to the loopback listener.
func followingBrowser(authURL string) error {
	go func() {
		resp, err := http.Get(authURL)
		if err == nil {
			resp.Body.Close()
		}
	}()
	return nil
}

func newInteractiveManager(t *testing.T, idpCfg mock.IdentityProviderConfig, launch loopback.Launcher) (*Manager, *mock.IdentityProvider, credential.Store) {
	t.Helper()
	idp := mock.NewIdentityProvider(idpCfg)
	t.Cleanup(idp.Close)

	redirectURI := freeRedirectURI(t)
	exchanger, err := identity.NewCodeExchanger(identity.OAuthConfig{
		ClientID:     idp.ClientID(),
		ClientSecret: idp.ClientSecret(),
		RedirectURL:  redirectURI,
		AuthURL:      idp.AuthorizeURL(),
		TokenURL:     idp.TokenURL(),
	})
	require.NoError(t, err)

	client, err := identity.NewClient(idp.URL(), idp.APIKey(), identity.WithCodeExchanger(exchanger))
	require.NoError(t, err)

	listener, err := loopback.New(loopback.Config{RedirectURI: redirectURI, Timeout: 5 * time.Second, Launch: launch})
	require.NoError(t, err)

	store, err := credential.NewFileStore(filepath.Join(t.TempDir(), "credential.json"))
	require.NoError(t, err)

	m, err := New(Config{
		Client:      client,
		Store:       store,
		Authorizer:  listener,
		AuthCodeURL: exchanger.AuthCodeURL,
	})
	require.NoError(t, err)
	return m, idp, store
}

func TestManager_SignInInteractive(t *testing.T) {
	m, idp, store := newInteractiveManager(t, mock.IdentityProviderConfig{AuthorizeEmail: "g@example.com"}, followingBrowser)

	snap, err := m.SignInInteractive(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "g@example.com", snap.Email)

	assert.Equal(t, 1, idp.Calls(mock.EndpointAuthorize))
	assert.Equal(t, 1, idp.Calls(mock.EndpointOAuthToken))
	assert.Equal(t, 1, idp.Calls(mock.EndpointIDToken))

	form := idp.LastBody(mock.EndpointOAuthToken)
	assert.NotEmpty(t, form["code_verifier"])
	assert.Equal(t, idp.ClientSecret(), form["client_secret"])
	assert.NotEmpty(t, idp.LastBody(mock.EndpointIDToken)["nonce"])

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "g@example.com", stored.Email)
}

func TestManager_SignInInteractive_Denied(t *testing.T) {
	m, idp, _ := newInteractiveManager(t, mock.IdentityProviderConfig{AuthorizeError: "access_denied"}, followingBrowser)

	_, err := m.SignInInteractive(context.Background())
	var redirectErr *autherr.RedirectError
	require.True(t, errors.As(err, &redirectErr))
	assert.Equal(t, "access_denied", redirectErr.ProviderCode)
	assert.False(t, m.IsAuthenticated())
	assert.Zero(t, idp.Calls(mock.EndpointOAuthToken))
}

func TestManager_SignInInteractive_NoBrowser(t *testing.T) {
	m, _, _ := newInteractiveManager(t, mock.IdentityProviderConfig{}, func(string) error {
		return errors.New("no graphical session available")
	})

	_, err := m.SignInInteractive(context.Background())
	var envErr *autherr.EnvironmentError
	require.True(t, errors.As(err, &envErr))
	assert.Contains(t, envErr.URL, "/oauth/authorize?")
	assert.Contains(t, envErr.URL, "code_challenge=")
}

func TestManager_SignInInteractive_NotConfigured(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.manager.SignInInteractive(context.Background())
	var validationErr *autherr.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}
