package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeep/internal/autherr"
	"gatekeep/internal/config"
	"gatekeep/internal/credential"
	"gatekeep/internal/testing/mock"
)

func TestAuthLogin_Password(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.idp.AddUser("user@example.com", "hunter22", "Test User")

	env.lines = []string{"user@example.com"}
	env.secrets = []string{"hunter22"}
	stdout, _, err := env.run(t, "auth", "login")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Signed in as Test User <user@example.com>")
	assert.Equal(t, 1, env.idp.Calls(mock.EndpointPassword))
	assert.Empty(t, env.lines)
}

func TestAuthLogin_WrongPassword(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.idp.AddUser("user@example.com", "hunter22", "")

	env.secrets = []string{"wrong"}
	_, _, err := env.run(t, "auth", "login", "--email", "user@example.com")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))
	assert.Equal(t, "Invalid login credentials", autherr.UserMessage(err))
}

func TestAuthLogin_InteractiveNotConfigured(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})

	_, _, err := env.run(t, "auth", "login", "--interactive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
	assert.Zero(t, env.idp.Calls(mock.EndpointAuthorize))
}

func TestAuthLogin_InteractiveCancelled(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.enableInteractive(t)

	// An interrupt cancels the command context before the redirect arrives.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, stderr := env.prepare(t, "auth", "login", "--interactive", "--no-browser")
	code := execute(ctx, stderr)

	assert.Equal(t, ExitCodeAuthFailed, code)
	assert.Contains(t, stderr.String(), "Open this URL in a browser")
	assert.Contains(t, stderr.String(), "Error: Sign-in was cancelled.")
	assert.Zero(t, env.idp.Calls(mock.EndpointOAuthToken))
}

func TestAuthSessionLifecycle(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.signIn(t)

	stdout, _, err := env.run(t, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Authenticated")
	assert.Contains(t, stdout, "user@example.com")
	assert.Contains(t, stdout, "Available")

	stdout, _, err = env.run(t, "auth", "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Test User <user@example.com>")

	stdout, _, err = env.run(t, "auth", "token")
	require.NoError(t, err)
	token := strings.TrimSpace(stdout)
	assert.True(t, env.idp.SessionActive(token))
	assert.Zero(t, env.idp.Calls(mock.EndpointRefresh), "a fresh token is served without refreshing")

	stdout, _, err = env.run(t, "auth", "token", "--header")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, strings.TrimSpace(stdout))

	stdout, _, err = env.run(t, "auth", "refresh")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Session refreshed")
	assert.Equal(t, 1, env.idp.Calls(mock.EndpointRefresh))

	stdout, _, err = env.run(t, "auth", "token")
	require.NoError(t, err)
	refreshed := strings.TrimSpace(stdout)
	assert.NotEqual(t, token, refreshed)

	stdout, _, err = env.run(t, "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out user@example.com")
	assert.False(t, env.idp.SessionActive(refreshed))

	stdout, _, err = env.run(t, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not signed in")
	assert.Contains(t, stdout, "Run: gatekeep auth login")
}

func TestAuthStatus_JSON(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.signIn(t)

	stdout, _, err := env.run(t, "auth", "status", "--json")
	require.NoError(t, err)

	var snap credential.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &snap))
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "user@example.com", snap.Email)
	assert.True(t, snap.CanRefresh)
	assert.NotContains(t, stdout, "access_token")
}

func TestAuthCommands_RequireSession(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})

	for _, args := range [][]string{
		{"auth", "token"},
		{"auth", "whoami"},
		{"auth", "refresh"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, _, err := env.run(t, args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, autherr.ErrNotAuthenticated))
			assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
		})
	}

	stdout, _, err := env.run(t, "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "You are not signed in.")
}

func TestAuthQuiet(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.idp.AddUser("user@example.com", "hunter22", "")

	env.secrets = []string{"hunter22"}
	stdout, _, err := env.run(t, "--quiet", "auth", "login", "--email", "user@example.com")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	stdout, _, err = env.run(t, "-q", "auth", "token")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(stdout), "the token is printed even in quiet mode")
}

func TestAuthSignup(t *testing.T) {
	t.Run("session issued", func(t *testing.T) {
		env := newCommandEnv(t, mock.IdentityProviderConfig{})
		env.secrets = []string{"s3cret!", "s3cret!"}

		stdout, _, err := env.run(t, "auth", "signup", "--email", "new@example.com", "--name", "New Person")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Signed in as New Person <new@example.com>")
	})

	t.Run("confirmation pending then verify", func(t *testing.T) {
		env := newCommandEnv(t, mock.IdentityProviderConfig{RequireEmailConfirmation: true})
		env.secrets = []string{"s3cret!", "s3cret!"}

		stdout, _, err := env.run(t, "auth", "signup", "--email", "new@example.com")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Account created for new@example.com")
		assert.Contains(t, stdout, "Check your inbox")

		stdout, _, err = env.run(t, "auth", "resend-verification", "--email", "new@example.com")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Confirmation email sent")
		assert.Equal(t, 1, env.idp.Calls(mock.EndpointResend))

		env.lines = []string{"123456"}
		stdout, _, err = env.run(t, "auth", "verify-email", "--email", "new@example.com")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Signed in as new@example.com")
	})

	t.Run("passwords differ", func(t *testing.T) {
		env := newCommandEnv(t, mock.IdentityProviderConfig{})
		env.secrets = []string{"one", "two"}

		_, _, err := env.run(t, "auth", "signup", "--email", "new@example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "do not match")
		assert.Zero(t, env.idp.Calls(mock.EndpointSignUp))
	})
}

func TestAuthPasswordRecovery(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.signIn(t)

	stdout, _, err := env.run(t, "auth", "reset-password", "--email", "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, stdout, "recovery link")
	assert.Equal(t, 1, env.idp.Calls(mock.EndpointRecover))

	env.secrets = []string{"n3w-pass", "n3w-pass"}
	stdout, _, err = env.run(t, "auth", "update-password")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Password updated")
	assert.Equal(t, 1, env.idp.Calls(mock.EndpointUpdateUser))
}

func TestAuthInvalidConfiguration(t *testing.T) {
	env := newCommandEnv(t, mock.IdentityProviderConfig{})
	env.settings.Provider.APIKey = ""

	_, _, err := env.run(t, "auth", "status")
	require.Error(t, err)

	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ExitCodeError, getExitCode(err))
}
