package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeep/internal/autherr"
	"gatekeep/internal/config"
	"gatekeep/internal/credential"
	"gatekeep/internal/testing/mock"
)

func testSettings(t *testing.T, idp *mock.IdentityProvider) *config.Config {
	t.Helper()
	settings := config.GetDefaultConfig()
	settings.Provider.URL = idp.URL()
	settings.Provider.APIKey = idp.APIKey()
	settings.Session.CredentialFile = filepath.Join(t.TempDir(), "credential.json")
	return &settings
}

func newTestApplication(t *testing.T, settings *config.Config) *Application {
	t.Helper()
	application, err := NewApplication(&Config{Settings: settings, LogOutput: io.Discard})
	require.NoError(t, err)
	t.Cleanup(application.Close)
	return application
}

func TestNewApplication_PasswordOnly(t *testing.T) {
	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	t.Cleanup(idp.Close)
	idp.AddUser("user@example.com", "hunter22", "User")

	application := newTestApplication(t, testSettings(t, idp))

	assert.False(t, application.InteractiveEnabled())
	assert.Nil(t, application.Services().Exchanger)
	assert.False(t, application.Manager().IsAuthenticated())

	snap, err := application.Manager().SignIn(context.Background(), "user@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", snap.Email)

	_, err = os.Stat(application.Settings().Session.CredentialFile)
	assert.NoError(t, err)

	_, err = application.Manager().SignInInteractive(context.Background())
	var ve *autherr.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestNewApplication_Interactive(t *testing.T) {
	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	t.Cleanup(idp.Close)

	settings := testSettings(t, idp)
	settings.OAuth.ClientID = idp.ClientID()
	settings.OAuth.ClientSecret = idp.ClientSecret()
	settings.OAuth.RedirectURI = "http://localhost:53999/callback"
	settings.OAuth.VerifyIDToken = false

	application := newTestApplication(t, settings)

	assert.True(t, application.InteractiveEnabled())
	require.NotNil(t, application.Services().Listener)
	assert.Equal(t, "http://localhost:53999/callback", application.Services().Listener.RedirectURI())
}

func TestNewApplication_RestoresStoredSession(t *testing.T) {
	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	t.Cleanup(idp.Close)

	settings := testSettings(t, idp)
	store, err := credential.NewFileStore(settings.Session.CredentialFile)
	require.NoError(t, err)
	require.NoError(t, store.Save(&credential.Credential{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		UserID:       "u-1",
		Email:        "stored@example.com",
	}))

	application := newTestApplication(t, settings)

	assert.True(t, application.Manager().IsAuthenticated())
	assert.Equal(t, "stored@example.com", application.Manager().Snapshot().Email)
	for _, endpoint := range []string{mock.EndpointPassword, mock.EndpointRefresh} {
		assert.Zero(t, idp.Calls(endpoint))
	}
}

func TestNewApplication_InvalidConfiguration(t *testing.T) {
	settings := config.GetDefaultConfig()

	_, err := NewApplication(&Config{Settings: &settings, LogOutput: io.Discard})
	require.Error(t, err)

	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Fields.Fields(), "provider.url")
	assert.Contains(t, ce.Fields.Fields(), "provider.api_key")
}

func TestNewApplication_LogLevelOverride(t *testing.T) {
	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	t.Cleanup(idp.Close)

	_, err := NewApplication(&Config{Settings: testSettings(t, idp), LogLevel: "chatty", LogOutput: io.Discard})
	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"logging.level"}, ce.Fields.Fields())

	application, err := NewApplication(&Config{Settings: testSettings(t, idp), LogLevel: "debug", LogOutput: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, "debug", application.Settings().Logging.Level)
}

func TestNewApplication_LoadsConfigFile(t *testing.T) {
	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	t.Cleanup(idp.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "provider:\n  url: " + idp.URL() + "\n  api_key: " + idp.APIKey() +
		"\nsession:\n  credential_file: " + filepath.Join(dir, "credential.json") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	application, err := NewApplication(&Config{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)
	t.Cleanup(application.Close)

	assert.Equal(t, filepath.Join(dir, "credential.json"), application.Services().Store.Path())
}

func TestApplication_StartWatch(t *testing.T) {
	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	t.Cleanup(idp.Close)

	settings := testSettings(t, idp)
	settings.Session.Watch = true
	application := newTestApplication(t, settings)

	application.StartWatch(context.Background())
	// Second call is ignored.
	application.StartWatch(context.Background())

	other, err := credential.NewFileStore(settings.Session.CredentialFile)
	require.NoError(t, err)
	written := &credential.Credential{
		AccessToken:  "from-elsewhere",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		UserID:       "u-2",
		Email:        "elsewhere@example.com",
	}

	// The watch starts in the background, so keep writing until it is seen.
	assert.Eventually(t, func() bool {
		assert.NoError(t, other.Save(written))
		return application.Manager().Snapshot().Email == "elsewhere@example.com"
	}, 10*time.Second, time.Second)

	// Close returns only once the watcher has stopped, so later writes are
	// no longer adopted.
	application.Close()
	written.Email = "after-close@example.com"
	require.NoError(t, other.Save(written))
	assert.Never(t, func() bool {
		return application.Manager().Snapshot().Email == "after-close@example.com"
	}, 1500*time.Millisecond, 100*time.Millisecond)
}
