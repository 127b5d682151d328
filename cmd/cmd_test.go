package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"gatekeep/internal/app"
	"gatekeep/internal/config"
	"gatekeep/internal/testing/mock"
)

// commandEnv runs the real command tree against a stub identity provider.
type commandEnv struct {
	idp      *mock.IdentityProvider
	settings *config.Config

	lines   []string
	secrets []string
}

func newCommandEnv(t *testing.T, idpCfg mock.IdentityProviderConfig) *commandEnv {
	t.Helper()
	idp := mock.NewIdentityProvider(idpCfg)
	t.Cleanup(idp.Close)

	settings := config.GetDefaultConfig()
	settings.Provider.URL = idp.URL()
	settings.Provider.APIKey = idp.APIKey()
	settings.Session.CredentialFile = filepath.Join(t.TempDir(), "credential.json")

	env := &commandEnv{idp: idp, settings: &settings}

	origNew, origLine, origSecret := newApplication, promptLine, promptSecret
	t.Cleanup(func() {
		newApplication, promptLine, promptSecret = origNew, origLine, origSecret
	})
	newApplication = func(cfg *app.Config) (*app.Application, error) {
		cfg.Settings = env.settings
		cfg.LogOutput = io.Discard
		return app.NewApplication(cfg)
	}
	promptLine = func(string) (string, error) {
		if len(env.lines) == 0 {
			return "", errors.New("unexpected prompt")
		}
		line := env.lines[0]
		env.lines = env.lines[1:]
		return line, nil
	}
	promptSecret = func(string) (string, error) {
		if len(env.secrets) == 0 {
			return "", errors.New("unexpected password prompt")
		}
		secret := env.secrets[0]
		env.secrets = env.secrets[1:]
		return secret, nil
	}
	return env
}

// run executes args and returns stdout, stderr and the command error.
func (e *commandEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := e.prepare(t, args...)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// prepare resets flags and points the command tree at fresh buffers.
func (e *commandEnv) prepare(t *testing.T, args ...string) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	resetFlags()
	resetContexts(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	return &stdout, &stderr
}

// enableInteractive configures browser sign-in against the stub provider on
// a free loopback port.
func (e *commandEnv) enableInteractive(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e.settings.OAuth.ClientID = e.idp.ClientID()
	e.settings.OAuth.ClientSecret = e.idp.ClientSecret()
	e.settings.OAuth.AuthURL = e.idp.AuthorizeURL()
	e.settings.OAuth.TokenURL = e.idp.TokenURL()
	e.settings.OAuth.RedirectURI = "http://" + addr + "/callback"
	e.settings.OAuth.VerifyIDToken = false
}

func (e *commandEnv) signIn(t *testing.T) {
	t.Helper()
	e.idp.AddUser("user@example.com", "hunter22", "Test User")
	e.secrets = []string{"hunter22"}
	_, _, err := e.run(t, "auth", "login", "--email", "user@example.com")
	require.NoError(t, err)
}

// resetContexts drops the contexts cobra hands down to subcommands on the
// first Execute, so each run sees its own.
func resetContexts(c *cobra.Command) {
	c.SetContext(nil) //nolint:staticcheck
	for _, sub := range c.Commands() {
		resetContexts(sub)
	}
}

// resetFlags clears flag values left over from a previous Execute.
func resetFlags() {
	configPath, logLevel, quiet = "", "", false
	loginEmail, loginInteractive, loginNoBrowser = "", false, false
	signupEmail, signupName = "", ""
	resetEmail, recoveryToken = "", ""
	verifyEmail, verifyToken, resendEmail = "", "", ""
	tokenHeader, statusJSON = false, false
}
