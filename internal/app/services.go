package app

import (
	"fmt"
	"net/http"

	"gatekeep/internal/config"
	"gatekeep/internal/credential"
	"gatekeep/internal/identity"
	"gatekeep/internal/loopback"
	"gatekeep/internal/session"
	"gatekeep/pkg/logging"
)

// Services holds the components built from the configuration.
type Services struct {
	Identity *identity.Client

	// Exchanger and Listener are nil when interactive sign-in is not
	// configured.
	Exchanger *identity.CodeExchanger
	Listener  *loopback.Listener

	Store   *credential.FileStore
	Manager *session.Manager
}

// InitializeServices builds the session stack. It loads the stored credential
// but makes no network call.
func InitializeServices(settings config.Config, cfg *Config) (*Services, error) {
	httpClient := &http.Client{Timeout: settings.Provider.Timeout}

	services := &Services{}
	clientOpts := []identity.ClientOption{
		identity.WithHTTPClient(httpClient),
		identity.WithIDTokenProvider(settings.OAuth.Provider),
	}

	if settings.OAuth.Enabled() {
		exchanger, err := identity.NewCodeExchanger(identity.OAuthConfig{
			ClientID:      settings.OAuth.ClientID,
			ClientSecret:  settings.OAuth.ClientSecret,
			RedirectURL:   settings.OAuth.RedirectURI,
			AuthURL:       settings.OAuth.AuthURL,
			TokenURL:      settings.OAuth.TokenURL,
			Scopes:        settings.OAuth.Scopes,
			VerifyIDToken: settings.OAuth.VerifyIDToken,
			Issuer:        settings.OAuth.Issuer,
			JWKSURL:       settings.OAuth.JWKSURL,
		}, identity.WithExchangerHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to create OAuth code exchanger: %w", err)
		}

		listener, err := loopback.New(loopback.Config{
			RedirectURI: settings.OAuth.RedirectURI,
			Timeout:     settings.OAuth.CallbackTimeout,
			Launch:      cfg.Launch,
			OnURL:       cfg.OnURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create loopback listener: %w", err)
		}

		services.Exchanger = exchanger
		services.Listener = listener
		clientOpts = append(clientOpts, identity.WithCodeExchanger(exchanger))
		logging.Debug("Services", "Interactive sign-in enabled, redirect URI %s", listener.RedirectURI())
	}

	client, err := identity.NewClient(settings.Provider.URL, settings.Provider.APIKey, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}
	services.Identity = client

	credentialPath := settings.Session.CredentialFile
	if credentialPath == "" {
		credentialPath, err = credential.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := credential.NewFileStore(credentialPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}
	services.Store = store

	managerCfg := session.Config{
		Client:       client,
		Store:        store,
		SafetyMargin: settings.Session.SafetyMargin,
	}
	if services.Listener != nil {
		managerCfg.Authorizer = services.Listener
		managerCfg.AuthCodeURL = services.Exchanger.AuthCodeURL
	}
	manager, err := session.New(managerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	services.Manager = manager

	logging.Debug("Services", "Session stack ready, credential file %s", store.Path())
	return services, nil
}
