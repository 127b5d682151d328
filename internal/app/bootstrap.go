package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"gatekeep/internal/config"
	"gatekeep/internal/session"
	"gatekeep/pkg/logging"
)

// Application owns the configuration and the services built from it.
type Application struct {
	config   *Config
	settings config.Config
	services *Services

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewApplication loads configuration, initialises logging and builds the
// session stack. A configuration problem is returned as a
// *config.ConfigurationError.
func NewApplication(cfg *Config) (*Application, error) {
	var settings config.Config
	if cfg.Settings != nil {
		settings = *cfg.Settings
	} else {
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}
	if cfg.LogLevel != "" {
		settings.Logging.Level = cfg.LogLevel
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	initLogging(settings.Logging, cfg)

	services, err := InitializeServices(settings, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		settings: settings,
		services: services,
	}, nil
}

func initLogging(lc config.LoggingConfig, cfg *Config) {
	// Validate has already rejected unknown levels.
	level, _ := logging.ParseLevel(lc.Level)

	var output io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		output = cfg.LogOutput
	}
	if cfg.Quiet {
		output = io.Discard
	}

	format := logging.Format(lc.Format)
	if format == "" {
		format = logging.FormatText
	}
	logging.Init(logging.Config{Level: level, Format: format, Output: output})
}

// Manager returns the session manager.
func (a *Application) Manager() *session.Manager {
	return a.services.Manager
}

// Services returns the components built at startup.
func (a *Application) Services() *Services {
	return a.services
}

// Settings returns the effective configuration.
func (a *Application) Settings() config.Config {
	return a.settings
}

// InteractiveEnabled reports whether browser sign-in is configured.
func (a *Application) InteractiveEnabled() bool {
	return a.services.Listener != nil
}

// StartWatch follows external changes to the credential file when
// session.watch is enabled. It is a no-op otherwise. Close stops it.
func (a *Application) StartWatch(ctx context.Context) {
	if !a.settings.Session.Watch || a.stopWatch != nil {
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	a.watchDone = make(chan struct{})

	go func() {
		defer close(a.watchDone)
		if err := a.services.Manager.WatchStore(watchCtx); err != nil && watchCtx.Err() == nil {
			logging.Warn("Bootstrap", "Credential watch stopped: %v", err)
		}
	}()
}

// Close stops background work started by the application.
func (a *Application) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
		a.stopWatch = nil
	}
}
