package app

import (
	"io"

	"gatekeep/internal/config"
	"gatekeep/internal/loopback"
)

// Config holds the options a command passes to NewApplication.
type Config struct {
	// ConfigPath is the config file to load. Empty selects the default path.
	ConfigPath string

	// LogLevel overrides logging.level when set.
	LogLevel string

	// Quiet discards all log output.
	Quiet bool

	// LogOutput receives log output. Defaults to os.Stderr.
	LogOutput io.Writer

	// Launch opens the authorization URL during interactive sign-in. Nil
	// leaves it to OnURL, e.g. for --no-browser.
	Launch loopback.Launcher

	// OnURL is told the authorization URL before the browser is launched.
	OnURL func(authURL string)

	// Settings, when set, is used instead of loading ConfigPath.
	Settings *config.Config
}

// NewConfig creates an application configuration that opens the system
// browser for interactive sign-in.
func NewConfig(configPath, logLevel string, quiet bool) *Config {
	return &Config{
		ConfigPath: configPath,
		LogLevel:   logLevel,
		Quiet:      quiet,
		Launch:     loopback.OpenBrowser,
	}
}
