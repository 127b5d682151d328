package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gatekeep/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/gatekeep"
	configFileName = "config.yaml"
)

// Overridable in tests.
var (
	osUserHomeDir = os.UserHomeDir
	lookupEnv     = os.LookupEnv
)

// envOverride maps environment variables onto a config field. The first
// non-empty variable in names wins.
type envOverride struct {
	names []string
	apply func(cfg *Config, value string)
}

var envOverrides = []envOverride{
	{
		names: []string{"GATEKEEP_PROVIDER_URL", "SUPABASE_URL"},
		apply: func(cfg *Config, v string) { cfg.Provider.URL = v },
	},
	{
		names: []string{"GATEKEEP_API_KEY", "SUPABASE_API_KEY"},
		apply: func(cfg *Config, v string) { cfg.Provider.APIKey = v },
	},
	{
		names: []string{"GATEKEEP_OAUTH_CLIENT_ID", "GOOGLE_CLIENT_ID"},
		apply: func(cfg *Config, v string) { cfg.OAuth.ClientID = v },
	},
	{
		names: []string{"GATEKEEP_OAUTH_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"},
		apply: func(cfg *Config, v string) { cfg.OAuth.ClientSecret = v },
	},
	{
		names: []string{"GATEKEEP_OAUTH_REDIRECT_URI", "GOOGLE_REDIRECT_URI"},
		apply: func(cfg *Config, v string) { cfg.OAuth.RedirectURI = v },
	},
	{
		names: []string{"GATEKEEP_CREDENTIAL_FILE"},
		apply: func(cfg *Config, v string) { cfg.Session.CredentialFile = v },
	},
	{
		names: []string{"GATEKEEP_LOG_LEVEL"},
		apply: func(cfg *Config, v string) { cfg.Logging.Level = v },
	},
}

// DefaultConfigPath returns ~/.config/gatekeep/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadConfig reads the YAML file at path on top of the defaults and applies
// environment overrides. An empty path selects DefaultConfigPath. A missing
// file yields the defaults; a malformed one is a ConfigurationError.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	config := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config file at %s, using defaults", path)
	case err != nil:
		return Config{}, &ConfigurationError{
			FilePath:  path,
			ErrorType: "io",
			Message:   err.Error(),
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, parseError(path, err)
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", path)
	}

	applyEnvOverrides(&config)
	return config, nil
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		for _, name := range o.names {
			if v, ok := lookupEnv(name); ok && strings.TrimSpace(v) != "" {
				o.apply(cfg, strings.TrimSpace(v))
				logging.Debug("ConfigLoader", "Applied override from %s", name)
				break
			}
		}
	}
}

func parseError(path string, err error) *ConfigurationError {
	ce := &ConfigurationError{
		FilePath:  path,
		ErrorType: "parse",
		Message:   "invalid YAML",
		Details:   err.Error(),
		Suggestions: []string{
			"Check indentation and that durations are written like 30s or 2m",
		},
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		ce.Message = "unexpected value type"
	}
	return ce
}
