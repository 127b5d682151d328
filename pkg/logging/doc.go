// Package logging provides subsystem-tagged structured logging for gatekeep,
// built on the standard log/slog package.
//
// # Log Levels
//   - **Debug**: flow details (listener bound, refresh started)
//   - **Info**: state changes (signed in, credential saved, signed out)
//   - **Warn**: degraded operation (store unavailable, transient refresh failure)
//   - **Error**: failures surfaced to the user
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Session", "Signed in as %s", email)
//	logging.Error("Session", err, "Refresh failed")
//
// Components that emit audit events with several attributes use a
// subsystem-bound *slog.Logger instead:
//
//	log := logging.Logger("CredentialStore")
//	log.Info("credential saved", "event", "credential_saved", "has_refresh_token", true)
//
// # Subsystems
//
//   - **Config**: configuration loading and validation
//   - **Identity**: identity provider REST calls
//   - **Loopback**: the local OAuth redirect listener
//   - **CredentialStore**: durable credential persistence
//   - **Session**: session state machine and refresh
//   - **CLI**: command execution
//
// # Secrets
//
// Access tokens, refresh tokens, passwords, authorization codes and state
// values are never passed to the logger. Log lengths or presence flags instead.
package logging
