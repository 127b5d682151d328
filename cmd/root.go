package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"gatekeep/internal/autherr"
	"gatekeep/internal/config"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a session is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates sign-in was attempted and failed.
	ExitCodeAuthFailed = 3
)

// Global flags.
var (
	configPath string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gatekeep",
	Short: "Sign in to your identity provider from the terminal",
	Long: `gatekeep keeps a signed-in session with a hosted identity provider.

It signs you in with email and password or through your browser, stores
the session on this machine and refreshes it before it expires, so other
tools can ask for a valid access token at any time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic exit code.
// SIGINT and SIGTERM cancel the command context, so an interactive login
// ends with ErrCancelled instead of killing the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command tree under ctx and returns the exit code.
func execute(ctx context.Context, stderr io.Writer) int {
	rootCmd.SetVersionTemplate(`{{printf "gatekeep version %s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(stderr, err)
	}
	return getExitCode(err)
}

// printError writes err the way a user should read it.
func printError(w io.Writer, err error) {
	var configErr *config.ConfigurationError
	if errors.As(err, &configErr) {
		fmt.Fprintln(w, configErr.DetailedError())
		return
	}
	fmt.Fprintf(w, "Error: %s\n", autherr.UserMessage(err))
	if errors.Is(err, autherr.ErrNotAuthenticated) {
		fmt.Fprintln(w, "Run: gatekeep auth login")
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if errors.Is(err, autherr.ErrNotAuthenticated) {
		return ExitCodeAuthRequired
	}

	var (
		providerErr *autherr.ProviderError
		redirectErr *autherr.RedirectError
		timeoutErr  *autherr.TimeoutError
	)
	switch {
	case errors.As(err, &providerErr) && providerErr.Terminal():
		return ExitCodeAuthFailed
	case errors.As(err, &redirectErr),
		errors.As(err, &timeoutErr),
		errors.Is(err, autherr.ErrCancelled):
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.config/gatekeep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
