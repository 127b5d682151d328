package cmd

import (
	"fmt"
	"time"

	"gatekeep/internal/autherr"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your session",
	Long: `Sign in, sign out and inspect the stored session.

Examples:
  gatekeep auth login                     # Sign in with email and password
  gatekeep auth login --interactive       # Sign in through the browser
  gatekeep auth status                    # Show the session
  gatekeep auth token                     # Print a valid access token
  gatekeep auth logout                    # Sign out`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored session",
	Long: `Sign out of the identity provider and remove the session stored on
this machine. The local session is removed even when the provider cannot
be reached.`,
	RunE: runAuthLogout,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runAuthWhoami,
}

// authTokenCmd represents the auth token command
var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long: `Print an access token for the current session, refreshing it first
when it is about to expire. Intended for scripts:

  curl -H "Authorization: $(gatekeep auth token --header)" https://api.example.com`,
	RunE: runAuthToken,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	Long: `Exchange the stored refresh token for a new session now, regardless
of how long the current access token remains valid.`,
	RunE: runAuthRefresh,
}

var tokenHeader bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authTokenCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authResetPasswordCmd)
	authCmd.AddCommand(authUpdatePasswordCmd)
	authCmd.AddCommand(authVerifyEmailCmd)
	authCmd.AddCommand(authResendVerificationCmd)

	authTokenCmd.Flags().BoolVar(&tokenHeader, "header", false, "Print a complete Authorization header value")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	manager := application.Manager()
	if !manager.IsAuthenticated() {
		authPrintln(cmd, "You are not signed in.")
		return nil
	}

	email := manager.Snapshot().Email
	if err := manager.SignOut(commandContext(cmd)); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	authPrint(cmd, "Signed out %s.\n", email)
	return nil
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	snap := application.Manager().Snapshot()
	if !snap.IsAuthenticated {
		return autherr.ErrNotAuthenticated
	}

	out := cmd.OutOrStdout()
	if snap.DisplayName != "" {
		fmt.Fprintf(out, "%s <%s>\n", snap.DisplayName, snap.Email)
	} else {
		fmt.Fprintln(out, snap.Email)
	}
	if !quiet {
		fmt.Fprintf(out, "User ID: %s\n", snap.UserID)
	}
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	manager := application.Manager()
	ctx := commandContext(cmd)

	var value string
	if tokenHeader {
		value, err = manager.AuthorizationHeader(ctx)
	} else {
		value, err = manager.GetAccessToken(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	manager := application.Manager()
	if !manager.IsAuthenticated() {
		return autherr.ErrNotAuthenticated
	}

	err = withSpinner(cmd, "Refreshing session...", func() error {
		_, err := manager.Refresh(commandContext(cmd))
		return err
	})
	if err != nil {
		return err
	}

	snap := manager.Snapshot()
	authPrint(cmd, "%s Session refreshed, expires %s.\n",
		text.FgGreen.Sprint("✓"), formatExpiryWithDirection(snap.ExpiresAt, time.Now()))
	return nil
}
