package cmd

import (
	"errors"
	"fmt"
	"time"

	"gatekeep/internal/app"
	"gatekeep/internal/autherr"
	"gatekeep/internal/credential"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	Long: `Sign in with email and password, or through the browser.

With --interactive gatekeep opens the provider's consent page in your
browser and waits on the configured loopback redirect URI for the result.
Use --no-browser on machines without a graphical session; the URL is
printed instead and must be opened on this machine.

Examples:
  gatekeep auth login --email you@example.com
  gatekeep auth login --interactive
  gatekeep auth login --interactive --no-browser`,
	RunE: runAuthLogin,
}

// authSignupCmd represents the auth signup command
var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account with email and password. When the provider requires
email confirmation, follow the link in the confirmation email or run
"gatekeep auth verify-email" with the code it contains, then sign in.`,
	RunE: runAuthSignup,
}

var (
	loginEmail       string
	loginInteractive bool
	loginNoBrowser   bool

	signupEmail string
	signupName  string
)

func init() {
	authLoginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address (prompted when omitted)")
	authLoginCmd.Flags().BoolVar(&loginInteractive, "interactive", false, "Sign in through the browser")
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")

	authSignupCmd.Flags().StringVar(&signupEmail, "email", "", "Email address (prompted when omitted)")
	authSignupCmd.Flags().StringVar(&signupName, "name", "", "Full name stored on the profile")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if loginInteractive {
		return runInteractiveLogin(cmd)
	}

	email, err := requireValue(loginEmail, "Email: ")
	if err != nil {
		return err
	}
	password, err := promptSecret("Password: ")
	if err != nil {
		return err
	}

	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	var snap credential.Snapshot
	err = withSpinner(cmd, "Signing in...", func() error {
		var err error
		snap, err = application.Manager().SignIn(commandContext(cmd), email, password)
		return err
	})
	if err != nil {
		return err
	}

	printSignedIn(cmd, snap)
	return nil
}

func runInteractiveLogin(cmd *cobra.Command) error {
	application, err := loadApplication(cmd, func(cfg *app.Config) {
		if loginNoBrowser {
			cfg.Launch = nil
		}
		cfg.OnURL = func(authURL string) {
			errOut := cmd.ErrOrStderr()
			if loginNoBrowser {
				fmt.Fprintf(errOut, "Open this URL in a browser on this machine to sign in:\n\n  %s\n\n", authURL)
				return
			}
			fmt.Fprintf(errOut, "Opening your browser to sign in. If it does not open, visit:\n\n  %s\n\n", authURL)
		}
	})
	if err != nil {
		return err
	}
	defer application.Close()

	if !application.InteractiveEnabled() {
		return fmt.Errorf("interactive sign-in is not configured: set oauth.client_id and oauth.client_secret")
	}

	authPrintln(cmd, "Waiting for the browser to complete sign-in...")
	snap, err := application.Manager().SignInInteractive(commandContext(cmd))
	if err != nil {
		return err
	}

	printSignedIn(cmd, snap)
	return nil
}

func runAuthSignup(cmd *cobra.Command, args []string) error {
	email, err := requireValue(signupEmail, "Email: ")
	if err != nil {
		return err
	}
	password, err := newPassword()
	if err != nil {
		return err
	}

	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	var snap credential.Snapshot
	err = withSpinner(cmd, "Creating account...", func() error {
		var err error
		snap, err = application.Manager().SignUp(commandContext(cmd), email, password, credential.Profile{FullName: signupName})
		return err
	})
	if errors.Is(err, autherr.ErrConfirmationPending) {
		authPrint(cmd, "Account created for %s.\n", email)
		authPrintln(cmd, autherr.UserMessage(err))
		return nil
	}
	if err != nil {
		return err
	}

	printSignedIn(cmd, snap)
	return nil
}

func printSignedIn(cmd *cobra.Command, snap credential.Snapshot) {
	who := snap.Email
	if snap.DisplayName != "" {
		who = fmt.Sprintf("%s <%s>", snap.DisplayName, snap.Email)
	}
	authPrint(cmd, "%s Signed in as %s.\n", text.FgGreen.Sprint("✓"), who)
	authPrint(cmd, "  Session expires %s.\n", formatExpiryWithDirection(snap.ExpiresAt, time.Now()))
}
