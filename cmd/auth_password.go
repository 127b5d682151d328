package cmd

import (
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authResetPasswordCmd represents the auth reset-password command
var authResetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Email a password recovery link",
	RunE:  runAuthResetPassword,
}

// authUpdatePasswordCmd represents the auth update-password command
var authUpdatePasswordCmd = &cobra.Command{
	Use:   "update-password",
	Short: "Change your password",
	Long: `Change the password of the signed-in user. When recovering an account,
pass the access token from the recovery link with --recovery-token instead
of signing in first.`,
	RunE: runAuthUpdatePassword,
}

// authVerifyEmailCmd represents the auth verify-email command
var authVerifyEmailCmd = &cobra.Command{
	Use:   "verify-email",
	Short: "Confirm your email address with the emailed code",
	RunE:  runAuthVerifyEmail,
}

// authResendVerificationCmd represents the auth resend-verification command
var authResendVerificationCmd = &cobra.Command{
	Use:   "resend-verification",
	Short: "Send the confirmation email again",
	RunE:  runAuthResendVerification,
}

var (
	resetEmail    string
	recoveryToken string
	verifyEmail   string
	verifyToken   string
	resendEmail   string
)

func init() {
	authResetPasswordCmd.Flags().StringVar(&resetEmail, "email", "", "Email address (prompted when omitted)")
	authUpdatePasswordCmd.Flags().StringVar(&recoveryToken, "recovery-token", "", "Access token from a password recovery link")
	authVerifyEmailCmd.Flags().StringVar(&verifyEmail, "email", "", "Email address (prompted when omitted)")
	authVerifyEmailCmd.Flags().StringVar(&verifyToken, "token", "", "Confirmation code from the email (prompted when omitted)")
	authResendVerificationCmd.Flags().StringVar(&resendEmail, "email", "", "Email address (prompted when omitted)")
}

func runAuthResetPassword(cmd *cobra.Command, args []string) error {
	email, err := requireValue(resetEmail, "Email: ")
	if err != nil {
		return err
	}

	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Manager().RequestPasswordReset(commandContext(cmd), email); err != nil {
		return err
	}
	authPrint(cmd, "If an account exists for %s, a recovery link is on its way.\n", email)
	return nil
}

func runAuthUpdatePassword(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	password, err := newPassword()
	if err != nil {
		return err
	}

	if err := application.Manager().UpdatePassword(commandContext(cmd), password, recoveryToken); err != nil {
		return err
	}
	authPrint(cmd, "%s Password updated.\n", text.FgGreen.Sprint("✓"))
	return nil
}

func runAuthVerifyEmail(cmd *cobra.Command, args []string) error {
	email, err := requireValue(verifyEmail, "Email: ")
	if err != nil {
		return err
	}
	token, err := requireValue(verifyToken, "Code: ")
	if err != nil {
		return err
	}

	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	snap, err := application.Manager().VerifyEmail(commandContext(cmd), email, token)
	if err != nil {
		return err
	}
	if snap.IsAuthenticated {
		printSignedIn(cmd, snap)
		return nil
	}
	authPrintln(cmd, "Email address confirmed. You can now sign in.")
	return nil
}

func runAuthResendVerification(cmd *cobra.Command, args []string) error {
	email, err := requireValue(resendEmail, "Email: ")
	if err != nil {
		return err
	}

	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Manager().ResendVerification(commandContext(cmd), email); err != nil {
		return err
	}
	authPrint(cmd, "Confirmation email sent to %s.\n", email)
	return nil
}
