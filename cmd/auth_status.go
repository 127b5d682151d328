package cmd

import (
	"encoding/json"
	"time"

	"gatekeep/internal/session"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session",
	Long: `Show the stored session without contacting the identity provider.

Examples:
  gatekeep auth status          # Human-readable table
  gatekeep auth status --json   # Machine-readable snapshot`,
	RunE: runAuthStatus,
}

var statusJSON bool

func init() {
	authStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the session snapshot as JSON")
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	manager := application.Manager()
	snap := manager.Snapshot()

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)

	t.AppendRow(table.Row{text.FgHiCyan.Sprint("Status"), formatState(manager.State())})
	if snap.IsAuthenticated {
		if snap.DisplayName != "" {
			t.AppendRow(table.Row{text.FgHiCyan.Sprint("Name"), snap.DisplayName})
		}
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Email"), snap.Email})
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("User ID"), snap.UserID})
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Expires"), formatExpiryWithDirection(snap.ExpiresAt, time.Now())})
		if snap.CanRefresh {
			t.AppendRow(table.Row{text.FgHiCyan.Sprint("Refresh"), text.FgGreen.Sprint("Available")})
		} else {
			t.AppendRow(table.Row{text.FgHiCyan.Sprint("Refresh"), text.FgYellow.Sprint("Not available (sign in again on expiry)")})
		}
	}
	t.AppendRow(table.Row{text.FgHiCyan.Sprint("Provider"), application.Settings().Provider.URL})
	if application.InteractiveEnabled() {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Redirect"), application.Services().Listener.RedirectURI()})
	}
	t.Render()

	if !snap.IsAuthenticated {
		authPrintln(cmd, "Run: gatekeep auth login")
	}
	return nil
}

func formatState(state session.State) string {
	switch state {
	case session.Authenticated:
		return text.FgGreen.Sprint("Authenticated")
	case session.Expiring:
		return text.FgYellow.Sprint("Expiring (refreshed on next use)")
	case session.Refreshing:
		return text.FgYellow.Sprint("Refreshing")
	default:
		return text.FgRed.Sprint("Not signed in")
	}
}
