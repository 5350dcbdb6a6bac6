package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

// newLoginCmd creates and returns a new login command
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session on the booking site",
		Long: `Login to the booking site and store the session cookie and CSRF token
for the slots and search commands.

Example:
  courtcli login --email me@example.com --user-id 012345678`,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("user-id", "", "Account user id")
	cmd.MarkFlagRequired("email")
	return cmd
}

// runLogin handles the login command execution
func runLogin(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	email, _ := cmd.Flags().GetString("email")
	userID, _ := cmd.Flags().GetString("user-id")

	client, err := upstream.NewClient(upstream.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	s, err := client.Login(cmd.Context(), email, userID)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	f := &SessionFile{
		BaseURL:           cfg.Upstream.BaseURL,
		Email:             email,
		SessionID:         s.SessionToken,
		AuthenticityToken: s.CSRFToken,
	}
	if err := f.WriteSession(sessionFile); err != nil {
		return err
	}

	if format() != formatTable {
		return printValue(cmd.OutOrStdout(), format(), s)
	}
	okLabel.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", cfg.Upstream.BaseURL, email)
	return nil
}

// storedSession reads the session file and checks it belongs to the
// configured site.
func storedSession(baseURL string) (upstream.Session, error) {
	f, err := ReadSession(sessionFile)
	if err != nil {
		return upstream.Session{}, err
	}
	if f.BaseURL != "" && f.BaseURL != baseURL {
		return upstream.Session{}, fmt.Errorf("stored session belongs to %s; run \"courtcli login\" again", f.BaseURL)
	}
	return f.Session(), nil
}
