// Package cli implements courtcli, a command line client that talks to the
// booking site directly through the same upstream client and batch
// orchestrator the server uses.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput   bool
	outputFormat string
	configFile   string
	baseURL      string
	sessionFile  string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "courtcli [command] [flags]",
	Short: "courtcli - check tennis court availability from the command line",
	Long: `courtcli logs in to the court booking site, lists the bookable start
times of a venue and probes them for free courts.

Examples:
  # Log in and store the session
  courtcli login --email me@example.com --user-id 012345678

  # List the start times the site offers
  courtcli slots 12 04/12/2024

  # Probe every offered time, or just a few
  courtcli search 12 04/12/2024
  courtcli search 12 04/12/2024 08:00 09:00 -o yaml`,
	PersistentPreRunE: preRunHandlePersistents,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Set up persistent flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "courtsrv.toml", "Path to the service configuration file")
	rootCmd.PersistentFlags().StringVarP(&baseURL, "base-url", "", "", "Booking site URL, overrides the configuration file")
	rootCmd.PersistentFlags().StringVarP(&sessionFile, "session-file", "", "", "Where the login session is kept")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "Output format: table, json or yaml")

	// Add commands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newSlotsCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newVenuesCmd())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if format() == formatJSON {
			printJSON(map[string]string{
				"error": err.Error(),
			})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// preRunHandlePersistents loads the service configuration before any command
// that needs to reach the booking site.
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	if _, err := parseFormat(outputFormat); err != nil {
		return err
	}
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}
	return LoadConfig(configFile, baseURL)
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of courtcli",
		Run: func(cmd *cobra.Command, args []string) {
			path := sessionFile
			if path == "" {
				var err error
				if path, err = DefaultSessionPath(); err != nil {
					path = "unknown"
				}
			}
			if format() == formatTable {
				cmd.Printf("courtcli %s\n", getCLIVersion())
				cmd.Printf("Session file: %s\n", path)
				return
			}
			printValue(cmd.OutOrStdout(), format(), map[string]string{
				"version":      getCLIVersion(),
				"session_file": path,
			})
		},
	}
}

// printJSON prints the given value as JSON to stdout
func printJSON(data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}

// getCLIVersion returns the current CLI version
func getCLIVersion() string {
	return "v0.1.0"
}
