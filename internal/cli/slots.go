package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

func newSlotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots <venue> <dd/mm/yyyy>",
		Short: "List the start times the booking site offers for a venue and date",
		Args:  cobra.ExactArgs(2),
		RunE:  runSlots,
	}
}

func runSlots(cmd *cobra.Command, args []string) error {
	venue, date := args[0], args[1]
	if _, err := timeslot.ParseDate(date, GetConfig().Location()); err != nil {
		return err
	}
	times, err := fetchTimeSlots(cmd, venue, date)
	if err != nil {
		return err
	}
	if format() != formatTable {
		return printValue(cmd.OutOrStdout(), format(), map[string]any{
			"unitId":    venue,
			"date":      date,
			"timeSlots": times,
		})
	}
	if len(times) == 0 {
		warnLabel.Fprintln(cmd.OutOrStdout(), "No start times offered")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(times, " "))
	return nil
}

func fetchTimeSlots(cmd *cobra.Command, venue, date string) ([]string, error) {
	cfg := GetConfig()
	s, err := storedSession(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, err
	}
	client, err := upstream.NewClient(upstream.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return client.FetchTimeSlots(cmd.Context(), venue, date, s)
}
