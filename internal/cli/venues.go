package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
)

type venueRow struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	TimeSlots []string `json:"timeSlots"`
}

func newVenuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venues",
		Short: "List the configured venues and their remaining start times",
		Args:  cobra.NoArgs,
		RunE:  runVenues,
	}
	cmd.Flags().String("date", "", "Date as dd/mm/yyyy, defaults to today")
	return cmd
}

func runVenues(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	d, _ := cmd.Flags().GetString("date")
	rows, date, err := venueSchedules(cfg, d, time.Now())
	if err != nil {
		return err
	}

	if format() != formatTable {
		return printValue(cmd.OutOrStdout(), format(), map[string]any{
			"date":   date,
			"venues": rows,
		})
	}
	if len(rows) == 0 {
		warnLabel.Fprintln(cmd.OutOrStdout(), "No venues configured")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tTIMES (%s)\n", date)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, strings.Join(r.TimeSlots, " "))
	}
	return tw.Flush()
}

// venueSchedules computes the start times of every configured venue on the
// given day, dropping times already past when the day is today.
func venueSchedules(cfg *config.ConfigParam, day string, now time.Time) ([]venueRow, string, error) {
	loc := cfg.Location()
	now = now.In(loc)
	date := now
	if day != "" {
		d, err := timeslot.ParseDate(day, loc)
		if err != nil {
			return nil, "", err
		}
		date = d
	}

	rows := make([]venueRow, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		slots, err := timeslot.Upcoming(date, v.Hours(), now)
		if err != nil {
			return nil, "", err
		}
		rows = append(rows, venueRow{
			ID:        v.ID,
			Name:      v.Name,
			TimeSlots: timeslot.Times(slots),
		})
	}
	return rows, timeslot.FormatDate(date), nil
}
