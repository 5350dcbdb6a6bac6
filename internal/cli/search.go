package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/batch"
	"github.com/courtcheck/courtcheck/internal/courtsrv/cache"
	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

// searchOutput mirrors the JSON answer of the search endpoint.
type searchOutput struct {
	UnitID  string               `json:"unitId"`
	Date    string               `json:"date"`
	Results availability.Results `json:"results"`
	Cached  bool                 `json:"cached"`
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <venue> <dd/mm/yyyy> [HH:MM...]",
		Short: "Probe start times for free courts",
		Long: `Probe the given start times, or every time the booking site offers when
none are given, and print the free courts per time.

Examples:
  courtcli search 12 04/12/2024
  courtcli search 12 04/12/2024 19:00 20:00 --stream`,
		Args: cobra.MinimumNArgs(2),
		RunE: runSearch,
	}
	cmd.Flags().Bool("stream", false, "Print each time slot as soon as it is probed")
	cmd.Flags().Bool("no-cache", false, "Ignore the configured cache")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	venue, date, times := args[0], args[1], args[2:]
	if _, err := timeslot.ParseDate(date, cfg.Location()); err != nil {
		return err
	}
	for _, t := range times {
		if _, err := timeslot.ParseClock(t); err != nil {
			return err
		}
	}
	stream, _ := cmd.Flags().GetBool("stream")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	s, err := storedSession(cfg.Upstream.BaseURL)
	if err != nil {
		return err
	}
	client, err := upstream.NewClient(upstream.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	if len(times) == 0 {
		if times, err = client.FetchTimeSlots(cmd.Context(), venue, date, s); err != nil {
			return err
		}
	}

	var store cache.Store = cache.Noop{}
	if !noCache {
		store = cache.MustNew(cmd.Context(), cfg.Cache)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	orch := batch.New(client, store, batch.Options{
		GroupSize:  cfg.Batch.GroupSize,
		GroupDelay: cfg.Batch.GroupDelay.Duration,
		TTL:        cfg.Cache.TTL.Duration,
	})

	out := cmd.OutOrStdout()
	table := format() == formatTable
	outcome, err := orch.Search(cmd.Context(), batch.Request{
		Venue:     venue,
		Date:      date,
		TimeSlots: times,
		Session:   s,
	}, func(e batch.Event) {
		if stream && table && e.Type == batch.EventResult {
			printResultLine(out, e.TimeSlot, e.Result)
		}
	})
	if err != nil {
		return fmt.Errorf("search aborted: %w", err)
	}

	if !table {
		return printValue(out, format(), searchOutput{
			UnitID:  venue,
			Date:    date,
			Results: outcome.Results,
			Cached:  outcome.Cached,
		})
	}
	if outcome.Cached {
		warnLabel.Fprintf(out, "cached at %s\n", outcome.CachedAt.In(cfg.Location()).Format("15:04:05"))
	}
	if !stream || outcome.Cached {
		if err := printResultsTable(out, outcome.Results); err != nil {
			return err
		}
	}
	printSummary(out, outcome.Results)
	return nil
}

func printSummary(w io.Writer, results availability.Results) {
	free := 0
	for _, r := range results {
		if r.Available() {
			free++
		}
	}
	if free == 0 {
		warnLabel.Fprintf(w, "No free courts in %d time slots\n", len(results))
		return
	}
	okLabel.Fprintf(w, "Free courts in %d of %d time slots\n", free, len(results))
}
