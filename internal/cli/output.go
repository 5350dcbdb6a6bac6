package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func parseFormat(f string) (string, error) {
	switch f := strings.ToLower(f); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", f)
	}
}

// format returns the effective output format. -j wins over -o.
func format() string {
	if jsonOutput {
		return formatJSON
	}
	f, err := parseFormat(outputFormat)
	if err != nil {
		return formatTable
	}
	return f
}

// printValue writes v as JSON or YAML. YAML keys follow the JSON field names.
func printValue(w io.Writer, f string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if f != formatYAML {
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	y, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(y)
	return err
}

// sortedTimes returns the keys of results in clock order.
func sortedTimes(results availability.Results) []string {
	times := make([]string, 0, len(results))
	for t := range results {
		times = append(times, t)
	}
	slices.Sort(times)
	return times
}

// printResultsTable writes one row per time slot with its courts.
func printResultsTable(w io.Writer, results availability.Results) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOURTS\tSTATUS")
	for _, t := range sortedTimes(results) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t, courtsCell(results[t]), statusCell(results[t]))
	}
	return tw.Flush()
}

func courtsCell(r availability.Result) string {
	if len(r.Courts) > 0 {
		nums := make([]string, len(r.Courts))
		for i, c := range r.Courts {
			nums[i] = strconv.Itoa(c)
		}
		return strings.Join(nums, ",")
	}
	if len(r.SuggestedTimes) > 0 {
		return "try " + strings.Join(r.SuggestedTimes, ",")
	}
	return "-"
}

func statusCell(r availability.Result) string {
	switch r.Status {
	case availability.StatusAvailable:
		return okLabel.Sprint(string(r.Status))
	case availability.StatusError:
		return errorLabel.Sprintf("%s: %s", r.Status, r.Error)
	default:
		return warnLabel.Sprint(string(r.Status))
	}
}

// printResultLine writes a single streamed result.
func printResultLine(w io.Writer, at string, r availability.Result) {
	fmt.Fprintf(w, "%s  %s  %s\n", at, statusCell(r), courtsCell(r))
}
