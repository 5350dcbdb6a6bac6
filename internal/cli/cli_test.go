package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
)

const availableSnippet = `jQuery('#step-2').html('<div class=\"alert-success\"><\/div><span>מגרש: 3<\/span>` +
	`<a href=\"\/b?court_id=101&amp;duration=1.0&amp;end_time=09%3A00&amp;start_time=08%3A00\">x<\/a>');`

const noCourtsSnippet = `jQuery('#step-2').html('<div class=\"alert\">לא נמצאו מגרשים פנויים<\/div>');`

func newFakeSite(t *testing.T, probes *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_session_id", Value: "pre"})
		fmt.Fprint(w, `<html><head><meta name="csrf-token" content="login-token"></head></html>`)
	})
	mux.HandleFunc("POST /users/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_session_id", Value: "sess-1"})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("GET /self_services/court_invitation", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form><input type="hidden" name="authenticity_token" value="search-token"></form>`)
	})
	mux.HandleFunc("POST /self_services/set_time_by_unit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<option value="08:00">08:00</option><option value="09:00">09:00</option>`)
	})
	mux.HandleFunc("POST /self_services/search_court.js", func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("start_hour") == "08:00" {
			fmt.Fprint(w, availableSnippet)
			return
		}
		fmt.Fprint(w, noCourtsSnippet)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { jsonOutput = false })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoginThenSearch(t *testing.T) {
	color.NoColor = true
	var probes atomic.Int32
	srv := newFakeSite(t, &probes)
	dir := t.TempDir()
	common := []string{
		"--config", filepath.Join(dir, "missing.toml"),
		"--base-url", srv.URL,
		"--session-file", filepath.Join(dir, "session.yaml"),
	}

	out, err := runCLI(t, append([]string{"login", "--email", "ok@example.com", "--user-id", "123", "-o", "json"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", gjson.Get(out, "sessionId").String())
	assert.Equal(t, "search-token", gjson.Get(out, "authenticityToken").String())

	stored, err := ReadSession(filepath.Join(dir, "session.yaml"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL, stored.BaseURL)

	out, err = runCLI(t, append([]string{"search", "12", "04/12/2024", "-o", "json"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, int32(2), probes.Load())
	assert.Equal(t, "available", gjson.Get(out, "results.08:00.status").String())
	assert.Equal(t, "no-courts", gjson.Get(out, "results.09:00.status").String())
	assert.False(t, gjson.Get(out, "cached").Bool())

	out, err = runCLI(t, append([]string{"search", "12", "04/12/2024", "09:00", "-o", "table"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "No free courts in 1 time slots")
}

func TestSearchWithoutSession(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "search", "12", "04/12/2024", "08:00",
		"--config", filepath.Join(dir, "missing.toml"),
		"--base-url", "http://127.0.0.1:1",
		"--session-file", filepath.Join(dir, "none.yaml"),
		"-o", "table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "courtcli login")
}

func TestSearchRejectsBadArgs(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--config", filepath.Join(dir, "missing.toml"), "--base-url", "http://127.0.0.1:1", "-o", "table"}
	_, err := runCLI(t, append([]string{"search", "12", "2024-12-04"}, common...)...)
	assert.Error(t, err)
	_, err = runCLI(t, append([]string{"search", "12", "04/12/2024", "25:00"}, common...)...)
	assert.Error(t, err)
}

func TestLoadConfigRequiresSource(t *testing.T) {
	err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--base-url")
}

func TestLoadConfigBaseURLOverride(t *testing.T) {
	file := filepath.Join(t.TempDir(), "courtsrv.toml")
	require.NoError(t, os.WriteFile(file, []byte(`format_version = "0.1.0"
[upstream]
base_url = "https://courts.example"
`), 0o600))

	require.NoError(t, LoadConfig(file, ""))
	assert.Equal(t, "https://courts.example", GetConfig().Upstream.BaseURL)

	require.NoError(t, LoadConfig(file, "http://localhost:9000/"))
	assert.Equal(t, "http://localhost:9000", GetConfig().Upstream.BaseURL)
}

func TestSessionFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "session.yaml")
	f := &SessionFile{BaseURL: "https://courts.example", Email: "me@example.com", SessionID: "s", AuthenticityToken: "tok"}
	require.NoError(t, f.WriteSession(file))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := ReadSession(file)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, "s", got.Session().SessionToken)

	require.NoError(t, os.WriteFile(file, []byte("session_id: s\n"), 0o600))
	_, err = ReadSession(file)
	assert.ErrorContains(t, err, "incomplete")
}

func TestPrintValueYAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	r := availability.Results{"08:00": availability.FromSlots([]availability.CourtSlot{
		{CourtNumber: 3, CourtID: 101, Duration: 1, StartTime: "08:00", EndTime: "09:00"},
	})}
	require.NoError(t, printValue(&buf, formatYAML, r))
	assert.Contains(t, buf.String(), "courtNumber: 3")
	assert.Contains(t, buf.String(), "startTime:")
	assert.NotContains(t, buf.String(), "starttime")
}

func TestPrintResultsTable(t *testing.T) {
	color.NoColor = true
	suggested := availability.NoCourts()
	suggested.SuggestedTimes = []string{"10:00"}
	results := availability.Results{
		"09:00": suggested,
		"08:00": availability.FromSlots([]availability.CourtSlot{{CourtNumber: 4}, {CourtNumber: 2}}),
		"11:00": availability.ErrorResult("upstream returned 503 Service Unavailable"),
	}

	var buf bytes.Buffer
	require.NoError(t, printResultsTable(&buf, results))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Regexp(t, `^08:00\s+2,4\s+available$`, string(lines[1]))
	assert.Regexp(t, `^09:00\s+try 10:00\s+no-courts$`, string(lines[2]))
	assert.Regexp(t, `^11:00\s+-\s+error: upstream returned 503`, string(lines[3]))
}

func TestParseFormat(t *testing.T) {
	f, err := parseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, formatYAML, f)
	_, err = parseFormat("xml")
	assert.Error(t, err)
}

func TestVenueSchedules(t *testing.T) {
	cfg, err := config.ParseConfig(`format_version = "0.1.0"
time_zone = "UTC"
[upstream]
base_url = "https://courts.example"
[[venues]]
id = "12"
name = "Center"
open = "07:00"
close = "10:00"
`)
	require.NoError(t, err)
	now := time.Date(2024, 12, 4, 8, 10, 0, 0, time.UTC)

	rows, date, err := venueSchedules(cfg, "", now)
	require.NoError(t, err)
	assert.Equal(t, "04/12/2024", date)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"09:00"}, rows[0].TimeSlots)

	rows, _, err = venueSchedules(cfg, "05/12/2024", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"07:00", "08:00", "09:00"}, rows[0].TimeSlots)

	_, _, err = venueSchedules(cfg, "5-12-2024", now)
	assert.Error(t, err)
}
