// Package markup holds every piece of code that knows the shape of the
// upstream booking site's HTML and script fragments. Markup changes upstream
// should only ever require changes here.
//
// Nothing in this package returns an error for malformed input: unexpected
// markup degrades to an empty or "no-courts" answer.
package markup

import (
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
)

// Classification is the coarse reading of a probe response before any court
// entries are extracted.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassAvailable
	ClassNoCourts
)

func (c Classification) String() string {
	switch c {
	case ClassAvailable:
		return "available"
	case ClassNoCourts:
		return "no-courts"
	default:
		return "unknown"
	}
}

var (
	// jQuery('#step-2').html('<escaped html>');
	scriptPayloadRe = regexp.MustCompile(`(?s)jQuery\(\s*["']#[^"']*["']\s*\)\s*\.html\(\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")\s*\)`)

	successMarkerRe = regexp.MustCompile(`class\s*=\s*["'][^"']*\bsuccess\b`)

	// "מגרש: <n>" followed, possibly after other markup, by a link whose query
	// string starts at court_id. The gap before n may hold tags or any
	// spelling of a non-breaking space.
	courtEntryRe = regexp.MustCompile(`(?s)מגרש:(?:\s|\x{00A0}|&nbsp;|&#160;|&#xa0;|<[^>]*>)*(\d+).*?court_id=([^"'\s<>\\]*)`)

	// <h3>10:00-11:00</h3>, only the start time is kept.
	suggestedTimeRe = regexp.MustCompile(`(?i)<h[1-6][^>]*>\s*(\d{1,2}:\d{2})\s*[-–]\s*\d{1,2}:\d{2}\s*</h[1-6]>`)

	scriptUnescaper = strings.NewReplacer(
		`\\`, `\`,
		`\n`, "\n",
		`\t`, "\t",
		`\"`, `"`,
		`\'`, `'`,
		`\/`, `/`,
	)
)

// noCourtsMarkers are the texts and classes the upstream uses when a search
// found nothing.
var noCourtsMarkers = []string{
	"נסה מועד אחר",
	"אין מגרשים פנויים",
	"לא נמצאו מגרשים",
	"alert-danger",
	"no-results",
}

// ParseAvailability converts a raw probe response into a Result. It is a pure
// function of its input.
func ParseAvailability(raw string) availability.Result {
	html := norm.NFC.String(UnwrapScript(raw))

	if Classify(html) == ClassAvailable {
		if slots := CourtSlots(html); len(slots) > 0 {
			return availability.FromSlots(slots)
		}
		// the success marker is not proof of slots; fall through
	}

	res := availability.NoCourts()
	res.SuggestedTimes = SuggestedTimes(html)
	return res
}

// UnwrapScript extracts and unescapes the HTML injected by a
// jQuery('#id').html('...') snippet. Returns "" if raw has no such snippet.
func UnwrapScript(raw string) string {
	m := scriptPayloadRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	payload := m[1]
	if payload == "" {
		payload = m[2]
	}
	return scriptUnescaper.Replace(payload)
}

// Classify reads the markers in html. A success marker always wins over
// failure markers.
func Classify(html string) Classification {
	if successMarkerRe.MatchString(html) {
		return ClassAvailable
	}
	for _, marker := range noCourtsMarkers {
		if strings.Contains(html, marker) {
			return ClassNoCourts
		}
	}
	return ClassUnknown
}

// CourtSlots extracts every court entry in document order. Entries whose link
// lacks any of court_id, duration, start_time or end_time are skipped.
func CourtSlots(html string) []availability.CourtSlot {
	var slots []availability.CourtSlot
	for _, m := range courtEntryRe.FindAllStringSubmatch(html, -1) {
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slot, ok := courtSlotFromQuery("court_id=" + m[2])
		if !ok {
			continue
		}
		slot.CourtNumber = number
		slots = append(slots, slot)
	}
	return slots
}

func courtSlotFromQuery(query string) (availability.CourtSlot, bool) {
	var slot availability.CourtSlot
	params := map[string]string{}
	for _, pair := range strings.Split(strings.ReplaceAll(query, "&amp;", "&"), "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		params[k] = decodeQueryValue(v)
	}

	id, err := strconv.Atoi(params["court_id"])
	if err != nil {
		return slot, false
	}
	duration, err := strconv.ParseFloat(params["duration"], 64)
	if err != nil {
		return slot, false
	}
	start, end := params["start_time"], params["end_time"]
	if start == "" || end == "" {
		return slot, false
	}

	slot.CourtID = id
	slot.Duration = duration
	slot.StartTime = start
	slot.EndTime = end
	return slot, true
}

func decodeQueryValue(v string) string {
	v = strings.ReplaceAll(v, "+", " ")
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}

// SuggestedTimes returns the start times of the alternative slots the upstream
// proposes, de-duplicated in first-seen order. Nil when there are none.
func SuggestedTimes(html string) []string {
	var times []string
	for _, m := range suggestedTimeRe.FindAllStringSubmatch(html, -1) {
		t := padTime(m[1])
		if !slices.Contains(times, t) {
			times = append(times, t)
		}
	}
	return times
}

// padTime turns "8:00" into "08:00".
func padTime(t string) string {
	if len(t) == 4 {
		return "0" + t
	}
	return t
}
