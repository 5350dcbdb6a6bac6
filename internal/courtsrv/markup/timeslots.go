package markup

import (
	"regexp"
	"slices"
)

// The time-slot endpoint answers with option tags whose escaping varies
// between plain HTML, a JS string and a JS string inside a JS string.
var timeValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`value="(\d{1,2}:\d{2})"`),
	regexp.MustCompile(`value=\\"(\d{1,2}:\d{2})\\"`),
	regexp.MustCompile(`value=\\\\\\"(\d{1,2}:\d{2})\\\\\\"`),
}

// TimeValues extracts the "HH:MM" option values from a time-slot response.
// Patterns are tried in order and the first one that matches anything wins.
// Values are de-duplicated in first-seen order.
func TimeValues(raw string) []string {
	for _, re := range timeValuePatterns {
		matches := re.FindAllStringSubmatch(raw, -1)
		if len(matches) == 0 {
			continue
		}
		times := make([]string, 0, len(matches))
		for _, m := range matches {
			t := padTime(m[1])
			if !slices.Contains(times, t) {
				times = append(times, t)
			}
		}
		return times
	}
	return []string{}
}
