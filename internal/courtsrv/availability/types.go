// Package availability defines the per-slot availability records produced by
// the markup parser and carried through the orchestrator, cache and gateway.
package availability

import (
	"slices"
)

// Status is the outcome of checking one time slot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusNoCourts  Status = "no-courts"
	StatusError     Status = "error"
)

// CourtSlot is one bookable court entry scraped from a probe response.
// Several slots may share a court number.
type CourtSlot struct {
	CourtNumber int     `json:"courtNumber"`
	CourtID     int     `json:"courtId"`
	Duration    float64 `json:"duration"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
}

// Result is the availability of one (venue, date, time) triple.
// SuggestedTimes is nil, and omitted from JSON, unless the upstream proposed
// alternatives.
type Result struct {
	Status         Status      `json:"status"`
	Courts         []int       `json:"courts"`
	Slots          []CourtSlot `json:"slots"`
	SuggestedTimes []string    `json:"suggestedTimes,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Results maps "HH:MM" to the availability at that time.
type Results map[string]Result

// NoCourts returns an empty no-courts result.
func NoCourts() Result {
	return Result{
		Status: StatusNoCourts,
		Courts: []int{},
		Slots:  []CourtSlot{},
	}
}

// ErrorResult records a failed probe. Callers should read it as "unknown",
// not "unavailable".
func ErrorResult(msg string) Result {
	return Result{
		Status: StatusError,
		Courts: []int{},
		Slots:  []CourtSlot{},
		Error:  msg,
	}
}

// FromSlots builds an available result, deriving Courts as the distinct court
// numbers in ascending numeric order. No slots yields a no-courts result.
func FromSlots(slots []CourtSlot) Result {
	if len(slots) == 0 {
		return NoCourts()
	}
	courts := make([]int, 0, len(slots))
	for _, s := range slots {
		if !slices.Contains(courts, s.CourtNumber) {
			courts = append(courts, s.CourtNumber)
		}
	}
	slices.Sort(courts)
	return Result{
		Status: StatusAvailable,
		Courts: courts,
		Slots:  slots,
	}
}

func (r Result) Available() bool {
	return r.Status == StatusAvailable
}
