// Package timeslot generates and filters the bookable start times of a venue.
package timeslot

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the upstream's DD/MM/YYYY date format.
const DateLayout = "02/01/2006"

// BookingLength is the length of one probe. The last start of the day is the
// closing time minus this.
const BookingLength = time.Hour

// TimeSlot is one bookable start time on a date.
type TimeSlot struct {
	Date time.Time
	Time string // "HH:MM"
}

// Hours is a venue's opening schedule. Weekend hours apply on Friday and
// Saturday and default to the weekday hours when empty.
type Hours struct {
	Open         string
	Close        string
	StepMinutes  int
	WeekendOpen  string
	WeekendClose string
}

// ParseDate parses a DD/MM/YYYY date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected DD/MM/YYYY", s)
	}
	return d, nil
}

// FormatDate renders d as DD/MM/YYYY.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// ParseClock parses "H:MM" or "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 24 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return hh*60 + mm, nil
}

// FormatClock formats minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// IsWeekend reports whether d falls on the local weekend.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

// Schedule returns every start time on date from the opening time up to the
// last start that still fits a booking before closing.
func Schedule(date time.Time, h Hours) ([]string, error) {
	openAt, closeAt := h.Open, h.Close
	if IsWeekend(date) {
		if h.WeekendOpen != "" {
			openAt = h.WeekendOpen
		}
		if h.WeekendClose != "" {
			closeAt = h.WeekendClose
		}
	}
	from, err := ParseClock(openAt)
	if err != nil {
		return nil, err
	}
	to, err := ParseClock(closeAt)
	if err != nil {
		return nil, err
	}
	step := h.StepMinutes
	if step <= 0 {
		step = 60
	}
	last := to - int(BookingLength/time.Minute)

	times := []string{}
	for m := from; m <= last; m += step {
		times = append(times, FormatClock(m))
	}
	return times, nil
}

// FilterPast drops the times that have already started when date is the same
// calendar day as now. Other dates are returned unchanged.
func FilterPast(date time.Time, times []string, now time.Time) []string {
	date = date.In(now.Location())
	y1, m1, d1 := date.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return times
	}
	current := now.Hour()*60 + now.Minute()
	kept := make([]string, 0, len(times))
	for _, t := range times {
		m, err := ParseClock(t)
		if err != nil || m <= current {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// SuppressHalfHours drops an "HH:30" time when the following full hour is
// also present. Order is preserved.
func SuppressHalfHours(times []string) []string {
	kept := make([]string, 0, len(times))
	for _, t := range times {
		m, err := ParseClock(t)
		if err == nil && m%60 == 30 && slices.Contains(times, FormatClock(m+30)) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// Slots pairs each time with date.
func Slots(date time.Time, times []string) []TimeSlot {
	slots := make([]TimeSlot, 0, len(times))
	for _, t := range times {
		slots = append(slots, TimeSlot{Date: date, Time: t})
	}
	return slots
}

// Upcoming generates the slots of h on date and drops those not after now
// when date is today.
func Upcoming(date time.Time, h Hours, now time.Time) ([]TimeSlot, error) {
	times, err := Schedule(date, h)
	if err != nil {
		return nil, err
	}
	return Slots(date, FilterPast(date, times, now)), nil
}

// Times returns the start time of each slot. Never nil.
func Times(slots []TimeSlot) []string {
	times := make([]string, 0, len(slots))
	for _, s := range slots {
		times = append(times, s.Time)
	}
	return times
}
