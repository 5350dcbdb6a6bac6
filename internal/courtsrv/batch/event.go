package batch

import (
	"encoding/json"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
)

// EventType tags an Event on the wire.
type EventType string

const (
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one element of a run's result sequence: a result per time slot,
// then exactly one terminal event, complete or error.
type Event struct {
	Type     EventType
	TimeSlot string
	Result   availability.Result
	Venue    string
	Date     string
	Results  availability.Results
	Cached   bool
	Error    string
}

// Final reports whether e terminates the sequence.
func (e Event) Final() bool {
	return e.Type != EventResult
}

type resultEvent struct {
	Type     EventType           `json:"type"`
	TimeSlot string              `json:"timeSlot"`
	Data     availability.Result `json:"data"`
}

type completeEvent struct {
	Type    EventType            `json:"type"`
	UnitID  string               `json:"unitId"`
	Date    string               `json:"date"`
	Results availability.Results `json:"results"`
	Cached  bool                 `json:"cached"`
}

type errorEvent struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}

// MarshalJSON renders the event in its wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventResult:
		return json.Marshal(resultEvent{Type: e.Type, TimeSlot: e.TimeSlot, Data: e.Result})
	case EventComplete:
		results := e.Results
		if results == nil {
			results = availability.Results{}
		}
		return json.Marshal(completeEvent{Type: e.Type, UnitID: e.Venue, Date: e.Date, Results: results, Cached: e.Cached})
	default:
		return json.Marshal(errorEvent{Type: EventError, Error: e.Error})
	}
}
