package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/batch"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

// SearchRequest is the body of the batch search route.
type SearchRequest struct {
	UnitID            string   `json:"unitId" validate:"required"`
	Date              string   `json:"date" validate:"required,ddmmyyyy"`
	TimeSlots         []string `json:"timeSlots" validate:"required,dive,hhmm"`
	SessionID         string   `json:"sessionId" validate:"required"`
	AuthenticityToken string   `json:"authenticityToken" validate:"required"`
	Stream            bool     `json:"stream"`
}

// SearchResponse is the JSON answer of a search, fresh or cached.
type SearchResponse struct {
	UnitID  string               `json:"unitId"`
	Date    string               `json:"date"`
	Results availability.Results `json:"results"`
	Cached  bool                 `json:"cached"`
}

func (req SearchRequest) batchRequest() batch.Request {
	return batch.Request{
		Venue:     req.UnitID,
		Date:      req.Date,
		TimeSlots: req.TimeSlots,
		Session: upstream.Session{
			SessionToken: req.SessionID,
			CSRFToken:    req.AuthenticityToken,
		},
	}
}

func wantsStream(r *http.Request, req SearchRequest) bool {
	return req.Stream || strings.Contains(r.Header.Get("Accept"), httpx.EventStreamContentType)
}

// searchCourts answers from the cache when it can, otherwise runs the batch
// and either returns the whole map or streams each result as it settles.
func (s *Server) searchCourts(r *http.Request) (*httpx.Response, error) {
	var req SearchRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx := r.Context()
	breq := req.batchRequest()

	if entry, ok := s.orchestrator.Lookup(ctx, breq); ok {
		return &httpx.Response{
			StatusCode: http.StatusOK,
			Response: &SearchResponse{
				UnitID:  req.UnitID,
				Date:    req.Date,
				Results: entry.Results,
				Cached:  true,
			},
		}, nil
	}

	if wantsStream(r, req) {
		header := http.Header{}
		httpx.SetEventStreamHeaders(header)
		return &httpx.Response{
			StatusCode:  http.StatusOK,
			ContentType: httpx.EventStreamContentType,
			Header:      header,
			Chunked:     true,
			WriteChunks: func(w http.ResponseWriter) error {
				ew, err := httpx.NewEventWriter(w)
				if err != nil {
					return err
				}
				// stops the run if the client can no longer be written to
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				for e := range s.orchestrator.Stream(ctx, breq) {
					if err := ew.Send(e); err != nil {
						return err
					}
					if e.Type == batch.EventError {
						log.Ctx(ctx).Info().Str("error", e.Error).Msg("stream ended early")
					}
				}
				return nil
			},
		}, nil
	}

	results, err := s.orchestrator.Run(ctx, breq, nil)
	if err != nil {
		return nil, ErrSearchAborted.Err(err)
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: &SearchResponse{
			UnitID:  req.UnitID,
			Date:    req.Date,
			Results: results,
			Cached:  false,
		},
	}, nil
}

// LoginRequest is the body of the login route.
type LoginRequest struct {
	Email  string `json:"email" validate:"required,email"`
	UserID string `json:"userId" validate:"required"`
}

func (s *Server) login(r *http.Request) (*httpx.Response, error) {
	var req LoginRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	session, err := s.client.Login(r.Context(), req.Email, req.UserID)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("login failed")
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   session,
	}, nil
}

// TimeSlotsRequest is the body of the time-slot listing route.
type TimeSlotsRequest struct {
	UnitID            string `json:"unitId" validate:"required"`
	Date              string `json:"date" validate:"required,ddmmyyyy"`
	SessionID         string `json:"sessionId" validate:"required"`
	AuthenticityToken string `json:"authenticityToken" validate:"required"`
}

// TimeSlotsResponse is the answer of the time-slots endpoint.
type TimeSlotsResponse struct {
	UnitID    string   `json:"unitId"`
	Date      string   `json:"date"`
	TimeSlots []string `json:"timeSlots"`
}

func (s *Server) timeSlots(r *http.Request) (*httpx.Response, error) {
	var req TimeSlotsRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	times, err := s.client.FetchTimeSlots(r.Context(), req.UnitID, req.Date, upstream.Session{
		SessionToken: req.SessionID,
		CSRFToken:    req.AuthenticityToken,
	})
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: &TimeSlotsResponse{
			UnitID:    req.UnitID,
			Date:      req.Date,
			TimeSlots: times,
		},
	}, nil
}

// VenueSchedule is a configured venue with its start times on one date.
type VenueSchedule struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	TimeSlots []string `json:"timeSlots"`
}

// VenuesResponse is the answer of the venues endpoint.
type VenuesResponse struct {
	Date   string          `json:"date"`
	Venues []VenueSchedule `json:"venues"`
}

// venues lists the configured venues and their start times on the requested
// date, today by default. Times already past are dropped for today.
func (s *Server) venues(r *http.Request) (*httpx.Response, error) {
	loc := s.cfg.Location()
	now := s.now().In(loc)

	date := now
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := timeslot.ParseDate(q, loc)
		if err != nil {
			return nil, ErrInvalidParams.Msg("Invalid parameters: date")
		}
		date = d
	}

	venues := s.cfg.Venues
	if id := r.URL.Query().Get("unitId"); id != "" {
		v, ok := s.cfg.Venue(id)
		if !ok {
			return nil, ErrUnknownVenue.Msg("unknown venue " + id)
		}
		venues = []config.Venue{v}
	}

	rsp := &VenuesResponse{
		Date:   timeslot.FormatDate(date),
		Venues: make([]VenueSchedule, 0, len(venues)),
	}
	for _, v := range venues {
		slots, err := timeslot.Upcoming(date, v.Hours(), now)
		if err != nil {
			return nil, err
		}
		rsp.Venues = append(rsp.Venues, VenueSchedule{
			ID:        v.ID,
			Name:      v.Name,
			TimeSlots: timeslot.Times(slots),
		})
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}
