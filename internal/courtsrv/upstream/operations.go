package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/courtsrv/markup"
	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
)

// loginPageAttempts bounds the retries of the unauthenticated first step of
// the login exchange. Credential submission is never retried.
const loginPageAttempts = 3

// Login authenticates email and userID against the booking site and returns
// the new session together with the CSRF token search requests need.
func (c *Client) Login(ctx context.Context, email, userID string) (Session, error) {
	paths := c.opts.Paths

	// 1. fresh CSRF token, bound to a pre-login session cookie
	var page *response
	err := retry.Do(func() error {
		var err error
		page, err = c.doRequest(ctx, RequestOptions{Method: http.MethodGet, Path: paths.LoginPage})
		if err != nil {
			return err
		}
		if !page.ok() {
			return statusErr(page.StatusCode)
		}
		return nil
	}, c.retryOptions(ctx, loginPageAttempts, "login page fetch")...)
	if err != nil {
		return Session{}, ErrUpstream.MsgErr("unable to load login page", err)
	}
	loginToken := markup.CSRFToken(page.Body)
	if loginToken == "" {
		return Session{}, ErrAuth.Msg("login page carries no authenticity token")
	}
	preSession := page.cookie(c.opts.SessionCookie)

	// 2. credentials
	form := url.Values{}
	form.Set("email", email)
	form.Set("user_id", userID)
	form.Set("authenticity_token", loginToken)
	submitted, err := c.doRequest(ctx, RequestOptions{
		Method:  http.MethodPost,
		Path:    paths.LoginSubmit,
		Form:    form,
		Session: preSession,
		CSRF:    loginToken,
	})
	if err != nil {
		return Session{}, ErrUpstream.MsgErr("login request failed", err)
	}
	if submitted.StatusCode >= 500 {
		return Session{}, statusErr(submitted.StatusCode)
	}

	// 3. the new session identifier
	sessionToken := submitted.cookie(c.opts.SessionCookie)
	if sessionToken == "" {
		return Session{}, ErrAuth.Msg("login response carries no session cookie")
	}
	if c.redirectsToLogin(submitted) {
		return Session{}, ErrAuth.Msg("credentials rejected")
	}

	// 4. confirm the session and harvest the search token
	csrf, err := c.confirmSession(ctx, sessionToken)
	if err != nil {
		return Session{}, err
	}

	log.Ctx(ctx).Info().Msg("upstream login succeeded")
	return Session{SessionToken: sessionToken, CSRFToken: csrf}, nil
}

// confirmSession opens the court invitation page, which only a valid session
// can see, and returns the CSRF token it carries.
func (c *Client) confirmSession(ctx context.Context, sessionToken string) (string, error) {
	page, err := c.doRequest(ctx, RequestOptions{
		Method:  http.MethodGet,
		Path:    c.opts.Paths.CourtInvitation,
		Session: sessionToken,
	})
	if err != nil {
		return "", ErrUpstream.MsgErr("unable to load court invitation page", err)
	}
	if c.redirectsToLogin(page) {
		return "", ErrAuth.Msg("session rejected by upstream")
	}
	if !page.ok() {
		return "", statusErr(page.StatusCode)
	}
	csrf := markup.CSRFToken(page.Body)
	if csrf == "" {
		return "", ErrAuth.Msg("court invitation page carries no authenticity token")
	}
	return csrf, nil
}

// redirectsToLogin reports whether r bounces the caller back to the login
// page, either as a 3xx or as a redirect stub in the body.
func (c *Client) redirectsToLogin(r *response) bool {
	if r.redirect() {
		return c.login.Location(r.Header.Get("Location"))
	}
	return c.login.Page(r.Body)
}

// FetchTimeSlots lists the start times the booking site offers for venue on
// date, with redundant half hours removed.
func (c *Client) FetchTimeSlots(ctx context.Context, venue, date string, s Session) ([]string, error) {
	if !s.Valid() {
		return nil, errNoSession
	}
	form := url.Values{}
	form.Set("unit_id", venue)
	form.Set("date", date)
	form.Set("authenticity_token", s.CSRFToken)

	rsp, err := c.doRequest(ctx, RequestOptions{
		Method:  http.MethodPost,
		Path:    c.opts.Paths.SetTimeByUnit,
		Form:    form,
		Session: s.SessionToken,
		CSRF:    s.CSRFToken,
		XHR:     true,
	})
	if err != nil {
		return nil, ErrUpstream.MsgErr("time slot request failed", err)
	}
	if c.redirectsToLogin(rsp) {
		return nil, ErrAuth.Msg("session expired")
	}
	if !rsp.ok() {
		return nil, statusErr(rsp.StatusCode)
	}
	return timeslot.SuppressHalfHours(markup.TimeValues(rsp.Body)), nil
}

// ProbeSlot asks the booking site for the courts free at venue on date at the
// start time at, and returns the raw script response for the parser. A non-2xx answer
// is an ErrUpstream carrying a *StatusError.
func (c *Client) ProbeSlot(ctx context.Context, venue, date, at string, s Session) (string, error) {
	if !s.Valid() {
		return "", errNoSession
	}
	form := url.Values{}
	form.Set("unit_id", venue)
	form.Set("court_type", "1")
	form.Set("start_date", date)
	form.Set("start_hour", at)
	form.Set("duration", "1")
	form.Set("authenticity_token", s.CSRFToken)

	var raw string
	err := retry.Do(func() error {
		rsp, err := c.doRequest(ctx, RequestOptions{
			Method:  http.MethodPost,
			Path:    c.opts.Paths.SearchCourt,
			Form:    form,
			Session: s.SessionToken,
			CSRF:    s.CSRFToken,
			XHR:     true,
		})
		if err != nil {
			return err
		}
		if !rsp.ok() {
			return statusErr(rsp.StatusCode)
		}
		raw = rsp.Body
		return nil
	}, c.retryOptions(ctx, c.opts.ProbeAttempts, "probe "+at)...)
	if err != nil {
		if _, ok := HTTPStatus(err); ok {
			return "", err
		}
		return "", ErrUpstream.MsgErr(err.Error(), err)
	}
	return raw, nil
}
