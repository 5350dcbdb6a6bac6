package upstream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/courtcheck/courtcheck/internal/common/apperrors"
)

var (
	// ErrAuth is an AuthError: the login exchange or a session was rejected.
	// It is terminal for the request that hit it.
	ErrAuth = apperrors.New("authentication failed").SetStatusCode(http.StatusUnauthorized)

	// ErrUpstream is an UpstreamError: a single request to the booking site
	// failed. The HTTP status, when there is one, is carried by a wrapped
	// *StatusError.
	ErrUpstream = apperrors.New("upstream request failed").SetStatusCode(http.StatusBadGateway)

	errNoSession = ErrAuth.New("session id and authenticity token are required")
)

// StatusError records a non-2xx answer from the booking site.
type StatusError struct {
	HTTPStatus int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.HTTPStatus, http.StatusText(e.HTTPStatus))
}

// HTTPStatus returns the upstream status carried by err, if any.
func HTTPStatus(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.HTTPStatus, true
	}
	return 0, false
}

func statusErr(status int) apperrors.Error {
	se := &StatusError{HTTPStatus: status}
	return ErrUpstream.MsgErr(se.Error(), se)
}
