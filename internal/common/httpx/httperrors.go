package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/courtcheck/courtcheck/internal/common/apperrors"
)

// Error is an HTTP error response.
type Error struct {
	Description string
	StatusCode  int
}

type errorRsp struct {
	Error string `json:"error"`
}

// Send writes the error as {"error": "..."} with the error's status code.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rspJson, err := json.Marshal(&errorRsp{Error: e.Description})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("unable to encode error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(rspJson)
}

func (e *Error) Error() string {
	return e.Description
}

// SendError sends an application error, defaulting to 500 when the error has
// no status code.
func SendError(w http.ResponseWriter, err apperrors.Error) {
	if err == nil {
		return
	}
	statusCode := err.StatusCode()
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	(&Error{StatusCode: statusCode, Description: err.Error()}).Send(w)
}

func ErrReqMethodNotSupported() *Error {
	return &Error{
		Description: "request method not supported",
		StatusCode:  http.StatusMethodNotAllowed,
	}
}

func ErrUnableToParseReqData() *Error {
	return &Error{
		Description: "unable to parse request data",
		StatusCode:  http.StatusBadRequest,
	}
}

// ErrApplicationError returns a 500. If no message is provided, a default
// message is used.
func ErrApplicationError(msg ...string) *Error {
	s := "unable to process request"
	if len(msg) > 0 {
		s = msg[0]
	}
	return &Error{
		Description: s,
		StatusCode:  http.StatusInternalServerError,
	}
}

func ErrRequestTimeout() *Error {
	return &Error{
		Description: "request timed out",
		StatusCode:  http.StatusRequestTimeout,
	}
}

func ErrTooManyRequests() *Error {
	return &Error{
		Description: "rate limit exceeded, try again later",
		StatusCode:  http.StatusTooManyRequests,
	}
}

func ErrRequestTooLarge(limit int64) *Error {
	return &Error{
		Description: fmt.Sprintf("request body too large (limit: %d bytes)", limit),
		StatusCode:  http.StatusRequestEntityTooLarge,
	}
}

func ErrBadGateway(msg ...string) *Error {
	s := "upstream unavailable"
	if len(msg) > 0 {
		s = msg[0]
	}
	return &Error{
		Description: s,
		StatusCode:  http.StatusBadGateway,
	}
}
