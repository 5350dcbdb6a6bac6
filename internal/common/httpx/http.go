// Package httpx provides request decoding, JSON responses, error bodies and
// server-sent event streaming for the HTTP handlers of the service.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/apperrors"
)

// MaxRequestBody caps the size of a decoded request body.
const MaxRequestBody = 1 << 20

// GetRequestData decodes a JSON request body into data. Only POST and PUT
// requests carry a body.
func GetRequestData(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil || r.Body == http.NoBody {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	body := http.MaxBytesReader(nil, r.Body, MaxRequestBody)
	if err := json.NewDecoder(body).Decode(data); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrRequestTooLarge(tooLarge.Limit)
		}
		return ErrUnableToParseReqData()
	}
	return nil
}

// WriteChunksFunc streams a response body after the headers are written.
type WriteChunksFunc func(w http.ResponseWriter) error

// Response is what a RequestHandler returns on success. When Chunked is set
// the body is produced by WriteChunks instead of Response.
type Response struct {
	StatusCode  int
	Response    any
	ContentType string
	Header      http.Header
	Chunked     bool
	WriteChunks WriteChunksFunc
}

// RequestHandler handles a request and returns either a response or an error.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler to http.HandlerFunc, rendering errors as
// JSON error bodies with the status carried by the error.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			SendErr(w, err)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		for k, vals := range rsp.Header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		if rsp.Chunked {
			if rsp.WriteChunks == nil {
				ErrApplicationError("unable to write chunks").Send(w)
				return
			}
			w.Header().Set("Content-Type", rsp.ContentType)
			w.WriteHeader(rsp.StatusCode)
			if err := rsp.WriteChunks(w); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("error writing chunk")
			}
			return
		}

		switch rsp.ContentType {
		case "", "application/json":
			SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response)
		case "text/plain":
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(rsp.StatusCode)
			s, _ := rsp.Response.(string)
			w.Write([]byte(s))
		default:
			ErrApplicationError("unsupported response type").Send(w)
		}
	})
}

// SendErr renders any error as a JSON error body. *Error and apperrors.Error
// keep their status code; everything else becomes a 500.
func SendErr(w http.ResponseWriter, err error) {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		httpErr.Send(w)
		return
	}
	if appErr, ok := err.(apperrors.Error); ok {
		SendError(w, appErr)
		return
	}
	ErrApplicationError(err.Error()).Send(w)
}
