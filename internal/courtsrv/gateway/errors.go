package gateway

import (
	"net/http"

	"github.com/courtcheck/courtcheck/internal/common/apperrors"
)

var (
	ErrOriginForbidden = apperrors.New("origin not allowed").SetStatusCode(http.StatusForbidden)
	ErrPathForbidden   = apperrors.New("path not allowed").SetStatusCode(http.StatusForbidden)
	ErrMissingParams   = apperrors.New("Missing required parameters").SetStatusCode(http.StatusBadRequest)
	ErrInvalidParams   = apperrors.New("Invalid parameters").SetStatusCode(http.StatusBadRequest)
	ErrUnknownVenue    = apperrors.New("unknown venue").SetStatusCode(http.StatusNotFound)
	ErrSearchAborted   = apperrors.New("search aborted").SetStatusCode(http.StatusRequestTimeout)
)
