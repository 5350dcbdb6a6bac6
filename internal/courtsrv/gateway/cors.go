package gateway

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
	"github.com/courtcheck/courtcheck/internal/common/middleware"
)

// Headers carrying the upstream session across origins. Browsers cannot read
// a cross-origin Set-Cookie nor send cookies for the upstream domain.
const (
	SessionCookieHeader = "X-Session-Cookie"
	SetCookieHeader     = "X-Set-Cookie"
)

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Accept", "Content-Type", "X-CSRF-Token", "X-Requested-With", SessionCookieHeader, middleware.RequestIDHeader,
	}, ", ")
	corsExposed = strings.Join([]string{
		SetCookieHeader, middleware.RequestIDHeader,
	}, ", ")
)

// originAllowed reports whether a browser origin is in the allow-set.
func (s *Server) originAllowed(origin string) bool {
	allowed := s.cfg.CORS.AllowedOrigins
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// negotiatedOrigin is the request origin when allowed, otherwise the
// configured default.
func (s *Server) negotiatedOrigin(origin string) string {
	if origin != "" && s.originAllowed(origin) {
		return origin
	}
	return s.cfg.CORS.DefaultOrigin
}

// HandleCORS answers every OPTIONS request with 204 and rejects requests whose
// Origin is outside the allow-set. Requests without an Origin are let through.
func (s *Server) HandleCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.negotiatedOrigin(origin))
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Expose-Headers", corsExposed)

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Max-Age", strconv.Itoa(s.cfg.CORS.MaxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != "" && !s.originAllowed(origin) {
			log.Ctx(r.Context()).Warn().Str("origin", origin).Msg("origin rejected")
			httpx.SendError(w, ErrOriginForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
