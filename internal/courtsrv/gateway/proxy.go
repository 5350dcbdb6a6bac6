package gateway

import (
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
)

// upstreamPath strips the routing prefix. Paths outside the prefix are taken
// as they are.
func (s *Server) upstreamPath(p string) string {
	prefix := s.cfg.Gateway.RoutePrefix
	if rest, ok := strings.CutPrefix(p, prefix); ok && (rest == "" || strings.HasPrefix(rest, "/")) {
		return rest
	}
	return p
}

// passThrough forwards allow-listed paths to the upstream site and rejects
// everything else with 403.
func (s *Server) passThrough(w http.ResponseWriter, r *http.Request) {
	p := s.upstreamPath(r.URL.Path)
	if !s.allowedPaths[p] {
		log.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("path rejected")
		httpx.SendError(w, ErrPathForbidden)
		return
	}
	s.proxy.ServeHTTP(w, r)
}

func (s *Server) newReverseProxy() *httputil.ReverseProxy {
	target := s.client.BaseURL()
	cookieName := s.client.SessionCookie()

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = s.upstreamPath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)

			out := pr.Out.Header
			session := out.Get(SessionCookieHeader)
			for _, h := range []string{"Cookie", "Origin", "Referer", SessionCookieHeader} {
				out.Del(h)
			}
			if session != "" {
				if !strings.Contains(session, "=") {
					session = cookieName + "=" + session
				}
				out.Set("Cookie", session)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			h := resp.Header
			for _, c := range h.Values("Set-Cookie") {
				h.Add(SetCookieHeader, c)
			}
			h.Del("Set-Cookie")
			// CORS is answered by the gateway, not the upstream
			for k := range h {
				if strings.HasPrefix(k, "Access-Control-") {
					h.Del(k)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("pass-through request failed")
			httpx.ErrBadGateway(err.Error()).Send(w)
		},
	}
}
