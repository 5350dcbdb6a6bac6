// Package gateway is the HTTP edge of the service. It enforces the origin
// policy, answers CORS preflights, serves the search and session API, and
// forwards an allow-listed set of upstream paths verbatim.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
	"github.com/courtcheck/courtcheck/internal/common/logtrace"
	"github.com/courtcheck/courtcheck/internal/common/middleware"
	"github.com/courtcheck/courtcheck/internal/courtsrv/batch"
	"github.com/courtcheck/courtcheck/internal/courtsrv/cache"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

// Server routes requests to the orchestrator, the upstream client and the
// pass-through proxy.
type Server struct {
	Router *chi.Mux

	cfg          *config.ConfigParam
	client       *upstream.Client
	orchestrator *batch.Orchestrator
	proxy        *httputil.ReverseProxy
	allowedPaths map[string]bool
	now          func() time.Time
}

// CreateNewServer wires a server for cfg. store may be nil, in which case
// searches are never cached.
func CreateNewServer(cfg *config.ConfigParam, store cache.Store) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	client, err := upstream.NewClient(upstream.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = cache.Noop{}
	}

	s := &Server{
		Router: chi.NewRouter(),
		cfg:    cfg,
		client: client,
		orchestrator: batch.New(client, store, batch.Options{
			GroupSize:  cfg.Batch.GroupSize,
			GroupDelay: cfg.Batch.GroupDelay.Duration,
			TTL:        cfg.Cache.TTL.Duration,
		}),
		allowedPaths: make(map[string]bool),
		now:          time.Now,
	}
	for _, p := range cfg.Upstream.Paths.All() {
		s.allowedPaths[p] = true
	}
	s.proxy = s.newReverseProxy()
	return s, nil
}

// MountHandlers sets up all routes and middleware.
func (s *Server) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	s.Router.Use(s.HandleCORS)
	s.mountResourceHandlers(s.Router)

	// everything else is a pass-through candidate
	passThrough := middleware.SetTimeout(s.cfg.RequestTimeout.Duration)(http.HandlerFunc(s.passThrough))
	s.Router.NotFound(passThrough.ServeHTTP)
	s.Router.MethodNotAllowed(passThrough.ServeHTTP)

	if logtrace.IsTraceEnabled() {
		fmt.Println("Routes in court gateway")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("Error walking router")
		}
	}
}

func (s *Server) mountResourceHandlers(r chi.Router) {
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)

	r.Group(func(r chi.Router) {
		if s.cfg.Gateway.RateLimitRPS > 0 {
			rl := middleware.NewRateLimiter(s.cfg.Gateway.RateLimitRPS, s.cfg.Gateway.RateLimitBurst, 10*time.Minute)
			rl.TrustForwardedFor = s.cfg.Gateway.TrustForwardedFor
			r.Use(rl.Handler)
		}
		// searches stream for as long as the batch runs
		r.Post(s.cfg.Gateway.SearchPath, httpx.WrapHttpRsp(s.searchCourts))

		r.Group(func(r chi.Router) {
			r.Use(middleware.SetTimeout(s.cfg.RequestTimeout.Duration))
			r.Post("/api/login", httpx.WrapHttpRsp(s.login))
			r.Post("/api/time-slots", httpx.WrapHttpRsp(s.timeSlots))
			r.Get("/api/venues", httpx.WrapHttpRsp(s.venues))
		})
	})
}
