package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
)

// Version is the current version of the service.
// The version follows semantic versioning (MAJOR.MINOR.PATCH).
const Version = "0.1.0"

// ApiVersion is the version of the HTTP API.
const ApiVersion = "v1"

// versionConstraint accepts clients with the same major and minor version.
var versionConstraint *semver.Constraints

func init() {
	var err error
	versionConstraint, err = semver.NewConstraint("~" + Version)
	if err != nil {
		panic(err)
	}
}

// IsVersionCompatible reports whether a client of the given version can talk
// to this server. Invalid version strings are incompatible.
func IsVersionCompatible(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return versionConstraint.Check(v)
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
	Compatible    *bool  `json:"compatible,omitempty"`
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Court Check Server: " + Version,
		ApiVersion:    ApiVersion,
	}
	if client := r.URL.Query().Get("client"); client != "" {
		ok := IsVersionCompatible(client)
		rsp.Compatible = &ok
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

type GetReadinessRsp struct {
	Status string `json:"status"`
	Cache  string `json:"cache"`
	Error  string `json:"error,omitempty"`
}

// getReadiness reports the service ready whenever it is up. A cache outage
// is reported but does not make the service unready.
func (s *Server) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	store := s.orchestrator.Store()
	rsp := &GetReadinessRsp{
		Status: "ready",
		Cache:  store.Backend(),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		rsp.Cache += " (unreachable)"
		rsp.Error = err.Error()
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}
