package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override configuration file values.
const (
	EnvServerPort     = "COURTSRV_SERVER_PORT"
	EnvLogLevel       = "COURTSRV_LOG_LEVEL"
	EnvUpstreamURL    = "COURTSRV_UPSTREAM_BASE_URL"
	EnvRedisAddr      = "COURTSRV_REDIS_ADDR"
	EnvRedisPassword  = "COURTSRV_REDIS_PASSWORD"
	EnvAllowedOrigins = "COURTSRV_ALLOWED_ORIGINS"
	EnvCacheBackend   = "COURTSRV_CACHE_BACKEND"
	EnvProbeAttempts  = "COURTSRV_PROBE_ATTEMPTS"
)

func applyEnv(c *ConfigParam) error {
	if v, ok := lookup(EnvServerPort); ok {
		c.ServerPort = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvUpstreamURL); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		c.Cache.RedisAddr = v
	}
	if v, ok := lookup(EnvRedisPassword); ok {
		c.Cache.RedisPassword = v
	}
	if v, ok := lookup(EnvCacheBackend); ok {
		c.Cache.Backend = v
	}
	if v, ok := lookup(EnvAllowedOrigins); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
	if v, ok := lookup(EnvProbeAttempts); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		c.Upstream.ProbeAttempts = uint(n)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
