package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
)

// ConfigFormatVersion is the current version of the configuration file format
const ConfigFormatVersion = "0.1.0"

// Cache backends
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Duration is a time.Duration read from a TOML string such as "100ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// CORSConfig holds the origin allow-set and preflight settings
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"` // Origins allowed to call the gateway
	DefaultOrigin  string   `toml:"default_origin"`  // Origin echoed when the request origin is absent
	MaxAge         int      `toml:"max_age"`         // Preflight cache lifetime in seconds
}

// GatewayConfig holds routing settings of the edge gateway
type GatewayConfig struct {
	RoutePrefix    string  `toml:"route_prefix"`     // Prefix stripped from pass-through paths
	SearchPath     string  `toml:"search_path"`      // Exact path of the batch search route
	RateLimitRPS   float64 `toml:"rate_limit_rps"`   // Per-client requests per second, 0 disables
	RateLimitBurst int     `toml:"rate_limit_burst"` // Per-client burst
	// Key the rate limit on X-Forwarded-For instead of the socket peer. Only
	// enable behind a proxy that sets the header itself.
	TrustForwardedFor bool `toml:"trust_forwarded_for"`
}

// UpstreamPaths are the paths of the booking site the service talks to
type UpstreamPaths struct {
	LoginPage       string `toml:"login_page"`
	LoginSubmit     string `toml:"login_submit"`
	CourtInvitation string `toml:"court_invitation"`
	SetTimeByUnit   string `toml:"set_time_by_unit"`
	SearchCourt     string `toml:"search_court"`
}

// All returns the paths in the order the pass-through proxy lists them.
func (p UpstreamPaths) All() []string {
	return []string{p.LoginPage, p.LoginSubmit, p.CourtInvitation, p.SetTimeByUnit, p.SearchCourt}
}

// UpstreamConfig holds the booking site connection settings
type UpstreamConfig struct {
	BaseURL           string        `toml:"base_url"`            // Booking site base URL
	SessionCookie     string        `toml:"session_cookie"`      // Name of the session cookie
	Timeout           Duration      `toml:"timeout"`             // Per-request timeout
	RequestsPerSecond float64       `toml:"requests_per_second"` // Outbound courtesy limit, 0 is unlimited
	ProbeAttempts     uint          `toml:"probe_attempts"`      // Attempts per probe, 1 disables retry
	UserAgent         string        `toml:"user_agent"`
	Paths             UpstreamPaths `toml:"paths"`
}

// BatchConfig holds the orchestrator tuning
type BatchConfig struct {
	GroupSize  int      `toml:"group_size"`  // Probes in flight per group
	GroupDelay Duration `toml:"group_delay"` // Pause between groups
}

// CacheConfig selects the availability cache backend
type CacheConfig struct {
	Backend       string   `toml:"backend"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	KeyPrefix     string   `toml:"key_prefix"`
	TTL           Duration `toml:"ttl"`
}

// Venue is a tennis center and its opening hours
type Venue struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Open         string `toml:"open"`
	Close        string `toml:"close"`
	StepMinutes  int    `toml:"step_minutes"`
	WeekendOpen  string `toml:"weekend_open"`
	WeekendClose string `toml:"weekend_close"`
}

func (v Venue) Hours() timeslot.Hours {
	return timeslot.Hours{
		Open:         v.Open,
		Close:        v.Close,
		StepMinutes:  v.StepMinutes,
		WeekendOpen:  v.WeekendOpen,
		WeekendClose: v.WeekendClose,
	}
}

// ConfigParam holds all configuration parameters for the court service
type ConfigParam struct {
	// Configuration version
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	// Server configuration
	ServerPort     string   `toml:"server_port"`     // Port for the server
	LogLevel       string   `toml:"log_level"`       // zerolog level name
	RequestTimeout Duration `toml:"request_timeout"` // Timeout for every route except search
	TimeZone       string   `toml:"time_zone"`       // Zone used to decide what "today" is

	CORS     CORSConfig     `toml:"cors"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Upstream UpstreamConfig `toml:"upstream"`
	Batch    BatchConfig    `toml:"batch"`
	Cache    CacheConfig    `toml:"cache"`
	Venues   []Venue        `toml:"venues"`

	location *time.Location
}

// Location returns the loaded time zone, or time.Local.
func (c *ConfigParam) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Venue looks up a configured venue by id.
func (c *ConfigParam) Venue(id string) (Venue, bool) {
	for _, v := range c.Venues {
		if v.ID == id {
			return v, true
		}
	}
	return Venue{}, false
}

var cfg *ConfigParam

// Config returns the current configuration
func Config() *ConfigParam {
	return cfg
}

// SetConfig replaces the current configuration
func SetConfig(c *ConfigParam) {
	cfg = c
}

// ValidateConfig checks if all required configuration values are present and
// valid, and fills in defaults for the optional ones.
func ValidateConfig(cfg *ConfigParam) error {
	// Check if the config file format version is supported
	if cfg.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8787"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RequestTimeout.Duration <= 0 {
		cfg.RequestTimeout.Duration = 30 * time.Second
	}
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return fmt.Errorf("invalid time_zone: %v", err)
		}
		cfg.location = loc
	}

	// CORS
	if cfg.CORS.DefaultOrigin == "" {
		if len(cfg.CORS.AllowedOrigins) > 0 {
			cfg.CORS.DefaultOrigin = cfg.CORS.AllowedOrigins[0]
		} else {
			cfg.CORS.DefaultOrigin = "*"
		}
	}
	if cfg.CORS.MaxAge <= 0 {
		cfg.CORS.MaxAge = 86400
	}

	// Gateway
	if cfg.Gateway.RoutePrefix == "" {
		cfg.Gateway.RoutePrefix = "/proxy"
	}
	if !strings.HasPrefix(cfg.Gateway.RoutePrefix, "/") {
		return fmt.Errorf("gateway.route_prefix must start with /")
	}
	cfg.Gateway.RoutePrefix = strings.TrimSuffix(cfg.Gateway.RoutePrefix, "/")
	if cfg.Gateway.SearchPath == "" {
		cfg.Gateway.SearchPath = "/api/search-courts"
	}
	if cfg.Gateway.RateLimitRPS < 0 {
		return fmt.Errorf("gateway.rate_limit_rps must not be negative")
	}
	if cfg.Gateway.RateLimitBurst <= 0 {
		cfg.Gateway.RateLimitBurst = 20
	}

	// Upstream
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	cfg.Upstream.BaseURL = strings.TrimSuffix(cfg.Upstream.BaseURL, "/")
	if cfg.Upstream.SessionCookie == "" {
		cfg.Upstream.SessionCookie = "_session_id"
	}
	if cfg.Upstream.Timeout.Duration <= 0 {
		cfg.Upstream.Timeout.Duration = 20 * time.Second
	}
	if cfg.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must not be negative")
	}
	if cfg.Upstream.ProbeAttempts == 0 {
		cfg.Upstream.ProbeAttempts = 1
	}
	p := &cfg.Upstream.Paths
	setDefault(&p.LoginPage, "/users/sign_in")
	setDefault(&p.LoginSubmit, "/users/login")
	setDefault(&p.CourtInvitation, "/self_services/court_invitation")
	setDefault(&p.SetTimeByUnit, "/self_services/set_time_by_unit")
	setDefault(&p.SearchCourt, "/self_services/search_court.js")

	// Batch
	if cfg.Batch.GroupSize <= 0 {
		cfg.Batch.GroupSize = 3
	}
	if cfg.Batch.GroupDelay.Duration < 0 {
		return fmt.Errorf("batch.group_delay must not be negative")
	}
	if cfg.Batch.GroupDelay.Duration == 0 {
		cfg.Batch.GroupDelay.Duration = 100 * time.Millisecond
	}

	// Cache
	if cfg.Cache.Backend == "" {
		if cfg.Cache.RedisAddr != "" {
			cfg.Cache.Backend = CacheBackendRedis
		} else {
			cfg.Cache.Backend = CacheBackendNone
		}
	}
	switch cfg.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unsupported cache.backend: %s", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL.Duration <= 0 {
		cfg.Cache.TTL.Duration = 600 * time.Second
	}

	// Venues
	seen := map[string]bool{}
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		if v.ID == "" {
			return fmt.Errorf("venues[%d].id is required", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate venue id: %s", v.ID)
		}
		seen[v.ID] = true
		if v.StepMinutes <= 0 {
			v.StepMinutes = 60
		}
		for _, t := range []string{v.Open, v.Close} {
			if _, err := timeslot.ParseClock(t); err != nil {
				return fmt.Errorf("venue %s: %v", v.ID, err)
			}
		}
		for _, t := range []string{v.WeekendOpen, v.WeekendClose} {
			if t == "" {
				continue
			}
			if _, err := timeslot.ParseClock(t); err != nil {
				return fmt.Errorf("venue %s: %v", v.ID, err)
			}
		}
	}

	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// LoadConfig loads configuration from a file. A .env file next to the working
// directory and COURTSRV_* environment variables override file values.
func LoadConfig(filename string) error {
	c, err := ParseConfigFile(filename, ".env")
	if err != nil {
		return err
	}
	SetConfig(c)
	return nil
}

// ParseConfigFile reads, overrides and validates a configuration file without
// installing it.
func ParseConfigFile(filename, envPath string) (*ConfigParam, error) {
	if filename == "" {
		return nil, fmt.Errorf("config filename is required")
	}

	// Read and parse the config file
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	if envPath != "" {
		_ = godotenv.Load(envPath) // no error if .env doesn't exist
	}

	return ParseConfig(string(content))
}

// ParseConfig decodes TOML content, applies environment overrides and
// validates the result.
func ParseConfig(content string) (*ConfigParam, error) {
	c := &ConfigParam{}
	if _, err := toml.Decode(content, c); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	if err := applyEnv(c); err != nil {
		return nil, fmt.Errorf("invalid environment override: %v", err)
	}

	// Validate the configuration
	if err := ValidateConfig(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	return c, nil
}
