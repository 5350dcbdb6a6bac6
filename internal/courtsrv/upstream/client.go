// Package upstream talks to the booking site: the login exchange, the
// time-slot listing of a venue and the single-slot availability probe.
//
// The client holds no session state. Every authenticated call takes the
// Session it should act under.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
	"github.com/courtcheck/courtcheck/internal/courtsrv/markup"
)

// maxBodySize caps what is read from any upstream response.
const maxBodySize = 4 << 20

// Session is the credential material of a logged-in user. It is passed by
// value and never persisted.
type Session struct {
	SessionToken string `json:"sessionId"`
	CSRFToken    string `json:"authenticityToken"`
}

// Valid reports whether both halves of the session are present. Requests
// with an invalid session are refused before reaching the booking site.
func (s Session) Valid() bool {
	return s.SessionToken != "" && s.CSRFToken != ""
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	SessionCookie     string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64       // 0 is unlimited
	ProbeAttempts     uint          // 1 disables probe retry
	RetryDelay        time.Duration // initial backoff between attempts
	Paths             config.UpstreamPaths
	HTTPClient        *http.Client // optional, redirects must not be followed
}

// OptionsFromConfig builds client options from the service configuration.
func OptionsFromConfig(c *config.ConfigParam) Options {
	return Options{
		BaseURL:           c.Upstream.BaseURL,
		SessionCookie:     c.Upstream.SessionCookie,
		UserAgent:         c.Upstream.UserAgent,
		Timeout:           c.Upstream.Timeout.Duration,
		RequestsPerSecond: c.Upstream.RequestsPerSecond,
		ProbeAttempts:     c.Upstream.ProbeAttempts,
		Paths:             c.Upstream.Paths,
	}
}

// Client issues requests to the booking site.
type Client struct {
	opts       Options
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	login      *markup.LoginRedirect
}

// NewClient creates a client for opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream base URL: %q", opts.BaseURL)
	}
	if opts.SessionCookie == "" {
		opts.SessionCookie = "_session_id"
	}
	if opts.ProbeAttempts == 0 {
		opts.ProbeAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	c := &Client{
		opts:       opts,
		baseURL:    u,
		httpClient: httpClient,
		login:      markup.NewLoginRedirect(opts.Paths.LoginPage, opts.Paths.LoginSubmit),
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the parsed upstream base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// SessionCookie returns the name of the upstream session cookie.
func (c *Client) SessionCookie() string {
	return c.opts.SessionCookie
}

// RequestOptions describes one upstream request.
type RequestOptions struct {
	Method  string
	Path    string
	Form    url.Values // form-encoded body for POST
	Session string     // session cookie value, optional
	CSRF    string     // sent as X-CSRF-Token, optional
	XHR     bool       // mark as a jQuery request expecting script
}

// response is an upstream answer with its body fully read.
type response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *response) redirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// cookie returns the value of the named cookie set by the response.
func (r *response) cookie(name string) string {
	hr := http.Response{Header: r.Header}
	for _, ck := range hr.Cookies() {
		if ck.Name == name && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

// doRequest sends one request and reads the whole body. Only transport
// failures are errors; status handling is left to the caller.
func (c *Client) doRequest(ctx context.Context, opts RequestOptions) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.BaseURL()
	u = u.JoinPath(opts.Path)

	var body io.Reader
	if opts.Form != nil {
		body = strings.NewReader(opts.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	if opts.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if opts.Session != "" {
		req.AddCookie(&http.Cookie{Name: c.opts.SessionCookie, Value: opts.Session})
	}
	if opts.CSRF != "" {
		req.Header.Set("X-CSRF-Token", opts.CSRF)
	}
	if opts.XHR {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		req.Header.Set("Accept", "text/javascript, application/javascript, */*; q=0.01")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	return &response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(b),
	}, nil
}

// retryable reports whether a failed attempt may be repeated: transport
// errors and 5xx answers. Cancellation is never retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status, ok := HTTPStatus(err); ok {
		return status >= 500
	}
	return true
}

func (c *Client) retryOptions(ctx context.Context, attempts uint, what string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg(what + " failed, retrying")
		}),
	}
}
