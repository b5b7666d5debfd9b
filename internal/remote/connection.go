// Package remote talks to the upstream file backend: request
// construction, directory listings, and WebDAV-style mutations.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/vpath"
)

// passwordParam is the query parameter carrying the backend password.
// The backend expects it there, never in a header.
const passwordParam = "pw"

// Connection builds authenticated, origin-correct requests against the
// backend. It is immutable; per-request cookie forwarding derives a
// shallow copy via WithForwarded. There is no package-level client.
type Connection struct {
	base     *url.URL
	public   *url.URL // explicit public override, nil when unset
	rootPath string
	password string
	cookie   string
	timeout  time.Duration

	client *http.Client
	logger zerolog.Logger
}

// NewConnection creates a connection from backend config. Returns
// models.ErrNotConfigured when no base URL is set so callers can render
// the unconfigured state instead of an error.
func NewConnection(cfg *config.BackendConfig, logger zerolog.Logger) (*Connection, error) {
	if !cfg.Configured() {
		return nil, models.ErrNotConfigured
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base url %q must be absolute", cfg.BaseURL)
	}

	var public *url.URL
	if cfg.PublicBaseURL != "" {
		public, err = url.Parse(strings.TrimRight(cfg.PublicBaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse public base url: %w", err)
		}
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn().Err(err).Msg("failed to configure HTTP/2")
	}

	return &Connection{
		base:     base,
		public:   public,
		rootPath: vpath.Normalize(cfg.RootPath),
		password: cfg.Password,
		cookie:   cfg.Cookie,
		timeout:  cfg.Timeout,
		// Deadlines are applied per request; uploads run unbounded.
		client: &http.Client{Transport: transport},
		logger: logger.With().Str("component", "connection").Logger(),
	}, nil
}

// WithForwarded returns a connection whose requests carry the inbound
// request's cookie merged with the baseline one. The cookie is only
// forwarded when the inbound origin host matches the backend host;
// session cookies never leak cross-origin.
func (c *Connection) WithForwarded(cookie, originHost string) *Connection {
	if cookie == "" || !sameHost(originHost, c.base.Hostname()) {
		return c
	}
	fw := *c
	fw.cookie = mergeCookies(c.cookie, cookie)
	return &fw
}

// Host returns the backend hostname.
func (c *Connection) Host() string { return c.base.Hostname() }

// Timeout returns the control-plane request deadline.
func (c *Connection) Timeout() time.Duration { return c.timeout }

// UpstreamPath maps a virtual path into the backend's path space,
// prefixing the configured root. Normalization guarantees ".." can
// never climb above it.
func (c *Connection) UpstreamPath(vp string) string {
	return vpath.Join(c.rootPath, vpath.Normalize(vp))
}

// UpstreamURL builds the unauthenticated backend URL for a virtual
// path.
func (c *Connection) UpstreamURL(vp string) *url.URL {
	u := *c.base
	u.Path = joinURLPath(c.base.Path, c.UpstreamPath(vp))
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// AuthURL is UpstreamURL with the password attached.
func (c *Connection) AuthURL(vp string) *url.URL {
	u := c.UpstreamURL(vp)
	c.authenticate(u)
	return u
}

// PublicBase resolves the base URL suitable for handing to browsers.
// An explicit override wins. Otherwise, when the configured host is a
// loopback address and the inbound origin is known, only the hostname
// is rewritten (scheme, port and path preserved) so externally
// reachable proxies still work against a backend that only knows
// itself as localhost. Any parse failure falls back to the configured
// base unchanged.
func (c *Connection) PublicBase(inboundOrigin string) *url.URL {
	if c.public != nil {
		return c.public
	}
	if inboundOrigin == "" || !isLoopbackHost(c.base.Hostname()) {
		return c.base
	}

	host := hostnameOf(inboundOrigin)
	if host == "" {
		return c.base
	}

	u := *c.base
	if port := c.base.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}
	return &u
}

// PublicURL builds the authenticated, browser-facing URL for a virtual
// path, resolved against PublicBase.
func (c *Connection) PublicURL(vp, inboundOrigin string) *url.URL {
	base := c.PublicBase(inboundOrigin)
	u := *base
	u.Path = joinURLPath(base.Path, c.UpstreamPath(vp))
	u.RawQuery = ""
	u.Fragment = ""
	c.authenticate(&u)
	return &u
}

// NewRequest builds an authenticated request for a virtual path.
// Mutating verbs get Origin and Referer forced to the upstream origin,
// overriding any ambient value, so the backend's origin-based CSRF
// check accepts proxied requests that arrived with a foreign origin.
func (c *Connection) NewRequest(ctx context.Context, method, vp string, body io.Reader) (*http.Request, error) {
	u := c.AuthURL(vp)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	if isMutating(method) {
		origin := c.base.Scheme + "://" + c.base.Host
		req.Header.Set("Origin", origin)
		req.Header.Set("Referer", origin+"/")
	}

	return req, nil
}

// DoTimed issues a control-plane request under the configured deadline.
// A deadline hit surfaces as models.ErrTimeout, distinguishable from
// other network failures.
func (c *Connection) DoTimed(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), c.timeout)
	req = req.WithContext(ctx)

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, models.ErrTimeout)
		}
		return nil, &models.NetworkError{Action: strings.ToLower(req.Method), Err: err}
	}

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Do issues a request with no deadline beyond the caller's context.
// Used by the upload transport, whose duration is unbounded.
func (c *Connection) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.NetworkError{Action: strings.ToLower(req.Method), Err: err}
	}
	return resp, nil
}

func (c *Connection) authenticate(u *url.URL) {
	if c.password == "" {
		return
	}
	q := u.Query()
	q.Set(passwordParam, c.password)
	u.RawQuery = q.Encode()
}

// cancelBody ties a context cancel to body close so the timeout timer
// is released once the response is consumed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// hostnameOf extracts the hostname from an origin URL or a bare
// host[:port] value. Empty on failure.
func hostnameOf(origin string) string {
	if strings.Contains(origin, "://") {
		u, err := url.Parse(origin)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	if host, _, err := net.SplitHostPort(origin); err == nil {
		return host
	}
	return strings.Trim(origin, "[]")
}

func sameHost(a, b string) bool {
	ha, hb := hostnameOf(a), hostnameOf(b)
	return ha != "" && strings.EqualFold(ha, hb)
}

func mergeCookies(baseline, forwarded string) string {
	baseline = strings.Trim(strings.TrimSpace(baseline), ";")
	forwarded = strings.Trim(strings.TrimSpace(forwarded), ";")
	switch {
	case baseline == "":
		return forwarded
	case forwarded == "":
		return baseline
	default:
		return baseline + "; " + forwarded
	}
}

func joinURLPath(basePath, upstream string) string {
	basePath = strings.TrimRight(basePath, "/")
	if upstream == vpath.Root {
		if basePath == "" {
			return "/"
		}
		return basePath
	}
	return basePath + upstream
}
