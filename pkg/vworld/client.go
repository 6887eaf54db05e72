// Package vworld resolves postal addresses to coordinates via the V-World
// address API, trying a parcel-number lookup first and falling back to a
// road-name lookup when the parcel query finds nothing.
package vworld

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Lookup type hints understood by the address service.
const (
	typeParcel = "PARCEL"
	typeRoad   = "ROAD"
)

// LevelExact is the match level reported for a successful lookup. The
// getcoord endpoint only returns exact matches; coarser levels would come
// from the search endpoint, which this client does not use.
const LevelExact = "exact"

// Client resolves a single address to geodetic coordinates.
type Client interface {
	// Resolve performs the two-tier lookup. Failures of any kind are folded
	// into the returned Outcome; Resolve never panics and never returns an
	// error, because one bad address must not abort a batch.
	Resolve(ctx context.Context, address string) Outcome
}

// Outcome is the result of resolving one address. Either Resolved is true
// and Lat/Lng/Level are set, or Resolved is false and Reason describes the
// failure.
type Outcome struct {
	Resolved bool
	Lat      float64
	Lng      float64
	Level    string
	Reason   string
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. It is applied after all options
// run, so it composes with WithHTTPClient in either order.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.timeout = d
	}
}

// WithRateLimit sets the requests-per-second limit toward the service.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithIdentity sets the User-Agent and Referer sent with every request.
// Referrer-restricted keys require the Referer to match their allow-list.
func WithIdentity(userAgent, referer string) Option {
	return func(c *client) {
		c.userAgent = userAgent
		c.referer = referer
	}
}

// WithSourceCRS sets the EPSG code the service should return coordinates in.
func WithSourceCRS(epsg int) Option {
	return func(c *client) {
		c.crs = fmt.Sprintf("epsg:%d", epsg)
	}
}

type client struct {
	key        string
	baseURL    string
	crs        string
	userAgent  string
	referer    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a Client for the given API key.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		key:        key,
		baseURL:    "https://api.vworld.kr/req/address",
		crs:        "epsg:4326",
		userAgent:  "Mozilla/5.0 (compatible; geobatch/1.0)",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(20, 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		c.httpClient.Timeout = c.timeout
	}
	return c
}

// Resolve implements the two-tier lookup: parcel first, road on NOT_FOUND.
// Transport errors, non-NOT_FOUND service errors (e.g. a bad key), and
// system errors are terminal at either tier; only a clean miss falls through.
func (c *client) Resolve(ctx context.Context, address string) Outcome {
	out, terminal := c.lookup(ctx, address, typeParcel)
	if terminal {
		return out
	}

	out, terminal = c.lookup(ctx, address, typeRoad)
	if terminal {
		return out
	}

	return Outcome{Reason: "no match in either tier"}
}
