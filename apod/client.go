package apod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is NASA's APOD endpoint.
	DefaultBaseURL = "https://api.nasa.gov/planetary/apod"

	// DefaultAPIKey is NASA's shared demo key. It works but is heavily rate limited.
	DefaultAPIKey = "DEMO_KEY"

	// DefaultTimeout bounds one upstream call.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// ErrInvalidPayload is returned when the upstream answers 2xx with a body
// that is not JSON.
var ErrInvalidPayload = errors.New("upstream returned invalid JSON")

// UpstreamError is a non-2xx answer from the APOD API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// Query selects APOD records: either one Date, or a StartDate/EndDate range.
type Query struct {
	Date      string
	StartDate string
	EndDate   string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	return v
}

// String renders the query without the API key, for logs.
func (q Query) String() string {
	return q.values().Encode()
}

// Client fetches raw APOD JSON from the upstream API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	observe func(err error, took time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the pooled default client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit caps outbound calls at rps per second with the given burst.
// A non-positive rps leaves calls unlimited.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithObserver registers fn to be told the outcome and latency of every call.
func WithObserver(fn func(err error, took time.Duration)) ClientOption {
	return func(c *Client) {
		c.observe = fn
	}
}

// NewClient returns a Client for baseURL. Empty baseURL or apiKey fall back
// to the defaults; a non-positive timeout means DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout

	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs one upstream call and returns the body untouched. Non-2xx
// answers come back as *UpstreamError.
func (c *Client) Fetch(ctx context.Context, q Query) (json.RawMessage, error) {
	start := time.Now()
	body, err := c.fetch(ctx, q)
	took := time.Since(start)

	if c.observe != nil {
		c.observe(err, took)
	}

	if err != nil {
		log.WithError(err).WithField("query", q.String()).Debug("apod fetch failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"query": q.String(),
		"size":  humanize.Bytes(uint64(len(body))),
		"took":  took.Round(time.Millisecond),
	}).Debug("apod fetched")

	return body, nil
}

func (c *Client) fetch(ctx context.Context, q Query) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for upstream rate limit: %w", err)
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	params := q.values()
	params.Set("api_key", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full URL, api_key included
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}

	return json.RawMessage(body), nil
}

// errorMessage pulls a human readable reason out of an APOD error body.
// The API uses {"msg": ...} for bad parameters and {"error": {"message": ...}}
// for key problems.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"msg", "error.message", "error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}
