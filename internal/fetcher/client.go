// Package fetcher performs time-boxed HTTP GETs against the weather feeds.
// Requests go through a circuit breaker and are never retried.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	AcceptGeoJSON = "application/geo+json"
	AcceptXML     = "application/rss+xml, application/xml, text/xml"
	AcceptHTML    = "text/html"
	AcceptImage   = "image/*"

	maxBodyBytes = 16 << 20
)

type Options struct {
	Timeout         time.Duration
	UserAgent       string
	BreakerName     string
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// Response is a fully read response body.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	settings  gobreaker.Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

// New returns a client with one circuit breaker per upstream host, so an
// outage of one feed does not block the others.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = time.Minute
	}
	if opts.BreakerName == "" {
		opts.BreakerName = "feeds"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	failures := opts.BreakerFailures
	settings := gobreaker.Settings{
		Name:        opts.BreakerName,
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// 4xx means the feed answered; only outages should trip.
			var fe *FetchError
			if errors.As(err, &fe) && fe.Kind == KindStatus {
				return fe.StatusCode < 500 && fe.StatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		http:      httpClient,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		settings:  settings,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
}

func (c *Client) breakerFor(rawURL string) *gobreaker.CircuitBreaker[*Response] {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[host]
	if !ok {
		st := c.settings
		st.Name = c.settings.Name + ":" + host
		cb = gobreaker.NewCircuitBreaker[*Response](st)
		c.breakers[host] = cb
	}
	return cb
}

// Get fetches url and reads the whole body within the client timeout.
func (c *Client) Get(ctx context.Context, url, accept string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.breakerFor(url).Execute(func() (*Response, error) {
		return c.do(ctx, url, accept)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{Kind: KindUnavailable, URL: url, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

// GetJSON fetches url as GeoJSON and decodes it into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Get(ctx, url, AcceptGeoJSON)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return Malformed(url, fmt.Errorf("error decoding body: %w", err))
	}
	return nil
}

func (c *Client) do(ctx context.Context, url, accept string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("error creating request: %w", err)}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: transportKind(ctx, err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: KindStatus, URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: transportKind(ctx, err), URL: url, Err: fmt.Errorf("error reading body: %w", err)}
	}

	return &Response{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func transportKind(ctx context.Context, err error) Kind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
