// Package search forwards search requests to a third-party search API,
// attaching the server-held API key so browsers never see it.
package search

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

	"github.com/starford/searchgate/internal/apperr"
	"github.com/starford/searchgate/internal/metrics"
)

// forwardedHeaders are copied from the inbound request to the upstream call.
var forwardedHeaders = []string{"Accept", "Accept-Language", "Content-Type"}

// Config holds upstream connection settings.
type Config struct {
	BaseURL          string
	APIKeyName       string
	APIKeyValue      string
	QueryParam       string
	Timeout          time.Duration
	MaxRequestBytes  int64
	MaxResponseBytes int64
}

// Request is a search call to forward upstream.
type Request struct {
	Method        string
	Path          string // escaped, appended to the base URL path
	Query         url.Values
	Header        http.Header
	Body          io.Reader
	ContentLength int64 // <= 0 when unknown
}

// Result is a fully read upstream response.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client calls the upstream search API.
type Client struct {
	base       *url.URL
	keyName    string
	keyValue   string
	queryParam string
	maxRequest int64
	maxBody    int64
	http       *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a Client. An empty BaseURL yields a client whose calls
// fail with apperr.ErrNotConfigured. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics) (*Client, error) {
	c := &Client{
		keyName:    cfg.APIKeyName,
		keyValue:   cfg.APIKeyValue,
		queryParam: cfg.QueryParam,
		maxRequest: cfg.MaxRequestBytes,
		maxBody:    cfg.MaxResponseBytes,
		http:       newHTTPClient(cfg.Timeout),
		metrics:    m,
	}
	if c.queryParam == "" {
		c.queryParam = "q"
	}
	if c.maxRequest <= 0 {
		c.maxRequest = 1 << 20
	}
	if c.maxBody <= 0 {
		c.maxBody = 10 << 20
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
		}
		c.base = u
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tr := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		ForceAttemptHTTP2: true,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

// Configured reports whether an upstream base URL is set.
func (c *Client) Configured() bool {
	return c.base != nil
}

// MaxRequestBytes is the largest request body forwarded upstream.
func (c *Client) MaxRequestBytes() int64 {
	return c.maxRequest
}

// URL builds the upstream URL for req. The result always stays under the
// base URL path, and the API key parameter always replaces any
// caller-supplied value of the same name.
func (c *Client) URL(req Request) (*url.URL, error) {
	if c.base == nil {
		return nil, apperr.ErrNotConfigured
	}
	u := *c.base

	if rest := strings.Trim(req.Path, "/"); rest != "" {
		decoded, err := url.PathUnescape(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidPath, err)
		}
		if hasDotSegment(rest) {
			return nil, fmt.Errorf("%w: dot segment in %q", apperr.ErrInvalidPath, rest)
		}
		u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + decoded
		u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + "/" + rest
	}

	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.keyName != "" {
		q.Set(c.keyName, c.keyValue)
	}
	u.RawQuery = q.Encode()
	return &u, nil
}

// Do sends req upstream. The caller owns the returned body.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	u, err := c.URL(req)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body    io.Reader
		tracked *trackedBody
	)
	if req.Body != nil {
		tracked = &trackedBody{r: req.Body}
		body = tracked
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}
	for _, h := range forwardedHeaders {
		if v := req.Header.Get(h); v != "" {
			httpReq.Header.Set(h, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if tracked.tooLarge() {
			return nil, fmt.Errorf("%w: %w", apperr.ErrRequestTooLarge, tracked.err)
		}
		if isTimeout(err) {
			c.metrics.ObserveUpstream(metrics.OutcomeTimeout, 0, time.Since(start))
			return nil, fmt.Errorf("%w: %w", apperr.ErrUpstreamTimeout, redact(err))
		}
		c.metrics.ObserveUpstream(metrics.OutcomeUnavailable, 0, time.Since(start))
		return nil, fmt.Errorf("%w: %w", apperr.ErrUpstreamUnavailable, redact(err))
	}
	c.metrics.ObserveUpstream(metrics.OutcomeOK, resp.StatusCode, time.Since(start))
	return resp, nil
}

// Query runs a GET search for terms plus any extra parameters and reads the
// whole response.
func (c *Client) Query(ctx context.Context, terms string, extra url.Values) (*Result, error) {
	q := url.Values{}
	for k, vs := range extra {
		q[k] = append([]string(nil), vs...)
	}
	q.Set(c.queryParam, terms)

	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Query: q})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", apperr.ErrUpstreamUnavailable, err)
	}
	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// trackedBody remembers the first read error of the inbound body so a
// caller-side limit is not reported as an upstream failure.
type trackedBody struct {
	r   io.Reader
	err error
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

func (b *trackedBody) tooLarge() bool {
	if b == nil || b.err == nil {
		return false
	}
	var mbe *http.MaxBytesError
	return errors.As(b.err, &mbe)
}

// hasDotSegment reports whether the escaped path contains a "." or ".."
// segment, including segments hidden behind an encoded slash.
func hasDotSegment(escaped string) bool {
	for _, seg := range strings.Split(escaped, "/") {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return true
		}
		for _, part := range strings.Split(decoded, "/") {
			if part == "." || part == ".." {
				return true
			}
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// redact strips the request URL (which carries the API key) from transport errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
