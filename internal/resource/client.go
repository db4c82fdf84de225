// Package resource is the typed REST client of the back-office API. A Service
// maps list/get/create/update/delete calls of one resource onto HTTP requests
// and decodes the JSON envelopes. It keeps no state between calls and never
// retries.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/restaurant-backoffice/internal/api"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client sends requests to one API base URL.
type Client struct {
	base   *url.URL
	http   *http.Client
	userID string
	logger zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTransport sets the RoundTripper of the underlying client.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithUserID sends id as X-User-ID on every request.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = strings.TrimSpace(id) }
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client for baseURL, which includes the versioned
// prefix (e.g. http://localhost:8080/api/v1).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: log.Logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	raw := []string{u.Path}
	esc := []string{u.EscapedPath()}
	for _, s := range segments {
		raw = append(raw, s)
		esc = append(esc, url.PathEscape(s))
	}
	u.Path = strings.Join(raw, "/")
	u.RawPath = strings.Join(esc, "/")
	return u.String()
}

// do sends one request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method, target string, body any, hdr http.Header, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindRequest, Op: op, Message: "encode body", Err: err}
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return &Error{Kind: KindRequest, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(api.HeaderUserID, c.userID)
	}
	for k, vv := range hdr {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("request failed")
		return &Error{Kind: KindNetwork, Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Str("request_id", resp.Header.Get(api.HeaderRequestID)).
		Dur("latency", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Kind:      KindServer,
			Op:        op,
			Status:    resp.StatusCode,
			Message:   "malformed response body",
			RequestID: resp.Header.Get(api.HeaderRequestID),
			Err:       err,
		}
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	e := &Error{
		Kind:      kindForStatus(resp.StatusCode),
		Op:        op,
		Status:    resp.StatusCode,
		Message:   http.StatusText(resp.StatusCode),
		RequestID: resp.Header.Get(api.HeaderRequestID),
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			e.Message = body.Message
		}
		e.Code = body.Code
		e.Fields = body.Fields
		if body.RequestID != "" {
			e.RequestID = body.RequestID
		}
	}
	e.Err = errors.New(e.Message)
	return e
}
