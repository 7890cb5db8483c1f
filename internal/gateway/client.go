// Package gateway is the single HTTP entry point to the scheduling backend.
// Every call runs through an ordered list of request stages (credential
// attachment) and response stages (centralized 401 handling).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"turnos-web/internal/session"
)

const maxErrorBody = 1 << 20

type Client struct {
	base     *url.URL
	http     *http.Client
	log      *zap.Logger
	now      func() time.Time
	request  []RequestStage
	response []ResponseStage
}

type Option func(*Client)

func WithRequestStage(s RequestStage) Option {
	return func(c *Client) { c.request = append(c.request, s) }
}

func WithResponseStage(s ResponseStage) Option {
	return func(c *Client) { c.response = append(c.response, s) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, httpClient *http.Client, log *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{base: u, http: httpClient, log: log, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do sends one request. body is JSON-encoded when non-nil; out is decoded
// from the response when non-nil and the response has content.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, stage := range c.request {
		if err := stage(req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	for _, stage := range c.response {
		if err := stage(resp); err != nil {
			return err
		}
	}

	if resp.StatusCode >= 400 {
		return c.failure(req, resp, method, path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) failure(req *http.Request, resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	gErr := &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: extractMessage(raw),
		Method:  method,
		Path:    path,
	}
	if resp.StatusCode == http.StatusUnauthorized {
		header := req.Header.Get("Authorization")
		switch {
		case header == "":
			gErr.Kind = KindAuthorizationMissing
		case session.Expired(header, c.now()):
			gErr.Kind = KindAuthorizationExpired
		default:
			gErr.Kind = KindAuthorizationInvalid
		}
		c.log.Warn("backend rejected credentials",
			zap.String("method", method),
			zap.String("path", path),
			zap.Bool("token_present", header != ""),
			zap.Stringer("kind", gErr.Kind))
	} else {
		c.log.Debug("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
	}
	return gErr
}
