package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the marketplace API rooted at a base URL such as http://localhost:5000/api
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the client timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new API client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is the outcome of a single API call. Non-2xx statuses are not errors.
type Response struct {
	Step       string
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       Body
	Duration   time.Duration
}

// Success reports whether the status is 2xx
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Token returns the "token" field of a successful JSON response, or "".
func (r *Response) Token() string {
	if r == nil || !r.Success() {
		return ""
	}
	token, _ := r.Body.LookupString("token")
	return token
}

// ProductID returns product.productId when the status is exactly 201 Created, or "".
func (r *Response) ProductID() string {
	if r == nil || r.StatusCode != http.StatusCreated {
		return ""
	}
	id, _ := r.Body.LookupString("product", "productId")
	return id
}

// request describes one outgoing call
type request struct {
	step        string
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
}

func (c *Client) do(ctx context.Context, r request) (*Response, error) {
	url := c.baseURL + r.path

	req, err := http.NewRequestWithContext(ctx, r.method, url, r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", r.step, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("step", r.step),
			zap.String("method", r.method),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", r.step, err)
	}
	elapsed := time.Since(start)

	c.logger.Debug("request completed",
		zap.String("step", r.step),
		zap.String("method", r.method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
	)

	return &Response{
		Step:       r.step,
		Method:     r.method,
		Path:       r.path,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       ParseBody(raw),
		Duration:   elapsed,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, step, method, path, token string, payload interface{}) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", step, err)
	}
	return c.do(ctx, request{
		step:        step,
		method:      method,
		path:        path,
		token:       token,
		body:        bytes.NewReader(data),
		contentType: "application/json",
	})
}
