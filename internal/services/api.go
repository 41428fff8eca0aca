package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/reelsync/internal/shared"
)

const (
	defaultBaseURL = "http://localhost:8000/api"
	defaultTimeout = 15 * time.Second
)

// APIService makes raw HTTP requests to the sync server. Every request is paced by a token bucket
// and bounded by a deadline.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

// APIOption configures an [APIService].
type APIOption func(*APIService)

// WithRateLimit paces outbound requests to perSecond with the given burst. Zero disables pacing.
func WithRateLimit(perSecond float64, burst int) APIOption {
	return func(a *APIService) {
		if perSecond <= 0 {
			a.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) APIOption {
	return func(a *APIService) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAPIService creates a new API service instance for the sync server.
func NewAPIService(baseURL string, client *http.Client, opts ...APIOption) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewAPIServiceFromConfig wires the [remote] section: bearer token, timeout and pacing.
func NewAPIServiceFromConfig(c shared.RemoteConfig) *APIService {
	client := NewHTTPClient(c.Token, c.Timeout.Duration)
	return NewAPIService(c.BaseURL, client, WithTimeout(c.Timeout.Duration), WithRateLimit(c.RateLimit, c.Burst))
}

// NewHTTPClient returns a client that sends token as a bearer credential, or a plain client when
// token is empty. timeout is the client level ceiling.
func NewHTTPClient(token string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
	}
}

// BaseURL returns the API root without a trailing slash.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, data)
}

// Do sends a request and returns the raw response whatever its status.
//
// Failures to reach the server come back as a transient [RequestError].
func (a *APIService) Do(ctx context.Context, method, path string, body []byte) (*APIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, &RequestError{Method: method, Path: path, Err: fmt.Errorf("%w: %v", shared.ErrTimeout, err)}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Method: method, Path: path, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := gojson.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// getJSON decodes a successful GET into result.
func (a *APIService) getJSON(ctx context.Context, path string, query url.Values, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	resp, err := a.Get(ctx, path)
	if err != nil {
		return err
	}
	return decodeResponse(http.MethodGet, path, resp, result)
}

// postJSON encodes body, posts it and decodes a successful response into result.
func (a *APIService) postJSON(ctx context.Context, path string, body, result any) error {
	data, err := gojson.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := a.Post(ctx, path, data)
	if err != nil {
		return err
	}
	return decodeResponse(http.MethodPost, path, resp, result)
}

func decodeResponse(method, path string, resp *APIResponse, result any) error {
	if !resp.OK() {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorDetail(resp.Body)}
	}
	if result == nil {
		return nil
	}
	if err := gojson.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("%w: failed to decode response from %s: %v", shared.ErrAPIRequest, path, err)
	}
	return nil
}

// errorDetail extracts a FastAPI style {"detail": ...} or {"error": ...} message.
func errorDetail(body []byte) string {
	var errResp struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := gojson.Unmarshal(body, &errResp); err == nil {
		switch d := errResp.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if b, err := gojson.Marshal(d); err == nil {
				return string(b)
			}
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
