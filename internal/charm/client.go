package charm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// MetricsSink receives per-call observability events from the client.
// Implementations must be non-blocking and must never fail the call;
// a nil sink disables recording.
type MetricsSink interface {
	RecordAPICall(endpoint, method string, success bool, duration time.Duration)
}

// Request describes one outbound API call. All resource calls are
// bearer-authenticated; bodies are serialized as JSON.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Response is the outcome of a successful API call. Body holds the raw
// JSON payload; Decode unmarshals it into a caller-provided shape.
type Response struct {
	Status int
	Body   json.RawMessage
	Header http.Header
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ProtocolError{Status: r.Status, Cause: err}
	}
	return nil
}

// Client issues authenticated requests against the CharmHealth API.
// It owns the credential store and transparently refreshes the access
// token on expiry or rejection, retrying a rejected request exactly once.
type Client struct {
	cfg     Config
	http    *http.Client
	creds   *CredentialStore
	logger  *Logger
	metrics MetricsSink
}

// ClientOptions configures a new Client.
type ClientOptions struct {
	Config Config
	Logger *Logger

	// Metrics receives per-API-call events. Optional.
	Metrics MetricsSink

	// HTTPClient overrides the underlying transport. Optional; used by
	// tests. Per-call timeouts come from Config.Timeout either way.
	HTTPClient *http.Client
}

// NewClient validates the configuration and creates a client. The client
// starts without an access token; the first request obtains one.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CharmHealth configuration: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	c.creds = NewCredentialStore(newRefreshFunc(cfg, httpClient, opts.Logger), opts.Logger)
	return c, nil
}

// ClientID returns the configured OAuth client identifier.
func (c *Client) ClientID() string { return c.cfg.ClientID }

// Credentials exposes the credential store for tests and diagnostics.
func (c *Client) Credentials() *CredentialStore { return c.creds }

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Do executes one API call with the two-step auth protocol:
//
//	Authorized -> (on 401) -> Refreshing -> Retried -> {Authorized | Failed}
//
// At most one refresh-and-retry happens per call. A second auth rejection
// is terminal. Non-auth failures are translated and never retried here.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	token, fresh := c.creds.Token()
	if !fresh {
		refreshed, err := c.creds.Refresh(ctx, token)
		if err != nil {
			if token == "" {
				return nil, err
			}
			// Keep the stale token and let the provider decide; the
			// 401 path below surfaces a terminal AuthError if it is
			// genuinely unusable.
			c.logger.WarningVerbose("Proceeding with stale access token: %v", err)
		} else {
			token = refreshed
		}
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if isAuthRejection(resp) {
		c.logger.WarningVerbose("Received %d for %s %s, refreshing token", resp.Status, req.Method, req.Path)
		newToken, rerr := c.creds.Refresh(ctx, token)
		if rerr != nil {
			return nil, &AuthError{Status: resp.Status, Cause: rerr}
		}
		resp, err = c.send(ctx, req, newToken)
		if err != nil {
			return nil, err
		}
		if isAuthRejection(resp) {
			return nil, &AuthError{Status: resp.Status}
		}
	}

	if terr := translateStatus(resp.Status, string(resp.Body)); terr != nil {
		return nil, terr
	}

	if len(resp.Body) > 0 && !json.Valid(resp.Body) {
		return nil, &ProtocolError{Status: resp.Status, Cause: fmt.Errorf("response body is not valid JSON")}
	}
	return resp, nil
}

// send performs a single HTTP exchange with the given bearer token. It
// applies the per-call timeout, reports the call to the metrics sink, and
// maps network failures to TransportError.
func (c *Client) send(ctx context.Context, req Request, token string) (*Response, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("api_key", c.cfg.APIKey)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.logger.Request(req.Method, req.Path)
	start := time.Now()

	httpResp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.recordCall(req, false, duration)
		return nil, &TransportError{Op: fmt.Sprintf("%s %s", req.Method, req.Path), Cause: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.recordCall(req, false, duration)
		return nil, &TransportError{Op: fmt.Sprintf("read %s %s response", req.Method, req.Path), Cause: err}
	}

	c.logger.Response(req.Method, req.Path, httpResp.StatusCode)
	c.recordCall(req, httpResp.StatusCode < 400, time.Since(start))

	return &Response{
		Status: httpResp.StatusCode,
		Body:   respBody,
		Header: httpResp.Header,
	}, nil
}

func (c *Client) recordCall(req Request, success bool, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordAPICall(scrubEndpoint(req.Path), req.Method, success, duration)
}

// isAuthRejection reports whether the response indicates an invalid or
// expired access token. 401 is the documented signal; some provider
// endpoints report token problems in a 400 body instead.
func isAuthRejection(resp *Response) bool {
	if resp.Status == http.StatusUnauthorized {
		return true
	}
	if resp.Status == http.StatusBadRequest {
		body := strings.ToLower(string(resp.Body))
		return strings.Contains(body, "invalid token") || strings.Contains(body, "token expired")
	}
	return false
}

// Resource IDs are 18-digit numbers; strip them from endpoint labels so
// metrics don't explode in cardinality.
var (
	trailingIDPattern = regexp.MustCompile(`/[0-9]{18}$`)
	innerIDPattern    = regexp.MustCompile(`/[0-9]{18}/`)
)

func scrubEndpoint(path string) string {
	path = trailingIDPattern.ReplaceAllString(path, "")
	return innerIDPattern.ReplaceAllString(path, "/")
}
