package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/charmhealth/charm-mcp/internal/charm"
)

// capturedRequest records one API request the backend received
type capturedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   []byte
}

// mockBackend fakes the CharmHealth API plus its token endpoint
type mockBackend struct {
	api   *httptest.Server
	token *httptest.Server

	mu        sync.Mutex
	requests  []capturedRequest
	responses map[string]mockResponse // keyed by METHOD PATH
}

type mockResponse struct {
	status int
	body   string
}

func newMockBackend(t *testing.T) *mockBackend {
	t.Helper()

	mb := &mockBackend{responses: map[string]mockResponse{}}

	mb.token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"expires_in":   3600,
		})
	}))

	mb.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		query := map[string]string{}
		for key := range r.URL.Query() {
			query[key] = r.URL.Query().Get(key)
		}

		mb.mu.Lock()
		mb.requests = append(mb.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  query,
			Body:   body,
		})
		resp, ok := mb.responses[r.Method+" "+r.URL.Path]
		mb.mu.Unlock()

		if !ok {
			resp = mockResponse{status: http.StatusOK, body: `{"code":"0","message":"success"}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))

	t.Cleanup(func() {
		mb.api.Close()
		mb.token.Close()
	})
	return mb
}

// Respond configures the response for a METHOD PATH pair
func (mb *mockBackend) Respond(method, path string, status int, body string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.responses[method+" "+path] = mockResponse{status: status, body: body}
}

// Requests returns the captured requests in order
func (mb *mockBackend) Requests() []capturedRequest {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]capturedRequest{}, mb.requests...)
}

// LastRequest returns the most recent captured request
func (mb *mockBackend) LastRequest(t *testing.T) capturedRequest {
	t.Helper()
	reqs := mb.Requests()
	require.NotEmpty(t, reqs, "expected at least one API request")
	return reqs[len(reqs)-1]
}

// newTestServer builds a Server wired to the mock backend
func newTestServer(t *testing.T, mb *mockBackend) *Server {
	t.Helper()

	client, err := charm.NewClient(charm.ClientOptions{
		Config: charm.Config{
			BaseURL:      mb.api.URL,
			APIKey:       "test-api-key",
			RefreshToken: "test-refresh-token",
			ClientID:     "test-client-id",
			ClientSecret: "test-client-secret",
			RedirectURI:  "https://localhost/callback",
			TokenURL:     mb.token.URL,
			Timeout:      5 * time.Second,
		},
	})
	require.NoError(t, err)

	srv, err := New(Options{
		Client:    client,
		Transport: TransportStdio,
		Version:   "test",
	})
	require.NoError(t, err)
	return srv
}

// callTool invokes a registered tool through its wrapped handler, the same
// path a transport request takes
func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()

	for _, entry := range srv.catalog {
		if entry.tool.Name == name {
			request := mcp.CallToolRequest{}
			request.Params.Name = name
			request.Params.Arguments = args

			result, err := entry.handler(context.Background(), request)
			require.NoError(t, err, "wrapped handlers must never return an error")
			require.NotNil(t, result)
			return result
		}
	}
	t.Fatalf("tool not found in catalog: %s", name)
	return nil
}

// resultText extracts the text payload of a tool result
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}
