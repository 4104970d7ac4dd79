package charm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Test timeout constants
const (
	testTimeoutNormal = 1 * time.Second
	testTimeoutLong   = 5 * time.Second
)

// testEnv encapsulates a complete test environment with mock servers
type testEnv struct {
	Provider *MockTokenProvider
	API      *MockAPIServer
	cleanup  func()
}

// setupTestEnvironment creates a mock identity provider and API server
// wired together: tokens issued by the provider are valid at the API.
func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()

	provider := NewMockTokenProvider(t)
	api := NewMockAPIServer(t, provider)

	return &testEnv{
		Provider: provider,
		API:      api,
		cleanup: func() {
			api.Close()
			provider.Close()
		},
	}
}

// testConfig builds a valid Config pointing at the test environment.
func (env *testEnv) testConfig() Config {
	return Config{
		BaseURL:      env.API.URL,
		APIKey:       "test-api-key",
		RefreshToken: "test-refresh-token",
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURI:  "https://localhost/callback",
		TokenURL:     env.Provider.URL + "/token",
		Timeout:      testTimeoutLong,
	}
}

// newTestClient builds a client against the test environment.
func newTestClient(t *testing.T, env *testEnv) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{Config: env.testConfig()})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// MockTokenProvider provides a mock OAuth token endpoint that issues
// access tokens for the refresh_token grant
type MockTokenProvider struct {
	*httptest.Server
	t *testing.T

	// Configuration
	expiresIn    int  // seconds; 0 omits the field entirely
	omitToken    bool // respond 200 without an access_token
	failStatus   int  // non-zero forces this status on every token request
	failBody     string
	responseLag  time.Duration
	refreshToken string

	// State tracking
	mu                sync.Mutex
	tokenRequestCount int
	issuedTokens      []string
	lastForm          map[string]string
	lastAPIKey        string
}

// NewMockTokenProvider creates a new mock token provider
func NewMockTokenProvider(t *testing.T) *MockTokenProvider {
	t.Helper()

	mtp := &MockTokenProvider{
		t:            t,
		expiresIn:    3600,
		refreshToken: "test-refresh-token",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", mtp.handleToken)

	mtp.Server = httptest.NewServer(mux)
	return mtp
}

// SetFailure forces the token endpoint to fail with the given status and body
func (mtp *MockTokenProvider) SetFailure(status int, body string) {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	mtp.failStatus = status
	mtp.failBody = body
}

// ClearFailure restores successful token issuance
func (mtp *MockTokenProvider) ClearFailure() {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	mtp.failStatus = 0
	mtp.failBody = ""
}

// OmitAccessToken makes the provider answer 200 without an access_token
func (mtp *MockTokenProvider) OmitAccessToken() {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	mtp.omitToken = true
}

// SetExpiresIn overrides the expires_in value; 0 omits the field entirely
func (mtp *MockTokenProvider) SetExpiresIn(seconds int) {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	mtp.expiresIn = seconds
}

// SetResponseLag delays every token response, for coalescing tests
func (mtp *MockTokenProvider) SetResponseLag(d time.Duration) {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	mtp.responseLag = d
}

// handleToken handles refresh_token grant requests
func (mtp *MockTokenProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method_not_allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	mtp.mu.Lock()
	mtp.tokenRequestCount = mtp.tokenRequestCount + 1
	count := mtp.tokenRequestCount
	mtp.lastForm = map[string]string{}
	for key := range r.Form {
		mtp.lastForm[key] = r.Form.Get(key)
	}
	mtp.lastAPIKey = r.Header.Get("api_key")
	failStatus := mtp.failStatus
	failBody := mtp.failBody
	lag := mtp.responseLag
	expiresIn := mtp.expiresIn
	omitToken := mtp.omitToken
	expectedRefresh := mtp.refreshToken
	mtp.mu.Unlock()

	if lag > 0 {
		time.Sleep(lag)
	}

	if failStatus != 0 {
		http.Error(w, failBody, failStatus)
		return
	}

	if r.Form.Get("grant_type") != "refresh_token" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}
	if r.Form.Get("refresh_token") != expectedRefresh {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}

	token := fmt.Sprintf("ACCESS_TOKEN_%d", count)
	mtp.mu.Lock()
	mtp.issuedTokens = append(mtp.issuedTokens, token)
	mtp.mu.Unlock()

	response := map[string]interface{}{
		"token_type": "Bearer",
	}
	if !omitToken {
		response["access_token"] = token
	}
	if expiresIn > 0 {
		response["expires_in"] = expiresIn
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// TokenRequestCount returns the number of token requests received
func (mtp *MockTokenProvider) TokenRequestCount() int {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	return mtp.tokenRequestCount
}

// LastForm returns the form fields of the most recent token request
func (mtp *MockTokenProvider) LastForm() map[string]string {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	form := map[string]string{}
	for k, v := range mtp.lastForm {
		form[k] = v
	}
	return form
}

// LastAPIKey returns the api_key header of the most recent token request
func (mtp *MockTokenProvider) LastAPIKey() string {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	return mtp.lastAPIKey
}

// IssuedTokens returns all access tokens issued so far
func (mtp *MockTokenProvider) IssuedTokens() []string {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	return append([]string{}, mtp.issuedTokens...)
}

// LatestToken returns the most recently issued access token
func (mtp *MockTokenProvider) LatestToken() string {
	mtp.mu.Lock()
	defer mtp.mu.Unlock()
	if len(mtp.issuedTokens) == 0 {
		return ""
	}
	return mtp.issuedTokens[len(mtp.issuedTokens)-1]
}

// MockAPIServer provides a mock CharmHealth resource API that validates
// bearer tokens against the provider's issued set
type MockAPIServer struct {
	*httptest.Server
	t        *testing.T
	provider *MockTokenProvider

	// Configuration
	status       int    // forced response status; 0 means 200
	body         string // forced response body
	revokedAll   bool   // treat every token as invalid
	rejectOldest int    // reject the first N issued tokens as expired

	// State tracking
	mu           sync.Mutex
	requestCount int
	seenTokens   []string
	seenPaths    []string
}

// NewMockAPIServer creates a new mock API server
func NewMockAPIServer(t *testing.T, provider *MockTokenProvider) *MockAPIServer {
	t.Helper()

	mas := &MockAPIServer{
		t:        t,
		provider: provider,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", mas.handleRequest)

	mas.Server = httptest.NewServer(mux)
	return mas
}

// SetResponse forces a fixed status and body on every request
func (mas *MockAPIServer) SetResponse(status int, body string) {
	mas.mu.Lock()
	defer mas.mu.Unlock()
	mas.status = status
	mas.body = body
}

// RevokeAllTokens makes the API reject every bearer token with 401
func (mas *MockAPIServer) RevokeAllTokens() {
	mas.mu.Lock()
	defer mas.mu.Unlock()
	mas.revokedAll = true
}

// ExpireOldestTokens makes the API reject the first n issued tokens,
// simulating provider-side expiry of earlier tokens
func (mas *MockAPIServer) ExpireOldestTokens(n int) {
	mas.mu.Lock()
	defer mas.mu.Unlock()
	mas.rejectOldest = n
}

// handleRequest validates the bearer token and serves the configured response
func (mas *MockAPIServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	mas.mu.Lock()
	mas.requestCount++
	mas.seenTokens = append(mas.seenTokens, token)
	mas.seenPaths = append(mas.seenPaths, r.URL.Path)
	status := mas.status
	body := mas.body
	revoked := mas.revokedAll
	rejectOldest := mas.rejectOldest
	mas.mu.Unlock()

	valid := false
	for i, issued := range mas.provider.IssuedTokens() {
		if issued == token {
			valid = i >= rejectOldest
			break
		}
	}
	if revoked {
		valid = false
	}

	if !valid {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
		return
	}

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    "0",
		"message": "success",
		"path":    r.URL.Path,
	})
}

// RequestCount returns the number of API requests received
func (mas *MockAPIServer) RequestCount() int {
	mas.mu.Lock()
	defer mas.mu.Unlock()
	return mas.requestCount
}

// SeenTokens returns the bearer tokens observed, in request order
func (mas *MockAPIServer) SeenTokens() []string {
	mas.mu.Lock()
	defer mas.mu.Unlock()
	return append([]string{}, mas.seenTokens...)
}

// SeenPaths returns the request paths observed, in request order
func (mas *MockAPIServer) SeenPaths() []string {
	mas.mu.Lock()
	defer mas.mu.Unlock()
	return append([]string{}, mas.seenPaths...)
}
