// Package charm provides the authenticated CharmHealth API client.
//
// This package handles the OAuth2 refresh-token lifecycle, request execution
// with automatic token renewal, and the error taxonomy callers use to tell
// authentication failures apart from API and transport failures.
//
// # Token Lifecycle
//
// Access tokens come from a refresh_token grant against the CharmHealth token
// endpoint and are cached in a shared CredentialStore. Renewal is coalesced:
// concurrent requests that find the token stale share a single refresh call.
// A request that is rejected with 401 (or the API's 400 "invalid token"
// variants) triggers exactly one refresh-and-retry before failing with an
// AuthError.
//
// # Key Components
//
//   - Client: Executes authenticated API requests with retry-on-rejection
//   - Config: Endpoint and credential configuration with CHARMHEALTH_* env overrides
//   - CredentialStore: Shared access token cache with coalesced refresh
//   - Logger: Formatted logging with color support and HTTP request tracing
package charm
