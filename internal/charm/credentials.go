package charm

import (
	"context"
	"sync"
	"time"
)

// refreshCooldown bounds how often a failing token endpoint is re-contacted.
// While the cooldown is active, callers fail fast with the last refresh error
// instead of hammering the identity provider.
const refreshCooldown = 30 * time.Second

// RefreshFunc exchanges the long-lived refresh token for a new access token.
// It returns the token and its validity duration.
type RefreshFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// refreshCall is a single in-flight token refresh shared by all concurrent
// callers that observed an expired or rejected token.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// CredentialStore holds the process's single mutable access token. It is the
// only shared mutable state in the client: reads and writes are serialized by
// a mutex, and concurrent refresh attempts coalesce into one in-flight call
// whose result (token or error) is broadcast to every waiter.
type CredentialStore struct {
	refresh RefreshFunc
	logger  *Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	inflight  *refreshCall
	failedAt  time.Time
	lastErr   error
}

// NewCredentialStore creates a store that obtains tokens via refresh.
// The store starts empty; the first request triggers a refresh.
func NewCredentialStore(refresh RefreshFunc, logger *Logger) *CredentialStore {
	return &CredentialStore{refresh: refresh, logger: logger}
}

// Token returns the current access token and whether it is still fresh.
// A stale token is still returned: the caller may use it and rely on the
// 401-triggered refresh path, which avoids a refresh round-trip when the
// expiry hint was pessimistic.
func (s *CredentialStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	return s.token, time.Now().Before(s.expiresAt)
}

// Refresh obtains a fresh access token, coalescing concurrent attempts.
// The stale argument is the token the caller last observed: if another
// caller already completed a refresh, the newer token is returned without
// contacting the provider again.
//
// The refresh HTTP call itself runs detached from the caller's context so
// that cancelling one tool invocation cannot abort a refresh other waiters
// depend on. A failed refresh leaves the previous token in place.
func (s *CredentialStore) Refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()

	// Another caller refreshed while we were waiting on the lock.
	if s.token != "" && s.token != stale && time.Now().Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}

	// Fail fast while the provider is known-bad.
	if s.inflight == nil && s.lastErr != nil && time.Since(s.failedAt) < refreshCooldown {
		err := s.lastErr
		s.mu.Unlock()
		return "", err
	}

	if s.inflight == nil {
		call := &refreshCall{done: make(chan struct{})}
		s.inflight = call
		go s.runRefresh(context.WithoutCancel(ctx), call)
	}
	call := s.inflight
	s.mu.Unlock()

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		// The refresh keeps running for the remaining waiters.
		return "", &TransportError{Op: "token refresh wait", Cause: ctx.Err()}
	}
}

func (s *CredentialStore) runRefresh(ctx context.Context, call *refreshCall) {
	token, expiresIn, err := s.refresh(ctx)

	s.mu.Lock()
	if err != nil {
		s.failedAt = time.Now()
		s.lastErr = err
		s.logger.Error("Token refresh failed: %v", err)
	} else {
		s.token = token
		s.expiresAt = time.Now().Add(expiresIn - expirySkew)
		s.lastErr = nil
		s.logger.InfoVerbose("Access token refreshed (valid for %s)", expiresIn)
	}
	s.inflight = nil
	s.mu.Unlock()

	call.token = token
	call.err = err
	close(call.done)
}
