// Package telemetry records tool invocation and API call metrics.
//
// Recording is a strict side channel: every method is non-blocking and
// best-effort, and a recording failure never changes the outcome of the
// tool call being observed. The zero value of interest is NoopTracker,
// used whenever telemetry is disabled.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/charmhealth/charm-mcp/internal/charm"
)

// Outcome classifies how a tool invocation ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeClientError Outcome = "client_error"
	OutcomeServerError Outcome = "server_error"
	OutcomeAuthError   Outcome = "auth_error"
	OutcomeTimeout     Outcome = "timeout"
)

// Invocation is the in-flight record of a single tool call. It is created
// at call start, finalized at completion, and not retained afterwards.
type Invocation struct {
	ID        string
	ToolName  string
	StartedAt time.Time
}

// Tracker receives tool and API call lifecycle events.
type Tracker interface {
	// StartInvocation marks a tool call as active.
	StartInvocation(ctx context.Context, toolName string) *Invocation

	// EndInvocation finalizes the record. errDetail is empty on success.
	EndInvocation(ctx context.Context, inv *Invocation, outcome Outcome, errDetail string)

	// RecordAPICall records one outbound API call made on behalf of a tool.
	RecordAPICall(endpoint, method string, success bool, duration time.Duration)
}

// OutcomeFromError maps the client error taxonomy to an invocation outcome.
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var (
		authErr     *charm.AuthError
		providerErr *charm.AuthProviderError
		clientErr   *charm.ClientError
		serverErr   *charm.ServerError
		transport   *charm.TransportError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &providerErr):
		return OutcomeAuthError
	case errors.As(err, &transport):
		if errors.Is(err, context.DeadlineExceeded) {
			return OutcomeTimeout
		}
		return OutcomeServerError
	case errors.As(err, &serverErr):
		return OutcomeServerError
	case errors.As(err, &clientErr):
		return OutcomeClientError
	default:
		return OutcomeServerError
	}
}

// NoopTracker discards all events.
type NoopTracker struct{}

func (NoopTracker) StartInvocation(_ context.Context, toolName string) *Invocation {
	return &Invocation{ID: uuid.NewString(), ToolName: toolName, StartedAt: time.Now()}
}

func (NoopTracker) EndInvocation(context.Context, *Invocation, Outcome, string) {}

func (NoopTracker) RecordAPICall(string, string, bool, time.Duration) {}
