package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/charmhealth/charm-mcp/internal/charm"
)

func TestOutcomeFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil is success", nil, OutcomeSuccess},
		{"auth error", &charm.AuthError{Status: 401}, OutcomeAuthError},
		{"provider error", &charm.AuthProviderError{Status: 400, Body: "invalid_grant"}, OutcomeAuthError},
		{"client error", &charm.ClientError{Status: 404}, OutcomeClientError},
		{"server error", &charm.ServerError{Status: 503}, OutcomeServerError},
		{"transport failure", &charm.TransportError{Op: "GET /patients", Cause: errors.New("connection refused")}, OutcomeServerError},
		{"transport timeout", &charm.TransportError{Op: "GET /patients", Cause: context.DeadlineExceeded}, OutcomeTimeout},
		{"wrapped client error", fmt.Errorf("tool failed: %w", &charm.ClientError{Status: 422}), OutcomeClientError},
		{"unknown error", errors.New("boom"), OutcomeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeFromError(tt.err))
		})
	}
}

func TestNoopTracker(t *testing.T) {
	tracker := NoopTracker{}

	inv := tracker.StartInvocation(context.Background(), "find_patients")
	require.NotNil(t, inv)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "find_patients", inv.ToolName)
	assert.False(t, inv.StartedAt.IsZero())

	// Must not panic.
	tracker.EndInvocation(context.Background(), inv, OutcomeSuccess, "")
	tracker.RecordAPICall("/patients", "GET", true, time.Millisecond)
}

// collect gathers all metrics from the reader keyed by name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func newTestTracker(t *testing.T) (*OTelTracker, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracker, err := NewOTelTracker(provider, "test-client")
	require.NoError(t, err)
	return tracker, reader
}

func TestOTelTrackerToolLifecycle(t *testing.T) {
	tracker, reader := newTestTracker(t)
	ctx := context.Background()

	inv := tracker.StartInvocation(ctx, "find_patients")
	require.NotNil(t, inv)

	metrics := collect(t, reader)
	active, ok := metrics["charmhealth.tool.active"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(1), active.DataPoints[0].Value, "invocation should be active before EndInvocation")

	tracker.EndInvocation(ctx, inv, OutcomeSuccess, "")

	metrics = collect(t, reader)

	calls, ok := metrics["charmhealth.tool.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, calls.DataPoints, 1)
	assert.Equal(t, int64(1), calls.DataPoints[0].Value)

	active, ok = metrics["charmhealth.tool.active"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(0), active.DataPoints[0].Value, "active gauge must return to zero")

	duration, ok := metrics["charmhealth.tool.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
}

func TestOTelTrackerOutcomeAttributes(t *testing.T) {
	tracker, reader := newTestTracker(t)
	ctx := context.Background()

	inv := tracker.StartInvocation(ctx, "manage_appointments")
	tracker.EndInvocation(ctx, inv, OutcomeAuthError, "request unauthorized")

	metrics := collect(t, reader)
	calls, ok := metrics["charmhealth.tool.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, calls.DataPoints, 1)

	attrs := calls.DataPoints[0].Attributes
	status, found := attrs.Value("status")
	require.True(t, found)
	assert.Equal(t, string(OutcomeAuthError), status.AsString())

	tool, found := attrs.Value("tool_name")
	require.True(t, found)
	assert.Equal(t, "manage_appointments", tool.AsString())

	client, found := attrs.Value("client_id")
	require.True(t, found)
	assert.Equal(t, "test-client", client.AsString())
}

func TestOTelTrackerRecordsAPICalls(t *testing.T) {
	tracker, reader := newTestTracker(t)

	tracker.RecordAPICall("/patients", "GET", true, 120*time.Millisecond)
	tracker.RecordAPICall("/patients", "GET", false, 40*time.Millisecond)

	metrics := collect(t, reader)

	calls, ok := metrics["charmhealth.api.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, calls.DataPoints, 2, "success and failure must be separate series")

	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	latency, ok := metrics["charmhealth.api.latency"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, latency.DataPoints, 2)
}

func TestEndInvocationNilIsSafe(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.EndInvocation(context.Background(), nil, OutcomeSuccess, "")
}

// brokenWriter fails every write, standing in for an unavailable metrics sink.
type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink unavailable")
}

func TestExportFailureDoesNotDisturbRecording(t *testing.T) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(brokenWriter{}))
	require.NoError(t, err)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Hour))),
	)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracker, err := NewOTelTracker(provider, "test-client")
	require.NoError(t, err)

	// Recording must complete normally even though every export will fail.
	inv := tracker.StartInvocation(context.Background(), "find_patients")
	require.NotNil(t, inv)
	tracker.EndInvocation(context.Background(), inv, OutcomeSuccess, "")
	tracker.RecordAPICall("/patients", "GET", true, time.Millisecond)

	// The failure surfaces only on the export path, never to callers.
	assert.Error(t, provider.ForceFlush(context.Background()))
}
