package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTelTracker records tool and API call metrics on OpenTelemetry
// instruments. Instruments are created once and reused for every call.
type OTelTracker struct {
	clientID string

	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram
	toolActive   metric.Int64UpDownCounter
	apiCalls     metric.Int64Counter
	apiLatency   metric.Float64Histogram
}

// NewOTelTracker creates a tracker on the given meter provider. clientID
// labels every datapoint so multi-tenant dashboards can segment by caller.
func NewOTelTracker(provider metric.MeterProvider, clientID string) (*OTelTracker, error) {
	meter := provider.Meter("github.com/charmhealth/charm-mcp")

	t := &OTelTracker{clientID: clientID}
	var err error

	t.toolCalls, err = meter.Int64Counter(
		"charmhealth.tool.calls",
		metric.WithDescription("Number of tool invocations, by tool and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool call counter: %w", err)
	}

	t.toolDuration, err = meter.Float64Histogram(
		"charmhealth.tool.duration",
		metric.WithDescription("Tool invocation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool duration histogram: %w", err)
	}

	t.toolActive, err = meter.Int64UpDownCounter(
		"charmhealth.tool.active",
		metric.WithDescription("Tool invocations currently in flight"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active gauge: %w", err)
	}

	t.apiCalls, err = meter.Int64Counter(
		"charmhealth.api.calls",
		metric.WithDescription("Outbound CharmHealth API calls, by endpoint and status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create API call counter: %w", err)
	}

	t.apiLatency, err = meter.Float64Histogram(
		"charmhealth.api.latency",
		metric.WithDescription("Outbound CharmHealth API call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create API latency histogram: %w", err)
	}

	return t, nil
}

// StartInvocation marks a tool call active.
func (t *OTelTracker) StartInvocation(ctx context.Context, toolName string) *Invocation {
	t.toolActive.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.String("client_id", t.clientID),
	))
	return &Invocation{
		ID:        uuid.NewString(),
		ToolName:  toolName,
		StartedAt: time.Now(),
	}
}

// EndInvocation finalizes the record and hands it to the metric pipeline.
func (t *OTelTracker) EndInvocation(ctx context.Context, inv *Invocation, outcome Outcome, errDetail string) {
	if inv == nil {
		return
	}
	duration := time.Since(inv.StartedAt)
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", inv.ToolName),
		attribute.String("client_id", t.clientID),
		attribute.String("status", string(outcome)),
	}
	if errDetail != "" {
		attrs = append(attrs, attribute.String("error_detail", errDetail))
	}

	t.toolCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	t.toolActive.Add(ctx, -1, metric.WithAttributes(
		attribute.String("tool_name", inv.ToolName),
		attribute.String("client_id", t.clientID),
	))
}

// RecordAPICall records one outbound API call.
func (t *OTelTracker) RecordAPICall(endpoint, method string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("api_endpoint", endpoint),
		attribute.String("method", method),
		attribute.String("client_id", t.clientID),
		attribute.String("status", status),
	)
	// Background context: API call recording must never inherit a caller's
	// cancellation.
	t.apiCalls.Add(context.Background(), 1, attrs)
	t.apiLatency.Record(context.Background(), duration.Seconds(), attrs)
}

// Setup builds a metric provider exporting to stdout on a periodic reader.
// It returns the provider and a shutdown function flushing pending metrics.
func Setup(serviceName, version string, interval time.Duration) (*sdkmetric.MeterProvider, func(context.Context) error, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	return provider, provider.Shutdown, nil
}
