package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics methods are safe to call on a nil receiver.
type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	LedgerOps         metric.Int64Counter
	BridgeMessages    metric.Int64Counter
	FallbackRedirects metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

// Setup registers the exporter with the default prometheus registry.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	m, err := build(serviceName, promclient.DefaultRegisterer)
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(m.provider)
	return m.Metrics, promhttp.Handler(), nil
}

// SetupWithRegistry keeps everything on reg, leaving the global provider
// untouched.
func SetupWithRegistry(serviceName string, reg *promclient.Registry) (*Metrics, http.Handler, error) {
	m, err := build(serviceName, reg)
	if err != nil {
		return nil, nil, err
	}
	return m.Metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

type built struct {
	*Metrics
	provider *sdkmetric.MeterProvider
}

func build(serviceName string, reg promclient.Registerer) (*built, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"stbt_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"stbt_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.LedgerOps, err = meter.Int64Counter(
		"stbt_ledger_operations_total",
		metric.WithDescription("Ledger operations by name and result"),
	)
	if err != nil {
		return nil, err
	}

	m.BridgeMessages, err = meter.Int64Counter(
		"stbt_bridge_messages_total",
		metric.WithDescription("Cross-domain messages by direction and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.FallbackRedirects, err = meter.Int64Counter(
		"stbt_bridge_fallback_redirects_total",
		metric.WithDescription("Delivered messages credited to the fallback account"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"stbt_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	return &built{Metrics: m, provider: provider}, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

// RecordLedgerOp counts one ledger call; a non-empty reason marks a failure.
func (m *Metrics) RecordLedgerOp(ctx context.Context, op, reason string) {
	if m == nil {
		return
	}
	result := "ok"
	if reason != "" {
		result = reason
	}
	m.LedgerOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordBridgeMessage(ctx context.Context, direction, outcome string) {
	if m == nil {
		return
	}
	m.BridgeMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("outcome", outcome),
	))
	if outcome == "redirected" {
		m.FallbackRedirects.Add(ctx, 1)
	}
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1)
}
