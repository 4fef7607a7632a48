// metrics.go records reporter activity with OpenTelemetry instruments.

package reporting

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/storyscript/platform-reporting/pkg/reporting"

// Publish outcomes recorded on the reporting.agent.publishes counter.
const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
	outcomePanicked  = "panicked"
)

// reporterMetrics holds the reporter's instruments. A nil *reporterMetrics
// records nothing.
type reporterMetrics struct {
	captures  metric.Int64Counter
	dropped   metric.Int64Counter
	publishes metric.Int64Counter
}

func newReporterMetrics(provider metric.MeterProvider) (*reporterMetrics, error) {
	meter := provider.Meter(instrumentationName)

	captures, err := meter.Int64Counter(
		"reporting.captures",
		metric.WithDescription("Failures captured for reporting"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"reporting.captures.dropped",
		metric.WithDescription("Reports dropped because the queue was full or closed"),
	)
	if err != nil {
		return nil, err
	}

	publishes, err := meter.Int64Counter(
		"reporting.agent.publishes",
		metric.WithDescription("Agent publish attempts by agent, tier and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &reporterMetrics{
		captures:  captures,
		dropped:   dropped,
		publishes: publishes,
	}, nil
}

func (m *reporterMetrics) recordCapture(ctx context.Context) {
	if m == nil {
		return
	}
	m.captures.Add(ctx, 1)
}

func (m *reporterMetrics) recordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *reporterMetrics) recordPublish(ctx context.Context, agent string, t tier, outcome string) {
	if m == nil {
		return
	}
	m.publishes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("tier", string(t)),
		attribute.String("outcome", outcome),
	))
}
