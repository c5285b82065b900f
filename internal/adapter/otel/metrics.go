package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codeforge"

// Metrics holds every CodeForge platform metric instrument (spec §4
// components C, G, H): edge ingestion, compaction, semantic search, and
// evaluator dispatch all feed the same meter so dashboards can
// correlate them on one axis.
type Metrics struct {
	EdgesIngested     metric.Int64Counter
	EdgesTombstoned   metric.Int64Counter
	IngestErrors      metric.Int64Counter
	CompactionsRun    metric.Int64Counter
	CompactionFailures metric.Int64Counter
	EvaluationsRun    metric.Int64Counter
	EvaluationFailures metric.Int64Counter
	IngestDuration    metric.Float64Histogram
	CompactionDuration metric.Float64Histogram
	SearchDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments against the global meter
// provider (a no-op provider when OTEL is disabled, per InitTracer).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EdgesIngested, err = meter.Int64Counter("codeforge.edges.ingested",
		metric.WithDescription("Number of edges durably appended to the Edge Store"))
	if err != nil {
		return nil, err
	}

	m.EdgesTombstoned, err = meter.Int64Counter("codeforge.edges.tombstoned",
		metric.WithDescription("Number of edges marked deleted"))
	if err != nil {
		return nil, err
	}

	m.IngestErrors, err = meter.Int64Counter("codeforge.ingest.errors",
		metric.WithDescription("Number of ingest requests that failed"))
	if err != nil {
		return nil, err
	}

	m.CompactionsRun, err = meter.Int64Counter("codeforge.compactions.run",
		metric.WithDescription("Number of segment compactions completed"))
	if err != nil {
		return nil, err
	}

	m.CompactionFailures, err = meter.Int64Counter("codeforge.compactions.failures",
		metric.WithDescription("Number of segment compactions that failed"))
	if err != nil {
		return nil, err
	}

	m.EvaluationsRun, err = meter.Int64Counter("codeforge.evaluations.run",
		metric.WithDescription("Number of evaluator suite runs completed"))
	if err != nil {
		return nil, err
	}

	m.EvaluationFailures, err = meter.Int64Counter("codeforge.evaluations.failures",
		metric.WithDescription("Number of evaluator suite runs that returned all_passed=false"))
	if err != nil {
		return nil, err
	}

	m.IngestDuration, err = meter.Float64Histogram("codeforge.ingest.duration_seconds",
		metric.WithDescription("Edge ingest request latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.CompactionDuration, err = meter.Float64Histogram("codeforge.compaction.duration_seconds",
		metric.WithDescription("Segment compaction latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.SearchDuration, err = meter.Float64Histogram("codeforge.search.duration_seconds",
		metric.WithDescription("Semantic search request latency in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
