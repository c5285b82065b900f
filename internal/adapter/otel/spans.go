package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codeforge"

// StartIngestSpan starts a span for one edge ingestion (spec §4.C append).
func StartIngestSpan(ctx context.Context, tenantID uint64, edgeID string, spanType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "edge.ingest",
		trace.WithAttributes(
			attribute.Int64("tenant.id", int64(tenantID)), //nolint:gosec // tenant id fits an int64 attribute
			attribute.String("edge.id", edgeID),
			attribute.String("edge.span_type", spanType),
		),
	)
}

// StartCompactionSpan starts a span for one tenant's compaction pass
// (spec §4.C compaction).
func StartCompactionSpan(ctx context.Context, tenantID uint64, cutoffUS int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "store.compact",
		trace.WithAttributes(
			attribute.Int64("tenant.id", int64(tenantID)), //nolint:gosec // tenant id fits an int64 attribute
			attribute.Int64("retention.cutoff_us", cutoffUS),
		),
	)
}

// StartEvaluationSpan starts a span for one evaluator suite run
// (spec §4.H Builder.Evaluate).
func StartEvaluationSpan(ctx context.Context, traceID string, evaluatorCount int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "eval.suite",
		trace.WithAttributes(
			attribute.String("trace.id", traceID),
			attribute.Int("eval.evaluator_count", evaluatorCount),
		),
	)
}

// StartSemanticSearchSpan starts a span for one semantic search request
// (spec §4.G).
func StartSemanticSearchSpan(ctx context.Context, queryLen, limit int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "semantic.search",
		trace.WithAttributes(
			attribute.Int("query.length", queryLen),
			attribute.Int("query.limit", limit),
		),
	)
}
