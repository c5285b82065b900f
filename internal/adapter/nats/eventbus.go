// Package nats implements the async event bus over NATS JetStream: edge
// ingestion publishes an edge.ingested event, and the Knowledge Graph
// Core's triple extraction consumes it out of the request path.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge/internal/logger"
)

const (
	streamName       = "KNOWLEDGE_GRAPH"
	subjectEdgeIngested = "kg.edge.ingested"
	headerRequestID  = "X-Request-ID"
	headerRetryCount = "Retry-Count"
	maxRetries       = 3
	nakDelay         = 2 * time.Second
)

// EdgeIngestedEvent is published every time the Edge Store durably
// accepts a new edge, carrying just the dimension fields the Knowledge
// Graph Core's extractor needs — not the full 128-byte record.
type EdgeIngestedEvent struct {
	TenantID    uint64 `json:"tenant_id"`
	ProjectID   uint16 `json:"project_id"`
	AgentID     uint64 `json:"agent_id"`
	SessionID   uint64 `json:"session_id"`
	SpanType    string `json:"span_type"`
	IsError     bool   `json:"is_error"`
	TimestampUS int64  `json:"timestamp_us"`
}

// EdgeIngestedHandler processes one EdgeIngestedEvent.
type EdgeIngestedHandler func(ctx context.Context, event EdgeIngestedEvent) error

// Bus publishes and consumes edge.ingested events over a JetStream stream.
type Bus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the stream exists.
func Connect(ctx context.Context, url string) (*Bus, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"kg.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Bus{nc: nc, js: js}, nil
}

// PublishEdgeIngested announces that an edge was durably appended. If the
// context carries a request id, it is propagated as a NATS header so a
// subscriber's logs can be correlated back to the originating request.
func (b *Bus) PublishEdgeIngested(ctx context.Context, event EdgeIngestedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal edge.ingested: %w", err)
	}

	msg := &nats.Msg{Subject: subjectEdgeIngested, Data: data}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header = nats.Header{}
		msg.Header.Set(headerRequestID, reqID)
	}

	if _, err := b.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subjectEdgeIngested, err)
	}
	return nil
}

// SubscribeEdgeIngested registers handler against every edge.ingested
// event. A handler error redelivers the message after nakDelay, up to
// maxRetries times, then the message is moved to a dead-letter subject
// rather than blocking the stream forever. The returned func stops the
// consumer.
func (b *Bus) SubscribeEdgeIngested(ctx context.Context, handler EdgeIngestedHandler) (func(), error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subjectEdgeIngested,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		msgCtx := ctx
		hdrs := msg.Headers()
		if hdrs != nil {
			if reqID := hdrs.Get(headerRequestID); reqID != "" {
				msgCtx = logger.WithRequestID(msgCtx, reqID)
			}
		}

		var event EdgeIngestedEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			slog.Error("edge.ingested: invalid payload, moving to DLQ", "error", err)
			b.moveToDLQ(ctx, msg)
			return
		}

		if err := handler(msgCtx, event); err != nil {
			retries := retryCount(hdrs)
			if md, mdErr := msg.Metadata(); mdErr == nil && md.NumDelivered > 0 {
				retries = int(md.NumDelivered) - 1 //nolint:gosec // delivery counts are small
			}
			slog.Error("edge.ingested: handler failed",
				"request_id", logger.RequestID(msgCtx),
				"retry", retries,
				"error", err,
			)
			if retries >= maxRetries {
				b.moveToDLQ(ctx, msg)
				return
			}
			if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (b *Bus) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlqSubject := msg.Subject() + ".dlq"
	dlqMsg := &nats.Msg{Subject: dlqSubject, Data: msg.Data()}
	if hdrs := msg.Headers(); hdrs != nil {
		dlqMsg.Header = hdrs
	}
	if _, err := b.js.PublishMsg(ctx, dlqMsg); err != nil {
		slog.Error("failed to publish to DLQ", "dlq_subject", dlqSubject, "error", err)
	} else {
		slog.Warn("edge.ingested moved to DLQ", "dlq_subject", dlqSubject)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack (dlq) failed", "error", ackErr)
	}
}

func retryCount(hdrs nats.Header) int {
	if hdrs == nil {
		return 0
	}
	val := hdrs.Get(headerRetryCount)
	if val == "" {
		return 0
	}
	n, _ := strconv.Atoi(val)
	return n
}

// Drain gracefully drains all subscriptions, waits for pending messages,
// then closes the connection.
func (b *Bus) Drain() error {
	if err := b.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	for b.nc.IsConnected() {
	}
	return nil
}

// Close shuts down the connection immediately.
func (b *Bus) Close() error {
	b.nc.Close()
	return nil
}
