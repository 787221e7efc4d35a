// Package events implements the Event Pipeline: it subscribes to the bus,
// mirrors every delivered message into Postgres with dedup and DLQ-on-failure
// semantics, and exposes the publish/inspection HTTP surface.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/bus"
	"github.com/taylordash/taylordash/internal/db"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
	"github.com/taylordash/taylordash/internal/models"
)

// Pipeline wires a bus Adapter to the event_mirror/dlq_events tables.
type Pipeline struct {
	store *db.Database
	bus   *bus.Adapter
}

// NewPipeline constructs a Pipeline. Call Start to begin consuming.
func NewPipeline(store *db.Database, adapter *bus.Adapter) *Pipeline {
	return &Pipeline{store: store, bus: adapter}
}

// Start subscribes to every configured topic pattern.
func (p *Pipeline) Start(patterns []string) error {
	for _, pattern := range patterns {
		if err := p.bus.Subscribe(pattern, p.ingest); err != nil {
			return fmt.Errorf("subscribe %s: %w", pattern, err)
		}
	}
	return nil
}

// ingest handles one delivered message: parse, backfill trace_id, mirror
// inside a transaction, and route any failure to the DLQ.
func (p *Pipeline) ingest(ctx context.Context, topic string, payload []byte) error {
	start := time.Now()
	log := logger.Events()

	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		if dlqErr := p.store.InsertDLQEvent(ctx, topic, "unparseable payload", string(payload)); dlqErr != nil {
			log.Error().Err(dlqErr).Str("topic", topic).Msg("failed to write DLQ entry for parse failure")
		}
		metrics.MQTTDLQTotal.WithLabelValues(topic, "parse_error").Inc()
		metrics.MQTTEventLatency.Observe(time.Since(start).Seconds())
		return nil
	}

	traceID, _ := doc["trace_id"].(string)
	if traceID == "" {
		traceID = uuid.New().String()
		doc["trace_id"] = traceID
	}

	kind, _ := doc["kind"].(string)
	if kind == "" {
		kind, _ = doc["event_type"].(string)
	}

	var messageID *string
	if mid, ok := doc["message_id"].(string); ok && mid != "" {
		messageID = &mid
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		canonical = payload
	}

	mirror := models.EventMirror{
		Topic:      topic,
		Kind:       kind,
		Payload:    models.JSONMap(doc),
		ReceivedAt: time.Now().UTC(),
		TraceID:    traceID,
		MessageID:  messageID,
	}

	err = p.store.Transaction(ctx, func(tx *sql.Tx) error {
		_, insertErr := p.store.InsertEventMirror(ctx, tx, mirror)
		return insertErr
	})
	if err != nil {
		if dlqErr := p.store.InsertDLQEvent(ctx, topic, err.Error(), string(canonical)); dlqErr != nil {
			log.Error().Err(dlqErr).Str("topic", topic).Msg("failed to write DLQ entry for mirror failure")
		}
		metrics.MQTTDLQTotal.WithLabelValues(topic, "db_error").Inc()
		metrics.MQTTEventLatency.Observe(time.Since(start).Seconds())
		return err
	}

	metrics.MQTTIngestTotal.WithLabelValues(topic, kind).Inc()
	metrics.MQTTEventLatency.Observe(time.Since(start).Seconds())
	return nil
}

// Publish sends payload to the bus at qos=1; the pipeline's own subscription
// re-ingests and mirrors it, so callers never write to events_mirror
// directly.
func (p *Pipeline) Publish(topic, kind string, payload []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		doc = map[string]interface{}{"data": json.RawMessage(payload)}
	}
	if kind != "" {
		doc["kind"] = kind
	}
	if _, ok := doc["trace_id"]; !ok {
		doc["trace_id"] = uuid.New().String()
	}
	envelope, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal publish envelope: %w", err)
	}
	return p.bus.Publish(topic, envelope)
}

// ListMirror returns a page of mirrored events for the Inspection API.
func (p *Pipeline) ListMirror(ctx context.Context, topic, kind string, limit, offset int) ([]models.EventMirror, error) {
	return p.store.ListEventMirror(ctx, topic, kind, clampPage(limit), offset)
}

// ListDLQ returns a page of DLQ entries for the Inspection API.
func (p *Pipeline) ListDLQ(ctx context.Context, limit, offset int) ([]models.DLQEvent, error) {
	return p.store.ListDLQEvents(ctx, clampPage(limit), offset)
}

func clampPage(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
