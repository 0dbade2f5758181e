// Package notify fans alert lifecycle events out to downstream consumers
// over Redis Streams. Publishing is best-effort: a failed XADD is logged
// and dropped, it never fails the request that raised the alert.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// AlertEvent is the wire shape appended to the alert stream.
type AlertEvent struct {
	AlertID    string         `json:"alert_id"`
	PatientID  string         `json:"patient_id"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Title      string         `json:"title"`
	Action     string         `json:"action"` // created | upgraded | acknowledged
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher emits alert events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishAlert(ctx context.Context, ev AlertEvent)
	Close() error
}

const publishTimeout = 2 * time.Second

// StreamPublisher appends alert events to a Redis stream via XADD.
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger zerolog.Logger
}

// NewStreamPublisher connects to Redis using a redis:// URL and verifies
// the connection with a ping.
func NewStreamPublisher(ctx context.Context, url, stream string, logger zerolog.Logger) (*StreamPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &StreamPublisher{client: client, stream: stream, logger: logger}, nil
}

// PublishAlert appends the event to the stream. Stream values must be
// strings, so structured fields are JSON-encoded.
func (p *StreamPublisher) PublishAlert(ctx context.Context, ev AlertEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	values := map[string]interface{}{
		"alert_id":    ev.AlertID,
		"patient_id":  ev.PatientID,
		"type":        ev.Type,
		"severity":    ev.Severity,
		"title":       ev.Title,
		"action":      ev.Action,
		"occurred_at": ev.OccurredAt.Format(time.RFC3339),
	}
	if len(ev.Metadata) > 0 {
		meta, err := json.Marshal(ev.Metadata)
		if err == nil {
			values["metadata"] = string(meta)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		p.logger.Warn().Err(err).
			Str("stream", p.stream).
			Str("alert_id", ev.AlertID).
			Msg("alert event publish failed, dropping")
		return
	}

	p.logger.Debug().
		Str("stream", p.stream).
		Str("entry_id", id).
		Str("alert_id", ev.AlertID).
		Str("action", ev.Action).
		Msg("alert event published")
}

func (p *StreamPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher discards all events. Used when REDIS_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishAlert(context.Context, AlertEvent) {}

func (NopPublisher) Close() error { return nil }
