package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

func TestStreamPublisher_PublishAlert(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewStreamPublisher(context.Background(), "redis://"+mr.Addr(), "carepulse:alerts", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pub.Close()

	pub.PublishAlert(context.Background(), AlertEvent{
		AlertID:    "a-1",
		PatientID:  "p-1",
		Type:       "anomaly",
		Severity:   "urgent",
		Title:      "Hypertensive Crisis",
		Action:     "created",
		Metadata:   map[string]any{"vital_type": "systolic"},
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	entries, err := client.XRange(context.Background(), "carepulse:alerts", "-", "+").Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(entries))
	}

	vals := entries[0].Values
	if vals["alert_id"] != "a-1" {
		t.Errorf("expected alert_id a-1, got %v", vals["alert_id"])
	}
	if vals["severity"] != "urgent" {
		t.Errorf("expected severity urgent, got %v", vals["severity"])
	}
	if vals["action"] != "created" {
		t.Errorf("expected action created, got %v", vals["action"])
	}
	if vals["occurred_at"] != "2025-06-01T12:00:00Z" {
		t.Errorf("unexpected occurred_at: %v", vals["occurred_at"])
	}
	if vals["metadata"] != `{"vital_type":"systolic"}` {
		t.Errorf("unexpected metadata: %v", vals["metadata"])
	}
}

func TestStreamPublisher_PublishFailureDoesNotPanic(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewStreamPublisher(context.Background(), "redis://"+mr.Addr(), "carepulse:alerts", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pub.Close()

	// Simulate the broker going away mid-flight.
	mr.Close()

	pub.PublishAlert(context.Background(), AlertEvent{AlertID: "a-2", Action: "created"})
}

func TestNewStreamPublisher_BadURL(t *testing.T) {
	_, err := NewStreamPublisher(context.Background(), "not-a-url", "s", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.PublishAlert(context.Background(), AlertEvent{AlertID: "x"})
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
