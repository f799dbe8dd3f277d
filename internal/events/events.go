// Package events publishes alert lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tbourn/agrisense-backend/internal/config"
)

// Event types.
const (
	TypeAlertCreated          = "alert.created"
	TypeAlertMoistureCritical = "alert.moisture_critical"
)

// AlertEvent is the message body written to the alert topic.
type AlertEvent struct {
	Type       string    `json:"type"`
	AlertID    string    `json:"alert_id,omitempty"`
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	AlertType  string    `json:"alert_type"`
	Severity   string    `json:"severity"`
	Moisture   float64   `json:"moisture_level"`
	SMSSent    bool      `json:"sms_sent"`
	VoiceCall  bool      `json:"voice_call_initiated"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits alert events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishAlert(ctx context.Context, ev AlertEvent) error
	Close() error
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishAlert(context.Context, AlertEvent) error { return nil }
func (Nop) Close() error                                   { return nil }

// writer is the subset of *kafka.Writer the publisher needs.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes alert events keyed by user id, so one farmer's
// events stay ordered on a partition.
type KafkaPublisher struct {
	w writer
}

// NewKafkaPublisher returns a synchronous, hash-balanced producer.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// New picks the Kafka publisher when brokers are configured, else Nop.
func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.AlertTopic)
}

// PublishAlert implements Publisher.
func (p *KafkaPublisher) PublishAlert(ctx context.Context, ev AlertEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(ev.UserID),
		Value:   b,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write alert event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
