package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"esign-workflow/internal/audit/domain"
)

// Message is the JSON shape written to the audit topic and read back by the archive worker.
type Message struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	Seq        int64             `json:"seq"`
	EventType  string            `json:"eventType"`
	ActorID    string            `json:"actorId"`
	ActorRole  string            `json:"actorRole"`
	FromStage  string            `json:"fromStage,omitempty"`
	ToStage    string            `json:"toStage,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
}

// MessageFromEvent converts a domain event into its wire form.
func MessageFromEvent(e *domain.Event) Message {
	return Message{
		ID: e.ID, SessionID: e.SessionID, Seq: e.Seq, EventType: string(e.Type),
		ActorID: e.ActorID, ActorRole: e.ActorRole, FromStage: e.FromStage, ToStage: e.ToStage,
		Metadata: e.Metadata, OccurredAt: e.OccurredAt, PrevHash: e.PrevHash, Hash: e.Hash,
	}
}

// KafkaPublisher writes audit events to a Kafka topic, keyed by session id so a session's
// events stay ordered within one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns nil when brokers or topic are empty (export disabled). Call Close when shutting down.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}}
}

// Publish serializes the event as JSON and writes it to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, e *domain.Event) error {
	if p == nil || p.writer == nil || e == nil {
		return nil
	}
	payload, err := json.Marshal(MessageFromEvent(e))
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.SessionID),
		Value: payload,
	})
}

// Close closes the Kafka writer. Safe to call on nil.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
