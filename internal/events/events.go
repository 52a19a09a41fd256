// Package events publishes domain events (entity and workflow lifecycle) to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crm-api/internal/observability/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeEntityCreated           = "entity.created"
	TypeEntityUpdated           = "entity.updated"
	TypeEntityDeleted           = "entity.deleted"
	TypeWorkflowDeleted         = "workflow.deleted"
	TypeWorkflowCascadePartial  = "workflow.cascade_partial"
	TypePermissionOverrideSet   = "permission.override_set"
	TypePermissionOverrideReset = "permission.override_reset"
)

// Event is the envelope written to the events topic.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// New fills in id and timestamp.
func New(eventType, entityType, entityID, actorID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=events.go -exclude_interfaces=messageWriter -destination=../mocks/events.go -package=mocks

// Publisher sends events. Publishing is best effort: callers log failures
// and never fail the request because of them.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by entity id so one entity's events stay ordered.
type KafkaPublisher struct {
	w     messageWriter
	topic string
	log   *logger.Logger
}

// NewKafkaPublisher creates an async writer for topic.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Async:                  true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error(context.Background(), fmt.Sprintf(msg, args...),
				logger.Module("events"),
				logger.Action("kafka_write"),
				zap.String("topic", topic),
			)
		}),
	}
	return newKafkaPublisher(w, topic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, topic: topic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := e.EntityID
	if key == "" {
		key = e.ID
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}

	p.log.Debug(ctx, "event published",
		logger.Module("events"),
		logger.Action("publish"),
		zap.String("event_type", e.Type),
		zap.String("event_id", e.ID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop drops every event. Used when KAFKA_BROKERS is empty.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the published event types in order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
