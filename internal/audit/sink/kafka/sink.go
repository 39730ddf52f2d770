// Package kafka forwards persisted audit entries to a Kafka topic for
// downstream compliance reporting.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medshare/internal/audit"
	"medshare/internal/platform/kafka/producer"
	"medshare/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the broker is considered down.
var ErrCircuitOpen = errors.New("audit sink circuit open")

// Producer is the subset of producer.Producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Sink implements audit.Sink. When a breaker is configured, deliveries are
// skipped while it is open so a dead broker adds no latency to emitters.
type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Sink)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) { s.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(p Producer, topic string, opts ...Option) *Sink {
	s := &Sink{producer: p, topic: topic, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type record struct {
	Actor         string    `json:"actor"`
	Resource      string    `json:"resource"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	SourceAddress string    `json:"source_address,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SubjectID     string    `json:"subject_id,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	Purpose       string    `json:"purpose,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Device        string    `json:"device,omitempty"`
}

// Deliver publishes entry keyed by actor so one actor's entries stay on one
// partition and keep their order.
func (s *Sink) Deliver(ctx context.Context, entry audit.Entry) error {
	if s.breaker != nil && !s.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := s.deliver(ctx, entry)
	s.observe(err)
	return err
}

func (s *Sink) observe(err error) {
	if s.breaker == nil {
		return
	}
	if err != nil {
		if change := s.breaker.RecordFailure(); change.Opened {
			s.logger.Warn("audit sink circuit opened", "breaker", s.breaker.Name(), "error", err)
		}
		return
	}
	if change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.Info("audit sink circuit closed", "breaker", s.breaker.Name())
	}
}

func (s *Sink) deliver(ctx context.Context, entry audit.Entry) error {
	value, err := json.Marshal(record{
		Actor:         entry.Actor,
		Resource:      string(entry.Resource),
		Action:        string(entry.Action),
		Outcome:       entry.Outcome,
		SourceAddress: entry.SourceAddress,
		Timestamp:     entry.Timestamp.UTC(),
		SubjectID:     entry.SubjectID,
		Categories:    entry.Categories,
		Purpose:       entry.Purpose,
		Detail:        entry.Detail,
		RequestID:     entry.RequestID,
		Device:        entry.Device,
	})
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	headers := map[string]string{"resource": string(entry.Resource)}
	if entry.RequestID != "" {
		headers["request_id"] = entry.RequestID
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic:   s.topic,
		Key:     []byte(entry.Actor),
		Value:   value,
		Headers: headers,
	})
}
