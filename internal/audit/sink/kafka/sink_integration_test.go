//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"medshare/internal/audit"
	"medshare/internal/platform/kafka/producer"
	"medshare/pkg/platform/circuit"
	"medshare/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.kafka = containers.Kafka(s.T())
	p, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.producer = p
}

func (s *SinkSuite) TearDownSuite() {
	s.NoError(s.producer.Close())
}

func (s *SinkSuite) TestPublishedEntryIsConsumable() {
	ctx := context.Background()
	topic := "medshare.audit." + uuid.NewString()
	sink := New(s.producer, topic, WithBreaker(circuit.New("audit-kafka-it")))

	requestID := uuid.NewString()
	s.Require().NoError(sink.Deliver(ctx, audit.Entry{
		Actor:      "dr.lee@clinic.example",
		Resource:   audit.ResourceDisclosure,
		Action:     audit.ActionDisclosureConsume,
		Outcome:    audit.OutcomeSuccess,
		Timestamp:  time.Now(),
		SubjectID:  "patient@example.com",
		Categories: []string{"LAB_RESULTS"},
		RequestID:  requestID,
	}))

	consumer, err := s.kafka.NewConsumer("audit-it-"+uuid.NewString(), topic)
	s.Require().NoError(err)
	defer consumer.Close()

	rec := s.kafka.WaitForRecord(ctx, consumer, 30*time.Second, func(r *kgo.Record) bool {
		for _, h := range r.Headers {
			if h.Key == "request_id" && string(h.Value) == requestID {
				return true
			}
		}
		return false
	})
	s.Require().NotNil(rec, "audit record not consumed before timeout")
	s.Equal("dr.lee@clinic.example", string(rec.Key))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Value, &body))
	s.Equal("DISCLOSURE_CONSUME", body["action"])
	s.Equal("patient@example.com", body["subject_id"])
	s.Equal(circuit.StateClosed, sink.breaker.State())
}

func (s *SinkSuite) TestProducerPing() {
	s.NoError(s.producer.Ping(context.Background()))
}
