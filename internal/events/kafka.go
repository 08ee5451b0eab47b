package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// NewSyncProducer connects a Kafka producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0
	return sarama.NewSyncProducer(brokers, cfg)
}

// KafkaPublisher forwards events to a Kafka topic keyed by aggregate so that events of one
// order stay ordered within a partition.
type KafkaPublisher struct {
	Producer sarama.SyncProducer
	Topic    string
}

func (KafkaPublisher) Name() string { return "kafka" }

// Deliver publishes the event synchronously.
func (p KafkaPublisher) Deliver(_ context.Context, ev Event) error {
	if p.Producer == nil {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.Topic,
		Key:       sarama.StringEncoder(ev.AggregateID.String()),
		Value:     sarama.ByteEncoder(value),
		Timestamp: ev.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Topic)},
			{Key: []byte("event_id"), Value: []byte(ev.ID.String())},
		},
	}
	if _, _, err := p.Producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Topic, err)
	}
	return nil
}

// Close releases the producer.
func (p KafkaPublisher) Close() error {
	if p.Producer == nil {
		return nil
	}
	return p.Producer.Close()
}
