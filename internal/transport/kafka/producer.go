package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"

	"offer-dispatch/internal/notify"
)

var newSyncProducer = sarama.NewSyncProducer

// Producer publishes notification requests to a topic. It implements
// notify.Publisher.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer creates a Producer. It returns nil without an error when
// brokers or topic are not configured.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, nil
	}
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	p, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewProducerWith(p, topic), nil
}

// NewProducerWith wraps an existing SyncProducer.
func NewProducerWith(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: p, topic: topic}
}

// Publish sends m keyed by recipient so one recipient's messages stay in order.
func (p *Producer) Publish(ctx context.Context, m notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(m.To),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("template"), Value: []byte(m.Template)},
			{Key: []byte("channel"), Value: []byte(m.Channel)},
			{Key: []byte("unit_id"), Value: []byte(strconv.FormatInt(m.UnitID, 10))},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
