package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// producer writes synchronously so that a failed publish reaches the caller.
type producer struct {
	w *kafka.Writer
}

func newProducer(brokers []string) *producer {
	return &producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (p *producer) write(ctx context.Context, topic string, value []byte, headers ...kafka.Header) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
}

func (p *producer) close() error { return p.w.Close() }
