package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// reader consumes one topic for one subscriber. Its consumer group is private to the
// subscriber and starts at the newest offset, which gives fan-out without replay.
type reader struct {
	r      *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

func newReader(brokers []string, group, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		Topic:       topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

func (rd *reader) run(ctx context.Context, h events.MessageHandler, log *zap.Logger) {
	defer close(rd.done)
	for {
		m, err := rd.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Warn("kafka read failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond) // light backoff
			continue
		}
		// the offset is already committed; a failed handler is not retried
		if err := h(context.WithoutCancel(ctx), m.Value); err != nil {
			log.Error("kafka subscriber handler failed",
				zap.String("topic", m.Topic),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
}

func (rd *reader) stop() error {
	rd.cancel()
	<-rd.done
	return rd.r.Close()
}
