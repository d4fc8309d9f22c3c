package transport

import (
	"fmt"

	"github.com/ariefcatur/go-saga-commerce/internal/config"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/ariefcatur/go-saga-commerce/internal/kafka"
	"github.com/ariefcatur/go-saga-commerce/internal/rabbitmq"
	"github.com/ariefcatur/go-saga-commerce/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Open builds the event channel named by cfg.EventTransport. The caller owns the result
// and must Close it on shutdown; rdb is only used by the redis transport.
func Open(cfg config.Config, rdb *redis.Client, log *zap.Logger) (events.Channel, error) {
	log = log.With(zap.String("transport", cfg.EventTransport))
	switch cfg.EventTransport {
	case "redis", "":
		return redisx.NewPubSubChannel(rdb, log), nil
	case "kafka":
		return kafka.NewChannel(cfg.KafkaBrokers, cfg.ServiceName, log), nil
	case "rabbitmq":
		return rabbitmq.Dial(cfg.RabbitMQURL, log)
	case "memory":
		// single process only: nothing outside this process can see these events
		return events.NewMemoryBus(log).Connect(), nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.EventTransport)
	}
}
