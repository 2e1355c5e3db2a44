package db

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/config"
)

// BrokerConnector returns a connector for the configured driver. Each call opens a fresh
// transport, so loops can reconnect after a broker failure.
func BrokerConnector(cfg config.BrokerConfig) (broker.Connector, error) {
	switch cfg.Driver {
	case config.DriverRabbitMQ:
		opts := broker.RabbitMQOptions{
			DeadLetterExchange: cfg.DeadLetterExchange,
			ConfirmTimeout:     cfg.RabbitMQ.ConfirmTimeout,
		}
		return func(ctx context.Context) (broker.Transport, error) {
			r, err := broker.DialRabbitMQ(ctx, cfg.RabbitMQ.URL, opts)
			if err != nil {
				return nil, err
			}
			return r, nil
		}, nil
	case config.DriverKafka:
		opts := broker.KafkaOptions{
			Brokers:      cfg.Kafka.Brokers,
			MinBytes:     cfg.Kafka.MinBytes,
			MaxBytes:     cfg.Kafka.MaxBytes,
			ReceiveWait:  cfg.Kafka.ReceiveWait,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}
		return func(context.Context) (broker.Transport, error) {
			if len(opts.Brokers) == 0 {
				return nil, fmt.Errorf("%w: no kafka brokers configured", broker.ErrUnavailable)
			}
			return broker.NewKafka(opts), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
