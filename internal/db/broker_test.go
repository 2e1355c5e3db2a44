package db

import (
	"context"
	"testing"

	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerConnector(t *testing.T) {
	_, err := BrokerConnector(config.BrokerConfig{Driver: "nats"})
	assert.Error(t, err)

	connect, err := BrokerConnector(config.BrokerConfig{Driver: config.DriverKafka, Kafka: config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}})
	require.NoError(t, err)
	tr, err := connect(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &broker.Kafka{}, tr)
	require.NoError(t, tr.Close())

	connect, err = BrokerConnector(config.BrokerConfig{Driver: config.DriverKafka})
	require.NoError(t, err)
	_, err = connect(context.Background())
	assert.ErrorIs(t, err, broker.ErrUnavailable)
}
