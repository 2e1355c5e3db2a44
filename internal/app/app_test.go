package app

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, service string) config.Config {
	t.Helper()
	cfg, err := config.LoadFor("", service)
	require.NoError(t, err)
	return cfg
}

func TestHandlersCoverEveryQueue(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	mysqlDB := sqlx.NewDb(raw, "mysql")
	bus := broker.NewMemory()

	for _, tc := range []struct {
		service  string
		handlers func(cfg config.Config) worker.Handlers
	}{
		{config.ServiceCore, func(cfg config.Config) worker.Handlers {
			return NewCore(cfg, mysqlDB, nil).Handlers(nil, nil)
		}},
		{config.ServiceNotification, func(cfg config.Config) worker.Handlers {
			return NewNotification(cfg, mysqlDB, nil, nil).Handlers(nil, nil)
		}},
	} {
		t.Run(tc.service, func(t *testing.T) {
			cfg := testConfig(t, tc.service)
			h := tc.handlers(cfg)
			assert.Len(t, h, len(worker.Routes(tc.service)))

			g, err := worker.NewConsumers(cfg, bus.Connector(), h, nil)
			require.NoError(t, err)
			assert.Len(t, g.Loops(), len(h))
		})
	}
}
