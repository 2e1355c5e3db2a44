package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/app"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/db"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/metrics"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmehdipour/retreat-sync/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type parts struct {
	dispatcher bool
	consumers  bool
}

var metricsAddr string

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers of the service role",
	}
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address (disabled when empty)")

	// attach subcommands
	cmd.AddCommand(&cobra.Command{
		Use:   "dispatcher",
		Short: "Relay outbox rows to the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, parts{dispatcher: true})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "consumer",
		Short: "Consume the queues of the service role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, parts{consumers: true})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run the dispatcher and the consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, parts{dispatcher: true, consumers: true})
		},
	})

	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	service, _ := cmd.Root().PersistentFlags().GetString("service")
	cfg, err := config.LoadFor(cfgPath, service)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Service.Name)
	return cfg, nil
}

func run(cmd *cobra.Command, p parts) error {
	// 1) load config
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.Named("worker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) stores and broker
	mysqlDB, err := db.OpenMySQL(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer mysqlDB.Close()

	connect, err := db.BrokerConnector(cfg.Broker)
	if err != nil {
		return err
	}

	runner := &worker.Runner{Log: log}

	// 3) dispatcher
	if p.dispatcher {
		outbox := repository.NewOutboxRepository(mysqlDB, cfg.Service.Name)
		runner.Dispatcher = worker.NewDispatcher(cfg, outbox, connect, logger.Log)
	}

	// 4) consumers
	if p.consumers {
		handlers, closeFn, err := roleHandlers(cfg, mysqlDB)
		if err != nil {
			return err
		}
		defer closeFn()

		runner.Consumers, err = worker.NewConsumers(cfg, connect, handlers, logger.Log)
		if err != nil {
			return err
		}
	}

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server exited", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	log.Info("worker started",
		zap.String("service", cfg.Service.Name),
		zap.String("broker", cfg.Broker.Driver),
		zap.Bool("dispatcher", p.dispatcher),
		zap.Bool("consumers", p.consumers))

	return runner.Run(ctx)
}

// roleHandlers opens the stores the role's consumers need. The returned func closes them.
func roleHandlers(cfg config.Config, mysqlDB *sqlx.DB) (worker.Handlers, func(), error) {
	chDB, err := db.OpenClickHouse(cfg.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	events := repository.NewEventsAuditRepository(chDB)

	switch cfg.Service.Name {
	case config.ServiceCore:
		core := app.NewCore(cfg, mysqlDB, logger.Log)
		return core.Handlers(events, logger.Log), func() { _ = chDB.Close() }, nil

	case config.ServiceNotification:
		rdb, err := db.OpenRedis(cfg.Redis)
		if err != nil {
			_ = chDB.Close()
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		n := app.NewNotification(cfg, mysqlDB, rdb, logger.Log)
		return n.Handlers(events, logger.Log), func() {
			_ = rdb.Close()
			_ = chDB.Close()
		}, nil
	}

	_ = chDB.Close()
	return nil, nil, fmt.Errorf("unknown service %q", cfg.Service.Name)
}
