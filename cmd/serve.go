package cmd

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
	httpSrv "github.com/jmehdipour/retreat-sync/internal/http"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/metrics"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the core admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Service.Name != config.ServiceCore {
			return fmt.Errorf("serve runs the %s service only, got %q", config.ServiceCore, cfg.Service.Name)
		}
		log := logger.Named("serve")

		mysqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.OpenRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		chDB, err := db.OpenClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() {
			_ = chDB.Close()
		}()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		core := app.NewCore(cfg, mysqlDB, logger.Log)
		server := httpSrv.NewServer(httpSrv.Deps{
			Config:   cfg,
			Retreat:  core.Retreat,
			Groups:   core.Groups,
			Outbox:   core.Outbox,
			Events:   repository.NewEventsAuditRepository(chDB),
			Redis:    redisClient,
			Gatherer: prometheus.DefaultGatherer,
			Log:      logger.Log,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
