package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/db"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmehdipour/retreat-sync/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect or drain the outbox of a service role",
}

var flushMaxCycles int

var outboxFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Publish pending outbox rows until the backlog is empty or a cycle fails",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Named("outbox")

		mysqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		connect, err := db.BrokerConnector(cfg.Broker)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		outbox := repository.NewOutboxRepository(mysqlDB, cfg.Service.Name)
		d := worker.NewDispatcher(cfg, outbox, connect, logger.Log)
		defer d.Close()

		total := 0
		for i := 0; i < flushMaxCycles; i++ {
			res, err := d.ProcessOnce(ctx)
			if err != nil {
				return fmt.Errorf("flush cycle %d: %w", i+1, err)
			}
			total += res.Published
			if res.Fetched == 0 {
				break
			}
			if res.Failed > 0 {
				log.Warn("flush stopped on failed rows", zap.Int("failed", res.Failed))
				break
			}
		}

		log.Info("outbox flushed", zap.String("source", cfg.Service.Name), zap.Int("published", total))
		return nil
	},
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the pending backlog of the service role",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mysqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		st, err := repository.NewOutboxRepository(mysqlDB, cfg.Service.Name).Stats(context.Background())
		if err != nil {
			return err
		}
		oldest := "-"
		if st.OldestCreate != nil {
			oldest = st.OldestCreate.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "source=%s pending=%d oldest=%s\n", cfg.Service.Name, st.Pending, oldest)
		return nil
	},
}

func init() {
	outboxFlushCmd.Flags().IntVar(&flushMaxCycles, "max-cycles", 100, "upper bound on dispatch cycles")
	outboxCmd.AddCommand(outboxFlushCmd)
	outboxCmd.AddCommand(outboxStatsCmd)
}
