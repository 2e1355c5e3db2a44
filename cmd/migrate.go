package cmd

import (
	"fmt"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/db"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var skipClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Named("migrate")

		sqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		files, err := migrations.MySQL()
		if err != nil {
			return fmt.Errorf("read mysql migrations: %w", err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if err := apply(sqlDB, files, log); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return err
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}

		if !skipClickHouse {
			chDB, err := db.OpenClickHouse(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()

			files, err := migrations.ClickHouse()
			if err != nil {
				return fmt.Errorf("read clickhouse migrations: %w", err)
			}
			if err := apply(chDB, files, log); err != nil {
				return err
			}
		}

		log.Info("migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&skipClickHouse, "skip-clickhouse", false, "only migrate MySQL")
}

// apply runs every statement of every file in order. ClickHouse takes one statement per Exec.
func apply(dbx *sqlx.DB, files []migrations.File, log *zap.Logger) error {
	for _, f := range files {
		for _, stmt := range splitStatements(f.SQL) {
			if _, err := dbx.Exec(stmt); err != nil {
				return fmt.Errorf("exec %s: %w", f.Name, err)
			}
		}
		log.Info("migration applied", zap.String("file", f.Name))
	}
	return nil
}

func splitStatements(sql string) []string {
	var (
		out []string
		sb  strings.Builder
	)
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sb.String()), ";")); stmt != "" {
				out = append(out, stmt)
			}
			sb.Reset()
		}
	}
	if rest := strings.TrimSpace(sb.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
