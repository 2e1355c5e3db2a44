package db

import (
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmoiron/sqlx"
)

// OpenClickHouse opens the analytics store holding retreat.events_audit.
// DSN e.g. clickhouse://default:@localhost:9000/retreat?dial_timeout=5s&compress=true
func OpenClickHouse(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty ClickHouse DSN")
	}
	return open("clickhouse", cfg, 3*time.Second)
}
