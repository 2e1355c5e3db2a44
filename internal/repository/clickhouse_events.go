package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

// EventsAuditRepository projects consumed envelopes into ClickHouse and lists them back.
type EventsAuditRepository interface {
	Insert(ctx context.Context, rec model.EventRecord) error
	List(ctx context.Context, eventType string, limit, offset int) ([]model.EventRecord, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewEventsAuditRepository(ch *sqlx.DB) EventsAuditRepository {
	return &chEventsRepository{ch: ch}
}

// Insert appends one row. events_audit is a ReplacingMergeTree keyed by id, so redeliveries collapse.
func (r *chEventsRepository) Insert(ctx context.Context, rec model.EventRecord) error {
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO retreat.events_audit (id, type, source, trace_id, data, queue, received_at)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, rec.ID, rec.Type, rec.Source, rec.TraceID, rec.Data, rec.Queue, rec.ReceivedAt); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return tx.Commit()
}

func (r *chEventsRepository) List(ctx context.Context, eventType string, limit, offset int) ([]model.EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, type, source, trace_id, data, queue, received_at
		FROM retreat.events_audit FINAL
		WHERE 1 = 1
	`
	var args []any
	if eventType != "" {
		q += " AND type = ?"
		args = append(args, eventType)
	}
	q += " ORDER BY received_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.EventRecord
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
