package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

const maxLastErrorLen = 1024

// ErrTxRequired is returned by Append when no transaction is given.
var ErrTxRequired = errors.New("outbox append requires the caller's transaction")

// OutboxRepository defines persistence methods for the outbox_messages table.
type OutboxRepository interface {
	// Append writes msg inside tx. It never opens a transaction of its own.
	Append(ctx context.Context, tx *sqlx.Tx, msg model.OutboxMessage) error
	FetchUnprocessed(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	Stats(ctx context.Context) (model.OutboxStats, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation scoped to one source service.
type OutboxRepositoryImpl struct {
	db     *sqlx.DB
	source string
}

// NewOutboxRepository constructs an OutboxRepositoryImpl that reads only rows written by source.
func NewOutboxRepository(db *sqlx.DB, source string) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db, source: source}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

func (r *OutboxRepositoryImpl) Append(ctx context.Context, tx *sqlx.Tx, msg model.OutboxMessage) error {
	if tx == nil {
		return ErrTxRequired
	}
	if msg.Source == "" {
		msg.Source = r.source
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO outbox_messages (id, type, source, trace_id, data, created_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	_, err := tx.ExecContext(ctx, q, msg.ID, msg.Type, msg.Source, msg.TraceID, msg.Data, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox %s: %w", msg.Type, err)
	}
	return nil
}

// FetchUnprocessed returns the oldest unprocessed rows first.
func (r *OutboxRepositoryImpl) FetchUnprocessed(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, type, source, trace_id, data, created_at, processed_at, attempts, last_error
		  FROM outbox_messages
		 WHERE source = ? AND processed_at IS NULL
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?
	`
	var rows []model.OutboxMessage
	if err := r.db.SelectContext(ctx, &rows, q, r.source, limit); err != nil {
		return nil, fmt.Errorf("fetch unprocessed: %w", err)
	}
	return rows, nil
}

// MarkProcessed is a no-op for rows that are already processed.
func (r *OutboxRepositoryImpl) MarkProcessed(ctx context.Context, id string) error {
	const q = `
		UPDATE outbox_messages
		   SET processed_at = ?, attempts = attempts + 1, last_error = NULL
		 WHERE id = ? AND processed_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, q, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}
	return nil
}

// MarkFailed records the attempt and its error. It is a no-op for rows that are already processed.
func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = truncateUTF8(msg, maxLastErrorLen)

	const q = `
		UPDATE outbox_messages
		   SET attempts = attempts + 1, last_error = ?
		 WHERE id = ? AND processed_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, q, msg, id); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

func (r *OutboxRepositoryImpl) Stats(ctx context.Context) (model.OutboxStats, error) {
	const q = `
		SELECT COUNT(*) AS pending, MIN(created_at) AS oldest
		  FROM outbox_messages
		 WHERE source = ? AND processed_at IS NULL
	`
	var st model.OutboxStats
	err := r.db.GetContext(ctx, &st, q, r.source)
	if err == sql.ErrNoRows {
		return model.OutboxStats{}, nil
	}
	if err != nil {
		return model.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	return st, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
