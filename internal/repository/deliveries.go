package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveriesRepository records outbound notifications by dedupe key.
type DeliveriesRepository interface {
	Exists(ctx context.Context, dedupeKey string) (bool, error)
	Record(ctx context.Context, d model.Delivery) (bool, error)
}

type deliveriesRepo struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) DeliveriesRepository { return &deliveriesRepo{db: db} }

func (r *deliveriesRepo) Exists(ctx context.Context, dedupeKey string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notification_deliveries WHERE dedupe_key = ?`, dedupeKey)
	if err != nil {
		return false, fmt.Errorf("delivery exists: %w", err)
	}
	return n > 0, nil
}

// Record inserts d and reports whether this call created the row.
func (r *deliveriesRepo) Record(ctx context.Context, d model.Delivery) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_deliveries (dedupe_key, event_id, channel, recipient, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE dedupe_key = dedupe_key
	`, d.DedupeKey, d.EventID, d.Channel, d.Recipient, d.ProviderID)
	if err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
