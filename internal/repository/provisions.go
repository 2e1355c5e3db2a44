package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

// ProvisionsRepository keeps the external groups created by the notification service.
type ProvisionsRepository interface {
	Get(ctx context.Context, tx *sqlx.Tx, familyID int64) (*model.GroupProvision, error)
	Insert(ctx context.Context, tx *sqlx.Tx, p model.GroupProvision) error
}

type provisionsRepo struct{}

func NewProvisionsRepository() ProvisionsRepository { return &provisionsRepo{} }

// Get returns nil, nil when the family has no provisioned group. It is a plain read: a
// locking read of a missing row would take a gap lock and deadlock racing inserts.
func (r *provisionsRepo) Get(ctx context.Context, tx *sqlx.Tx, familyID int64) (*model.GroupProvision, error) {
	var p model.GroupProvision
	err := tx.GetContext(ctx, &p, `
		SELECT family_id, channel, external_id, link, trace_id, created_at
		  FROM group_provisions
		 WHERE family_id = ?
	`, familyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provision %d: %w", familyID, err)
	}
	return &p, nil
}

// Insert keeps the first row stored for a family; later inserts are no-ops.
func (r *provisionsRepo) Insert(ctx context.Context, tx *sqlx.Tx, p model.GroupProvision) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO group_provisions (family_id, channel, external_id, link, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE family_id = family_id
	`, p.FamilyID, p.Channel, p.ExternalID, p.Link, p.TraceID)
	if err != nil {
		return fmt.Errorf("insert provision %d: %w", p.FamilyID, err)
	}
	return nil
}
