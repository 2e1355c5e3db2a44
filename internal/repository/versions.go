package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

// mysql: Cannot add or update a child row: a foreign key constraint fails
const errNoReferencedRow = 1452

// VersionRepository persists collection_versions, one row per (retreat, kind).
type VersionRepository interface {
	// ForUpdate creates the row when missing and locks it for the rest of tx.
	ForUpdate(ctx context.Context, tx *sqlx.Tx, retreatID int64, kind model.CollectionKind) (model.CollectionState, error)
	Bump(ctx context.Context, tx *sqlx.Tx, retreatID int64, kind model.CollectionKind) (int64, error)
	SetLocked(ctx context.Context, tx *sqlx.Tx, retreatID int64, kind model.CollectionKind, locked bool) error
	Get(ctx context.Context, retreatID int64, kind model.CollectionKind) (model.CollectionState, error)
}

type versionRepo struct {
	db *sqlx.DB
}

func NewVersionRepository(db *sqlx.DB) VersionRepository { return &versionRepo{db: db} }

func (r *versionRepo) ForUpdate(ctx context.Context, tx *sqlx.Tx, retreatID int64, kind model.CollectionKind) (model.CollectionState, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO collection_versions (retreat_id, kind, version, locked)
		VALUES (?, ?, 0, 0)
		ON DUPLICATE KEY UPDATE retreat_id = retreat_id
	`, retreatID, kind.String())
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == errNoReferencedRow {
			return model.CollectionState{}, errs.NewNotFound(fmt.Sprintf("retreat %d not found", retreatID))
		}
		return model.CollectionState{}, fmt.Errorf("ensure version row: %w", err)
	}

	var st model.CollectionState
	err = tx.QueryRowxContext(ctx, `
		SELECT retreat_id, kind, version, locked
		  FROM collection_versions
		 WHERE retreat_id = ? AND kind = ?
		   FOR UPDATE
	`, retreatID, kind.String()).StructScan(&st)
	if err != nil {
		return model.CollectionState{}, fmt.Errorf("lock version row: %w", err)
	}
	return st, nil
}

func (r *versionRepo) Bump(ctx context.Context, tx *sqlx.Tx, retreatID int64, kind model.CollectionKind) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		UPDATE collection_versions
		   SET version = version + 1, updated_at = NOW()
		 WHERE retreat_id = ? AND kind = ?
	`, retreatID, kind.String()); err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}

	var v int64
	if err := tx.QueryRowxContext(ctx,
		`SELECT version FROM collection_versions WHERE retreat_id = ? AND kind = ?`,
		retreatID, kind.String(),
	).Scan(&v); err != nil {
		return 0, fmt.Errorf("read bumped version: %w", err)
	}
	return v, nil
}

func (r *versionRepo) SetLocked(ctx context.Context, tx *sqlx.Tx, retreatID int64, kind model.CollectionKind, locked bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE collection_versions
		   SET locked = ?, updated_at = NOW()
		 WHERE retreat_id = ? AND kind = ?
	`, locked, retreatID, kind.String())
	if err != nil {
		return fmt.Errorf("set collection lock: %w", err)
	}
	return nil
}

// Get returns version 0, unlocked, for collections that were never written.
func (r *versionRepo) Get(ctx context.Context, retreatID int64, kind model.CollectionKind) (model.CollectionState, error) {
	var st model.CollectionState
	err := r.db.GetContext(ctx, &st, `
		SELECT retreat_id, kind, version, locked
		  FROM collection_versions
		 WHERE retreat_id = ? AND kind = ?
	`, retreatID, kind.String())
	if err == sql.ErrNoRows {
		return model.CollectionState{RetreatID: retreatID, Kind: kind}, nil
	}
	if err != nil {
		return model.CollectionState{}, fmt.Errorf("get version: %w", err)
	}
	return st, nil
}
