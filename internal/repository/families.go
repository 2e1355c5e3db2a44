package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

const familyColumns = `id, retreat_id, name, members, locked,
	group_status, group_version, group_link, group_external_id, group_channel,
	group_created_at, group_last_notified_at, group_error`

type FamiliesRepository struct {
	collectionTable[model.Family]
}

func NewFamiliesRepository() *FamiliesRepository {
	return &FamiliesRepository{collectionTable[model.Family]{
		kind:       model.KindFamilies,
		table:      "families",
		selectCols: familyColumns,
		writeCols:  []string{"name", "members", "locked"},
		values: func(f model.Family) []any {
			return []any{f.Name, f.Members, f.Locked}
		},
		assign: func(f model.Family, retreatID, id int64) model.Family {
			f.ID, f.RetreatID = id, retreatID
			if f.Status == "" {
				f.Status = model.GroupNone
			}
			return f
		},
	}}
}

// GetForUpdate locks one family row for the rest of tx.
func (r *FamiliesRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, familyID int64) (model.Family, error) {
	var f model.Family
	err := tx.GetContext(ctx, &f, `SELECT `+familyColumns+` FROM families WHERE id = ? FOR UPDATE`, familyID)
	if err == sql.ErrNoRows {
		return model.Family{}, errs.NewNotFound(fmt.Sprintf("family %d not found", familyID), err)
	}
	if err != nil {
		return model.Family{}, fmt.Errorf("get family %d: %w", familyID, err)
	}
	return f, nil
}

// SaveGroup writes the group lifecycle columns only.
func (r *FamiliesRepository) SaveGroup(ctx context.Context, tx *sqlx.Tx, familyID int64, g model.GroupLifecycle) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE families
		   SET group_status = ?, group_version = ?, group_link = ?, group_external_id = ?,
		       group_channel = ?, group_created_at = ?, group_last_notified_at = ?, group_error = ?
		 WHERE id = ?
	`, g.Status.String(), g.Version, g.Link, g.ExternalID, g.Channel, g.CreatedAt, g.LastNotifiedAt, g.LastError, familyID)
	if err != nil {
		return fmt.Errorf("save group of family %d: %w", familyID, err)
	}
	return nil
}
