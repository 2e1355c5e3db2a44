package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

const rosterColumns = "id, retreat_id, full_name, email, phone, role, locked"

type RosterRepository struct {
	collectionTable[model.RosterEntry]
}

func NewRosterRepository() *RosterRepository {
	return &RosterRepository{collectionTable[model.RosterEntry]{
		kind:       model.KindRoster,
		table:      "roster_entries",
		selectCols: rosterColumns,
		writeCols:  []string{"full_name", "email", "phone", "role", "locked"},
		values: func(e model.RosterEntry) []any {
			return []any{e.FullName, e.Email, e.Phone, string(e.Role), e.Locked}
		},
		assign: func(e model.RosterEntry, retreatID, id int64) model.RosterEntry {
			e.ID, e.RetreatID = id, retreatID
			return e
		},
	}}
}

func (r *RosterRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, retreatID, entryID int64) (model.RosterEntry, error) {
	var e model.RosterEntry
	err := tx.GetContext(ctx, &e, `SELECT `+rosterColumns+` FROM roster_entries WHERE id = ? AND retreat_id = ? FOR UPDATE`, entryID, retreatID)
	if err == sql.ErrNoRows {
		return model.RosterEntry{}, errs.NewNotFound(fmt.Sprintf("roster entry %d not found", entryID), err)
	}
	if err != nil {
		return model.RosterEntry{}, fmt.Errorf("get roster entry %d: %w", entryID, err)
	}
	return e, nil
}
