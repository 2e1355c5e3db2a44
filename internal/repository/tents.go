package repository

import "github.com/jmehdipour/retreat-sync/internal/model"

type TentsRepository struct {
	collectionTable[model.Tent]
}

func NewTentsRepository() *TentsRepository {
	return &TentsRepository{collectionTable[model.Tent]{
		kind:       model.KindTents,
		table:      "tents",
		selectCols: "id, retreat_id, label, capacity, locked",
		writeCols:  []string{"label", "capacity", "locked"},
		values: func(t model.Tent) []any {
			return []any{t.Label, t.Capacity, t.Locked}
		},
		assign: func(t model.Tent, retreatID, id int64) model.Tent {
			t.ID, t.RetreatID = id, retreatID
			return t
		},
	}}
}
