package repository

import "github.com/jmehdipour/retreat-sync/internal/model"

type SpacesRepository struct {
	collectionTable[model.ServiceSpace]
}

func NewSpacesRepository() *SpacesRepository {
	return &SpacesRepository{collectionTable[model.ServiceSpace]{
		kind:       model.KindSpaces,
		table:      "service_spaces",
		selectCols: "id, retreat_id, name, min_capacity, max_capacity, active, locked",
		writeCols:  []string{"name", "min_capacity", "max_capacity", "active", "locked"},
		values: func(s model.ServiceSpace) []any {
			return []any{s.Name, s.MinCapacity, s.MaxCapacity, s.Active, s.Locked}
		},
		assign: func(s model.ServiceSpace, retreatID, id int64) model.ServiceSpace {
			s.ID, s.RetreatID = id, retreatID
			return s
		},
	}}
}
