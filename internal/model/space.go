package model

type ServiceSpace struct {
	ID          int64  `db:"id" json:"id"`
	RetreatID   int64  `db:"retreat_id" json:"retreatId"`
	Name        string `db:"name" json:"name"`
	MinCapacity int    `db:"min_capacity" json:"minCapacity"`
	MaxCapacity int    `db:"max_capacity" json:"maxCapacity"`
	Active      bool   `db:"active" json:"active"`
	Locked      bool   `db:"locked" json:"locked"`
}

func (s ServiceSpace) ItemID() int64  { return s.ID }
func (s ServiceSpace) IsLocked() bool { return s.Locked }

func (s ServiceSpace) WithLocked(locked bool) ServiceSpace {
	s.Locked = locked
	return s
}

func (s ServiceSpace) SameAs(o ServiceSpace) bool {
	return s.Name == o.Name && s.MinCapacity == o.MinCapacity && s.MaxCapacity == o.MaxCapacity && s.Active == o.Active
}
