package model

type Tent struct {
	ID        int64  `db:"id" json:"id"`
	RetreatID int64  `db:"retreat_id" json:"retreatId"`
	Label     string `db:"label" json:"label"`
	Capacity  int    `db:"capacity" json:"capacity"`
	Locked    bool   `db:"locked" json:"locked"`
}

func (t Tent) ItemID() int64  { return t.ID }
func (t Tent) IsLocked() bool { return t.Locked }

func (t Tent) WithLocked(locked bool) Tent {
	t.Locked = locked
	return t
}

func (t Tent) SameAs(o Tent) bool {
	return t.Label == o.Label && t.Capacity == o.Capacity
}
