package model

type RosterRole string

const (
	RoleParticipant RosterRole = "participant"
	RoleServant     RosterRole = "servant"
	RoleLeader      RosterRole = "leader"
)

func (r RosterRole) Valid() bool {
	return r == RoleParticipant || r == RoleServant || r == RoleLeader
}

type RosterEntry struct {
	ID        int64      `db:"id" json:"id"`
	RetreatID int64      `db:"retreat_id" json:"retreatId"`
	FullName  string     `db:"full_name" json:"fullName"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone"`
	Role      RosterRole `db:"role" json:"role"`
	Locked    bool       `db:"locked" json:"locked"`
}

func (r RosterEntry) ItemID() int64  { return r.ID }
func (r RosterEntry) IsLocked() bool { return r.Locked }

func (r RosterEntry) WithLocked(locked bool) RosterEntry {
	r.Locked = locked
	return r
}

func (r RosterEntry) SameAs(o RosterEntry) bool {
	return r.FullName == o.FullName && r.Email == o.Email && r.Phone == o.Phone && r.Role == o.Role
}
