package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
)

type FamilyMember struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Members is stored as a JSON column.
type Members []FamilyMember

func (m Members) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]FamilyMember(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Members) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("members: unsupported column type")
	}
	return json.Unmarshal(b, (*[]FamilyMember)(m))
}

type Family struct {
	ID        int64   `db:"id" json:"id"`
	RetreatID int64   `db:"retreat_id" json:"retreatId"`
	Name      string  `db:"name" json:"name"`
	Members   Members `db:"members" json:"members"`
	Locked    bool    `db:"locked" json:"locked"`

	GroupLifecycle `json:"group"`
}

func (f Family) ItemID() int64  { return f.ID }
func (f Family) IsLocked() bool { return f.Locked }

func (f Family) WithLocked(locked bool) Family {
	f.Locked = locked
	return f
}

// SameAs compares the structural fields a replace-all may write.
func (f Family) SameAs(o Family) bool {
	return f.Name == o.Name && reflect.DeepEqual(f.Members, o.Members)
}
