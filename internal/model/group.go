package model

import "time"

type GroupStatus string

const (
	GroupNone     GroupStatus = "none"
	GroupCreating GroupStatus = "creating"
	GroupActive   GroupStatus = "active"
	GroupFailed   GroupStatus = "failed"
)

func (s GroupStatus) String() string { return string(s) }

func (s GroupStatus) Valid() bool {
	switch s {
	case GroupNone, GroupCreating, GroupActive, GroupFailed:
		return true
	}
	return false
}

var groupTransitions = map[GroupStatus][]GroupStatus{
	GroupNone:     {GroupCreating},
	GroupFailed:   {GroupCreating},
	GroupCreating: {GroupActive, GroupFailed},
	GroupActive:   {GroupActive, GroupFailed},
}

// CanTransition reports whether the lifecycle may move from s to next.
func (s GroupStatus) CanTransition(next GroupStatus) bool {
	for _, n := range groupTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// GroupLifecycle tracks the external chat group of a family.
type GroupLifecycle struct {
	Status         GroupStatus `db:"group_status" json:"status"`
	Version        int64       `db:"group_version" json:"version"`
	Link           *string     `db:"group_link" json:"link,omitempty"`
	ExternalID     *string     `db:"group_external_id" json:"externalId,omitempty"`
	Channel        *string     `db:"group_channel" json:"channel,omitempty"`
	CreatedAt      *time.Time  `db:"group_created_at" json:"createdAt,omitempty"`
	LastNotifiedAt *time.Time  `db:"group_last_notified_at" json:"lastNotifiedAt,omitempty"`
	LastError      *string     `db:"group_error" json:"lastError,omitempty"`
}

// Matches reports whether the stored external resource equals the confirmed one.
func (g GroupLifecycle) Matches(externalID, link string) bool {
	return g.ExternalID != nil && *g.ExternalID == externalID &&
		g.Link != nil && *g.Link == link
}
