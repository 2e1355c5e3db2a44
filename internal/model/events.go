package model

import (
	"fmt"
	"time"
)

// Event types. The routing key on the exchange equals the type.
const (
	EventGroupCreateRequested = "family.group.create.requested.v1"
	EventGroupCreated         = "family.group.created.v1"
	EventGroupFailed          = "family.group.failed.v1"
	EventGroupResendRequested = "family.group.link.resend.requested.v1"
	EventEmailChangedByAdmin  = "user.email.changed.by.admin.v1"
)

// CollectionReplacedEvent returns the type announced after a versioned write to kind.
func CollectionReplacedEvent(kind CollectionKind) string {
	return fmt.Sprintf("retreat.%s.replaced.v1", kind)
}

type GroupCreateRequested struct {
	RetreatID int64          `json:"retreatId"`
	FamilyID  int64          `json:"familyId"`
	Name      string         `json:"name"`
	Channel   string         `json:"channel"`
	Members   []FamilyMember `json:"members"`
}

type GroupCreated struct {
	FamilyID   int64  `json:"familyId"`
	Link       string `json:"link"`
	ExternalID string `json:"externalId"`
	Channel    string `json:"channel"`
}

func (p GroupCreated) Validate() error {
	if p.FamilyID <= 0 || p.Link == "" || p.ExternalID == "" {
		return fmt.Errorf("%w: familyId, link and externalId are required", ErrMalformedEnvelope)
	}
	return nil
}

type GroupFailedPayload struct {
	FamilyID int64  `json:"familyId"`
	Reason   string `json:"reason"`
}

type GroupResendRequested struct {
	RetreatID int64          `json:"retreatId"`
	FamilyID  int64          `json:"familyId"`
	Name      string         `json:"name"`
	Channel   string         `json:"channel"`
	Link      string         `json:"link"`
	Members   []FamilyMember `json:"members"`
	// RequestedAt makes every resend a distinct delivery for the dedupe guard.
	RequestedAt time.Time `json:"requestedAt"`
}

type EmailChangedByAdmin struct {
	RetreatID int64  `json:"retreatId"`
	EntryID   int64  `json:"entryId"`
	FullName  string `json:"fullName"`
	OldEmail  string `json:"oldEmail"`
	NewEmail  string `json:"newEmail"`
}

type CollectionReplaced struct {
	RetreatID int64          `json:"retreatId"`
	Kind      CollectionKind `json:"kind"`
	Version   int64          `json:"version"`
	Count     int            `json:"count"`
}
