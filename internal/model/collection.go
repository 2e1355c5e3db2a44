package model

// CollectionKind names a versioned collection under a retreat.
type CollectionKind string

const (
	KindFamilies CollectionKind = "families"
	KindSpaces   CollectionKind = "spaces"
	KindTents    CollectionKind = "tents"
	KindRoster   CollectionKind = "roster"
)

func (k CollectionKind) String() string { return string(k) }

func (k CollectionKind) Valid() bool {
	switch k {
	case KindFamilies, KindSpaces, KindTents, KindRoster:
		return true
	}
	return false
}

// CollectionState is the row guarding one collection: its version counter and collection-level lock.
type CollectionState struct {
	RetreatID int64          `db:"retreat_id" json:"retreatId"`
	Kind      CollectionKind `db:"kind" json:"kind"`
	Version   int64          `db:"version" json:"version"`
	Locked    bool           `db:"locked" json:"locked"`
}

// Problem codes reported in outcome objects.
const (
	CodeVersionConflict  = "version_conflict"
	CodeCollectionLocked = "collection_locked"
	CodeItemLocked       = "item_locked"
	CodeUnknownItem      = "unknown_item"
	CodeInvalid          = "invalid"
	CodeDuplicate        = "duplicate"
	CodeEmpty            = "empty"
	CodeNoContact        = "no_contact"
)

type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ItemID  int64  `json:"itemId,omitempty"`
}

// ReplaceResult is returned by replace-all and delete-all. Version is always the current version.
type ReplaceResult struct {
	Version  int64     `json:"version"`
	Applied  bool      `json:"applied"`
	Errors   []Problem `json:"errors"`
	Warnings []Problem `json:"warnings"`
}

func (r ReplaceResult) HasError(code string) bool {
	for _, p := range r.Errors {
		if p.Code == code {
			return true
		}
	}
	return false
}

// BulkResult is returned by bulk operations that skip locked items.
type BulkResult struct {
	Version       int64   `json:"version"`
	UpdatedCount  int     `json:"updatedCount"`
	SkippedLocked []int64 `json:"skippedLocked"`
}

// TriggerResult is returned by the bulk group creation trigger.
type TriggerResult struct {
	Version           int64   `json:"version"`
	Requested         int     `json:"requested"`
	AlreadyInProgress []int64 `json:"alreadyInProgress"`
}
