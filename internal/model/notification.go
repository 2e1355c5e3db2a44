package model

import "time"

// GroupProvision records the external group created for a family. One row per family.
type GroupProvision struct {
	FamilyID   int64     `db:"family_id"`
	Channel    string    `db:"channel"`
	ExternalID string    `db:"external_id"`
	Link       string    `db:"link"`
	TraceID    string    `db:"trace_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Delivery is one outbound notification, unique per dedupe key.
type Delivery struct {
	DedupeKey  string    `db:"dedupe_key"`
	EventID    string    `db:"event_id"`
	Channel    string    `db:"channel"`
	Recipient  string    `db:"recipient"`
	ProviderID string    `db:"provider_id"`
	CreatedAt  time.Time `db:"created_at"`
}
