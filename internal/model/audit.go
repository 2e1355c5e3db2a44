package model

import "time"

// EventRecord is one consumed envelope projected into ClickHouse.
type EventRecord struct {
	ID         string    `db:"id" json:"id"`
	Type       string    `db:"type" json:"type"`
	Source     string    `db:"source" json:"source"`
	TraceID    string    `db:"trace_id" json:"traceId"`
	Data       string    `db:"data" json:"data"`
	Queue      string    `db:"queue" json:"queue"`
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`
}
