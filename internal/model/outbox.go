package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/util"
)

// OutboxMessage is one row of outbox_messages. Rows are never deleted.
type OutboxMessage struct {
	ID          string     `db:"id"`
	Type        string     `db:"type"`
	Source      string     `db:"source"`
	TraceID     string     `db:"trace_id"`
	Data        []byte     `db:"data"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
	Attempts    int        `db:"attempts"`
	LastError   *string    `db:"last_error"`
}

// NewOutboxMessage serializes payload and stamps a fresh ULID. An empty traceID starts a new trace.
func NewOutboxMessage(eventType, source, traceID string, payload any) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if traceID == "" {
		traceID = util.New()
	}
	return OutboxMessage{
		ID:        util.New(),
		Type:      eventType,
		Source:    source,
		TraceID:   traceID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Envelope converts the row into its wire form.
func (m OutboxMessage) Envelope() Envelope {
	return Envelope{
		ID:      m.ID,
		Type:    m.Type,
		Source:  m.Source,
		TraceID: m.TraceID,
		Data:    json.RawMessage(m.Data),
	}
}

// OutboxStats summarises the unprocessed backlog.
type OutboxStats struct {
	Pending      int64      `db:"pending" json:"pending"`
	OldestCreate *time.Time `db:"oldest" json:"oldestCreatedAt,omitempty"`
}
