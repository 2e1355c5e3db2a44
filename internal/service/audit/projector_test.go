package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Insert(ctx context.Context, rec model.EventRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockAudit) List(ctx context.Context, eventType string, limit, offset int) ([]model.EventRecord, error) {
	args := m.Called(ctx, eventType, limit, offset)
	return args.Get(0).([]model.EventRecord), args.Error(1)
}

func TestProjectorInsertsRecord(t *testing.T) {
	repo := &mockAudit{}
	p := NewProjector(repo, "core.events.audit", nil)
	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	env := model.Envelope{ID: "01J0", Type: "retreat.tents.replaced.v1", Source: "core", TraceID: "tr", Data: json.RawMessage(`{"count":2}`)}
	repo.On("Insert", mock.Anything, model.EventRecord{
		ID:         "01J0",
		Type:       "retreat.tents.replaced.v1",
		Source:     "core",
		TraceID:    "tr",
		Data:       `{"count":2}`,
		Queue:      "core.events.audit",
		ReceivedAt: at,
	}).Return(nil).Once()

	require.NoError(t, p.Handle(context.Background(), env))
	repo.AssertExpectations(t)
}

func TestProjectorErrors(t *testing.T) {
	repo := &mockAudit{}
	p := NewProjector(repo, "q", nil)

	err := p.Handle(context.Background(), model.Envelope{Type: "x", Data: json.RawMessage(`{}`)})
	assert.True(t, consumer.IsMalformed(err))

	boom := errors.New("clickhouse down")
	repo.On("Insert", mock.Anything, mock.Anything).Return(boom)
	err = p.Handle(context.Background(), model.Envelope{ID: "1", Type: "x", Data: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, boom)
	assert.False(t, consumer.IsMalformed(err))
}

func TestCollectionLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := CollectionLog(zap.New(core))

	env := model.Envelope{Type: "retreat.tents.replaced.v1", Data: json.RawMessage(`{"retreatId":4,"kind":"tents","version":9,"count":3}`)}
	require.NoError(t, h.Handle(context.Background(), env))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(9), fields["version"])
	assert.Equal(t, "tents", fields["kind"])

	env.Data = json.RawMessage(`{"retreatId":4,"kind":"boats"}`)
	assert.True(t, consumer.IsMalformed(h.Handle(context.Background(), env)))
}
