package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"family.group.created.v1","source":"notification","traceId":"t1","data":{"familyId":7,"link":"L1","externalId":"E1"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventGroupCreated, env.Type)
	assert.Equal(t, "t1", env.TraceID)

	var p GroupCreated
	require.NoError(t, env.DecodeData(&p))
	assert.Equal(t, int64(7), p.FamilyID)
	assert.NoError(t, p.Validate())
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":     `{{{`,
		"missing type": `{"data":{}}`,
		"null data":    `{"type":"x","data":null}`,
		"no data":      `{"type":"x"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(body))
			assert.True(t, errors.Is(err, ErrMalformedEnvelope))
		})
	}
}

func TestDecodeDataWrongShape(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"x","data":"text"}`))
	require.NoError(t, err)

	var p GroupCreated
	assert.True(t, errors.Is(env.DecodeData(&p), ErrMalformedEnvelope))
	assert.True(t, errors.Is(p.Validate(), ErrMalformedEnvelope))
}

func TestOutboxMessageEnvelope(t *testing.T) {
	m, err := NewOutboxMessage(EventGroupCreated, "notification", "", GroupCreated{FamilyID: 1, Link: "L", ExternalID: "E"})
	require.NoError(t, err)
	assert.Len(t, m.ID, 26)
	assert.NotEmpty(t, m.TraceID)
	assert.Nil(t, m.ProcessedAt)

	env := m.Envelope()
	assert.Equal(t, m.ID, env.ID)
	assert.Equal(t, m.Type, env.Type)
	assert.JSONEq(t, `{"familyId":1,"link":"L","externalId":"E","channel":""}`, string(env.Data))
}

func TestGroupTransitions(t *testing.T) {
	tests := []struct {
		from, to GroupStatus
		ok       bool
	}{
		{GroupNone, GroupCreating, true},
		{GroupNone, GroupActive, false},
		{GroupCreating, GroupActive, true},
		{GroupCreating, GroupFailed, true},
		{GroupActive, GroupActive, true},
		{GroupActive, GroupCreating, false},
		{GroupFailed, GroupCreating, true},
		{GroupFailed, GroupActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestGroupMatches(t *testing.T) {
	link, ext := "L1", "E1"
	g := GroupLifecycle{Status: GroupActive, Link: &link, ExternalID: &ext}

	assert.True(t, g.Matches("E1", "L1"))
	assert.False(t, g.Matches("E2", "L1"))
	assert.False(t, GroupLifecycle{}.Matches("E1", "L1"))
}

func TestMembersColumn(t *testing.T) {
	v, err := Members(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var m Members
	require.NoError(t, m.Scan([]byte(`[{"name":"Ana","phone":"+1"}]`)))
	require.Len(t, m, 1)
	assert.Equal(t, "Ana", m[0].Name)
}
