package groups

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmehdipour/retreat-sync/internal/channel"
	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retreat = int64(3)

type fixture struct {
	mem      *memory.Store
	families *memory.Families
	outbox   *memory.Outbox
	svc      *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := memory.NewStore()
	fams := mem.Families()
	out := mem.Outbox("core")
	return fixture{mem: mem, families: fams, outbox: out, svc: New(mem, mem.Versions(), fams, out, nil)}
}

func (f fixture) family(status model.GroupStatus) model.Family {
	return f.families.Put(retreat, model.Family{
		Name:           "Karimi",
		Members:        model.Members{{Name: "Sara", Phone: "09120000000"}},
		GroupLifecycle: model.GroupLifecycle{Status: status},
	})
}

func TestTriggerCreationRequiresCollectionLock(t *testing.T) {
	f := newFixture(t)
	f.family(model.GroupNone)

	_, err := f.svc.TriggerCreation(context.Background(), retreat, channel.WhatsApp)
	assert.True(t, errs.IsLocked(err))
	assert.Empty(t, f.outbox.Messages())
}

func TestTriggerCreation(t *testing.T) {
	f := newFixture(t)
	f.mem.SetState(retreat, model.KindFamilies, 4, true)
	none := f.family(model.GroupNone)
	failed := f.family(model.GroupFailed)
	creating := f.family(model.GroupCreating)
	active := f.family(model.GroupActive)

	res, err := f.svc.TriggerCreation(context.Background(), retreat, channel.WhatsApp)
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.Version)
	assert.Equal(t, 2, res.Requested)
	assert.ElementsMatch(t, []int64{creating.ID, active.ID}, res.AlreadyInProgress)

	for _, id := range []int64{none.ID, failed.ID} {
		got, _ := f.families.Get(id)
		assert.Equal(t, model.GroupCreating, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "whatsapp", *got.Channel)
	}

	msgs := f.outbox.OfType(model.EventGroupCreateRequested)
	require.Len(t, msgs, 2)
	var p model.GroupCreateRequested
	require.NoError(t, json.Unmarshal(msgs[0].Data, &p))
	assert.Equal(t, retreat, p.RetreatID)
	assert.Equal(t, "whatsapp", p.Channel)
	assert.Len(t, p.Members, 1)
}

func TestTriggerCreationRejectsUnknownChannel(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.TriggerCreation(context.Background(), retreat, channel.Kind("pigeon"))
	assert.True(t, errs.IsValidation(err))
}

func TestConfirmCreatedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	fam := f.family(model.GroupCreating)
	p := model.GroupCreated{FamilyID: fam.ID, Link: "https://chat/x", ExternalID: "x", Channel: "whatsapp"}

	require.NoError(t, f.svc.ConfirmCreated(context.Background(), p))
	got, _ := f.families.Get(fam.ID)
	assert.Equal(t, model.GroupActive, got.Status)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.CreatedAt)

	require.NoError(t, f.svc.ConfirmCreated(context.Background(), p))
	again, _ := f.families.Get(fam.ID)
	assert.Equal(t, got, again, "redelivery changes nothing")
	assert.Empty(t, f.outbox.Messages())

	p.ExternalID, p.Link = "y", "https://chat/y"
	require.NoError(t, f.svc.ConfirmCreated(context.Background(), p))
	corrected, _ := f.families.Get(fam.ID)
	assert.Equal(t, "y", *corrected.ExternalID)
	assert.Equal(t, int64(2), corrected.Version)
}

func TestConfirmCreatedErrors(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ConfirmCreated(context.Background(), model.GroupCreated{FamilyID: 404, Link: "l", ExternalID: "e"})
	assert.True(t, errs.IsNotFound(err))

	err = f.svc.ConfirmCreated(context.Background(), model.GroupCreated{FamilyID: 1})
	assert.True(t, consumer.IsMalformed(err))

	fam := f.family(model.GroupNone)
	err = f.svc.ConfirmCreated(context.Background(), model.GroupCreated{FamilyID: fam.ID, Link: "l", ExternalID: "e"})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t)
	fam := f.family(model.GroupCreating)

	require.NoError(t, f.svc.MarkFailed(context.Background(), model.GroupFailedPayload{FamilyID: fam.ID, Reason: "invalid phone"}))
	got, _ := f.families.Get(fam.ID)
	assert.Equal(t, model.GroupFailed, got.Status)
	assert.Equal(t, "invalid phone", *got.LastError)

	require.NoError(t, f.svc.MarkFailed(context.Background(), model.GroupFailedPayload{FamilyID: fam.ID, Reason: "again"}))
	again, _ := f.families.Get(fam.ID)
	assert.Equal(t, got.Version, again.Version)

	none := f.family(model.GroupNone)
	err := f.svc.MarkFailed(context.Background(), model.GroupFailedPayload{FamilyID: none.ID})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestMarkFailedAfterRetriedCreationIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SetState(retreat, model.KindFamilies, 1, true)
	fam := f.family(model.GroupCreating)
	failure := model.GroupFailedPayload{FamilyID: fam.ID, Reason: "provider timeout"}

	require.NoError(t, f.svc.MarkFailed(ctx, failure))
	_, err := f.svc.TriggerCreation(ctx, retreat, channel.WhatsApp)
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmCreated(ctx, model.GroupCreated{FamilyID: fam.ID, Link: "https://chat/l1", ExternalID: "e1"}))
	active, _ := f.families.Get(fam.ID)
	require.Equal(t, model.GroupActive, active.Status)

	require.NoError(t, f.svc.MarkFailed(ctx, failure))
	got, _ := f.families.Get(fam.ID)
	assert.Equal(t, model.GroupActive, got.Status)
	assert.Equal(t, active.Version, got.Version)
	assert.Equal(t, "e1", *got.ExternalID)
}

func TestResendNotification(t *testing.T) {
	f := newFixture(t)
	link, ch := "https://chat/x", "email"
	fam := f.families.Put(retreat, model.Family{
		Name:           "Karimi",
		Members:        model.Members{{Name: "Sara", Email: "sara@example.com"}},
		GroupLifecycle: model.GroupLifecycle{Status: model.GroupActive, Version: 3, Link: &link, Channel: &ch},
	})

	g, err := f.svc.ResendNotification(context.Background(), retreat, fam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GroupActive, g.Status)
	assert.Equal(t, int64(3), g.Version)
	require.NotNil(t, g.LastNotifiedAt)

	msgs := f.outbox.OfType(model.EventGroupResendRequested)
	require.Len(t, msgs, 1)
	var p model.GroupResendRequested
	require.NoError(t, json.Unmarshal(msgs[0].Data, &p))
	assert.Equal(t, link, p.Link)
	assert.Equal(t, "email", p.Channel)

	pending := f.family(model.GroupCreating)
	_, err = f.svc.ResendNotification(context.Background(), retreat, pending.ID)
	assert.True(t, errs.IsConflict(err))

	_, err = f.svc.ResendNotification(context.Background(), retreat+1, fam.ID)
	assert.True(t, errs.IsNotFound(err))
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	fam := f.family(model.GroupCreating)

	env := model.Envelope{Type: model.EventGroupCreated, Data: json.RawMessage(`{"familyId":` + jsonInt(fam.ID) + `,"link":"l","externalId":"e"}`)}
	require.NoError(t, f.svc.CreatedHandler().Handle(context.Background(), env))

	bad := model.Envelope{Type: model.EventGroupFailed, Data: json.RawMessage(`"nope"`)}
	err := f.svc.FailedHandler().Handle(context.Background(), bad)
	assert.True(t, errors.Is(err, model.ErrMalformedEnvelope))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
