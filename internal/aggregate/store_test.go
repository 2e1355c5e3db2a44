package aggregate_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmehdipour/retreat-sync/internal/aggregate"
	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository/memory"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retreat = int64(1)

func newTents(t *testing.T, opts ...aggregate.Option[model.Tent]) (*aggregate.Store[model.Tent], *memory.Store, *memory.Collection[model.Tent]) {
	t.Helper()
	mem := memory.NewStore()
	tents := mem.Tents()
	return aggregate.NewStore[model.Tent](mem, nil, mem.Versions(), tents, opts...), mem, tents
}

func TestReplaceAllAppliesAndBumpsVersion(t *testing.T) {
	var hooked int64
	store, mem, _ := newTents(t, aggregate.WithChangeHook[model.Tent](func(_ context.Context, _ *sqlx.Tx, _ int64, version int64, items []model.Tent) error {
		hooked = version
		assert.Len(t, items, 2)
		return nil
	}))
	mem.SetState(retreat, model.KindTents, 4, false)

	res, err := store.ReplaceAll(context.Background(), retreat, 4, []model.Tent{{Label: "A", Capacity: 4}, {Label: "B", Capacity: 6}})
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Empty(t, res.Errors)
	assert.Equal(t, int64(5), res.Version)
	assert.Equal(t, int64(5), hooked)

	snap, err := store.Snapshot(context.Background(), retreat)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Version)
	assert.Len(t, snap.Items, 2)
}

func TestReplaceAllStaleVersionChangesNothing(t *testing.T) {
	store, mem, tents := newTents(t)
	mem.SetState(retreat, model.KindTents, 7, false)
	existing := tents.Put(retreat, model.Tent{Label: "A", Capacity: 4})

	res, err := store.ReplaceAll(context.Background(), retreat, 6, []model.Tent{{ID: existing.ID, Label: "changed", Capacity: 1}})
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.True(t, res.HasError(model.CodeVersionConflict))
	assert.Equal(t, int64(7), res.Version)

	got, _ := tents.Get(existing.ID)
	assert.Equal(t, existing, got)
}

func TestReplaceAllConcurrentWritersExactlyOneWins(t *testing.T) {
	store, mem, _ := newTents(t)
	mem.SetState(retreat, model.KindTents, 3, false)

	const writers = 2
	results := make([]model.ReplaceResult, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.ReplaceAll(context.Background(), retreat, 3, []model.Tent{{Label: "writer", Capacity: i + 1}})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		if r.Applied {
			applied++
		} else {
			assert.True(t, r.HasError(model.CodeVersionConflict))
		}
		// the loser still learns the current version
		assert.Equal(t, int64(4), r.Version)
	}
	assert.Equal(t, 1, applied)
}

func TestReplaceAllCollectionLocked(t *testing.T) {
	store, mem, tents := newTents(t)
	mem.SetState(retreat, model.KindTents, 2, true)
	tents.Put(retreat, model.Tent{Label: "A", Capacity: 4})

	res, err := store.ReplaceAll(context.Background(), retreat, 2, nil)
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.True(t, res.HasError(model.CodeCollectionLocked))
	assert.Equal(t, int64(2), res.Version)

	snap, err := store.Snapshot(context.Background(), retreat)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
}

func TestReplaceAllKeepsLockedItems(t *testing.T) {
	store, _, tents := newTents(t)
	locked := tents.Put(retreat, model.Tent{Label: "Locked", Capacity: 4, Locked: true})
	edited := tents.Put(retreat, model.Tent{Label: "Locked too", Capacity: 2, Locked: true})
	free := tents.Put(retreat, model.Tent{Label: "Free", Capacity: 3})

	res, err := store.ReplaceAll(context.Background(), retreat, 0, []model.Tent{
		{ID: edited.ID, Label: "renamed", Capacity: 9},
		{ID: free.ID, Label: "Free", Capacity: 8, Locked: true},
	})
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Equal(t, int64(1), res.Version)

	codes := map[int64]string{}
	for _, w := range res.Warnings {
		codes[w.ItemID] = w.Code
	}
	assert.Equal(t, model.CodeItemLocked, codes[locked.ID], "omitted locked item is kept")
	assert.Equal(t, model.CodeItemLocked, codes[edited.ID], "edited locked item is kept")

	got, _ := tents.Get(edited.ID)
	assert.Equal(t, "Locked too", got.Label)
	_, ok := tents.Get(locked.ID)
	assert.True(t, ok)

	got, _ = tents.Get(free.ID)
	assert.Equal(t, 8, got.Capacity)
	assert.False(t, got.Locked, "replace-all cannot set item locks")
}

func TestReplaceAllRejectsForeignAndDuplicateIDs(t *testing.T) {
	store, _, tents := newTents(t)
	own := tents.Put(retreat, model.Tent{Label: "A"})
	other := tents.Put(2, model.Tent{Label: "B"})

	res, err := store.ReplaceAll(context.Background(), retreat, 0, []model.Tent{
		{ID: other.ID, Label: "stolen"},
		{ID: own.ID, Label: "A"},
		{ID: own.ID, Label: "A again"},
	})
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.True(t, res.HasError(model.CodeUnknownItem))
	assert.True(t, res.HasError(model.CodeInvalid))
	assert.Equal(t, int64(0), res.Version)
}

func TestReplaceAllValidatorBlocksWrite(t *testing.T) {
	store, _, _ := newTents(t, aggregate.WithValidator[model.Tent](func(items []model.Tent) ([]model.Problem, []model.Problem) {
		var errsOut []model.Problem
		for _, it := range items {
			if it.Capacity <= 0 {
				errsOut = append(errsOut, model.Problem{Code: model.CodeInvalid, Message: "capacity must be positive"})
			}
		}
		return errsOut, nil
	}))

	res, err := store.ReplaceAll(context.Background(), retreat, 0, []model.Tent{{Label: "A", Capacity: 0}})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, res.HasError(model.CodeInvalid))
}

func TestReplaceAllHookFailureRollsBack(t *testing.T) {
	boom := errors.New("outbox down")
	store, _, tents := newTents(t, aggregate.WithChangeHook[model.Tent](func(context.Context, *sqlx.Tx, int64, int64, []model.Tent) error {
		return boom
	}))
	tents.Put(retreat, model.Tent{Label: "A", Capacity: 1})

	_, err := store.ReplaceAll(context.Background(), retreat, 0, []model.Tent{{Label: "B", Capacity: 2}})
	require.ErrorIs(t, err, boom)

	snap, err := store.Snapshot(context.Background(), retreat)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "A", snap.Items[0].Label)
}

func TestBulkSkipsLockedItems(t *testing.T) {
	mem := memory.NewStore()
	spaces := mem.Spaces()
	store := aggregate.NewStore[model.ServiceSpace](mem, nil, mem.Versions(), spaces)

	a := spaces.Put(retreat, model.ServiceSpace{Name: "a", MinCapacity: 1, MaxCapacity: 2, Active: true})
	b := spaces.Put(retreat, model.ServiceSpace{Name: "b", MinCapacity: 1, MaxCapacity: 2, Active: true, Locked: true})
	c := spaces.Put(retreat, model.ServiceSpace{Name: "c", MinCapacity: 1, MaxCapacity: 2, Active: true})

	res, err := store.Bulk(context.Background(), retreat, func(s model.ServiceSpace) (model.ServiceSpace, bool) {
		s.MinCapacity, s.MaxCapacity = 5, 10
		return s, true
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.UpdatedCount)
	assert.Equal(t, []int64{b.ID}, res.SkippedLocked)
	assert.Equal(t, int64(1), res.Version)

	for _, id := range []int64{a.ID, c.ID} {
		got, _ := spaces.Get(id)
		assert.Equal(t, 10, got.MaxCapacity)
	}
	got, _ := spaces.Get(b.ID)
	assert.Equal(t, 2, got.MaxCapacity)
}

func TestBulkRejectedWhenCollectionLocked(t *testing.T) {
	store, mem, tents := newTents(t)
	mem.SetState(retreat, model.KindTents, 9, true)
	tents.Put(retreat, model.Tent{Label: "A", Capacity: 1})

	res, err := store.Bulk(context.Background(), retreat, func(t model.Tent) (model.Tent, bool) {
		t.Capacity = 99
		return t, true
	})
	assert.True(t, errs.IsLocked(err))
	assert.Equal(t, int64(9), res.Version)
	assert.Zero(t, res.UpdatedCount)
}

func TestBulkWithoutChangesKeepsVersion(t *testing.T) {
	store, _, tents := newTents(t)
	tents.Put(retreat, model.Tent{Label: "A", Capacity: 1})

	res, err := store.Bulk(context.Background(), retreat, func(t model.Tent) (model.Tent, bool) { return t, false })
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Version)
	assert.Zero(t, res.UpdatedCount)
}

func TestSetItemLocks(t *testing.T) {
	store, mem, tents := newTents(t)
	mem.SetState(retreat, model.KindTents, 1, true)
	a := tents.Put(retreat, model.Tent{Label: "A"})
	b := tents.Put(retreat, model.Tent{Label: "B", Locked: true})

	res, err := store.SetItemLocks(context.Background(), retreat, []int64{a.ID, b.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount, "only A changed")
	assert.Equal(t, int64(2), res.Version)

	_, err = store.SetItemLocks(context.Background(), retreat, []int64{404}, false)
	assert.True(t, errs.IsNotFound(err))
}

func TestSetCollectionLockKeepsVersion(t *testing.T) {
	store, mem, _ := newTents(t)
	mem.SetState(retreat, model.KindTents, 6, false)

	st, err := store.SetCollectionLock(context.Background(), retreat, true)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, int64(6), st.Version)

	snap, err := store.Snapshot(context.Background(), retreat)
	require.NoError(t, err)
	assert.True(t, snap.Locked)
}

func TestUpdateOne(t *testing.T) {
	store, _, tents := newTents(t)
	a := tents.Put(retreat, model.Tent{Label: "A", Capacity: 1})
	b := tents.Put(retreat, model.Tent{Label: "B", Capacity: 1, Locked: true})

	var before, after model.Tent
	res, err := store.UpdateOne(context.Background(), retreat, 0, a.ID,
		func(t model.Tent) (model.Tent, error) {
			t.Capacity = 3
			return t, nil
		},
		func(_ context.Context, _ *sqlx.Tx, prev, next model.Tent, _ int64) error {
			before, after = prev, next
			return nil
		})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, 1, before.Capacity)
	assert.Equal(t, 3, after.Capacity)

	res, err = store.UpdateOne(context.Background(), retreat, 1, b.ID, func(t model.Tent) (model.Tent, error) { return t, nil }, nil)
	require.NoError(t, err)
	assert.True(t, res.HasError(model.CodeItemLocked))

	res, err = store.UpdateOne(context.Background(), retreat, 0, a.ID, func(t model.Tent) (model.Tent, error) { return t, nil }, nil)
	require.NoError(t, err)
	assert.True(t, res.HasError(model.CodeVersionConflict))
	assert.Equal(t, int64(1), res.Version)
}
