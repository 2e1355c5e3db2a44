package memory

import (
	"context"
	"sort"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

type identified interface {
	ItemID() int64
}

// Collection is an in-memory versioned collection. rows points into the owning Store so
// transaction snapshots cover it.
type Collection[T identified] struct {
	s         *Store
	kind      model.CollectionKind
	rows      func() map[int64]T
	retreatOf func(T) int64
	assign    func(item T, retreatID, id int64) T
}

func (c *Collection[T]) Kind() model.CollectionKind { return c.kind }

func (c *Collection[T]) Load(_ context.Context, _ sqlx.QueryerContext, retreatID int64) ([]T, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.load(retreatID), nil
}

func (c *Collection[T]) load(retreatID int64) []T {
	var out []T
	for _, it := range c.rows() {
		if c.retreatOf(it) == retreatID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID() < out[j].ItemID() })
	return out
}

func (c *Collection[T]) Replace(_ context.Context, _ *sqlx.Tx, retreatID int64, items []T) ([]T, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	rows := c.rows()
	for _, it := range c.load(retreatID) {
		delete(rows, it.ItemID())
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		id := it.ItemID()
		if id == 0 {
			id = c.s.id()
		}
		it = c.assign(it, retreatID, id)
		rows[id] = it
		out = append(out, it)
	}
	return out, nil
}

func (c *Collection[T]) Update(_ context.Context, _ *sqlx.Tx, retreatID int64, items []T) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	rows := c.rows()
	for _, it := range items {
		if cur, ok := rows[it.ItemID()]; ok && c.retreatOf(cur) == retreatID {
			rows[it.ItemID()] = c.assign(it, retreatID, it.ItemID())
		}
	}
	return nil
}

// Put stores item directly, assigning an id when it has none. Test setup only.
func (c *Collection[T]) Put(retreatID int64, item T) T {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	id := item.ItemID()
	if id == 0 {
		id = c.s.id()
	} else if id > c.s.nextID {
		c.s.nextID = id
	}
	item = c.assign(item, retreatID, id)
	c.rows()[id] = item
	return item
}

// Get returns one item by id.
func (c *Collection[T]) Get(id int64) (T, bool) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	it, ok := c.rows()[id]
	return it, ok
}

type Families struct {
	*Collection[model.Family]
}

func (s *Store) Families() *Families {
	return &Families{&Collection[model.Family]{
		s:         s,
		kind:      model.KindFamilies,
		rows:      func() map[int64]model.Family { return s.families },
		retreatOf: func(f model.Family) int64 { return f.RetreatID },
		assign: func(f model.Family, retreatID, id int64) model.Family {
			f.ID, f.RetreatID = id, retreatID
			if f.Status == "" {
				f.Status = model.GroupNone
			}
			return f
		},
	}}
}

func (f *Families) GetForUpdate(_ context.Context, _ *sqlx.Tx, familyID int64) (model.Family, error) {
	it, ok := f.Get(familyID)
	if !ok {
		return model.Family{}, notFound("family", familyID)
	}
	return it, nil
}

func (f *Families) SaveGroup(_ context.Context, _ *sqlx.Tx, familyID int64, g model.GroupLifecycle) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	it, ok := f.s.families[familyID]
	if !ok {
		return notFound("family", familyID)
	}
	it.GroupLifecycle = g
	f.s.families[familyID] = it
	return nil
}

// Update keeps the stored group lifecycle, as the SQL repository only writes structural columns.
func (f *Families) Update(ctx context.Context, tx *sqlx.Tx, retreatID int64, items []model.Family) error {
	f.s.mu.Lock()
	for i, it := range items {
		if cur, ok := f.s.families[it.ID]; ok {
			items[i].GroupLifecycle = cur.GroupLifecycle
		}
	}
	f.s.mu.Unlock()
	return f.Collection.Update(ctx, tx, retreatID, items)
}

func (f *Families) Replace(ctx context.Context, tx *sqlx.Tx, retreatID int64, items []model.Family) ([]model.Family, error) {
	f.s.mu.Lock()
	for i, it := range items {
		if cur, ok := f.s.families[it.ID]; ok && it.ID != 0 {
			items[i].GroupLifecycle = cur.GroupLifecycle
		} else {
			items[i].GroupLifecycle = model.GroupLifecycle{Status: model.GroupNone}
		}
	}
	f.s.mu.Unlock()
	return f.Collection.Replace(ctx, tx, retreatID, items)
}

func (s *Store) Spaces() *Collection[model.ServiceSpace] {
	return &Collection[model.ServiceSpace]{
		s:         s,
		kind:      model.KindSpaces,
		rows:      func() map[int64]model.ServiceSpace { return s.spaces },
		retreatOf: func(v model.ServiceSpace) int64 { return v.RetreatID },
		assign: func(v model.ServiceSpace, retreatID, id int64) model.ServiceSpace {
			v.ID, v.RetreatID = id, retreatID
			return v
		},
	}
}

func (s *Store) Tents() *Collection[model.Tent] {
	return &Collection[model.Tent]{
		s:         s,
		kind:      model.KindTents,
		rows:      func() map[int64]model.Tent { return s.tents },
		retreatOf: func(v model.Tent) int64 { return v.RetreatID },
		assign: func(v model.Tent, retreatID, id int64) model.Tent {
			v.ID, v.RetreatID = id, retreatID
			return v
		},
	}
}

type Roster struct {
	*Collection[model.RosterEntry]
}

func (s *Store) Roster() *Roster {
	return &Roster{&Collection[model.RosterEntry]{
		s:         s,
		kind:      model.KindRoster,
		rows:      func() map[int64]model.RosterEntry { return s.roster },
		retreatOf: func(v model.RosterEntry) int64 { return v.RetreatID },
		assign: func(v model.RosterEntry, retreatID, id int64) model.RosterEntry {
			v.ID, v.RetreatID = id, retreatID
			return v
		},
	}}
}

func (r *Roster) GetForUpdate(_ context.Context, _ *sqlx.Tx, retreatID, entryID int64) (model.RosterEntry, error) {
	it, ok := r.Get(entryID)
	if !ok || it.RetreatID != retreatID {
		return model.RosterEntry{}, notFound("roster entry", entryID)
	}
	return it, nil
}
