// Package memory provides in-process implementations of the repository interfaces.
// Transactions serialize on one mutex and roll back by restoring a snapshot, which gives
// the same isolation the version row lock gives in MySQL.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmoiron/sqlx"
)

type versionKey struct {
	retreatID int64
	kind      model.CollectionKind
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	inTx bool

	nextID     int64
	versions   map[versionKey]model.CollectionState
	families   map[int64]model.Family
	spaces     map[int64]model.ServiceSpace
	tents      map[int64]model.Tent
	roster     map[int64]model.RosterEntry
	outbox     []model.OutboxMessage
	provisions map[int64]model.GroupProvision
	deliveries map[string]model.Delivery
}

func NewStore() *Store {
	return &Store{
		versions:   map[versionKey]model.CollectionState{},
		families:   map[int64]model.Family{},
		spaces:     map[int64]model.ServiceSpace{},
		tents:      map[int64]model.Tent{},
		roster:     map[int64]model.RosterEntry{},
		provisions: map[int64]model.GroupProvision{},
		deliveries: map[string]model.Delivery{},
	}
}

var _ repository.TxRunner = (*Store)(nil)

type snapshot struct {
	nextID     int64
	versions   map[versionKey]model.CollectionState
	families   map[int64]model.Family
	spaces     map[int64]model.ServiceSpace
	tents      map[int64]model.Tent
	roster     map[int64]model.RosterEntry
	outbox     []model.OutboxMessage
	provisions map[int64]model.GroupProvision
	deliveries map[string]model.Delivery
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		nextID:     s.nextID,
		versions:   cloneMap(s.versions),
		families:   cloneMap(s.families),
		spaces:     cloneMap(s.spaces),
		tents:      cloneMap(s.tents),
		roster:     cloneMap(s.roster),
		outbox:     append([]model.OutboxMessage(nil), s.outbox...),
		provisions: cloneMap(s.provisions),
		deliveries: cloneMap(s.deliveries),
	}
}

func (s *Store) restore(sn snapshot) {
	s.nextID = sn.nextID
	s.versions = sn.versions
	s.families = sn.families
	s.spaces = sn.spaces
	s.tents = sn.tents
	s.roster = sn.roster
	s.outbox = sn.outbox
	s.provisions = sn.provisions
	s.deliveries = sn.deliveries
}

// WithTx runs fn with a nil *sqlx.Tx. Writes made by fn are discarded when it fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	sn := s.snapshot()
	s.inTx = true
	s.mu.Unlock()

	err := fn(nil)

	s.mu.Lock()
	s.inTx = false
	if err != nil {
		s.restore(sn)
	}
	s.mu.Unlock()
	return err
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ---- versions ----

type Versions struct{ s *Store }

func (s *Store) Versions() *Versions { return &Versions{s: s} }

var _ repository.VersionRepository = (*Versions)(nil)

func (v *Versions) ForUpdate(_ context.Context, _ *sqlx.Tx, retreatID int64, kind model.CollectionKind) (model.CollectionState, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := versionKey{retreatID, kind}
	st, ok := v.s.versions[k]
	if !ok {
		st = model.CollectionState{RetreatID: retreatID, Kind: kind}
		v.s.versions[k] = st
	}
	return st, nil
}

func (v *Versions) Bump(_ context.Context, _ *sqlx.Tx, retreatID int64, kind model.CollectionKind) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := versionKey{retreatID, kind}
	st := v.s.versions[k]
	st.RetreatID, st.Kind = retreatID, kind
	st.Version++
	v.s.versions[k] = st
	return st.Version, nil
}

func (v *Versions) SetLocked(_ context.Context, _ *sqlx.Tx, retreatID int64, kind model.CollectionKind, locked bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := versionKey{retreatID, kind}
	st := v.s.versions[k]
	st.RetreatID, st.Kind = retreatID, kind
	st.Locked = locked
	v.s.versions[k] = st
	return nil
}

func (v *Versions) Get(_ context.Context, retreatID int64, kind model.CollectionKind) (model.CollectionState, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	st, ok := v.s.versions[versionKey{retreatID, kind}]
	if !ok {
		return model.CollectionState{RetreatID: retreatID, Kind: kind}, nil
	}
	return st, nil
}

// SetState overwrites a collection's version row. Test setup only.
func (s *Store) SetState(retreatID int64, kind model.CollectionKind, version int64, locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionKey{retreatID, kind}] = model.CollectionState{RetreatID: retreatID, Kind: kind, Version: version, Locked: locked}
}

// ---- outbox ----

type Outbox struct {
	s      *Store
	source string
}

func (s *Store) Outbox(source string) *Outbox { return &Outbox{s: s, source: source} }

var _ repository.OutboxRepository = (*Outbox)(nil)

func (o *Outbox) Append(_ context.Context, _ *sqlx.Tx, msg model.OutboxMessage) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if !o.s.inTx {
		return repository.ErrTxRequired
	}
	if msg.Source == "" {
		msg.Source = o.source
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	o.s.outbox = append(o.s.outbox, msg)
	return nil
}

func (o *Outbox) FetchUnprocessed(_ context.Context, limit int) ([]model.OutboxMessage, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var out []model.OutboxMessage
	for _, m := range o.s.outbox {
		if m.Source == o.source && m.ProcessedAt == nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *Outbox) update(id string, fn func(m *model.OutboxMessage)) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.outbox {
		if o.s.outbox[i].ID == id && o.s.outbox[i].ProcessedAt == nil {
			fn(&o.s.outbox[i])
		}
	}
}

func (o *Outbox) MarkProcessed(_ context.Context, id string) error {
	o.update(id, func(m *model.OutboxMessage) {
		now := time.Now().UTC()
		m.ProcessedAt = &now
		m.Attempts++
		m.LastError = nil
	})
	return nil
}

func (o *Outbox) MarkFailed(_ context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	o.update(id, func(m *model.OutboxMessage) {
		m.Attempts++
		m.LastError = &msg
	})
	return nil
}

func (o *Outbox) Stats(_ context.Context) (model.OutboxStats, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var st model.OutboxStats
	for _, m := range o.s.outbox {
		if m.Source != o.source || m.ProcessedAt != nil {
			continue
		}
		st.Pending++
		if st.OldestCreate == nil || m.CreatedAt.Before(*st.OldestCreate) {
			t := m.CreatedAt
			st.OldestCreate = &t
		}
	}
	return st, nil
}

// Messages returns every row written by this source, in append order.
func (o *Outbox) Messages() []model.OutboxMessage {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var out []model.OutboxMessage
	for _, m := range o.s.outbox {
		if m.Source == o.source {
			out = append(out, m)
		}
	}
	return out
}

// OfType filters Messages by event type.
func (o *Outbox) OfType(eventType string) []model.OutboxMessage {
	var out []model.OutboxMessage
	for _, m := range o.Messages() {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

// ---- notification side ----

type Provisions struct{ s *Store }

func (s *Store) Provisions() *Provisions { return &Provisions{s: s} }

var _ repository.ProvisionsRepository = (*Provisions)(nil)

func (p *Provisions) Get(_ context.Context, _ *sqlx.Tx, familyID int64) (*model.GroupProvision, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	v, ok := p.s.provisions[familyID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (p *Provisions) Insert(_ context.Context, _ *sqlx.Tx, gp model.GroupProvision) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.provisions[gp.FamilyID]; !ok {
		gp.CreatedAt = time.Now().UTC()
		p.s.provisions[gp.FamilyID] = gp
	}
	return nil
}

type Deliveries struct{ s *Store }

func (s *Store) Deliveries() *Deliveries { return &Deliveries{s: s} }

var _ repository.DeliveriesRepository = (*Deliveries)(nil)

func (d *Deliveries) Exists(_ context.Context, key string) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	_, ok := d.s.deliveries[key]
	return ok, nil
}

func (d *Deliveries) Record(_ context.Context, del model.Delivery) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.deliveries[del.DedupeKey]; ok {
		return false, nil
	}
	del.CreatedAt = time.Now().UTC()
	d.s.deliveries[del.DedupeKey] = del
	return true, nil
}

// Count returns the number of recorded deliveries.
func (d *Deliveries) Count() int {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	return len(d.s.deliveries)
}

var errNotFound = errors.New("not found")

func notFound(what string, id int64) error {
	return errs.NewNotFound(fmt.Sprintf("%s %d not found", what, id), errNotFound)
}
