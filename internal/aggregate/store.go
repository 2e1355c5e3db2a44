// Package aggregate implements optimistic concurrency and lock flags for the collections
// hanging off a retreat. Every structural write checks the collection version and lock,
// applies the change and bumps the version inside one transaction.
package aggregate

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Item is an element of a versioned collection carrying an item-level lock flag.
type Item[T any] interface {
	ItemID() int64
	IsLocked() bool
	WithLocked(locked bool) T
	// SameAs compares the fields a replace-all may write.
	SameAs(other T) bool
}

// Collection persists the items of one collection kind.
type Collection[T Item[T]] interface {
	Kind() model.CollectionKind
	Load(ctx context.Context, q sqlx.QueryerContext, retreatID int64) ([]T, error)
	Replace(ctx context.Context, tx *sqlx.Tx, retreatID int64, items []T) ([]T, error)
	Update(ctx context.Context, tx *sqlx.Tx, retreatID int64, items []T) error
}

// Validator inspects the collection a replace-all would store.
type Validator[T any] func(items []T) (errors, warnings []model.Problem)

// ChangeHook runs inside the write transaction after the version was bumped.
type ChangeHook[T any] func(ctx context.Context, tx *sqlx.Tx, retreatID, version int64, items []T) error

// Snapshot is a consistent read of a collection.
type Snapshot[T any] struct {
	Version int64 `json:"version"`
	Locked  bool  `json:"locked"`
	Items   []T   `json:"items"`
}

type Store[T Item[T]] struct {
	tx       repository.TxRunner
	reader   sqlx.QueryerContext
	versions repository.VersionRepository
	items    Collection[T]
	validate Validator[T]
	onChange ChangeHook[T]
	log      *zap.Logger
}

type Option[T Item[T]] func(*Store[T])

func WithValidator[T Item[T]](v Validator[T]) Option[T] {
	return func(s *Store[T]) { s.validate = v }
}

func WithChangeHook[T Item[T]](h ChangeHook[T]) Option[T] {
	return func(s *Store[T]) { s.onChange = h }
}

func WithLogger[T Item[T]](l *zap.Logger) Option[T] {
	return func(s *Store[T]) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore wires a versioned store. reader serves snapshots outside any transaction.
func NewStore[T Item[T]](tx repository.TxRunner, reader sqlx.QueryerContext, versions repository.VersionRepository, items Collection[T], opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		tx:       tx,
		reader:   reader,
		versions: versions,
		items:    items,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(zap.String("collection", items.Kind().String()))
	return s
}

func (s *Store[T]) Kind() model.CollectionKind { return s.items.Kind() }

func (s *Store[T]) Snapshot(ctx context.Context, retreatID int64) (Snapshot[T], error) {
	st, err := s.versions.Get(ctx, retreatID, s.Kind())
	if err != nil {
		return Snapshot[T]{}, err
	}
	items, err := s.items.Load(ctx, s.reader, retreatID)
	if err != nil {
		return Snapshot[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	return Snapshot[T]{Version: st.Version, Locked: st.Locked, Items: items}, nil
}

// ReplaceAll makes the collection equal to incoming when version matches the stored version.
// Rejections are reported in the result, never as an error, and leave every row untouched.
func (s *Store[T]) ReplaceAll(ctx context.Context, retreatID, version int64, incoming []T) (model.ReplaceResult, error) {
	res := model.ReplaceResult{Errors: []model.Problem{}, Warnings: []model.Problem{}}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		st, err := s.versions.ForUpdate(ctx, tx, retreatID, s.Kind())
		if err != nil {
			return err
		}
		res.Version = st.Version

		if st.Locked {
			res.Errors = append(res.Errors, model.Problem{Code: model.CodeCollectionLocked, Message: fmt.Sprintf("%s collection locked", s.Kind())})
			return nil
		}
		if version != st.Version {
			res.Errors = append(res.Errors, model.Problem{
				Code:    model.CodeVersionConflict,
				Message: fmt.Sprintf("version %d is stale, current version is %d", version, st.Version),
			})
			return nil
		}

		current, err := s.items.Load(ctx, tx, retreatID)
		if err != nil {
			return err
		}
		merged, problems, warnings := merge(current, incoming)
		res.Warnings = append(res.Warnings, warnings...)
		res.Errors = append(res.Errors, problems...)
		if s.validate != nil {
			verrs, vwarns := s.validate(merged)
			res.Errors = append(res.Errors, verrs...)
			res.Warnings = append(res.Warnings, vwarns...)
		}
		if len(res.Errors) > 0 {
			return nil
		}

		saved, err := s.items.Replace(ctx, tx, retreatID, merged)
		if err != nil {
			return err
		}
		v, err := s.versions.Bump(ctx, tx, retreatID, s.Kind())
		if err != nil {
			return err
		}
		if s.onChange != nil {
			if err := s.onChange(ctx, tx, retreatID, v, saved); err != nil {
				return err
			}
		}
		res.Version = v
		res.Applied = true
		return nil
	})
	if err != nil {
		return model.ReplaceResult{}, err
	}

	if !res.Applied {
		s.log.Info("replace-all rejected", zap.Int64("retreat_id", retreatID), zap.Int64("version", version), zap.Any("errors", res.Errors))
	}
	return res, nil
}

// DeleteAll removes every unlocked item.
func (s *Store[T]) DeleteAll(ctx context.Context, retreatID, version int64) (model.ReplaceResult, error) {
	return s.ReplaceAll(ctx, retreatID, version, nil)
}

// Bulk applies fn to every unlocked item and skips locked ones. fn reports whether it changed the item.
// A collection-level lock rejects the whole operation with errs.Locked.
func (s *Store[T]) Bulk(ctx context.Context, retreatID int64, fn func(T) (T, bool)) (model.BulkResult, error) {
	res := model.BulkResult{SkippedLocked: []int64{}}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		st, err := s.versions.ForUpdate(ctx, tx, retreatID, s.Kind())
		if err != nil {
			return err
		}
		res.Version = st.Version
		if st.Locked {
			return errs.NewLocked(fmt.Sprintf("%s collection locked", s.Kind()))
		}

		items, err := s.items.Load(ctx, tx, retreatID)
		if err != nil {
			return err
		}
		var changed []T
		for _, it := range items {
			if it.IsLocked() {
				res.SkippedLocked = append(res.SkippedLocked, it.ItemID())
				continue
			}
			if next, ok := fn(it); ok {
				changed = append(changed, next)
			}
		}
		return s.commitChanged(ctx, tx, retreatID, items, changed, &res)
	})
	return res, err
}

// SetItemLocks toggles item-level flags. It is allowed while the collection is locked.
func (s *Store[T]) SetItemLocks(ctx context.Context, retreatID int64, ids []int64, locked bool) (model.BulkResult, error) {
	res := model.BulkResult{SkippedLocked: []int64{}}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		st, err := s.versions.ForUpdate(ctx, tx, retreatID, s.Kind())
		if err != nil {
			return err
		}
		res.Version = st.Version

		items, err := s.items.Load(ctx, tx, retreatID)
		if err != nil {
			return err
		}
		var changed []T
		for _, it := range items {
			if !want[it.ItemID()] {
				continue
			}
			delete(want, it.ItemID())
			if it.IsLocked() != locked {
				changed = append(changed, it.WithLocked(locked))
			}
		}
		if len(want) > 0 {
			missing := make([]int64, 0, len(want))
			for id := range want {
				missing = append(missing, id)
			}
			slices.Sort(missing)
			return errs.NewNotFound(fmt.Sprintf("%s items not found: %v", s.Kind(), missing))
		}
		return s.commitChanged(ctx, tx, retreatID, items, changed, &res)
	})
	return res, err
}

// SetCollectionLock toggles the collection-level flag without bumping the version.
func (s *Store[T]) SetCollectionLock(ctx context.Context, retreatID int64, locked bool) (model.CollectionState, error) {
	var st model.CollectionState
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if st, err = s.versions.ForUpdate(ctx, tx, retreatID, s.Kind()); err != nil {
			return err
		}
		if st.Locked == locked {
			return nil
		}
		if err := s.versions.SetLocked(ctx, tx, retreatID, s.Kind(), locked); err != nil {
			return err
		}
		st.Locked = locked
		return nil
	})
	if err == nil {
		s.log.Info("collection lock set", zap.Int64("retreat_id", retreatID), zap.Bool("locked", locked))
	}
	return st, err
}

// UpdateOne applies fn to a single unlocked item under the version token. after runs in the
// same transaction with the previous and new item, once the version is bumped.
func (s *Store[T]) UpdateOne(ctx context.Context, retreatID, version, id int64, fn func(T) (T, error), after func(ctx context.Context, tx *sqlx.Tx, before, updated T, version int64) error) (model.ReplaceResult, error) {
	res := model.ReplaceResult{Errors: []model.Problem{}, Warnings: []model.Problem{}}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		st, err := s.versions.ForUpdate(ctx, tx, retreatID, s.Kind())
		if err != nil {
			return err
		}
		res.Version = st.Version

		switch {
		case st.Locked:
			res.Errors = append(res.Errors, model.Problem{Code: model.CodeCollectionLocked, Message: fmt.Sprintf("%s collection locked", s.Kind())})
			return nil
		case version != st.Version:
			res.Errors = append(res.Errors, model.Problem{
				Code:    model.CodeVersionConflict,
				Message: fmt.Sprintf("version %d is stale, current version is %d", version, st.Version),
			})
			return nil
		}

		items, err := s.items.Load(ctx, tx, retreatID)
		if err != nil {
			return err
		}
		var (
			before T
			found  bool
		)
		for _, it := range items {
			if it.ItemID() == id {
				before, found = it, true
				break
			}
		}
		if !found {
			return errs.NewNotFound(fmt.Sprintf("%s item %d not found", s.Kind(), id))
		}
		if before.IsLocked() {
			res.Errors = append(res.Errors, model.Problem{Code: model.CodeItemLocked, Message: "item locked", ItemID: id})
			return nil
		}

		updated, err := fn(before)
		if err != nil {
			return err
		}
		if err := s.items.Update(ctx, tx, retreatID, []T{updated}); err != nil {
			return err
		}
		v, err := s.versions.Bump(ctx, tx, retreatID, s.Kind())
		if err != nil {
			return err
		}
		if after != nil {
			if err := after(ctx, tx, before, updated, v); err != nil {
				return err
			}
		}
		res.Version = v
		res.Applied = true
		return nil
	})
	if err != nil {
		return model.ReplaceResult{}, err
	}
	return res, nil
}

func (s *Store[T]) commitChanged(ctx context.Context, tx *sqlx.Tx, retreatID int64, all, changed []T, res *model.BulkResult) error {
	if len(changed) == 0 {
		return nil
	}
	if err := s.items.Update(ctx, tx, retreatID, changed); err != nil {
		return err
	}
	v, err := s.versions.Bump(ctx, tx, retreatID, s.Kind())
	if err != nil {
		return err
	}
	if s.onChange != nil {
		if err := s.onChange(ctx, tx, retreatID, v, applyChanged(all, changed)); err != nil {
			return err
		}
	}
	res.Version = v
	res.UpdatedCount = len(changed)
	return nil
}

func applyChanged[T Item[T]](all, changed []T) []T {
	byID := make(map[int64]T, len(changed))
	for _, c := range changed {
		byID[c.ItemID()] = c
	}
	out := make([]T, len(all))
	for i, it := range all {
		if c, ok := byID[it.ItemID()]; ok {
			it = c
		}
		out[i] = it
	}
	return out
}
