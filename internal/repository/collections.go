package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

type identified interface {
	ItemID() int64
}

// collectionTable maps one versioned collection onto a table keyed by (id, retreat_id).
type collectionTable[T identified] struct {
	kind       model.CollectionKind
	table      string
	selectCols string
	writeCols  []string
	values     func(T) []any
	assign     func(item T, retreatID, id int64) T
}

func (c collectionTable[T]) Kind() model.CollectionKind { return c.kind }

func (c collectionTable[T]) Load(ctx context.Context, q sqlx.QueryerContext, retreatID int64) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE retreat_id = ? ORDER BY id`, c.selectCols, c.table)

	var items []T
	if err := sqlx.SelectContext(ctx, q, &items, query, retreatID); err != nil {
		return nil, fmt.Errorf("load %s: %w", c.kind, err)
	}
	return items, nil
}

// Replace makes the stored collection equal to items. Items with ID 0 are inserted and
// returned with their new ID.
func (c collectionTable[T]) Replace(ctx context.Context, tx *sqlx.Tx, retreatID int64, items []T) ([]T, error) {
	keep := make([]int64, 0, len(items))
	for _, it := range items {
		if it.ItemID() > 0 {
			keep = append(keep, it.ItemID())
		}
	}
	if err := c.deleteMissing(ctx, tx, retreatID, keep); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.ItemID() > 0 {
			if err := c.update(ctx, tx, retreatID, it); err != nil {
				return nil, err
			}
			out = append(out, it)
			continue
		}

		res, err := tx.ExecContext(ctx, c.insertSQL(), append([]any{retreatID}, c.values(it)...)...)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", c.kind, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert %s id: %w", c.kind, err)
		}
		out = append(out, c.assign(it, retreatID, id))
	}
	return out, nil
}

func (c collectionTable[T]) Update(ctx context.Context, tx *sqlx.Tx, retreatID int64, items []T) error {
	for _, it := range items {
		if err := c.update(ctx, tx, retreatID, it); err != nil {
			return err
		}
	}
	return nil
}

func (c collectionTable[T]) update(ctx context.Context, tx *sqlx.Tx, retreatID int64, it T) error {
	args := append(c.values(it), it.ItemID(), retreatID)
	if _, err := tx.ExecContext(ctx, c.updateSQL(), args...); err != nil {
		return fmt.Errorf("update %s %d: %w", c.kind, it.ItemID(), err)
	}
	return nil
}

func (c collectionTable[T]) deleteMissing(ctx context.Context, tx *sqlx.Tx, retreatID int64, keep []int64) error {
	if len(keep) == 0 {
		q := fmt.Sprintf(`DELETE FROM %s WHERE retreat_id = ?`, c.table)
		if _, err := tx.ExecContext(ctx, q, retreatID); err != nil {
			return fmt.Errorf("delete %s: %w", c.kind, err)
		}
		return nil
	}

	q, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE retreat_id = ? AND id NOT IN (?)`, c.table), retreatID, keep)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return fmt.Errorf("delete missing %s: %w", c.kind, err)
	}
	return nil
}

func (c collectionTable[T]) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.writeCols)+1), ", ")
	return fmt.Sprintf(`INSERT INTO %s (retreat_id, %s) VALUES (%s)`, c.table, strings.Join(c.writeCols, ", "), marks)
}

func (c collectionTable[T]) updateSQL() string {
	sets := make([]string, len(c.writeCols))
	for i, col := range c.writeCols {
		sets[i] = col + " = ?"
	}
	return fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND retreat_id = ?`, c.table, strings.Join(sets, ", "))
}
