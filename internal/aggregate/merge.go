package aggregate

import (
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/model"
)

// merge builds the collection a replace-all stores. Locked items always keep their stored
// form: edits to them and omissions of them are dropped with an item_locked warning.
// The stored lock flag wins for every existing item.
func merge[T Item[T]](current, incoming []T) (merged []T, problems, warnings []model.Problem) {
	byID := make(map[int64]T, len(current))
	for _, c := range current {
		byID[c.ItemID()] = c
	}

	seen := make(map[int64]bool, len(incoming))
	merged = make([]T, 0, len(incoming)+len(current))

	for _, in := range incoming {
		id := in.ItemID()
		if id == 0 {
			merged = append(merged, in.WithLocked(false))
			continue
		}
		if seen[id] {
			problems = append(problems, model.Problem{Code: model.CodeInvalid, Message: fmt.Sprintf("item %d listed twice", id), ItemID: id})
			continue
		}
		seen[id] = true

		cur, ok := byID[id]
		switch {
		case !ok:
			problems = append(problems, model.Problem{Code: model.CodeUnknownItem, Message: fmt.Sprintf("item %d does not belong to this collection", id), ItemID: id})
		case cur.IsLocked():
			if !cur.SameAs(in) {
				warnings = append(warnings, model.Problem{Code: model.CodeItemLocked, Message: "locked item kept unchanged", ItemID: id})
			}
			merged = append(merged, cur)
		default:
			merged = append(merged, in.WithLocked(false))
		}
	}

	for _, c := range current {
		if c.IsLocked() && !seen[c.ItemID()] {
			warnings = append(warnings, model.Problem{Code: model.CodeItemLocked, Message: "locked item cannot be removed", ItemID: c.ItemID()})
			merged = append(merged, c)
		}
	}
	return merged, problems, warnings
}
