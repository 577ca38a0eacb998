package cache

import (
	"context"
	"time"
)

// ListBucket stores a slice of E per scope and supports replacing a single
// element by identity.
type ListBucket[E any] struct {
	*Bucket[[]E]
	id func(E) string
}

// NewListBucket returns the list bucket for entity. id extracts the identity
// field elements are matched on.
func NewListBucket[E any](c *Cache, entity string, id func(E) string) *ListBucket[E] {
	return &ListBucket[E]{Bucket: NewBucket[[]E](c, entity), id: id}
}

// Upsert loads the list for scope, replaces the element whose identity
// matches item (or appends it) and saves the whole list again. Upserts and
// saves of the same key are serialized. It returns nil if the save failed,
// or if the current list could not be read, so an unreadable list is never
// replaced by a partial one.
func (l *ListBucket[E]) Upsert(ctx context.Context, scope Scope, item E) *time.Time {
	key, err := Key(l.entity, scope)
	if err != nil {
		l.c.logger.Warn("cache upsert rejected", "entity", l.entity, "error", err)
		return nil
	}
	defer l.c.lock(key)()

	cur, err := l.read(ctx, key, scope)
	if err != nil {
		l.c.logger.Warn("cache upsert skipped, list unreadable", "key", key, "error", err)
		return nil
	}
	var items []E
	if cur.Hit() {
		items = *cur.Data
	}

	want := l.id(item)
	replaced := false
	for i := range items {
		if l.id(items[i]) == want {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}

	return l.save(ctx, key, scope, items)
}
