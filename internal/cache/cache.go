// Package cache persists API responses in an lms.Store under deterministic
// per-entity, per-scope keys. Reads never fail: a missing, locked or
// undecodable entry is reported as a miss. Writes never fail either: a
// storage error yields a nil timestamp so callers keep working from memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/kvstore"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

const timeLayout = time.RFC3339Nano

// Cache is the shared handle every Bucket writes through.
type Cache struct {
	store  lms.Store
	clock  lms.Clock
	logger lms.Logger

	locks sync.Map // key -> *sync.Mutex
}

// New creates a Cache over store.
func New(store lms.Store, clock lms.Clock, logger lms.Logger) *Cache {
	return &Cache{store: store, clock: clock, logger: logger}
}

// lock serializes writers of one key within this process.
func (c *Cache) lock(key string) func() {
	v, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Entry is the result of a Load. Both fields are nil on a miss.
type Entry[T any] struct {
	Data      *T
	WrittenAt *time.Time
}

// Hit reports whether the entry holds data.
func (e Entry[T]) Hit() bool {
	return e.Data != nil
}

// Bucket stores values of type T for one entity prefix.
type Bucket[T any] struct {
	c      *Cache
	entity string
}

// NewBucket returns the bucket for entity.
func NewBucket[T any](c *Cache, entity string) *Bucket[T] {
	return &Bucket[T]{c: c, entity: entity}
}

// Entity returns the bucket's key prefix.
func (b *Bucket[T]) Entity() string {
	return b.entity
}

// Save overwrites the entry for scope with payload and stamps it with the
// current time. It returns nil when the entry could not be written.
func (b *Bucket[T]) Save(ctx context.Context, scope Scope, payload T) *time.Time {
	key, err := Key(b.entity, scope)
	if err != nil {
		b.c.logger.Warn("cache save rejected", "entity", b.entity, "error", err)
		return nil
	}
	defer b.c.lock(key)()
	return b.save(ctx, key, scope, payload)
}

// Load returns the last saved payload for scope and when it was written.
func (b *Bucket[T]) Load(ctx context.Context, scope Scope) Entry[T] {
	key, err := Key(b.entity, scope)
	if err != nil {
		return Entry[T]{}
	}
	return b.load(ctx, key, scope)
}

func (b *Bucket[T]) save(ctx context.Context, key string, scope Scope, payload T) *time.Time {
	dateKey, _ := DateKey(b.entity, scope)

	data, err := json.Marshal(payload)
	if err != nil {
		b.c.logger.Warn("cache encode failed", "key", key, "error", err)
		return nil
	}

	now := b.c.clock.Now().UTC()
	if err := b.c.store.Set(ctx, key, data); err != nil {
		b.c.logger.Warn("cache write failed", "key", key, "error", err)
		return nil
	}
	if err := b.c.store.Set(ctx, dateKey, []byte(now.Format(timeLayout))); err != nil {
		b.c.logger.Warn("cache write failed", "key", dateKey, "error", err)
		return nil
	}

	b.c.logger.Debug("cache saved", "key", key, "bytes", len(data))
	return &now
}

func (b *Bucket[T]) load(ctx context.Context, key string, scope Scope) Entry[T] {
	e, err := b.read(ctx, key, scope)
	if err != nil {
		b.c.logReadError(key, err)
		return Entry[T]{}
	}
	return e
}

// read is load without the error swallowing. A store that cannot be read
// (locked, I/O failure) is an error; an absent or undecodable entry is a
// plain miss.
func (b *Bucket[T]) read(ctx context.Context, key string, scope Scope) (Entry[T], error) {
	dateKey, _ := DateKey(b.entity, scope)

	data, err := b.c.store.Get(ctx, key)
	if err != nil {
		return Entry[T]{}, err
	}
	if data == nil {
		return Entry[T]{}, nil
	}

	raw, err := b.c.store.Get(ctx, dateKey)
	if err != nil {
		return Entry[T]{}, fmt.Errorf("reading %s: %w", dateKey, err)
	}
	writtenAt, err := parseTime(raw)
	if err != nil {
		b.c.logger.Warn("cache timestamp unreadable", "key", dateKey, "error", err)
		return Entry[T]{}, nil
	}
	if writtenAt == nil {
		return Entry[T]{}, nil
	}

	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		b.c.logger.Warn("cache decode failed", "key", key, "error", err)
		return Entry[T]{}, nil
	}

	return Entry[T]{Data: &payload, WrittenAt: writtenAt}, nil
}

func (c *Cache) readTime(ctx context.Context, dateKey string) (*time.Time, error) {
	raw, err := c.store.Get(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	return parseTime(raw)
}

func parseTime(raw []byte) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &t, nil
}

func (c *Cache) logReadError(key string, err error) {
	if errors.Is(err, kvstore.ErrLocked) {
		c.logger.Debug("cache locked", "key", key)
		return
	}
	c.logger.Warn("cache read failed", "key", key, "error", err)
}

// Info describes one cached scope.
type Info struct {
	Entity    string
	Scope     Scope
	WrittenAt time.Time
}

// Entries lists every scope cached for entity, most recently written first.
// Unreadable timestamps are skipped.
func (c *Cache) Entries(ctx context.Context, entity string) ([]Info, error) {
	prefix := entity + "_" + dateMarker + "_"
	keys, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s entries: %w", entity, err)
	}

	infos := make([]Info, 0, len(keys))
	for _, k := range keys {
		writtenAt, err := c.readTime(ctx, k)
		if err != nil || writtenAt == nil {
			continue
		}
		infos = append(infos, Info{
			Entity:    entity,
			Scope:     decodeScope(strings.TrimPrefix(k, prefix)),
			WrittenAt: *writtenAt,
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].WrittenAt.After(infos[j].WrittenAt)
	})
	return infos, nil
}

// Latest returns the most recent write time across all scopes of entity.
func (c *Cache) Latest(ctx context.Context, entity string) *time.Time {
	infos, err := c.Entries(ctx, entity)
	if err != nil {
		c.logger.Warn("cache list failed", "entity", entity, "error", err)
		return nil
	}
	if len(infos) == 0 {
		return nil
	}
	return &infos[0].WrittenAt
}
