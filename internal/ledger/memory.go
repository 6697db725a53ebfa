package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]Entity
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]Entity),
		now:      time.Now,
	}
}

func (m *MemoryStore) Put(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("ledger: Put: key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[e.Key]; ok {
		return fmt.Errorf("ledger: Put %s: %w", e.Key, ErrDuplicateKey)
	}
	m.entities[e.Key] = cloneEntity(e)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[key]
	if !ok || e.Expired(m.now()) {
		return Entity{}, ErrNotFound
	}
	return cloneEntity(e), nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if _, ok := q.TypeFilter(); !ok {
		return Page{}, fmt.Errorf("%w: type filter is required", ErrInvalidQuery)
	}

	var (
		cursorTS  time.Time
		cursorKey string
	)
	if q.Cursor != "" {
		var err error
		cursorTS, cursorKey, err = DecodeCursor(q.Cursor)
		if err != nil {
			return Page{}, err
		}
	}

	m.mu.RLock()
	now := m.now()
	matched := make([]Entity, 0)
	for _, e := range m.entities {
		if e.Expired(now) || !e.Matches(q.Filters) {
			continue
		}
		if q.Cursor != "" && !after(e, cursorTS, cursorKey) {
			continue
		}
		matched = append(matched, cloneEntity(e))
	}
	m.mu.RUnlock()

	sortEntities(matched)

	size := q.PageSize()
	page := Page{Entities: matched}
	if len(matched) > size {
		page.Entities = matched[:size]
		page.NextCursor = EncodeCursor(page.Entities[size-1])
	}
	return page, nil
}

// DeleteExpired drops every entity expired at now.
func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, e := range m.entities {
		if e.Expired(now) {
			delete(m.entities, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entities, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

func sortEntities(es []Entity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].Key < es[j].Key
		}
		return es[i].CreatedAt.Before(es[j].CreatedAt)
	})
}

func cloneEntity(e Entity) Entity {
	out := e
	out.Attributes = append([]Attribute(nil), e.Attributes...)
	out.Payload = append([]byte(nil), e.Payload...)
	return out
}
