// Package ledger defines the entity ledger that MentorGraph persists every record to,
// together with the client that signs writes and an in-process store.
//
// An entity is an attribute-tagged, TTL-bound record. Attributes are the only
// queryable part; the payload is opaque bytes (JSON for every MentorGraph type).
package ledger

import (
	"context"
	"errors"
	"time"
)

// TypeAttribute is the attribute every query partitions on.
const TypeAttribute = "type"

const defaultPageSize = 100

var (
	// ErrNotFound is returned by Get when the key is unknown or expired.
	ErrNotFound = errors.New("ledger: entity not found")
	// ErrDuplicateKey is returned by Put when the key already exists.
	ErrDuplicateKey = errors.New("ledger: duplicate entity key")
	// ErrInvalidQuery is returned when a query has no type filter or a bad cursor.
	ErrInvalidQuery = errors.New("ledger: invalid query")
)

// Attribute is a single queryable key/value pair attached to an entity.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entity is one stored ledger record.
type Entity struct {
	Key        string      `json:"key"`
	Owner      string      `json:"owner"`
	Attributes []Attribute `json:"attributes"`
	Payload    []byte      `json:"payload"`
	CreatedAt  time.Time   `json:"createdAt"`
	ExpiresAt  time.Time   `json:"expiresAt"`
}

// Attr returns the value of the first attribute named key, or "".
func (e Entity) Attr(key string) string {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Type returns the entity's type attribute.
func (e Entity) Type() string {
	return e.Attr(TypeAttribute)
}

// Expired reports whether the entity is no longer visible at now.
func (e Entity) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Matches reports whether every filter is present on the entity.
func (e Entity) Matches(filters []Attribute) bool {
	for _, f := range filters {
		if e.Attr(f.Key) != f.Value {
			return false
		}
	}
	return true
}

// Query selects entities whose attributes equal every filter.
// A type filter is mandatory.
type Query struct {
	Filters []Attribute
	Limit   int
	Cursor  string
}

// TypeFilter returns the value of the query's type filter.
func (q Query) TypeFilter() (string, bool) {
	for _, f := range q.Filters {
		if f.Key == TypeAttribute && f.Value != "" {
			return f.Value, true
		}
	}
	return "", false
}

// PageSize returns the effective page size for q.
func (q Query) PageSize() int {
	if q.Limit <= 0 {
		return defaultPageSize
	}
	return q.Limit
}

// Page is one page of query results ordered by CreatedAt, then Key.
type Page struct {
	Entities   []Entity
	NextCursor string
}

// Receipt identifies a freshly written entity.
type Receipt struct {
	EntityKey string `json:"entityKey"`
	TxHash    string `json:"txHash"`
}

// Store persists entities. Implementations hide expired entities from Get and Query.
type Store interface {
	Put(ctx context.Context, e Entity) error
	Get(ctx context.Context, key string) (Entity, error)
	Query(ctx context.Context, q Query) (Page, error)
}

// Sweeper is implemented by stores without native expiry.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
