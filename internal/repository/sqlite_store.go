package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"mentorgraph/internal/ledger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	key        TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	type       TEXT NOT NULL,
	payload    BLOB,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_type_created ON entities(type, created_at, key);
CREATE INDEX IF NOT EXISTS idx_entities_expires ON entities(expires_at);

CREATE TABLE IF NOT EXISTS entity_attributes (
	entity_key TEXT NOT NULL REFERENCES entities(key) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (entity_key, position)
);
CREATE INDEX IF NOT EXISTS idx_entity_attributes_lookup ON entity_attributes(name, value);
`

// SQLiteStore keeps ledger entities in a local SQLite file. Attributes live in
// their own table so equality filters become EXISTS joins.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ledger.Store   = (*SQLiteStore)(nil)
	_ ledger.Sweeper = (*SQLiteStore)(nil)
)

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put inserts the entity row and its attributes in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, e ledger.Entity) error {
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("repository: Put: key is required")
	}
	if e.Type() == "" {
		return errors.New("repository: Put: type attribute is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: Put begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO entities (key, owner, type, payload, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.Key, e.Owner, e.Type(), e.Payload, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("repository: Put %s: %w", e.Key, ledger.ErrDuplicateKey)
		}
		return fmt.Errorf("repository: Put: %w", err)
	}

	for i, a := range e.Attributes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO entity_attributes (entity_key, position, name, value) VALUES (?, ?, ?, ?)",
			e.Key, i, a.Key, a.Value,
		); err != nil {
			return fmt.Errorf("repository: Put attribute %q: %w", a.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: Put commit: %w", err)
	}
	return nil
}

// Get reads one live entity by key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (ledger.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT key, owner, payload, created_at, expires_at FROM entities WHERE key = ? AND expires_at > ?",
		key, s.now().UnixNano(),
	)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entity{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("repository: Get: %w", err)
	}

	attrs, err := s.loadAttributes(ctx, []string{e.Key})
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("repository: Get: %w", err)
	}
	e.Attributes = attrs[e.Key]
	return e, nil
}

// Query returns one page of live entities matching every filter.
func (s *SQLiteStore) Query(ctx context.Context, q ledger.Query) (ledger.Page, error) {
	typ, ok := q.TypeFilter()
	if !ok {
		return ledger.Page{}, fmt.Errorf("repository: Query: %w: type filter is required", ledger.ErrInvalidQuery)
	}

	var (
		sb   strings.Builder
		args = []any{typ, s.now().UnixNano()}
	)
	sb.WriteString("SELECT e.key, e.owner, e.payload, e.created_at, e.expires_at FROM entities e WHERE e.type = ? AND e.expires_at > ?")
	for _, f := range q.Filters {
		if f.Key == ledger.TypeAttribute {
			continue
		}
		sb.WriteString(" AND EXISTS (SELECT 1 FROM entity_attributes a WHERE a.entity_key = e.key AND a.name = ? AND a.value = ?)")
		args = append(args, f.Key, f.Value)
	}
	if q.Cursor != "" {
		ts, key, err := ledger.DecodeCursor(q.Cursor)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("repository: Query: %w", err)
		}
		sb.WriteString(" AND (e.created_at > ? OR (e.created_at = ? AND e.key > ?))")
		args = append(args, ts.UnixNano(), ts.UnixNano(), key)
	}
	size := q.PageSize()
	sb.WriteString(" ORDER BY e.created_at, e.key LIMIT ?")
	args = append(args, size+1)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return ledger.Page{}, fmt.Errorf("repository: Query: %w", err)
	}
	defer rows.Close()

	entities := make([]ledger.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("repository: Query scan: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return ledger.Page{}, fmt.Errorf("repository: Query rows: %w", err)
	}

	page := ledger.Page{Entities: entities}
	if len(entities) > size {
		page.Entities = entities[:size]
		page.NextCursor = ledger.EncodeCursor(page.Entities[size-1])
	}

	keys := make([]string, 0, len(page.Entities))
	for _, e := range page.Entities {
		keys = append(keys, e.Key)
	}
	attrs, err := s.loadAttributes(ctx, keys)
	if err != nil {
		return ledger.Page{}, fmt.Errorf("repository: Query: %w", err)
	}
	for i := range page.Entities {
		page.Entities[i].Attributes = attrs[page.Entities[i].Key]
	}
	return page, nil
}

// DeleteExpired removes entities expired at now; attributes cascade.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE expires_at <= ?", now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("repository: DeleteExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: DeleteExpired rows: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) loadAttributes(ctx context.Context, keys []string) (map[string][]ledger.Attribute, error) {
	out := make(map[string][]ledger.Attribute, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, k)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT entity_key, name, value FROM entity_attributes WHERE entity_key IN ("+placeholders+") ORDER BY entity_key, position",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var a ledger.Attribute
		if err := rows.Scan(&key, &a.Key, &a.Value); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		out[key] = append(out[key], a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (ledger.Entity, error) {
	var (
		e                ledger.Entity
		created, expires int64
	)
	if err := row.Scan(&e.Key, &e.Owner, &e.Payload, &created, &expires); err != nil {
		return ledger.Entity{}, err
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	e.ExpiresAt = time.Unix(0, expires).UTC()
	return e, nil
}
