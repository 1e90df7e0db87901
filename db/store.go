package db

import (
	"database/sql"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// Store is the embedded key-value store backing all user data. Keys live in
// named namespaces; iteration within a namespace is ordered by key.
type Store struct {
	db *sql.DB
}

// KeyValue is one entry of a namespace scan.
type KeyValue struct {
	Key   string
	Value []byte
}

// Open opens the SQLite database at the given path. The schema must already
// be migrated, see Migrate.
func Open(database string) (*Store, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &Store{db: db}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

// Put writes a value under (ns, key), replacing any previous value atomically.
func (store *Store) Put(ns string, key string, value []byte) error {
	_, err := store.db.Exec(`
		INSERT INTO kv (ns, k, v) VALUES (?, ?, ?)
		ON CONFLICT (ns, k) DO UPDATE SET v = excluded.v`,
		ns, key, value,
	)
	if err != nil {
		return fmt.Errorf("put error: %w", err)
	}
	return nil
}

// Get returns the value under (ns, key), or ok=false when the key is absent.
func (store *Store) Get(ns string, key string) ([]byte, bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("v").From("kv")
	sb.Where(sb.Equal("ns", ns), sb.Equal("k", key))

	query, args := sb.Build()

	var value []byte
	err := store.db.QueryRow(query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get error: %w", err)
	}
	return value, true, nil
}

// Has reports whether (ns, key) exists.
func (store *Store) Has(ns string, key string) (bool, error) {
	_, ok, err := store.Get(ns, key)
	return ok, err
}

// Delete removes (ns, key). Deleting an absent key is not an error.
func (store *Store) Delete(ns string, key string) error {
	delb := sqlbuilder.SQLite.NewDeleteBuilder()
	delb.DeleteFrom("kv")
	delb.Where(delb.Equal("ns", ns), delb.Equal("k", key))

	query, args := delb.Build()
	if _, err := store.db.Exec(query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// List scans a whole namespace in key order.
func (store *Store) List(ns string) ([]KeyValue, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("k", "v").From("kv")
	sb.Where(sb.Equal("ns", ns))
	sb.OrderBy("k").Asc()

	query, args := sb.Build()

	rows, err := store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var items []KeyValue
	for rows.Next() {
		var item KeyValue
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Count returns the number of keys in a namespace.
func (store *Store) Count(ns string) (int64, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("count(*)").From("kv")
	sb.Where(sb.Equal("ns", ns))

	query, args := sb.Build()

	var count int64
	if err := store.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count error: %w", err)
	}
	return count, nil
}

// NextID returns a fresh monotonically increasing id from the shared sequence.
func (store *Store) NextID() (uint64, error) {
	var seq uint64
	err := store.db.QueryRow(
		"UPDATE sequence SET seq = seq + 1 WHERE id = 0 RETURNING seq",
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sequence error: %w", err)
	}
	return seq, nil
}
