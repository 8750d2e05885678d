package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/changyunjeff/campus-mp/internal/store"
)

// Cache is a store.Backend over a cache_entries table.
type Cache struct {
	db *sql.DB
}

func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// OpenCache opens and migrates the database at dsn.
func OpenCache(dsn string) (*Cache, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewCache(db), nil
}

var _ store.Backend = (*Cache)(nil)

func (c *Cache) GetAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, value FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan cache: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (c *Cache) SetAll(ctx context.Context, namespace string, entries map[string][]byte) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range entries {
		if _, err := stmt.ExecContext(ctx, namespace, key, value); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (c *Cache) Close() error { return c.db.Close() }
