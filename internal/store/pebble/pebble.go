// Package pebble is a store.Backend on an embedded Pebble LSM.
// Keys are laid out as "<namespace>/<key>".
package pebble

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/store"
)

type Cache struct {
	db     *pebble.DB
	logger *zap.Logger
}

var _ store.Backend = (*Cache)(nil)

// Open opens (creating if needed) the Pebble directory at path.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	logger.Info("pebble_opened", zap.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

func prefix(namespace string) []byte { return []byte(namespace + "/") }

// upperBound is the smallest key greater than every key in the namespace.
func upperBound(namespace string) []byte { return []byte(namespace + "0") }

func (c *Cache) GetAll(_ context.Context, namespace string) (map[string][]byte, error) {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix(namespace),
		UpperBound: upperBound(namespace),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	p := prefix(namespace)
	out := make(map[string][]byte)
	for iter.First(); iter.Valid(); iter.Next() {
		k := bytes.TrimPrefix(iter.Key(), p)
		out[string(k)] = append([]byte(nil), iter.Value()...)
	}
	return out, iter.Error()
}

func (c *Cache) SetAll(_ context.Context, namespace string, entries map[string][]byte) error {
	b := c.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(prefix(namespace), upperBound(namespace), nil); err != nil {
		return fmt.Errorf("pebble clear %s: %w", namespace, err)
	}
	for k, v := range entries {
		if err := b.Set(append(prefix(namespace), k...), v, nil); err != nil {
			return fmt.Errorf("pebble set %s: %w", k, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close pebble: %w", err)
	}
	c.logger.Info("pebble_closed")
	return nil
}
