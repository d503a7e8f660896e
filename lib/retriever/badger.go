package retriever

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BadgerStore keeps saved copies in a badger database, entries expire after
// ttl when it is non-zero.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadgerStore opens (or creates) a store at path, an empty path keeps
// everything in memory.
func OpenBadgerStore(path string, ttl time.Duration) (BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return BadgerStore{}, err
	}
	return BadgerStore{db: db, ttl: ttl}, nil
}

func (s BadgerStore) Close() error {
	return s.db.Close()
}

func (s BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := tracer.Start(ctx, "cache:get")
	defer span.End()
	span.SetAttributes(attribute.String("custom.cache_key", key))

	var out []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotSaved
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read item from badger")
		return nil, err
	}
	return out, nil
}

func (s BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	_, span := tracer.Start(ctx, "cache:set")
	defer span.End()
	span.SetAttributes(attribute.String("custom.cache_key", key))

	err := s.db.Update(func(tx *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return tx.SetEntry(entry)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set badger item")
		return err
	}
	return nil
}
