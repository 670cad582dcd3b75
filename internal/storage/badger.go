package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig selects where the embedded store lives.
type BadgerConfig struct {
	Path     string
	InMemory bool
	Capacity int64
}

// Badger persists entries in an embedded badger database so cached advice survives restarts.
type Badger struct {
	db     *badger.DB
	budget *budget

	// writes serializes Set and Delete so capacity checks see a stable total.
	writes sync.Mutex
}

// OpenBadger opens (or creates) the database and seeds the capacity accounting from
// whatever it already holds.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("storage: badger path required")
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}
	store := &Badger{db: db, budget: newBudget(cfg.Capacity)}
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				store.budget.track(string(item.Key()), string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: scan badger: %w", err)
	}
	return store, nil
}

func (b *Badger) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: badger get: %w", err)
	}
	return string(value), true, nil
}

func (b *Badger) Set(_ context.Context, key, value string) error {
	b.writes.Lock()
	defer b.writes.Unlock()
	commit, ok := b.budget.reserve(key, value)
	if !ok {
		return ErrQuotaExceeded
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) || errors.Is(err, syscall.ENOSPC) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("storage: badger set: %w", err)
	}
	commit()
	return nil
}

func (b *Badger) Delete(_ context.Context, key string) error {
	b.writes.Lock()
	defer b.writes.Unlock()
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: badger delete: %w", err)
	}
	b.budget.release(key)
	return nil
}

func (b *Badger) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: badger keys: %w", err)
	}
	return keys, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
