// Package keyvalue wraps a badger database behind small namespaced stores.
// The guard, metadata and owner-index components each get their own namespace
// so their keys cannot collide.
package keyvalue

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get when the key has no stored value.
var ErrNotFound = errors.New("keyvalue: key not found")

// StoreConfig configures the backing badger instance.
type StoreConfig struct {
	// Path is the directory badger stores its files in.
	Path string
	// Logger receives store-level diagnostics. If nil, a default logger is used.
	Logger *logrus.Logger
}

// Store owns one badger database shared by all namespaces derived from it.
type Store struct {
	db  *badger.DB
	log *logrus.Logger
}

// NewStore opens (or creates) the badger database at config.Path.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("keyvalue: store path must not be empty")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", config.Path, err)
	}

	return &Store{db: db, log: config.Logger}, nil
}

// Namespace returns a view of the store whose keys are prefixed with name.
// Namespaces derived with different names never observe each other's keys.
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{store: s, prefix: name + "/"}
}

// Close syncs and closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Sync(); err != nil {
		s.log.WithError(err).Error("syncing badger before close")
	}
	return s.db.Close()
}

// Namespace is a prefixed key-value view on a Store.
type Namespace struct {
	store  *Store
	prefix string
}

func (n *Namespace) keyFor(key string) []byte {
	return []byte(n.prefix + key)
}

// Put stores value under key, overwriting any previous value.
func (n *Namespace) Put(key string, value []byte) error {
	err := n.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(n.keyFor(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (n *Namespace) Get(key string) ([]byte, error) {
	var value []byte
	err := n.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(n.keyFor(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, nil
}

// GetMultiple returns the stored values for the given keys. Keys without a
// value are omitted from the result; only I/O failures are reported as errors.
func (n *Namespace) GetMultiple(keys []string) (map[string][]byte, error) {
	values := make(map[string][]byte, len(keys))
	err := n.store.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(n.keyFor(key))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %d keys: %w", len(keys), err)
	}
	return values, nil
}
