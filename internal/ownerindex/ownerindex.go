// Package ownerindex tracks, per owner, the ordered list of sheet ids that
// owner created. The index is append-only: no operation in the service ever
// removes an entry.
package ownerindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sharecell/cell/internal/keyvalue"
	"github.com/sharecell/cell/pkg/sheet"
)

// Index stores one ordered sheet-id list per owner id.
type Index struct {
	entries *keyvalue.Namespace

	// Append is a read-modify-write of the whole list; concurrent appends for
	// the same owner would lose entries without per-owner serialization.
	// One mutex per owner id ever appended to, never evicted; the map grows
	// with the number of distinct owners.
	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// New returns an Index backed by the given namespace.
func New(entries *keyvalue.Namespace) *Index {
	return &Index{entries: entries, owners: make(map[string]*sync.Mutex)}
}

func (ix *Index) ownerLock(ownerID string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.owners[ownerID]
	if !ok {
		l = &sync.Mutex{}
		ix.owners[ownerID] = l
	}
	return l
}

// Append adds sheetID to the end of ownerID's list, creating the list if the
// owner is unknown. Appends for the same owner are serialized.
func (ix *Index) Append(ownerID, sheetID string) error {
	l := ix.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	ids, err := ix.load(ownerID)
	if err != nil {
		return err
	}
	ids = append(ids, sheetID)

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding index for %s: %w", ownerID, err)
	}
	if err := ix.entries.Put(ownerID, data); err != nil {
		return fmt.Errorf("%w: owner index for %s: %v", sheet.ErrPersistence, ownerID, err)
	}
	return nil
}

// List returns ownerID's sheet ids in insertion order. An unknown owner has
// an empty list, not an error.
func (ix *Index) List(ownerID string) ([]string, error) {
	return ix.load(ownerID)
}

func (ix *Index) load(ownerID string) ([]string, error) {
	data, err := ix.entries.Get(ownerID)
	if err != nil {
		if errors.Is(err, keyvalue.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: owner index for %s: %v", sheet.ErrPersistence, ownerID, err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decoding index for %s: %w", ownerID, err)
	}
	return ids, nil
}
