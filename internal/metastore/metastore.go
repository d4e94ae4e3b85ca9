// Package metastore keeps the display record for each sheet: its title and
// the two tokens handed back to the creator. The guard store stays canonical
// for access decisions; this store is canonical for listing.
package metastore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sharecell/cell/internal/keyvalue"
	"github.com/sharecell/cell/pkg/sheet"
)

// ErrNotFound is returned by Get when no record exists for the sheet id.
var ErrNotFound = errors.New("metastore: no record")

// Record is the cached metadata triple for one sheet.
type Record struct {
	ReadToken   string `json:"readToken"`
	ModifyToken string `json:"modifyToken"`
	Title       string `json:"title"`
}

// Store persists records keyed by sheet id.
type Store struct {
	records *keyvalue.Namespace
}

// New returns a Store backed by the given namespace.
func New(records *keyvalue.Namespace) *Store {
	return &Store{records: records}
}

// Put upserts the record for sheetID.
func (s *Store) Put(sheetID string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", sheetID, err)
	}
	if err := s.records.Put(sheetID, data); err != nil {
		return fmt.Errorf("%w: metadata for %s: %v", sheet.ErrPersistence, sheetID, err)
	}
	return nil
}

// Get returns the record for sheetID or ErrNotFound.
func (s *Store) Get(sheetID string) (Record, error) {
	data, err := s.records.Get(sheetID)
	if err != nil {
		if errors.Is(err, keyvalue.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: metadata for %s: %v", sheet.ErrPersistence, sheetID, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decoding metadata for %s: %w", sheetID, err)
	}
	return record, nil
}

// GetMultiple returns the records for the given ids, omitting ids that have
// none. A record that fails to decode is treated as absent rather than
// failing the whole lookup.
func (s *Store) GetMultiple(sheetIDs []string) (map[string]Record, error) {
	values, err := s.records.GetMultiple(sheetIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata batch: %v", sheet.ErrPersistence, err)
	}
	records := make(map[string]Record, len(values))
	for id, data := range values {
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		records[id] = record
	}
	return records, nil
}
