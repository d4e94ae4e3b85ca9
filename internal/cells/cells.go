// Package cells is the only component that touches the spreadsheet file
// format. It reads and mutates cells through excelize and serializes the
// active worksheet as a flat list of non-empty cells.
package cells

import (
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/sharecell/cell/internal/filestore"
	"github.com/sharecell/cell/pkg/sheet"
)

// Accessor loads sheet files on demand; it keeps no cross-call spreadsheet
// state. Writes perform a whole-file load-mutate-save, so they are serialized
// per sheet id: at most one write in flight per sheet, reads of a sheet
// excluded while it is being written, sheets independent of each other.
type Accessor struct {
	files *filestore.Store

	// One lock per sheet id ever touched, never evicted. Ids that turn out
	// not to exist still get an entry, so the map grows with distinct ids
	// seen rather than with stored sheets. A few dozen bytes per id; revisit
	// if this service ever faces unbounded id probing.
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New returns an Accessor reading files from the given store.
func New(files *filestore.Store) *Accessor {
	return &Accessor{files: files, locks: make(map[string]*sync.RWMutex)}
}

func (a *Accessor) sheetLock(sheetID string) *sync.RWMutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[sheetID]
	if !ok {
		l = &sync.RWMutex{}
		a.locks[sheetID] = l
	}
	return l
}

// ReadWorksheet decodes sheetID's file and returns a snapshot of its active
// worksheet. Each call reopens and re-decodes the file; nothing is cached
// across calls.
func (a *Accessor) ReadWorksheet(sheetID string) (sheet.Worksheet, error) {
	l := a.sheetLock(sheetID)
	l.RLock()
	defer l.RUnlock()

	f, err := a.open(sheetID)
	if err != nil {
		return sheet.Worksheet{}, err
	}
	defer f.Close()

	return a.snapshot(f)
}

// WriteCell sets the cell at ref (column letters + 1-based row, e.g. "B2") on
// the active worksheet to the literal string value, saves the whole file back,
// and returns the post-write worksheet snapshot.
func (a *Accessor) WriteCell(sheetID, ref, value string) (sheet.Worksheet, error) {
	if _, _, err := excelize.CellNameToCoordinates(ref); err != nil {
		return sheet.Worksheet{}, fmt.Errorf("%w: %q", sheet.ErrInvalidCell, ref)
	}

	l := a.sheetLock(sheetID)
	l.Lock()
	defer l.Unlock()

	f, err := a.open(sheetID)
	if err != nil {
		return sheet.Worksheet{}, err
	}
	defer f.Close()

	name := f.GetSheetName(f.GetActiveSheetIndex())
	// The value is stored as the literal string, never coerced to a number or
	// formula.
	if err := f.SetCellStr(name, ref, value); err != nil {
		return sheet.Worksheet{}, fmt.Errorf("setting cell %s: %w", ref, err)
	}
	if err := f.Save(); err != nil {
		return sheet.Worksheet{}, fmt.Errorf("%w: saving sheet %s: %v", sheet.ErrIO, sheetID, err)
	}

	return a.snapshot(f)
}

func (a *Accessor) open(sheetID string) (*excelize.File, error) {
	if !a.files.Exists(sheetID) {
		return nil, fmt.Errorf("%w: %s", sheet.ErrNotFound, sheetID)
	}
	f, err := excelize.OpenFile(a.files.PathFor(sheetID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sheet.ErrParse, sheetID, err)
	}
	return f, nil
}

// snapshot walks the active worksheet in row-major order and emits one entry
// per non-empty cell, with its formatted display value.
func (a *Accessor) snapshot(f *excelize.File) (sheet.Worksheet, error) {
	name := f.GetSheetName(f.GetActiveSheetIndex())

	rows, err := f.GetRows(name)
	if err != nil {
		return sheet.Worksheet{}, fmt.Errorf("%w: reading rows: %v", sheet.ErrParse, err)
	}

	var result []sheet.Cell
	for rowIdx, cols := range rows {
		for colIdx, val := range cols {
			if val == "" {
				continue
			}
			colName, err := excelize.ColumnNumberToName(colIdx + 1)
			if err != nil {
				return sheet.Worksheet{}, fmt.Errorf("%w: column %d: %v", sheet.ErrParse, colIdx+1, err)
			}
			result = append(result, sheet.Cell{Row: rowIdx + 1, Col: colName, Val: val})
		}
	}

	return sheet.Worksheet{Title: name, Cells: result}, nil
}
