// Package cell implements token-guarded shared spreadsheets: a user uploads a
// tabular file and shares it through two opaque capability tokens, one for
// reading and one for modifying, with no recipient accounts involved.
package cell

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sharecell/cell/internal/cells"
	"github.com/sharecell/cell/internal/filestore"
	"github.com/sharecell/cell/internal/guard"
	"github.com/sharecell/cell/internal/keyvalue"
	"github.com/sharecell/cell/internal/metastore"
	"github.com/sharecell/cell/internal/ownerindex"
	"github.com/sharecell/cell/pkg/sheet"
)

// Re-exported error taxonomy. Callers match with errors.Is.
var (
	ErrNotFound    = sheet.ErrNotFound
	ErrParse       = sheet.ErrParse
	ErrInvalidCell = sheet.ErrInvalidCell
	ErrPersistence = sheet.ErrPersistence
	ErrIO          = sheet.ErrIO
)

// Config configures a Service instance.
type Config struct {
	// DataDir is the root directory for all durable state: the key-value
	// store and the spreadsheet files live in subdirectories of it.
	DataDir string
	// Logger is an optional logger. If nil, a default logger is used.
	Logger *logrus.Logger
}

// Service is the sheet storage and access-control layer. It owns no state of
// its own; all durable state lives in the guard, metadata, owner-index and
// file stores it composes.
//
// Read/modify operations perform no access checks themselves: the transport
// layer is expected to call CanRead or CanWrite first.
type Service struct {
	log *logrus.Logger

	kv     *keyvalue.Store
	guard  *guard.Guard
	meta   *metastore.Store
	owners *ownerindex.Index
	files  *filestore.Store
	cells  *cells.Accessor
}

// New constructs a Service rooted at config.DataDir, creating the directory
// layout and opening the key-value store.
func New(config Config) (*Service, error) {
	if config.DataDir == "" {
		return nil, errors.New("cell: data dir must not be empty")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	kv, err := keyvalue.NewStore(keyvalue.StoreConfig{
		Path:   filepath.Join(config.DataDir, "kv"),
		Logger: config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cell: opening key-value store: %w", err)
	}

	files, err := filestore.New(afero.NewOsFs(), filepath.Join(config.DataDir, "user-files"))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("cell: %w", err)
	}

	return &Service{
		log:    config.Logger,
		kv:     kv,
		guard:  guard.New(kv.Namespace("acls"), config.Logger),
		meta:   metastore.New(kv.Namespace("sheets")),
		owners: ownerindex.New(kv.Namespace("user-data")),
		files:  files,
		cells:  cells.New(files),
	}, nil
}

// Close releases the key-value store.
func (s *Service) Close() error {
	return s.kv.Close()
}

// CreateSheet registers a new sheet owned by ownerID, issues its capability
// tokens, and adopts the uploaded spreadsheet file at uploadedPath into
// storage. The file is adopted last, so a failed creation never leaves a
// sheet for which Exists reports true.
func (s *Service) CreateSheet(ownerID, title, uploadedPath string) (sheet.Record, error) {
	id := uuid.NewString()

	tokens, err := s.guard.Issue(id)
	if err != nil {
		return sheet.Record{}, fmt.Errorf("creating sheet: %w", err)
	}

	if err := s.meta.Put(id, metastore.Record{
		ReadToken:   tokens.Read,
		ModifyToken: tokens.Write,
		Title:       title,
	}); err != nil {
		return sheet.Record{}, fmt.Errorf("creating sheet: %w", err)
	}

	if err := s.owners.Append(ownerID, id); err != nil {
		return sheet.Record{}, fmt.Errorf("creating sheet: %w", err)
	}

	if err := s.files.Adopt(id, uploadedPath); err != nil {
		return sheet.Record{}, fmt.Errorf("creating sheet: %w", err)
	}

	s.log.WithFields(logrus.Fields{"sheet": id, "owner": ownerID}).Info("sheet created")

	return sheet.Record{
		ID:          id,
		ReadToken:   tokens.Read,
		ModifyToken: tokens.Write,
		Title:       title,
	}, nil
}

// ReadSheet returns the worksheet snapshot for sheetID. The caller is
// responsible for having verified read access.
func (s *Service) ReadSheet(sheetID string) (sheet.Worksheet, error) {
	return s.cells.ReadWorksheet(sheetID)
}

// ModifySheet sets one cell of sheetID to value and returns the post-write
// worksheet snapshot. The caller is responsible for having verified write
// access.
func (s *Service) ModifySheet(sheetID, cellRef, value string) (sheet.Worksheet, error) {
	return s.cells.WriteCell(sheetID, cellRef, value)
}

// SheetsForOwner returns the records of the sheets ownerID created, in
// creation order. Ids whose metadata record has gone missing are skipped;
// fields missing from a stale record default to the empty string rather than
// failing the listing.
func (s *Service) SheetsForOwner(ownerID string) ([]sheet.Record, error) {
	ids, err := s.owners.List(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing sheets: %w", err)
	}
	if len(ids) == 0 {
		return []sheet.Record{}, nil
	}

	records, err := s.meta.GetMultiple(ids)
	if err != nil {
		return nil, fmt.Errorf("listing sheets: %w", err)
	}

	result := make([]sheet.Record, 0, len(ids))
	for _, id := range ids {
		record, ok := records[id]
		if !ok {
			continue
		}
		result = append(result, sheet.Record{
			ID:          id,
			ReadToken:   record.ReadToken,
			ModifyToken: record.ModifyToken,
			Title:       record.Title,
		})
	}
	return result, nil
}

// Exists reports whether a spreadsheet file is stored for sheetID.
func (s *Service) Exists(sheetID string) bool {
	return s.files.Exists(sheetID)
}

// CanRead reports whether token grants read access to sheetID. Failure to
// determine is a denial, never an error.
func (s *Service) CanRead(sheetID, token string) bool {
	return s.guard.CanRead(sheetID, token)
}

// CanWrite reports whether token grants write access to sheetID.
func (s *Service) CanWrite(sheetID, token string) bool {
	return s.guard.CanWrite(sheetID, token)
}
