// Package sheet holds the domain types and error taxonomy shared by the
// storage components and the service facade.
package sheet

import "errors"

var (
	// ErrNotFound reports that no spreadsheet file exists for the sheet id.
	ErrNotFound = errors.New("sheet: not found")
	// ErrParse reports that the stored bytes could not be decoded as a spreadsheet.
	ErrParse = errors.New("sheet: file is not a valid spreadsheet")
	// ErrInvalidCell reports a malformed cell reference (expected e.g. "B2").
	ErrInvalidCell = errors.New("sheet: invalid cell reference")
	// ErrPersistence reports that a guard or cache record could not be written
	// or read back durably.
	ErrPersistence = errors.New("sheet: persistence failure")
	// ErrIO reports a failure writing the spreadsheet file itself.
	ErrIO = errors.New("sheet: file write failure")
)

// Record is the public description of one sheet: its id, the two capability
// tokens, and the display title. Possession of a token is the only credential;
// the record carries no user identity.
type Record struct {
	ID          string `json:"sid"`
	ReadToken   string `json:"readToken"`
	ModifyToken string `json:"modifyToken"`
	Title       string `json:"title"`
}

// Cell is one non-empty cell of a worksheet. Col uses spreadsheet column
// letters ("A", "B", ..., "AA"), Row is 1-based. Val is the formatted display
// value, not the raw stored form.
type Cell struct {
	Row int    `json:"row"`
	Col string `json:"col"`
	Val string `json:"val"`
}

// Worksheet is a snapshot of the active worksheet of a sheet file: its title
// and every non-empty cell in row-major order.
type Worksheet struct {
	Title string `json:"title"`
	Cells []Cell `json:"cells"`
}
