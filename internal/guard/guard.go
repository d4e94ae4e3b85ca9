// Package guard issues and verifies the capability tokens that gate sheet
// access. One guard record is kept per (sheet id, access level); its presence
// and exact value decide whether a presented token grants that level.
package guard

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sharecell/cell/internal/keyvalue"
	"github.com/sharecell/cell/pkg/sheet"
)

// Access levels. The values double as the guard record key suffix.
const (
	LevelRead  = "read"
	LevelWrite = "modify"
)

const tokenBytes = 16

// Tokens is the pair of independent capability tokens issued for one sheet.
type Tokens struct {
	Read  string
	Write string
}

// Guard verifies presented tokens against the records in its store.
type Guard struct {
	records *keyvalue.Namespace
	log     *logrus.Logger
}

// New returns a Guard keeping its records in the given namespace.
func New(records *keyvalue.Namespace, log *logrus.Logger) *Guard {
	if log == nil {
		log = logrus.New()
	}
	return &Guard{records: records, log: log}
}

func recordKey(sheetID, level string) string {
	return sheetID + "." + level
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue generates two independent random tokens for sheetID and persists one
// guard record per access level. Both records must be written for the sheet to
// count as guarded; if either write fails the whole issuance fails and the
// returned error wraps sheet.ErrPersistence.
func (g *Guard) Issue(sheetID string) (Tokens, error) {
	readToken, err := newToken()
	if err != nil {
		return Tokens{}, err
	}
	writeToken, err := newToken()
	if err != nil {
		return Tokens{}, err
	}

	if err := g.records.Put(recordKey(sheetID, LevelWrite), []byte(writeToken)); err != nil {
		return Tokens{}, fmt.Errorf("%w: write guard for %s: %v", sheet.ErrPersistence, sheetID, err)
	}
	if err := g.records.Put(recordKey(sheetID, LevelRead), []byte(readToken)); err != nil {
		// The write guard is already durable, the read guard is not: the sheet
		// is only partially guarded and the issuance as a whole has failed.
		g.log.WithError(err).WithField("sheet", sheetID).
			Error("read guard write failed after write guard succeeded")
		return Tokens{}, fmt.Errorf("%w: read guard for %s: %v", sheet.ErrPersistence, sheetID, err)
	}

	return Tokens{Read: readToken, Write: writeToken}, nil
}

// CanRead reports whether token grants read access to sheetID.
func (g *Guard) CanRead(sheetID, token string) bool {
	return g.hasAccess(sheetID, LevelRead, token)
}

// CanWrite reports whether token grants write access to sheetID.
func (g *Guard) CanWrite(sheetID, token string) bool {
	return g.hasAccess(sheetID, LevelWrite, token)
}

// hasAccess denies by default: a missing record, a store failure and a token
// mismatch all answer false. The causes are still distinguished in the log.
func (g *Guard) hasAccess(sheetID, level, token string) bool {
	stored, err := g.records.Get(recordKey(sheetID, level))
	if err != nil {
		if errors.Is(err, keyvalue.ErrNotFound) {
			g.log.WithFields(logrus.Fields{"sheet": sheetID, "level": level}).
				Debug("no guard record")
		} else {
			g.log.WithError(err).WithFields(logrus.Fields{"sheet": sheetID, "level": level}).
				Warn("guard record unreadable, denying access")
		}
		return false
	}
	return subtle.ConstantTimeCompare(stored, []byte(token)) == 1
}
