// Package preferences remembers the column mapping last used for a file name,
// so the CLI and HTTP surface can pre-fill a SideConfig for a file seen before.
// The reconciliation core never reads it.
package preferences

import (
	"context"
	"path"
	"strings"
	"time"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
)

// Preference is the column mapping remembered for one file name
type Preference struct {
	FileName  string             `json:"file_name"`
	Side      models.Side        `json:"side,omitempty"`
	Config    parsers.SideConfig `json:"config"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store persists preferences keyed by file name
type Store interface {
	// Get returns the preference for fileName; ok is false when none is stored.
	Get(ctx context.Context, fileName string) (pref *Preference, ok bool, err error)
	Save(ctx context.Context, pref *Preference) error
	Delete(ctx context.Context, fileName string) error
	List(ctx context.Context) ([]*Preference, error)
	Close() error
}

// Key normalizes a file name: directories are dropped and case is folded,
// so "Exports/CARI.xlsx" and "cari.xlsx" share a preference.
func Key(fileName string) string {
	name := strings.TrimSpace(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "" {
		return ""
	}
	return strings.ToLower(path.Base(name))
}
