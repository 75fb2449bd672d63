package normalizer

import (
	"strings"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"

	"golang.org/x/text/cases"
)

// TypeFilter decides which rows leave the main stream for the payment stream
type TypeFilter struct {
	values map[string]bool
	mode   parsers.FilterMode
}

// NewTypeFilter builds a filter from configured values. Comparison is
// trimmed and case-insensitive.
func NewTypeFilter(values []string, mode parsers.FilterMode) *TypeFilter {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[foldType(v)] = true
	}
	if mode == "" {
		mode = parsers.FilterExclude
	}
	return &TypeFilter{values: set, mode: mode}
}

// Divert reports whether a row with this type value belongs to the payment stream
func (f *TypeFilter) Divert(value string) bool {
	listed := f.values[foldType(value)]
	if f.mode == parsers.FilterInclude {
		return !listed
	}
	return listed
}

func foldType(v string) string {
	return cases.Fold().String(strings.TrimSpace(v))
}

// SplitByDocumentKey separates records that carry a document key from those
// that do not, keeping the original order in both.
func SplitByDocumentKey(records []models.CanonicalRecord) (keyed, keyless []models.CanonicalRecord) {
	for _, r := range records {
		if r.DocumentKey != "" {
			keyed = append(keyed, r)
		} else {
			keyless = append(keyless, r)
		}
	}
	return keyed, keyless
}
