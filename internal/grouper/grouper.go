// Package grouper nets canonical records that share a document key into one
// grouped record per key.
//
// Scalar fields of a group (dates, display number, currency, reference key
// and pass-through fields) come from the first member in row order. A group
// spanning several currencies or dates therefore reports only the first
// member's values. This is a known limitation; tests pin the behavior.
package grouper

import (
	"fmt"
	"strings"

	"ledger-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// FXPolicy selects how foreign amounts of a group's members are combined
type FXPolicy string

const (
	// FXSum adds the foreign amounts of non-local members, treating them as
	// split lines of one invoice.
	FXSum FXPolicy = "sum"
	// FXMax keeps the largest foreign amount of non-local members, treating
	// them as restatements of the same amount.
	FXMax FXPolicy = "max"
)

// ParseFXPolicy converts a configuration value into an FXPolicy. Empty means FXSum.
func ParseFXPolicy(s string) (FXPolicy, error) {
	switch FXPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FXSum:
		return FXSum, nil
	case FXMax:
		return FXMax, nil
	default:
		return "", fmt.Errorf("unknown foreign amount policy %q, use 'sum' or 'max'", s)
	}
}

// Grouper nets one stream of canonical records
type Grouper struct {
	policy FXPolicy
}

// New creates a grouper applying policy to foreign amounts
func New(policy FXPolicy) *Grouper {
	if policy == "" {
		policy = FXSum
	}
	return &Grouper{policy: policy}
}

// Group nets records by document key. The output keeps the position of each
// key's first member; records without a key pass through at their own
// position. Every output record gets an index unique within the stream.
func (g *Grouper) Group(records []models.CanonicalRecord, stream models.Stream) []*models.GroupedRecord {
	out := make([]*models.GroupedRecord, 0, len(records))
	byKey := make(map[string]*models.GroupedRecord)

	for i := range records {
		record := records[i]

		if record.DocumentKey == "" {
			single := g.start(record, stream)
			single.ForeignAmount = record.ForeignAmount
			out = append(out, single)
			continue
		}

		group, ok := byKey[record.DocumentKey]
		if !ok {
			group = g.start(record, stream)
			byKey[record.DocumentKey] = group
			out = append(out, group)
			continue
		}

		group.Debit = group.Debit.Add(record.Debit)
		group.Credit = group.Credit.Add(record.Credit)
		group.ForeignAmount = g.combine(group.ForeignAmount, record)
		group.Members++
	}

	for i, group := range out {
		group.Index = i
	}
	return out
}

func (g *Grouper) start(record models.CanonicalRecord, stream models.Stream) *models.GroupedRecord {
	group := &models.GroupedRecord{
		CanonicalRecord: record,
		Members:         1,
		Stream:          stream,
	}
	group.ExtraFields = append([]models.Field(nil), record.ExtraFields...)
	group.ForeignAmount = g.combine(decimal.Zero, record)
	return group
}

func (g *Grouper) combine(acc decimal.Decimal, member models.CanonicalRecord) decimal.Decimal {
	if models.IsLocalCurrency(member.Currency) {
		return acc
	}
	if g.policy == FXMax {
		return decimal.Max(acc, member.ForeignAmount)
	}
	return acc.Add(member.ForeignAmount)
}

// Group is a convenience for New(policy).Group(records, stream)
func Group(records []models.CanonicalRecord, stream models.Stream, policy FXPolicy) []*models.GroupedRecord {
	return New(policy).Group(records, stream)
}

// Flatten returns the canonical view of grouped records, in order
func Flatten(groups []*models.GroupedRecord) []models.CanonicalRecord {
	out := make([]models.CanonicalRecord, len(groups))
	for i, g := range groups {
		out[i] = g.CanonicalRecord
	}
	return out
}
