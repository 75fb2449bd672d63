package matcher

import (
	"ledger-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// amountKey identifies records of the same rounded absolute net in one currency
type amountKey struct {
	Amount   string
	Currency string
}

// dateAmountKey adds the settlement day to amountKey
type dateAmountKey struct {
	Date     string
	Amount   string
	Currency string
}

// CandidateIndex provides lookups over one side's grouped records. It is
// built once per pass and never modified afterwards; consumption is tracked
// separately by ConsumedSet.
type CandidateIndex struct {
	precision int32

	// byDocument maps document keys to records in insertion order
	byDocument map[string][]*models.GroupedRecord

	// byAmount maps (rounded |net|, currency) to records
	byAmount map[amountKey][]*models.GroupedRecord

	// byReference maps payment reference keys to records
	byReference map[string][]*models.GroupedRecord

	// byDateAmount maps (settlement day, rounded |net|, currency) to records
	byDateAmount map[dateAmountKey][]*models.GroupedRecord

	all []*models.GroupedRecord
}

// IndexStats provides statistics about an index
type IndexStats struct {
	Records        int
	DocumentKeys   int
	AmountKeys     int
	ReferenceKeys  int
	DateAmountKeys int
}

// NewCandidateIndex creates an index over records. precision is the number
// of decimals amounts are rounded to before keying.
func NewCandidateIndex(records []*models.GroupedRecord, precision int32) *CandidateIndex {
	index := &CandidateIndex{
		precision:    precision,
		byDocument:   make(map[string][]*models.GroupedRecord),
		byAmount:     make(map[amountKey][]*models.GroupedRecord),
		byReference:  make(map[string][]*models.GroupedRecord),
		byDateAmount: make(map[dateAmountKey][]*models.GroupedRecord),
		all:          records,
	}

	index.buildIndexes()
	return index
}

// buildIndexes constructs all internal indexes
func (ci *CandidateIndex) buildIndexes() {
	for _, r := range ci.all {
		if r.DocumentKey != "" {
			ci.byDocument[r.DocumentKey] = append(ci.byDocument[r.DocumentKey], r)
		}

		if r.ReferenceKey != "" {
			ci.byReference[r.ReferenceKey] = append(ci.byReference[r.ReferenceKey], r)
		}

		ak := ci.amountKey(r)
		ci.byAmount[ak] = append(ci.byAmount[ak], r)

		if dk, ok := ci.dateAmountKey(r); ok {
			ci.byDateAmount[dk] = append(ci.byDateAmount[dk], r)
		}
	}
}

func (ci *CandidateIndex) roundedAbs(net decimal.Decimal) decimal.Decimal {
	return net.Abs().Round(ci.precision)
}

func (ci *CandidateIndex) amountKey(r *models.GroupedRecord) amountKey {
	return amountKey{
		Amount:   ci.roundedAbs(r.Net()).StringFixed(ci.precision),
		Currency: r.Currency,
	}
}

func (ci *CandidateIndex) dateAmountKey(r *models.GroupedRecord) (dateAmountKey, bool) {
	if !r.HasSettlementDate() {
		return dateAmountKey{}, false
	}
	ak := ci.amountKey(r)
	return dateAmountKey{
		Date:     r.SettlementAt.Format(models.DateLayout),
		Amount:   ak.Amount,
		Currency: ak.Currency,
	}, true
}

// GetByDocument returns records sharing a document key
func (ci *CandidateIndex) GetByDocument(key string) []*models.GroupedRecord {
	if key == "" {
		return nil
	}
	return ci.byDocument[key]
}

// GetByAmount returns records with the same rounded absolute net and currency as r
func (ci *CandidateIndex) GetByAmount(r *models.GroupedRecord) []*models.GroupedRecord {
	return ci.byAmount[ci.amountKey(r)]
}

// GetByReference returns records sharing a payment reference key
func (ci *CandidateIndex) GetByReference(key string) []*models.GroupedRecord {
	if key == "" {
		return nil
	}
	return ci.byReference[key]
}

// GetByDateAmount returns records with the same settlement day, rounded
// absolute net and currency as r
func (ci *CandidateIndex) GetByDateAmount(r *models.GroupedRecord) []*models.GroupedRecord {
	key, ok := ci.dateAmountKey(r)
	if !ok {
		return nil
	}
	return ci.byDateAmount[key]
}

// IsMirrored reports whether two records offset each other once rounded:
// equal magnitude, opposite direction.
func (ci *CandidateIndex) IsMirrored(ours, theirs *models.GroupedRecord) bool {
	return ours.Net().Round(ci.precision).Add(theirs.Net().Round(ci.precision)).IsZero()
}

// Remaining returns indexed records not taken in consumed, in insertion order
func (ci *CandidateIndex) Remaining(consumed *ConsumedSet) []*models.GroupedRecord {
	var out []*models.GroupedRecord
	for _, r := range ci.all {
		if !consumed.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// GetIndexStats returns statistics about the index
func (ci *CandidateIndex) GetIndexStats() IndexStats {
	return IndexStats{
		Records:        len(ci.all),
		DocumentKeys:   len(ci.byDocument),
		AmountKeys:     len(ci.byAmount),
		ReferenceKeys:  len(ci.byReference),
		DateAmountKeys: len(ci.byDateAmount),
	}
}

// ConsumedSet tracks the their-side records already paired within one pass.
// Records are identified by pointer, so callers may reuse Index values.
type ConsumedSet struct {
	taken map[*models.GroupedRecord]struct{}
}

// NewConsumedSet returns an empty set
func NewConsumedSet() *ConsumedSet {
	return &ConsumedSet{taken: make(map[*models.GroupedRecord]struct{})}
}

// Has reports whether r was already taken
func (cs *ConsumedSet) Has(r *models.GroupedRecord) bool {
	_, ok := cs.taken[r]
	return ok
}

// Take marks r as consumed. It returns false if r was already taken.
func (cs *ConsumedSet) Take(r *models.GroupedRecord) bool {
	if cs.Has(r) {
		return false
	}
	cs.taken[r] = struct{}{}
	return true
}

// firstAvailable returns the first candidate not yet consumed that satisfies keep
func firstAvailable(candidates []*models.GroupedRecord, consumed *ConsumedSet, keep func(*models.GroupedRecord) bool) *models.GroupedRecord {
	for _, c := range candidates {
		if consumed.Has(c) {
			continue
		}
		if keep == nil || keep(c) {
			return c
		}
	}
	return nil
}
