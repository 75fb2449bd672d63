package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LocalCurrency is the currency assumed when no currency column is configured
const LocalCurrency = "TRY"

// DateLayout is the day-precision layout used for keys and serialization
const DateLayout = "2006-01-02"

// Side identifies which ledger a record came from
type Side string

const (
	// SideOurs is the ledger of the party running the reconciliation
	SideOurs Side = "OURS"
	// SideTheirs is the counterparty's ledger
	SideTheirs Side = "THEIRS"
)

// String returns the string representation of Side
func (s Side) String() string {
	return string(s)
}

// Role is the counterparty role declared for a signed single amount column
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// IsValid checks if the role is known
func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Mode selects the reconciliation variant
type Mode string

const (
	// ModeLedger reconciles current-account statements keyed by invoice number
	ModeLedger Mode = "ledger"
	// ModeInsurance reconciles policy registers keyed by policy and rider number
	ModeInsurance Mode = "insurance"
)

// IsValid checks if the mode is known
func (m Mode) IsValid() bool {
	return m == ModeLedger || m == ModeInsurance
}

// Stream tells whether a grouped record belongs to the document or payment pass
type Stream string

const (
	StreamDocument Stream = "document"
	StreamPayment  Stream = "payment"
)

// Field is one pass-through column carried for display
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CanonicalRecord is one normalized transaction line
type CanonicalRecord struct {
	Side Side `json:"side"`
	// Row is the zero-based position of the source row within its side.
	Row int `json:"row"`

	OccurredAt   time.Time `json:"-"`
	SettlementAt time.Time `json:"-"`

	DocumentKey       string `json:"document_key"`
	ReferenceKey      string `json:"reference_key,omitempty"`
	DisplayDocumentNo string `json:"display_document_no"`

	Currency      string          `json:"currency"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	ForeignAmount decimal.Decimal `json:"foreign_amount"`

	ExtraFields []Field `json:"extra_fields,omitempty"`
}

// Net returns debit minus credit
func (r *CanonicalRecord) Net() decimal.Decimal {
	return r.Debit.Sub(r.Credit)
}

// HasDate reports whether the issue date parsed
func (r *CanonicalRecord) HasDate() bool {
	return !r.OccurredAt.IsZero()
}

// HasSettlementDate reports whether a settlement date is available
func (r *CanonicalRecord) HasSettlementDate() bool {
	return !r.SettlementAt.IsZero()
}

// SignedForeignAmount returns the foreign magnitude carrying the direction of Net.
// A zero net counts as positive.
func (r *CanonicalRecord) SignedForeignAmount() decimal.Decimal {
	if r.Net().IsNegative() {
		return r.ForeignAmount.Neg()
	}
	return r.ForeignAmount
}

// Extra returns the value of a pass-through field by name
func (r *CanonicalRecord) Extra(name string) (string, bool) {
	for _, f := range r.ExtraFields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// String returns a string representation of the record
func (r *CanonicalRecord) String() string {
	return fmt.Sprintf("Record{%s #%d, Doc: %q, Ref: %q, Net: %s %s, Date: %s}",
		r.Side, r.Row, r.DocumentKey, r.ReferenceKey, r.Net().StringFixed(2), r.Currency, formatDate(r.OccurredAt))
}

// MarshalJSON renders dates at day precision and null when absent
func (r CanonicalRecord) MarshalJSON() ([]byte, error) {
	type Alias CanonicalRecord
	return json.Marshal(&struct {
		OccurredAt   *string `json:"occurred_at"`
		SettlementAt *string `json:"settlement_at"`
		Net          string  `json:"net"`
		Alias
	}{
		OccurredAt:   datePtr(r.OccurredAt),
		SettlementAt: datePtr(r.SettlementAt),
		Net:          r.Net().String(),
		Alias:        Alias(r),
	})
}

// GroupedRecord is one canonical record or the netted sum of several sharing a document key
type GroupedRecord struct {
	CanonicalRecord
	// Index is unique within the stream the record was grouped in.
	Index   int    `json:"index"`
	Members int    `json:"members"`
	Stream  Stream `json:"stream"`
}

// MarshalJSON flattens the embedded record next to the grouping fields
func (g GroupedRecord) MarshalJSON() ([]byte, error) {
	inner, err := json.Marshal(g.CanonicalRecord)
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(inner, &fields); err != nil {
		return nil, err
	}
	fields["index"] = g.Index
	fields["members"] = g.Members
	fields["stream"] = g.Stream
	return json.Marshal(fields)
}

// MatchStatus classifies the outcome of pairing
type MatchStatus string

const (
	StatusExactMatch       MatchStatus = "EXACT_MATCH"
	StatusAmountDifference MatchStatus = "AMOUNT_DIFFERENCE"
	StatusUnmatchedOurs    MatchStatus = "UNMATCHED_OURS"
	StatusUnmatchedTheirs  MatchStatus = "UNMATCHED_THEIRS"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// IsMatched reports whether the status pairs two records
func (s MatchStatus) IsMatched() bool {
	return s == StatusExactMatch || s == StatusAmountDifference
}

// Strategy names the rule that produced a pairing
type Strategy string

const (
	StrategyNone              Strategy = ""
	StrategyDocumentKey       Strategy = "document_key"
	StrategyAmountCurrency    Strategy = "amount_currency"
	StrategyPaymentReference  Strategy = "payment_reference"
	StrategyPaymentDateAmount Strategy = "payment_date_amount"
	StrategyPaymentDateWindow Strategy = "payment_date_window"
)

// MatchResult pairs one our-side record with at most one their-side record
type MatchResult struct {
	Status                  MatchStatus     `json:"status"`
	Strategy                Strategy        `json:"strategy,omitempty"`
	Ours                    *GroupedRecord  `json:"ours,omitempty"`
	Theirs                  *GroupedRecord  `json:"theirs,omitempty"`
	AmountDifference        decimal.Decimal `json:"amount_difference"`
	ForeignAmountDifference decimal.Decimal `json:"foreign_amount_difference"`
}

// NewPairResult builds a matched result with signed differences ours + theirs
func NewPairResult(ours, theirs *GroupedRecord, strategy Strategy, exactTolerance decimal.Decimal) *MatchResult {
	diff := ours.Net().Add(theirs.Net())
	status := StatusAmountDifference
	if diff.Abs().LessThan(exactTolerance) {
		status = StatusExactMatch
	}

	return &MatchResult{
		Status:                  status,
		Strategy:                strategy,
		Ours:                    ours,
		Theirs:                  theirs,
		AmountDifference:        diff,
		ForeignAmountDifference: ours.SignedForeignAmount().Add(theirs.SignedForeignAmount()),
	}
}

// NewUnmatchedResult wraps a leftover record of either side
func NewUnmatchedResult(record *GroupedRecord) *MatchResult {
	result := &MatchResult{Status: StatusUnmatchedOurs, Ours: record}
	if record.Side == SideTheirs {
		result = &MatchResult{Status: StatusUnmatchedTheirs, Theirs: record}
	}
	result.AmountDifference = record.Net()
	result.ForeignAmountDifference = record.SignedForeignAmount()
	return result
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(DateLayout)
}

func datePtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// FormatDate renders a nullable date at day precision, empty when absent
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
