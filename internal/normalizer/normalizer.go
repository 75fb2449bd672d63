// Package normalizer converts a raw side table plus its column mapping into
// canonical records. Per-row problems never fail a run: unreadable dates
// become null, non-numeric amounts become zero and identifiers without digits
// give an empty document key.
package normalizer

import (
	"fmt"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Result holds the normalized streams of one side
type Result struct {
	Side                models.Side
	Main                []models.CanonicalRecord
	Payments            []models.CanonicalRecord
	ForeignCurrencyUsed bool
	Stats               Stats
}

// All returns main and payment records together in source row order
func (r *Result) All() []models.CanonicalRecord {
	out := make([]models.CanonicalRecord, 0, len(r.Main)+len(r.Payments))
	i, j := 0, 0
	for i < len(r.Main) || j < len(r.Payments) {
		if j >= len(r.Payments) || (i < len(r.Main) && r.Main[i].Row < r.Payments[j].Row) {
			out = append(out, r.Main[i])
			i++
		} else {
			out = append(out, r.Payments[j])
			j++
		}
	}
	return out
}

// Stats counts the data-quality anomalies absorbed while normalizing
type Stats struct {
	Rows            int `json:"rows"`
	Diverted        int `json:"diverted"`
	NullDates       int `json:"null_dates"`
	ZeroAmounts     int `json:"zero_amounts"`
	EmptyKeys       int `json:"empty_document_keys"`
	ReferenceKeys   int `json:"reference_keys"`
	ForeignCurrency int `json:"foreign_currency_rows"`
}

// String returns a human-readable summary
func (s Stats) String() string {
	return fmt.Sprintf("%d rows (%d diverted, %d without date, %d zero amount, %d without document key)",
		s.Rows, s.Diverted, s.NullDates, s.ZeroAmounts, s.EmptyKeys)
}

// columns is the mapping resolved to column indexes; -1 means not configured
type columns struct {
	date, document, rider               int
	amount, debit, credit               int
	currency, foreignAmount, settlement int
	reference, kind                     int
	passthrough                         []int
	passthroughNames                    []string
}

// Normalizer turns one side's table into canonical records
type Normalizer struct {
	config *parsers.SideConfig
	side   models.Side
	logger logger.Logger
}

// New creates a normalizer for one side. The configuration must already
// have passed SideConfig.Validate.
func New(config *parsers.SideConfig, side models.Side) *Normalizer {
	return &Normalizer{
		config: config,
		side:   side,
		logger: logger.GetGlobalLogger().WithComponent("normalizer").WithField("side", side),
	}
}

// Normalize converts every row of table. The only error is a configured
// column the table does not have; all such columns are reported together.
func (n *Normalizer) Normalize(table *parsers.Table) (*Result, error) {
	if err := n.config.ValidateAgainst(string(n.side), table); err != nil {
		return nil, errors.CombineMappingErrors(err)
	}

	cols := n.resolve(table)
	var filter *TypeFilter
	if n.config.HasTypeFilter() {
		filter = NewTypeFilter(n.config.TypeValues, n.config.TypeFilterMode)
	}

	result := &Result{
		Side:                n.side,
		ForeignCurrencyUsed: n.config.UsesForeignCurrency(),
	}

	for i := range table.Rows {
		diverted := filter != nil && filter.Divert(models.CellString(table.Value(i, cols.kind)))

		record := n.normalizeRow(table, i, cols)
		n.count(&result.Stats, &record)

		if diverted {
			result.Stats.Diverted++
			result.Payments = append(result.Payments, record)
		} else {
			result.Main = append(result.Main, record)
		}
	}

	n.logger.WithFields(logger.Fields{
		"table":    table.Name,
		"main":     len(result.Main),
		"payments": len(result.Payments),
		"stats":    result.Stats.String(),
	}).Debug("Normalized side")

	return result, nil
}

func (n *Normalizer) resolve(table *parsers.Table) columns {
	idx := func(name string) int {
		if name == "" {
			return -1
		}
		return table.ColumnIndex(name)
	}

	c := columns{
		date:          idx(n.config.DateColumn),
		document:      idx(n.config.DocumentColumn),
		rider:         idx(n.config.RiderColumn),
		amount:        idx(n.config.AmountColumn),
		debit:         idx(n.config.DebitColumn),
		credit:        idx(n.config.CreditColumn),
		currency:      idx(n.config.CurrencyColumn),
		foreignAmount: idx(n.config.ForeignAmountColumn),
		settlement:    idx(n.config.SettlementDateColumn),
		reference:     idx(n.config.ReferenceColumn),
		kind:          idx(n.config.TypeColumn),
	}
	for _, name := range n.config.PassthroughColumns {
		c.passthrough = append(c.passthrough, idx(name))
		c.passthroughNames = append(c.passthroughNames, name)
	}
	return c
}

func (n *Normalizer) normalizeRow(table *parsers.Table, row int, c columns) models.CanonicalRecord {
	value := func(col int) interface{} { return table.Value(row, col) }

	record := models.CanonicalRecord{
		Side:          n.side,
		Row:           row,
		Currency:      models.LocalCurrency,
		ForeignAmount: decimal.Zero,
	}

	record.OccurredAt, _ = models.ParseDate(value(c.date))
	record.SettlementAt = record.OccurredAt
	if c.settlement >= 0 {
		if settled, ok := models.ParseDate(value(c.settlement)); ok {
			record.SettlementAt = settled
		}
	}

	document := models.CellString(value(c.document))
	if c.rider >= 0 {
		rider := models.CellString(value(c.rider))
		record.DocumentKey = models.DualDocumentKey(document, rider)
		record.DisplayDocumentNo = models.DualDisplayNumber(document, rider)
	} else {
		record.DocumentKey = models.DocumentKey(document)
		record.DisplayDocumentNo = document
	}

	if c.reference >= 0 {
		record.ReferenceKey = models.ReferenceKey(models.CellString(value(c.reference)))
	}
	if c.currency >= 0 {
		record.Currency = models.NormalizeCurrency(models.CellString(value(c.currency)))
	}
	if c.foreignAmount >= 0 {
		record.ForeignAmount = models.ParseAmount(value(c.foreignAmount)).Abs()
	}

	record.Debit, record.Credit = n.amounts(value, c)

	for i, col := range c.passthrough {
		record.ExtraFields = append(record.ExtraFields, models.Field{
			Name:  c.passthroughNames[i],
			Value: models.CellString(value(col)),
		})
	}

	return record
}

// amounts returns non-negative debit and credit for a row
func (n *Normalizer) amounts(value func(int) interface{}, c columns) (debit, credit decimal.Decimal) {
	if n.config.AmountMode == parsers.AmountSplit {
		return directional(models.ParseAmount(value(c.debit)), models.ParseAmount(value(c.credit)))
	}

	amount := models.ParseAmount(value(c.amount))
	if n.config.Role == models.RoleSeller {
		amount = amount.Neg()
	}
	if amount.IsNegative() {
		return decimal.Zero, amount.Neg()
	}
	return amount, decimal.Zero
}

// directional moves a negative debit to credit and a negative credit to debit
func directional(debit, credit decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	d, c := decimal.Zero, decimal.Zero
	if debit.IsNegative() {
		c = c.Add(debit.Neg())
	} else {
		d = d.Add(debit)
	}
	if credit.IsNegative() {
		d = d.Add(credit.Neg())
	} else {
		c = c.Add(credit)
	}
	return d, c
}

func (n *Normalizer) count(s *Stats, r *models.CanonicalRecord) {
	s.Rows++
	if !r.HasDate() {
		s.NullDates++
	}
	if r.Debit.IsZero() && r.Credit.IsZero() {
		s.ZeroAmounts++
	}
	if r.DocumentKey == "" {
		s.EmptyKeys++
	}
	if r.ReferenceKey != "" {
		s.ReferenceKeys++
	}
	if !models.IsLocalCurrency(r.Currency) {
		s.ForeignCurrency++
	}
}
