// Package rollup aggregates raw canonical records of both sides into monthly
// balances per currency. It runs independently of matching and sees every
// record with a date, whether it was matched or not.
package rollup

import (
	"sort"

	"ledger-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// PeriodLayout formats the period label of a balance row
const PeriodLayout = "2006-01"

// PeriodBalance is one (currency, month) row of the balance table
type PeriodBalance struct {
	Currency string `json:"currency"`
	Period   string `json:"period"`

	OursDebit   decimal.Decimal `json:"ours_debit"`
	OursCredit  decimal.Decimal `json:"ours_credit"`
	OursBalance decimal.Decimal `json:"ours_balance"`

	TheirsDebit   decimal.Decimal `json:"theirs_debit"`
	TheirsCredit  decimal.Decimal `json:"theirs_credit"`
	TheirsBalance decimal.Decimal `json:"theirs_balance"`

	// CumulativeDifference is OursBalance + TheirsBalance; near zero means
	// the books agree up to this period.
	CumulativeDifference decimal.Decimal `json:"cumulative_difference"`
}

type periodKey struct {
	currency string
	period   string
}

type totals struct {
	oursDebit, oursCredit     decimal.Decimal
	theirsDebit, theirsCredit decimal.Decimal
}

// Table holds the rows of a roll-up, sorted by currency then period
type Table struct {
	Rows []PeriodBalance `json:"rows"`
	// Skipped counts records left out because their date was missing.
	Skipped int `json:"skipped"`
}

// Compute builds the balance table from both sides' canonical records.
// Records without a date cannot be placed in a period and are skipped.
func Compute(ours, theirs []models.CanonicalRecord) *Table {
	sums := make(map[periodKey]*totals)
	table := &Table{}

	add := func(records []models.CanonicalRecord, isOurs bool) {
		for i := range records {
			r := &records[i]
			if !r.HasDate() {
				table.Skipped++
				continue
			}

			key := periodKey{currency: r.Currency, period: r.OccurredAt.Format(PeriodLayout)}
			t, ok := sums[key]
			if !ok {
				t = &totals{
					oursDebit: decimal.Zero, oursCredit: decimal.Zero,
					theirsDebit: decimal.Zero, theirsCredit: decimal.Zero,
				}
				sums[key] = t
			}

			if isOurs {
				t.oursDebit = t.oursDebit.Add(r.Debit)
				t.oursCredit = t.oursCredit.Add(r.Credit)
			} else {
				t.theirsDebit = t.theirsDebit.Add(r.Debit)
				t.theirsCredit = t.theirsCredit.Add(r.Credit)
			}
		}
	}
	add(ours, true)
	add(theirs, false)

	keys := make([]periodKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].currency != keys[j].currency {
			return keys[i].currency < keys[j].currency
		}
		return keys[i].period < keys[j].period
	})

	var currency string
	oursRunning, theirsRunning := decimal.Zero, decimal.Zero
	for _, k := range keys {
		if k.currency != currency {
			currency = k.currency
			oursRunning, theirsRunning = decimal.Zero, decimal.Zero
		}

		t := sums[k]
		oursRunning = oursRunning.Add(t.oursDebit.Sub(t.oursCredit))
		theirsRunning = theirsRunning.Add(t.theirsDebit.Sub(t.theirsCredit))

		table.Rows = append(table.Rows, PeriodBalance{
			Currency:             k.currency,
			Period:               k.period,
			OursDebit:            t.oursDebit,
			OursCredit:           t.oursCredit,
			OursBalance:          oursRunning,
			TheirsDebit:          t.theirsDebit,
			TheirsCredit:         t.theirsCredit,
			TheirsBalance:        theirsRunning,
			CumulativeDifference: oursRunning.Add(theirsRunning),
		})
	}

	return table
}

// Currencies returns the distinct currencies of the table in row order
func (t *Table) Currencies() []string {
	var out []string
	for _, r := range t.Rows {
		if len(out) == 0 || out[len(out)-1] != r.Currency {
			out = append(out, r.Currency)
		}
	}
	return out
}

// Closing returns the last row of each currency
func (t *Table) Closing() []PeriodBalance {
	var out []PeriodBalance
	for i, r := range t.Rows {
		if i == len(t.Rows)-1 || t.Rows[i+1].Currency != r.Currency {
			out = append(out, r)
		}
	}
	return out
}
