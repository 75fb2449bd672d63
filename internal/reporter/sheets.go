package reporter

import (
	"fmt"
	"strings"
	"time"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/rollup"

	"github.com/shopspring/decimal"
)

// Layout selects how result categories are laid out in tabular reports
type Layout string

const (
	// LayoutMulti writes one sheet per category
	LayoutMulti Layout = "multi"
	// LayoutSingle writes all categories to one sheet with a Category column
	LayoutSingle Layout = "single"
)

// IsValid checks if the layout is supported
func (l Layout) IsValid() bool {
	return l == LayoutMulti || l == LayoutSingle
}

// Category names, also used as sheet names in the multi layout
const (
	CategorySummary         = "Summary"
	CategoryMatched         = "Matched"
	CategoryPayments        = "Payments"
	CategoryUnmatchedOurs   = "Unmatched Ours"
	CategoryUnmatchedTheirs = "Unmatched Theirs"
	CategoryBalance         = "Balance"
	singleSheetName         = "Reconciliation"
)

// Sheet is one table of a tabular report. Cells hold string, int, float64,
// time.Time or nil.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
	// Bold lists the indexes of columns rendered in bold
	Bold []int
}

var resultHeaders = []string{
	"Status", "Strategy", "Stream", "Currency",
	"Ours Document", "Ours Date", "Ours Debit", "Ours Credit", "Ours Net",
	"Theirs Document", "Theirs Date", "Theirs Debit", "Theirs Credit", "Theirs Net",
	"Difference", "FX Difference",
}

// boldResultColumns marks Difference and FX Difference
var boldResultColumns = []int{14, 15}

var balanceHeaders = []string{
	"Currency", "Period",
	"Ours Debit", "Ours Credit", "Ours Balance",
	"Theirs Debit", "Theirs Credit", "Theirs Balance",
	"Cumulative Difference",
}

var boldBalanceColumns = []int{4, 7, 8}

// BuildSheets lays out a result as tables. The balance table is always its
// own sheet.
func BuildSheets(result *reconciler.Result, layout Layout) []Sheet {
	extras := extraColumns(result)

	categories := []struct {
		name    string
		results []*models.MatchResult
	}{
		{CategoryMatched, result.MatchedDocuments},
		{CategoryPayments, result.MatchedPayments},
		{CategoryUnmatchedOurs, unmatched(result.UnmatchedOurs)},
		{CategoryUnmatchedTheirs, unmatched(result.UnmatchedTheirs)},
	}

	var sheets []Sheet
	if layout == LayoutSingle {
		sheet := Sheet{
			Name:    singleSheetName,
			Headers: append([]string{"Category"}, headersWithExtras(extras)...),
			Bold:    shift(boldResultColumns, 1),
		}
		for _, c := range categories {
			for _, m := range c.results {
				sheet.Rows = append(sheet.Rows, append([]interface{}{c.name}, resultRow(m, extras)...))
			}
		}
		sheets = append(sheets, sheet)
	} else {
		sheets = append(sheets, summarySheet(result))
		for _, c := range categories {
			sheet := Sheet{Name: c.name, Headers: headersWithExtras(extras), Bold: boldResultColumns}
			for _, m := range c.results {
				sheet.Rows = append(sheet.Rows, resultRow(m, extras))
			}
			sheets = append(sheets, sheet)
		}
	}

	return append(sheets, balanceSheet(result.Balances))
}

func unmatched(records []*models.GroupedRecord) []*models.MatchResult {
	out := make([]*models.MatchResult, len(records))
	for i, r := range records {
		out[i] = models.NewUnmatchedResult(r)
	}
	return out
}

// extraColumns collects pass-through column names of both sides in first-seen order
func extraColumns(result *reconciler.Result) []string {
	seen := map[string]bool{}
	var names []string
	add := func(r *models.GroupedRecord) {
		if r == nil {
			return
		}
		prefix := "Ours "
		if r.Side == models.SideTheirs {
			prefix = "Theirs "
		}
		for _, f := range r.ExtraFields {
			name := prefix + f.Name
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	for _, group := range [][]*models.MatchResult{result.MatchedDocuments, result.MatchedPayments} {
		for _, m := range group {
			add(m.Ours)
			add(m.Theirs)
		}
	}
	for _, r := range result.UnmatchedOurs {
		add(r)
	}
	for _, r := range result.UnmatchedTheirs {
		add(r)
	}
	return names
}

func headersWithExtras(extras []string) []string {
	headers := append([]string{}, resultHeaders...)
	return append(headers, extras...)
}

func resultRow(m *models.MatchResult, extras []string) []interface{} {
	row := []interface{}{string(m.Status), string(m.Strategy), "", ""}

	ref := m.Ours
	if ref == nil {
		ref = m.Theirs
	}
	row[2] = string(ref.Stream)
	row[3] = ref.Currency

	row = append(row, recordCells(m.Ours)...)
	row = append(row, recordCells(m.Theirs)...)
	row = append(row, money(m.AmountDifference), money(m.ForeignAmountDifference))

	for _, name := range extras {
		row = append(row, extraValue(m, name))
	}
	return row
}

func recordCells(r *models.GroupedRecord) []interface{} {
	if r == nil {
		return []interface{}{nil, nil, nil, nil, nil}
	}
	return []interface{}{r.DisplayDocumentNo, dateCell(r.OccurredAt), money(r.Debit), money(r.Credit), money(r.Net())}
}

func extraValue(m *models.MatchResult, column string) interface{} {
	for _, r := range []*models.GroupedRecord{m.Ours, m.Theirs} {
		if r == nil {
			continue
		}
		prefix := "Ours "
		if r.Side == models.SideTheirs {
			prefix = "Theirs "
		}
		if !strings.HasPrefix(column, prefix) {
			continue
		}
		if v, ok := r.Extra(strings.TrimPrefix(column, prefix)); ok {
			return v
		}
	}
	return nil
}

func summarySheet(result *reconciler.Result) Sheet {
	s := result.Summary
	m := s.Matching
	rows := [][]interface{}{
		{"Run ID", result.RunID},
		{"Mode", string(result.Mode)},
		{"Processed At", result.ProcessedAt.Format(time.RFC3339)},
		{"Ours Table", s.OursTable},
		{"Theirs Table", s.TheirsTable},
		{"Ours Rows", s.OursStats.Rows},
		{"Theirs Rows", s.TheirsStats.Rows},
		{"Exact Matches", m.ExactMatches},
		{"Amount Differences", m.AmountDifferences},
		{"Matched Payments", m.MatchedPayments},
		{"Unmatched Ours", m.UnmatchedOurs},
		{"Unmatched Theirs", m.UnmatchedTheirs},
		{"Ambiguous Selections", m.Ambiguous},
		{"Matched Difference", money(m.MatchedDifference)},
		{"Unmatched Ours Net", money(m.UnmatchedOursNet)},
		{"Unmatched Theirs Net", money(m.UnmatchedTheirsNet)},
	}
	for _, currency := range sortedCurrencies(s.ClosingDifference) {
		rows = append(rows, []interface{}{"Closing Difference " + currency, money(s.ClosingDifference[currency])})
	}
	return Sheet{Name: CategorySummary, Headers: []string{"Metric", "Value"}, Rows: rows}
}

func balanceSheet(table *rollup.Table) Sheet {
	sheet := Sheet{Name: CategoryBalance, Headers: balanceHeaders, Bold: boldBalanceColumns}
	if table == nil {
		return sheet
	}
	for _, r := range table.Rows {
		sheet.Rows = append(sheet.Rows, []interface{}{
			r.Currency, r.Period,
			money(r.OursDebit), money(r.OursCredit), money(r.OursBalance),
			money(r.TheirsDebit), money(r.TheirsCredit), money(r.TheirsBalance),
			money(r.CumulativeDifference),
		})
	}
	return sheet
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func dateCell(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func shift(cols []int, by int) []int {
	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = c + by
	}
	return out
}

// cellText renders a cell for text outputs
func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return decimal.NewFromFloat(x).StringFixed(2)
	case time.Time:
		return x.Format(models.DateLayout)
	default:
		return fmt.Sprint(x)
	}
}
