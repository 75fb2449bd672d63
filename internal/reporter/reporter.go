// Package reporter renders reconciliation results for people and programs.
//
// Supported output formats:
//   - Console: human-readable summary and listings for terminal display
//   - JSON: the full result for programmatic consumption
//   - CSV: one flat table with a Category column plus the balance table
//   - XLSX: a workbook in the multi (one sheet per category) or single
//     (one sheet with a Category column) layout, with a Balance sheet
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format: reporter.FormatXLSX,
//		Layout: reporter.LayoutMulti,
//	})
//	err = generator.GenerateReport(result, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format must not be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// ContentType returns the MIME type of the format
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// FormatFromPath infers the output format from a file extension
func FormatFromPath(path string) (OutputFormat, bool) {
	lower := strings.ToLower(path)
	for _, f := range []OutputFormat{FormatJSON, FormatCSV, FormatXLSX} {
		if strings.HasSuffix(lower, "."+string(f)) {
			return f, true
		}
	}
	if strings.HasSuffix(lower, ".txt") {
		return FormatConsole, true
	}
	return "", false
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format" yaml:"format"`
	Layout Layout       `json:"layout" mapstructure:"layout" yaml:"layout"`

	IncludeMatched  bool `json:"include_matched" mapstructure:"include_matched" yaml:"include_matched"`
	IncludeBalances bool `json:"include_balances" mapstructure:"include_balances" yaml:"include_balances"`

	// MaxListItems caps each console listing; 0 means no limit.
	MaxListItems int `json:"max_list_items" mapstructure:"max_list_items" yaml:"max_list_items"`

	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers" yaml:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		Layout:          LayoutMulti,
		IncludeMatched:  false,
		IncludeBalances: true,
		MaxListItems:    10,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if !c.Layout.IsValid() {
		return fmt.Errorf("invalid layout: %s", c.Layout)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.Layout == "" {
		config.Layout = LayoutMulti
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	s := result.Summary
	m := s.Matching

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run: %s (%s mode)\n", result.RunID, result.Mode)
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", s.ProcessingDuration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Ours:   %s, %s\n", s.OursTable, s.OursStats)
	fmt.Fprintf(writer, "Theirs: %s, %s\n\n", s.TheirsTable, s.TheirsStats)
	fmt.Fprintf(writer, "Exact Matches:      %d\n", m.ExactMatches)
	fmt.Fprintf(writer, "Amount Differences: %d\n", m.AmountDifferences)
	fmt.Fprintf(writer, "Matched Payments:   %d\n", m.MatchedPayments)
	fmt.Fprintf(writer, "Unmatched Ours:     %d (net %s)\n", m.UnmatchedOurs, m.UnmatchedOursNet.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched Theirs:   %d (net %s)\n", m.UnmatchedTheirs, m.UnmatchedTheirsNet.StringFixed(2))
	fmt.Fprintf(writer, "Match Rate:         %.1f%%\n\n", m.MatchRate()*100)

	fmt.Fprintf(writer, "=== MATCHES BY STRATEGY ===\n")
	rg.printStrategies(m.ByStrategy, writer)
	fmt.Fprintf(writer, "\n")

	differences := filterStatus(result.MatchedDocuments, models.StatusAmountDifference)
	if len(differences) > 0 {
		fmt.Fprintf(writer, "=== AMOUNT DIFFERENCES ===\n")
		rg.printMatches(differences, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMatched && len(result.MatchedDocuments)+len(result.MatchedPayments) > 0 {
		fmt.Fprintf(writer, "=== MATCHED ===\n")
		rg.printMatches(append(append([]*models.MatchResult{}, result.MatchedDocuments...), result.MatchedPayments...), writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.UnmatchedOurs) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED OURS ===\n")
		rg.printRecords(result.UnmatchedOurs, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.UnmatchedTheirs) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED THEIRS ===\n")
		rg.printRecords(result.UnmatchedTheirs, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeBalances && result.Balances != nil && len(result.Balances.Rows) > 0 {
		fmt.Fprintf(writer, "=== BALANCE ===\n")
		return rg.printTable(balanceSheet(result.Balances), writer)
	}

	return nil
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterResultForOutput(result))
}

// generateCSVReport writes the single layout table, a blank line, then the balance table
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	sheets := BuildSheets(result, LayoutSingle)
	if !rg.config.IncludeBalances {
		sheets = sheets[:len(sheets)-1]
	}

	for i, sheet := range sheets {
		if i > 0 {
			if err := csvWriter.Write([]string{}); err != nil {
				return fmt.Errorf("failed to write CSV separator: %w", err)
			}
		}
		if rg.config.CSVHeaders {
			if err := csvWriter.Write(sheet.Headers); err != nil {
				return fmt.Errorf("failed to write CSV headers: %w", err)
			}
		}
		for _, row := range sheet.Rows {
			record := make([]string, len(row))
			for j, cell := range row {
				record[j] = cellText(cell)
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write %s record: %w", sheet.Name, err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) printStrategies(byStrategy map[models.Strategy]int, writer io.Writer) {
	if len(byStrategy) == 0 {
		fmt.Fprintf(writer, "No matches\n")
		return
	}

	names := make([]string, 0, len(byStrategy))
	for s := range byStrategy {
		names = append(names, string(s))
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(writer, "  %-22s %d\n", name+":", byStrategy[models.Strategy(name)])
	}
}

func (rg *ReportGenerator) printMatches(matches []*models.MatchResult, writer io.Writer) {
	for i, m := range matches {
		if rg.limitReached(i, len(matches), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s [%s] ours %s %s / theirs %s %s, difference %s\n",
			i+1,
			m.Status,
			m.Strategy,
			m.Ours.DisplayDocumentNo,
			m.Ours.Net().StringFixed(2),
			m.Theirs.DisplayDocumentNo,
			m.Theirs.Net().StringFixed(2),
			m.AmountDifference.StringFixed(2))
	}
}

func (rg *ReportGenerator) printRecords(records []*models.GroupedRecord, writer io.Writer) {
	for i, r := range records {
		if rg.limitReached(i, len(records), writer) {
			break
		}
		doc := r.DisplayDocumentNo
		if doc == "" {
			doc = "-"
		}
		date := models.FormatDate(r.OccurredAt)
		if date == "" {
			date = "no date"
		}
		fmt.Fprintf(writer, "  %d. %s %s, Net: %s %s (%s)\n",
			i+1, doc, date, r.Net().StringFixed(2), r.Currency, r.Stream)
	}
}

func (rg *ReportGenerator) limitReached(i, total int, writer io.Writer) bool {
	if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
		fmt.Fprintf(writer, "  ... and %d more\n", total-i)
		return true
	}
	return false
}

func (rg *ReportGenerator) printTable(sheet Sheet, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(sheet.Headers, "\t")+"\t")
	for _, row := range sheet.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = cellText(c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	return tw.Flush()
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":                result.RunID,
		"mode":                  result.Mode,
		"summary":               result.Summary,
		"processed_at":          result.ProcessedAt,
		"foreign_currency_used": result.ForeignCurrencyUsed,
		"unmatched_ours":        nonNil(result.UnmatchedOurs),
		"unmatched_theirs":      nonNil(result.UnmatchedTheirs),
	}

	if rg.config.IncludeMatched {
		output["matched_documents"] = nonNilResults(result.MatchedDocuments)
		output["matched_payments"] = nonNilResults(result.MatchedPayments)
	} else {
		output["amount_differences"] = nonNilResults(filterStatus(result.MatchedDocuments, models.StatusAmountDifference))
	}

	if rg.config.IncludeBalances && result.Balances != nil {
		output["balances"] = result.Balances
	}

	return output
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func filterStatus(results []*models.MatchResult, status models.MatchStatus) []*models.MatchResult {
	var out []*models.MatchResult
	for _, m := range results {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

func nonNil(records []*models.GroupedRecord) []*models.GroupedRecord {
	if records == nil {
		return []*models.GroupedRecord{}
	}
	return records
}

func nonNilResults(results []*models.MatchResult) []*models.MatchResult {
	if results == nil {
		return []*models.MatchResult{}
	}
	return results
}

func sortedCurrencies(m map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
