package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Line is one ledger row. Theirs rows carry Debit minus Credit as a signed amount.
type Line struct {
	Date        time.Time
	ValueDate   time.Time
	Document    string
	Rider       string
	Type        string
	Reference   string
	Description string
	Currency    string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	FXAmount    decimal.Decimal
}

// Expectation is the outcome a dataset is built to produce
type Expectation struct {
	Ours       string
	Theirs     string
	Status     models.MatchStatus
	Strategy   models.Strategy
	Difference decimal.Decimal
}

// Dataset is a pair of ledgers plus the outcome they should reconcile to
type Dataset struct {
	Name     string
	Mode     models.Mode
	Ours     []Line
	Theirs   []Line
	Expected []Expectation
}

const (
	oursPaymentType   = "Tahsilat"
	theirsPaymentType = "Payment"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d-1)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Mirror returns the counterparty's view of l: same document, same signed amount
// as seen from the other ledger.
func Mirror(l Line) Line {
	l.Document = strings.TrimLeft(strings.TrimPrefix(l.Document, "FTR-"), "0")
	if l.Type == oursPaymentType {
		l.Type = theirsPaymentType
	}
	l.Reference = strings.ToLower(strings.ReplaceAll(l.Reference, "-", " "))
	l.Description = ""
	return l
}

// Write stores ours.csv, theirs.csv or theirs.xlsx, reconciler.yaml and expected.csv in dir
func (d *Dataset) Write(dir string, theirsXLSX bool) error {
	if err := d.writeOurs(filepath.Join(dir, "ours.csv")); err != nil {
		return err
	}

	theirs := d.writeTheirsCSV
	name := "theirs.csv"
	if theirsXLSX {
		theirs = d.writeTheirsXLSX
		name = "theirs.xlsx"
	}
	if err := theirs(filepath.Join(dir, name)); err != nil {
		return err
	}

	if err := d.writeConfig(filepath.Join(dir, "reconciler.yaml")); err != nil {
		return err
	}
	return d.writeExpected(filepath.Join(dir, "expected.csv"))
}

func (d *Dataset) insurance() bool {
	return d.Mode == models.ModeInsurance
}

func (d *Dataset) oursHeader() []string {
	if d.insurance() {
		return []string{"Tanzim Tarihi", "Poliçe No", "Zeyl No", "Borç", "Alacak", "Döviz", "Döviz Tutarı", "Açıklama"}
	}
	return []string{"Tarih", "Belge No", "Fiş Türü", "Borç", "Alacak", "Döviz", "Döviz Tutarı", "Valör", "Dekont No", "Açıklama"}
}

func (d *Dataset) theirsHeader() []string {
	if d.insurance() {
		return []string{"Issue Date", "Policy", "Endorsement", "Amount", "Currency", "FX Amount"}
	}
	return []string{"Date", "Invoice", "Type", "Amount", "Currency", "FX Amount", "Value Date", "Reference"}
}

// SideConfigs returns the column mappings matching the written headers
func (d *Dataset) SideConfigs() (ours, theirs parsers.SideConfig) {
	h := d.oursHeader()
	ours = parsers.SideConfig{
		DateColumn:          h[0],
		DocumentColumn:      h[1],
		DebitColumn:         "Borç",
		CreditColumn:        "Alacak",
		CurrencyColumn:      "Döviz",
		ForeignAmountColumn: "Döviz Tutarı",
		PassthroughColumns:  []string{"Açıklama"},
	}
	h = d.theirsHeader()
	theirs = parsers.SideConfig{
		DateColumn:          h[0],
		DocumentColumn:      h[1],
		AmountColumn:        "Amount",
		Role:                models.RoleSeller,
		CurrencyColumn:      "Currency",
		ForeignAmountColumn: "FX Amount",
	}

	if d.insurance() {
		ours.RiderColumn = "Zeyl No"
		theirs.RiderColumn = "Endorsement"
	} else {
		ours.TypeColumn = "Fiş Türü"
		ours.TypeValues = []string{oursPaymentType}
		ours.SettlementDateColumn = "Valör"
		ours.ReferenceColumn = "Dekont No"
		theirs.TypeColumn = "Type"
		theirs.TypeValues = []string{theirsPaymentType}
		theirs.SettlementDateColumn = "Value Date"
		theirs.ReferenceColumn = "Reference"
	}

	ours.ApplyDefaults()
	theirs.ApplyDefaults()
	return ours, theirs
}

func (d *Dataset) writeOurs(path string) error {
	rows := [][]string{d.oursHeader()}
	for _, l := range d.Ours {
		if d.insurance() {
			rows = append(rows, []string{
				l.Date.Format("02.01.2006"), l.Document, l.Rider,
				turkishAmount(l.Debit), turkishAmount(l.Credit),
				l.Currency, turkishAmount(l.FXAmount), l.Description,
			})
			continue
		}
		rows = append(rows, []string{
			l.Date.Format("02.01.2006"), l.Document, l.Type,
			turkishAmount(l.Debit), turkishAmount(l.Credit),
			l.Currency, turkishAmount(l.FXAmount),
			optionalDate(l.ValueDate, "02.01.2006"), l.Reference, l.Description,
		})
	}
	return writeCSV(path, ';', rows)
}

func (d *Dataset) theirsRows() [][]interface{} {
	rows := make([][]interface{}, 0, len(d.Theirs))
	for _, l := range d.Theirs {
		signed := l.Debit.Sub(l.Credit)
		var fx interface{}
		if !l.FXAmount.IsZero() {
			fx = l.FXAmount.InexactFloat64()
		}
		if d.insurance() {
			rows = append(rows, []interface{}{l.Date, l.Document, l.Rider, signed.InexactFloat64(), l.Currency, fx})
			continue
		}
		var valueDate interface{}
		if !l.ValueDate.IsZero() {
			valueDate = l.ValueDate
		}
		rows = append(rows, []interface{}{l.Date, l.Document, l.Type, signed.InexactFloat64(), l.Currency, fx, valueDate, l.Reference})
	}
	return rows
}

func (d *Dataset) writeTheirsCSV(path string) error {
	rows := [][]string{d.theirsHeader()}
	for _, row := range d.theirsRows() {
		record := make([]string, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case nil:
			case time.Time:
				record[i] = x.Format(models.DateLayout)
			case float64:
				record[i] = decimal.NewFromFloat(x).StringFixed(2)
			default:
				record[i] = fmt.Sprint(x)
			}
		}
		rows = append(rows, record)
	}
	return writeCSV(path, ',', rows)
}

func (d *Dataset) writeTheirsXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Ledger"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := d.theirsHeader()
	values := make([]interface{}, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &values); err != nil {
		return err
	}

	for i, row := range d.theirsRows() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func (d *Dataset) writeConfig(path string) error {
	cfg := reconciler.DefaultConfig(d.Mode)
	cfg.Ours, cfg.Theirs = d.SideConfigs()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("# Column mapping for the %s dataset\n", d.Name)
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}

func (d *Dataset) writeExpected(path string) error {
	rows := [][]string{{"ours", "theirs", "status", "strategy", "difference"}}
	for _, e := range d.Expected {
		rows = append(rows, []string{e.Ours, e.Theirs, string(e.Status), string(e.Strategy), e.Difference.StringFixed(2)})
	}
	return writeCSV(path, ',', rows)
}

func writeCSV(path string, delimiter rune, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = delimiter
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// turkishAmount renders 1234.5 as "1.234,50" and zero as an empty cell
func turkishAmount(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	fixed := d.Abs().StringFixed(2)
	whole, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

func optionalDate(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
