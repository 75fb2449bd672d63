package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"ledger-reconciliation-service/internal/reconciler"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetNameLength = 30
	maxColumnWidth     = 50
	dateNumberFormat   = "yyyy-mm-dd"
	moneyNumberFormat  = "#,##0.00"
)

// generateXLSXReport writes the result as a workbook in the configured layout
func (rg *ReportGenerator) generateXLSXReport(result *reconciler.Result, writer io.Writer) error {
	sheets := BuildSheets(result, rg.config.Layout)
	if !rg.config.IncludeBalances {
		sheets = sheets[:len(sheets)-1]
	}

	f, err := WriteWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// workbookStyles holds the style IDs used by WriteWorkbook
type workbookStyles struct {
	header, bold, date, money, boldMoney int
}

func newWorkbookStyles(f *excelize.File) (*workbookStyles, error) {
	dateFmt := dateNumberFormat
	moneyFmt := moneyNumberFormat

	specs := []*excelize.Style{
		{Font: &excelize.Font{Bold: true}, Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1}},
		{Font: &excelize.Font{Bold: true}},
		{CustomNumFmt: &dateFmt},
		{CustomNumFmt: &moneyFmt},
		{Font: &excelize.Font{Bold: true}, CustomNumFmt: &moneyFmt},
	}

	ids := make([]int, len(specs))
	for i, spec := range specs {
		id, err := f.NewStyle(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to create workbook style: %w", err)
		}
		ids[i] = id
	}
	return &workbookStyles{header: ids[0], bold: ids[1], date: ids[2], money: ids[3], boldMoney: ids[4]}, nil
}

// WriteWorkbook renders sheets into a new workbook. Sheet names are cleaned
// of characters Excel rejects and cut to 30 characters, columns are sized to
// their content up to 50 characters, and Bold columns are emphasized.
func WriteWorkbook(sheets []Sheet) (*excelize.File, error) {
	f := excelize.NewFile()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	used := map[string]string{}
	for i, sheet := range sheets {
		name := uniqueSheetName(SanitizeSheetName(sheet.Name), used)

		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to name sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %q: %w", name, err)
		}

		if err := writeSheet(f, name, sheet, styles); err != nil {
			f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, name string, sheet Sheet, styles *workbookStyles) error {
	bold := map[int]bool{}
	for _, c := range sheet.Bold {
		bold[c] = true
	}

	header := make([]interface{}, len(sheet.Headers))
	widths := make([]int, len(sheet.Headers))
	for i, h := range sheet.Headers {
		header[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", name, err)
	}
	if len(sheet.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(sheet.Headers), 1)
		if err := f.SetCellStyle(name, "A1", last, styles.header); err != nil {
			return err
		}
	}

	for r, row := range sheet.Rows {
		cells := make([]interface{}, len(row))
		copy(cells, row)

		start, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(name, start, &cells); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", r+1, name, err)
		}

		for c, v := range row {
			if c < len(widths) {
				if n := utf8.RuneCountInString(cellText(v)); n > widths[c] {
					widths[c] = n
				}
			}

			style := cellStyle(v, bold[c], styles)
			if style == 0 {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellStyle(name, cell, cell, style); err != nil {
				return err
			}
		}
	}

	for c, w := range widths {
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(name, col, col, float64(ColumnWidth(w))); err != nil {
			return err
		}
	}

	if len(sheet.Rows) > 0 {
		return f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	return nil
}

func cellStyle(v interface{}, bold bool, styles *workbookStyles) int {
	switch v.(type) {
	case float64:
		if bold {
			return styles.boldMoney
		}
		return styles.money
	case time.Time:
		return styles.date
	}
	if bold {
		return styles.bold
	}
	return 0
}

// ColumnWidth returns the width of a column whose longest value has n characters
func ColumnWidth(n int) int {
	if n+2 > maxColumnWidth {
		return maxColumnWidth
	}
	return n + 2
}

// SanitizeSheetName removes characters Excel does not allow in sheet names
// and cuts the result to 30 characters.
func SanitizeSheetName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return -1
		}
		return r
	}, name)
	cleaned = strings.Trim(strings.TrimSpace(cleaned), "'")

	if utf8.RuneCountInString(cleaned) > maxSheetNameLength {
		cleaned = string([]rune(cleaned)[:maxSheetNameLength])
	}
	if cleaned == "" {
		cleaned = "Sheet"
	}
	return cleaned
}

// uniqueSheetName resolves case-insensitive clashes with a numeric suffix.
// used maps lowercased names to the first spelling seen, and suffixed names
// keep that spelling.
func uniqueSheetName(name string, used map[string]string) string {
	base := name
	if first, ok := used[strings.ToLower(name)]; ok {
		base = first
	}

	candidate := name
	for i := 2; used[strings.ToLower(candidate)] != ""; i++ {
		suffix := fmt.Sprintf(" %d", i)
		runes := []rune(base)
		if len(runes)+len(suffix) > maxSheetNameLength {
			runes = runes[:maxSheetNameLength-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = candidate
	return candidate
}
