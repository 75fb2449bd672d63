package parsers

import (
	"fmt"
	"io"
	"strings"

	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// xlsxParser reads one worksheet of a workbook into a Table
type xlsxParser struct {
	options *ReadOptions
	logger  logger.Logger
}

func newXLSXParser(options *ReadOptions) *xlsxParser {
	return &xlsxParser{
		options: options,
		logger:  logger.GetGlobalLogger().WithComponent("xlsx_parser"),
	}
}

// Parse reads the configured sheet of the workbook in src
func (p *xlsxParser) Parse(name string, src io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}
	defer f.Close()

	sheet, err := p.pickSheet(f)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, err)
	}

	cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, err).WithContext("sheet", sheet)
	}

	var headers []string
	var rows [][]interface{}
	for _, record := range cells {
		if isEmptyRecord(record) && (headers == nil || p.options.SkipEmptyRows) {
			continue
		}
		if headers == nil {
			headers = record
			continue
		}

		row := make([]interface{}, len(headers))
		for i := 0; i < len(record) && i < len(row); i++ {
			if record[i] != "" {
				row[i] = record[i]
			}
		}
		rows = append(rows, row)
	}

	if headers == nil {
		return nil, errors.ParseError(errors.CodeEmptyTable, name, nil).WithContext("sheet", sheet)
	}

	p.logger.WithFields(logger.Fields{
		"file":    name,
		"sheet":   sheet,
		"columns": len(headers),
		"rows":    len(rows),
	}).Debug("Parsed XLSX input")

	return NewTable(name, headers, rows), nil
}

func (p *xlsxParser) pickSheet(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if p.options.Sheet == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, p.options.Sheet) {
			return s, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found, available: %s", p.options.Sheet, strings.Join(sheets, ", "))
}
