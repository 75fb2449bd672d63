// Package parsers turns uploaded ledger files into in-memory tables and holds
// the per-side column mapping that tells the normalizer which column plays
// which role.
//
// Supported inputs:
//   - CSV with ',', ';' or tab delimiters (detected from the header line) in
//     UTF-8 or one of the single-byte Turkish/Western code pages
//   - XLSX workbooks, first sheet or a named one, read with raw cell values so
//     dates arrive as Excel serial numbers and amounts keep full precision
//
// Several files for one side are read concurrently and stacked into one table.
//
// Example usage:
//
//	reader := parsers.NewReader(afero.NewOsFs(), parsers.DefaultReadOptions())
//	theirs, err := reader.ReadFiles(ctx, []string{"jan.xlsx", "feb.xlsx"})
package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ReadOptions holds configuration for reading input files
type ReadOptions struct {
	// Encoding of CSV input: utf-8 (default), windows-1254, iso-8859-9,
	// windows-1252 or iso-8859-1.
	Encoding string `json:"encoding" mapstructure:"encoding" yaml:"encoding"`
	// Delimiter of CSV input; zero means detect from the header line.
	Delimiter rune `json:"delimiter" mapstructure:"delimiter" yaml:"delimiter"`
	// Sheet of XLSX input; empty means the first sheet.
	Sheet         string `json:"sheet" mapstructure:"sheet" yaml:"sheet"`
	SkipEmptyRows bool   `json:"skip_empty_rows" mapstructure:"skip_empty_rows" yaml:"skip_empty_rows"`
	// MaxConcurrentFiles bounds ReadFiles.
	MaxConcurrentFiles int `json:"max_concurrent_files" mapstructure:"max_concurrent_files" yaml:"max_concurrent_files"`
}

// DefaultReadOptions returns options with sensible defaults
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{
		Encoding:           "utf-8",
		SkipEmptyRows:      true,
		MaxConcurrentFiles: 4,
	}
}

// Validate validates the read options
func (o *ReadOptions) Validate() error {
	if _, err := lookupEncoding(o.Encoding); err != nil {
		return err
	}
	if o.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", o.MaxConcurrentFiles)
	}
	return nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1254", "cp1254":
		return charmap.Windows1254, nil
	case "iso-8859-9", "latin5":
		return charmap.ISO8859_9, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
}

// csvParser reads delimited text into a Table
type csvParser struct {
	options *ReadOptions
	logger  logger.Logger
}

func newCSVParser(options *ReadOptions) *csvParser {
	return &csvParser{
		options: options,
		logger:  logger.GetGlobalLogger().WithComponent("csv_parser"),
	}
}

// Parse reads src completely. name is used for error messages and as table name.
func (p *csvParser) Parse(name string, src io.Reader) (*Table, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}

	text, err := p.decode(name, raw)
	if err != nil {
		return nil, err
	}

	delimiter := p.options.Delimiter
	if delimiter == 0 {
		delimiter = detectDelimiter(text)
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var headers []string
	var rows [][]interface{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, name, err).WithContext("line", line+1)
		}
		line++

		if isEmptyRecord(record) && (headers == nil || p.options.SkipEmptyRows) {
			continue
		}
		if headers == nil {
			headers = record
			continue
		}

		row := make([]interface{}, len(headers))
		for i := 0; i < len(record) && i < len(row); i++ {
			row[i] = record[i]
		}
		rows = append(rows, row)
	}

	if headers == nil {
		return nil, errors.ParseError(errors.CodeEmptyTable, name, nil)
	}

	p.logger.WithFields(logger.Fields{
		"file":      name,
		"delimiter": string(delimiter),
		"columns":   len(headers),
		"rows":      len(rows),
	}).Debug("Parsed CSV input")

	return NewTable(name, headers, rows), nil
}

func (p *csvParser) decode(name string, raw []byte) ([]byte, error) {
	enc, err := lookupEncoding(p.options.Encoding)
	if err != nil {
		return nil, errors.ParseError(errors.CodeEncodingError, name, err)
	}

	if enc == nil {
		raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(raw) {
			return nil, errors.ParseError(errors.CodeEncodingError, name, fmt.Errorf("invalid UTF-8 encoding detected"))
		}
		return raw, nil
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return nil, errors.ParseError(errors.CodeEncodingError, name, err)
	}
	return decoded, nil
}

// detectDelimiter picks the most frequent of ',', ';' and tab in the first
// line, ignoring quoted sections. Ties go to ','.
func detectDelimiter(text []byte) rune {
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var first string
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			first = scanner.Text()
			break
		}
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, r := range first {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && (r == ',' || r == ';' || r == '\t'):
			counts[r]++
		}
	}

	best := ','
	for _, candidate := range []rune{';', '\t'} {
		if counts[candidate] > counts[best] {
			best = candidate
		}
	}
	return best
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
