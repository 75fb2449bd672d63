package parsers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

// Reader opens ledger files from a filesystem and parses them by extension
type Reader struct {
	fs      afero.Fs
	options *ReadOptions
	logger  logger.Logger
}

// NewReader creates a reader. A nil fs means the OS filesystem.
func NewReader(fs afero.Fs, options *ReadOptions) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if options == nil {
		options = DefaultReadOptions()
	}
	return &Reader{
		fs:      fs,
		options: options,
		logger:  logger.GetGlobalLogger().WithComponent("reader"),
	}
}

// IsSupported reports whether the file name has a readable extension
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// ReadFile reads one file into a table named after the file's base name
func (r *Reader) ReadFile(path string) (*Table, error) {
	r.logger.WithField("file_path", path).Debug("Opening input file")

	if !IsSupported(path) {
		return nil, errors.FileError(errors.CodeUnsupportedFile, path, nil)
	}

	file, err := r.fs.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer file.Close()

	table, err := r.ReadFrom(filepath.Base(path), file)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// ReadFrom parses src according to the extension of name
func (r *Reader) ReadFrom(name string, src io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return newXLSXParser(r.options).Parse(name, src)
	case ".csv", ".txt":
		return newCSVParser(r.options).Parse(name, src)
	default:
		return nil, errors.FileError(errors.CodeUnsupportedFile, name, nil)
	}
}

// ReadFiles reads every path concurrently and stacks the tables in the order
// of paths. The first failure cancels the remaining reads.
func (r *Reader) ReadFiles(ctx context.Context, paths []string) (*Table, error) {
	if len(paths) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "files", nil, nil)
	}

	tables := make([]*Table, len(paths))
	p := pool.New().
		WithErrors().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(r.options.MaxConcurrentFiles)

	for i, path := range paths {
		i, path := i, path
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			table, err := r.ReadFile(path)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, len(tables))
	rows := 0
	for i, t := range tables {
		names[i] = t.Name
		rows += t.Len()
	}

	r.logger.WithFields(logger.Fields{
		"files": len(paths),
		"rows":  rows,
	}).Debug("Read input files")

	return Concat(strings.Join(names, "+"), tables...), nil
}
