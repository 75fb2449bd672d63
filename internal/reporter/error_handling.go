package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
)

// SafeReportGenerator wraps ReportGenerator with validation, fallbacks and logging
type SafeReportGenerator struct {
	*ReportGenerator
	fs     afero.Fs
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator writing files through fs
func NewSafeReportGenerator(config *ReportConfig, fs afero.Fs, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report",
			config,
			err,
		).WithSuggestion("use format console, json, csv or xlsx and layout multi or single")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		fs:              fs,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes a report to writer. A failing structured format
// falls back to the console format on the same writer; the report is rendered
// in memory first, so the writer never receives a partial document.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.Result, writer io.Writer) error {
	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"layout": srg.config.Layout,
		"run_id": result.RunID,
	}).Debug("Starting report generation")

	var buf bytes.Buffer
	if err := srg.GenerateReport(result, &buf); err != nil {
		if srg.config.Format == FormatConsole {
			return srg.wrapGenerationError(err)
		}
		return srg.generateWithFormatFallback(result, writer, err)
	}

	if _, err := buf.WriteTo(writer); err != nil {
		return srg.wrapGenerationError(err)
	}
	return nil
}

// WriteFile renders the report and writes it to path. When path cannot be
// written the report goes to a backup file in the temporary directory and
// the backup path is returned.
func (srg *SafeReportGenerator) WriteFile(result *reconciler.Result, path string) (string, error) {
	if err := srg.validateInputs(result, io.Discard); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := srg.GenerateReport(result, &buf); err != nil {
		return "", srg.wrapGenerationError(err)
	}

	err := srg.writeFile(path, buf.Bytes())
	if err == nil {
		srg.logger.WithFields(logger.Fields{"file": path, "bytes": buf.Len()}).Info("Report written")
		return path, nil
	}
	if !isFileError(err) {
		return "", errors.FileError(errors.CodeFilePermission, path, err)
	}

	backup := generateBackupPath(path)
	srg.logger.WithError(err).WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backup,
	}).Warn("Attempting output fallback")

	if backupErr := srg.writeFile(backup, buf.Bytes()); backupErr != nil {
		return "", errors.InternalError(
			errors.CodeUnexpectedError,
			"report output fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", err, backupErr),
		)
	}
	return backup, nil
}

func (srg *SafeReportGenerator) writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := srg.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(srg.fs, path, data, 0o644)
}

func (srg *SafeReportGenerator) validateInputs(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("run a reconciliation before generating a report")
	}
	if result.Summary == nil {
		return errors.ValidationError(errors.CodeMissingField, "summary", nil, nil).
			WithSuggestion("ensure the reconciliation result includes a summary")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}
	return nil
}

// generateWithFormatFallback writes a console report after a structured format failed
func (srg *SafeReportGenerator) generateWithFormatFallback(result *reconciler.Result, writer io.Writer, originalErr error) error {
	srg.logger.WithError(originalErr).WithField("fallback_format", FormatConsole).Warn("Primary report generation failed, attempting fallback")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(result, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	return errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeProcessingError, "report generation failed").
		WithSuggestion("check the output destination and report format settings")
}

func isFileError(err error) bool {
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "read-only file system")
}

// generateBackupPath places name_backup.ext in the temporary directory
func generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup%s", name, ext))
}
