package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/preferences"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"preferences": s.prefs != nil,
	})
}

// reconcile runs one reconciliation over uploaded files. The multipart form
// carries one or more "ours" files, one or more "theirs" files and a "config"
// field holding the run configuration as JSON.
func (s *Server) reconcile(c *gin.Context) {
	format := reporter.OutputFormat(strings.ToLower(c.DefaultQuery("format", string(reporter.FormatJSON))))
	if format != reporter.FormatJSON && format != reporter.FormatXLSX {
		failure(c, errors.ValidationError(errors.CodeOutOfRange, "format", format, nil).
			WithSuggestion("use format=json or format=xlsx"))
		return
	}
	layout := reporter.Layout(strings.ToLower(c.DefaultQuery("layout", string(reporter.LayoutMulti))))

	form, err := c.MultipartForm()
	if err != nil {
		failure(c, errors.ValidationError(errors.CodeMissingField, "multipart form", nil, err))
		return
	}

	config, err := decodeRunConfig(form.Value["config"])
	if err != nil {
		failure(c, err)
		return
	}

	ours, err := s.readUploads(c, "ours", form.File["ours"])
	if err != nil {
		failure(c, err)
		return
	}
	theirs, err := s.readUploads(c, "theirs", form.File["theirs"])
	if err != nil {
		failure(c, err)
		return
	}

	s.prefill(c, &config.Ours, form.File["ours"])
	s.prefill(c, &config.Theirs, form.File["theirs"])

	result, err := s.service.Run(c.Request.Context(), &reconciler.Request{
		Ours:   ours,
		Theirs: theirs,
		Config: config,
	})
	if err != nil {
		failure(c, err)
		return
	}

	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
		Format:          format,
		Layout:          layout,
		IncludeMatched:  true,
		IncludeBalances: true,
	})
	if err != nil {
		failure(c, errors.ValidationError(errors.CodeOutOfRange, "layout", layout, err))
		return
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		failure(c, errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeProcessingError, "report generation failed"))
		return
	}

	if format == reporter.FormatXLSX {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="reconciliation-%s.xlsx"`, result.RunID))
	}
	c.Header("X-Run-ID", result.RunID)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// decodeRunConfig overlays the submitted JSON on the defaults of its mode, so
// a partial matching section keeps the defaults of the fields it omits.
func decodeRunConfig(values []string) (*reconciler.Config, error) {
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return reconciler.DefaultConfig(models.ModeLedger), nil
	}
	raw := []byte(values[0])

	var head struct {
		Mode models.Mode `json:"mode"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err).
			WithSuggestion("send the run configuration as a JSON object")
	}

	config := reconciler.DefaultConfig(models.Mode(strings.ToLower(string(head.Mode))))
	if err := json.Unmarshal(raw, config); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err)
	}
	return config, nil
}

func (s *Server) readUploads(c *gin.Context, side string, files []*multipart.FileHeader) (*parsers.Table, error) {
	if len(files) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, side, nil, nil).
			WithSuggestion(fmt.Sprintf("attach at least one %q file", side))
	}

	reader := parsers.NewReader(nil, s.readOptions)
	tables := make([]*parsers.Table, 0, len(files))
	names := make([]string, 0, len(files))
	for _, fh := range files {
		if err := c.Request.Context().Err(); err != nil {
			return nil, err
		}

		f, err := fh.Open()
		if err != nil {
			return nil, errors.FileError(errors.CodeFileCorrupted, fh.Filename, err)
		}
		table, err := reader.ReadFrom(fh.Filename, f)
		f.Close()
		if err != nil {
			return nil, err
		}

		tables = append(tables, table)
		names = append(names, table.Name)
	}

	return parsers.Concat(strings.Join(names, "+"), tables...), nil
}

// prefill fills an empty side mapping from the preference of its first file
func (s *Server) prefill(c *gin.Context, config *parsers.SideConfig, files []*multipart.FileHeader) {
	if s.prefs == nil || len(files) == 0 || len(config.Columns()) > 0 {
		return
	}

	pref, ok, err := s.prefs.Get(c.Request.Context(), files[0].Filename)
	if err != nil {
		s.logger.WithError(err).WithField("file", files[0].Filename).Warn("Preference lookup failed")
		return
	}
	if !ok {
		return
	}

	*config = pref.Config
	s.logger.WithField("file", pref.FileName).Debug("Column mapping pre-filled from preferences")
}

func (s *Server) requirePrefs(c *gin.Context) bool {
	if s.prefs == nil {
		errorResponse(c, http.StatusServiceUnavailable, "preferences_disabled", "Preference store is not configured", "")
		return false
	}
	return true
}

func (s *Server) listPreferences(c *gin.Context) {
	if !s.requirePrefs(c) {
		return
	}
	prefs, err := s.prefs.List(c.Request.Context())
	if err != nil {
		failure(c, err)
		return
	}
	if prefs == nil {
		prefs = []*preferences.Preference{}
	}
	success(c, http.StatusOK, "", prefs)
}

func (s *Server) getPreference(c *gin.Context) {
	if !s.requirePrefs(c) {
		return
	}
	file := c.Param("file")

	pref, ok, err := s.prefs.Get(c.Request.Context(), file)
	if err != nil {
		failure(c, err)
		return
	}
	if !ok {
		errorResponse(c, http.StatusNotFound, "not_found", fmt.Sprintf("no preference stored for %q", file), "")
		return
	}
	success(c, http.StatusOK, "", pref)
}

// putPreference stores the SideConfig in the body for the file in the path
func (s *Server) putPreference(c *gin.Context) {
	if !s.requirePrefs(c) {
		return
	}

	var body struct {
		Side   models.Side        `json:"side"`
		Config parsers.SideConfig `json:"config"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failure(c, errors.ValidationError(errors.CodeInvalidFormat, "body", nil, err))
		return
	}

	body.Config.ApplyDefaults()
	if err := body.Config.Validate("config"); err != nil {
		failure(c, errors.CombineMappingErrors(err))
		return
	}

	pref := &preferences.Preference{
		FileName: preferences.Key(c.Param("file")),
		Side:     body.Side,
		Config:   body.Config,
	}
	if err := s.prefs.Save(c.Request.Context(), pref); err != nil {
		failure(c, err)
		return
	}

	s.logger.WithFields(logger.Fields{"file": pref.FileName, "side": pref.Side}).Info("Column preference saved")
	success(c, http.StatusOK, "preference saved", pref)
}

func (s *Server) deletePreference(c *gin.Context) {
	if !s.requirePrefs(c) {
		return
	}
	if err := s.prefs.Delete(c.Request.Context(), c.Param("file")); err != nil {
		failure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
