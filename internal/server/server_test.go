package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/preferences"
	recerrors "ledger-reconciliation-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const oursCSV = `Tarih;Belge No;Borç;Alacak
05.01.2024;FTR-000100;1000;
06.01.2024;FTR-000200;500;
07.01.2024;FTR-000300;80;
`

const theirsCSV = `Date,Invoice,Amount
05.01.2024,100,1000
06.01.2024,200,450
`

const runConfig = `{
  "mode": "ledger",
  "ours": {"date_column": "Tarih", "document_column": "Belge No", "debit_column": "Borç", "credit_column": "Alacak"},
  "theirs": {"date_column": "Date", "document_column": "Invoice", "amount_column": "Amount", "role": "seller"},
  "matching": {"payment_window_days": 5}
}`

type upload struct {
	field, name, content string
}

func multipartBody(t *testing.T, config string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if config != "" {
		require.NoError(t, w.WriteField("config", config))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func newTestServer(t *testing.T, prefs preferences.Store) *Server {
	t.Helper()
	s, err := New(nil, nil, prefs, nil)
	require.NoError(t, err)
	return s
}

func openPrefs(t *testing.T) preferences.Store {
	t.Helper()
	store, err := preferences.OpenSQLite(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["preferences"])
}

func TestReconcile_JSON(t *testing.T) {
	s := newTestServer(t, nil)
	body, contentType := multipartBody(t, runConfig,
		upload{"ours", "ours.csv", oursCSV},
		upload{"theirs", "theirs.csv", theirsCSV},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))

	result := decode(t, rec)
	matched, ok := result["matched_documents"].([]interface{})
	require.True(t, ok)
	assert.Len(t, matched, 2)

	unmatched, ok := result["unmatched_ours"].([]interface{})
	require.True(t, ok)
	assert.Len(t, unmatched, 1)
	assert.Contains(t, result, "balances")
}

func TestReconcile_XLSX(t *testing.T) {
	s := newTestServer(t, nil)
	body, contentType := multipartBody(t, runConfig,
		upload{"ours", "ours.csv", oursCSV},
		upload{"theirs", "theirs.csv", theirsCSV},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile?format=xlsx&layout=single", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Reconciliation", "Balance"}, f.GetSheetList())
}

func TestReconcile_MultipleTheirFiles(t *testing.T) {
	s := newTestServer(t, nil)
	body, contentType := multipartBody(t, runConfig,
		upload{"ours", "ours.csv", oursCSV},
		upload{"theirs", "jan.csv", "Date,Invoice,Amount\n05.01.2024,100,1000\n"},
		upload{"theirs", "feb.csv", "Date,Invoice,Amount\n06.01.2024,200,500\n"},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode(t, rec)["summary"].(map[string]interface{})
	assert.Equal(t, "jan.csv+feb.csv", summary["theirs_table"])
}

func TestReconcile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		files  []upload
		query  string
		status int
		code   string
	}{
		{
			name:   "missing their file",
			config: runConfig,
			files:  []upload{{"ours", "ours.csv", oursCSV}},
			status: http.StatusBadRequest,
			code:   string(recerrors.CodeMissingField),
		},
		{
			name:   "unknown column",
			config: strings.Replace(runConfig, `"Invoice"`, `"Fatura"`, 1),
			files:  []upload{{"ours", "ours.csv", oursCSV}, {"theirs", "theirs.csv", theirsCSV}},
			status: http.StatusBadRequest,
			code:   string(recerrors.CodeMissingColumn),
		},
		{
			name:   "malformed config",
			config: "{not json",
			files:  []upload{{"ours", "ours.csv", oursCSV}, {"theirs", "theirs.csv", theirsCSV}},
			status: http.StatusBadRequest,
			code:   string(recerrors.CodeInvalidConfig),
		},
		{
			name:   "unsupported upload",
			config: runConfig,
			files:  []upload{{"ours", "ours.pdf", "%PDF"}, {"theirs", "theirs.csv", theirsCSV}},
			status: http.StatusUnprocessableEntity,
			code:   string(recerrors.CodeUnsupportedFile),
		},
		{
			name:   "unsupported format",
			config: runConfig,
			files:  []upload{{"ours", "ours.csv", oursCSV}, {"theirs", "theirs.csv", theirsCSV}},
			query:  "?format=pdf",
			status: http.StatusBadRequest,
			code:   string(recerrors.CodeOutOfRange),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			body, contentType := multipartBody(t, tt.config, tt.files...)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile"+tt.query, body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode(t, rec)
			assert.Equal(t, false, resp["success"])
			detail := resp["error"].(map[string]interface{})
			assert.Equal(t, tt.code, detail["code"])
		})
	}
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t, openPrefs(t))
	handler := s.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/preferences/supplier.xlsx", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	put := `{"side": "THEIRS", "config": {"date_column": "Date", "document_column": "Invoice", "amount_column": "Amount", "role": "seller"}}`
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/preferences/Supplier.xlsx", strings.NewReader(put))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/preferences/supplier.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "supplier.xlsx", data["file_name"])
	config := data["config"].(map[string]interface{})
	assert.Equal(t, "Invoice", config["document_column"])
	assert.Equal(t, "single", config["amount_mode"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/preferences", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/preferences/supplier.xlsx", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPreferences_InvalidMapping(t *testing.T) {
	s := newTestServer(t, openPrefs(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/preferences/a.csv", strings.NewReader(`{"config": {"amount_column": "Amount"}}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferences_Disabled(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/preferences/a.csv", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReconcile_PrefillsFromPreferences(t *testing.T) {
	prefs := openPrefs(t)
	s := newTestServer(t, prefs)

	require.NoError(t, prefs.Save(context.Background(), &preferences.Preference{
		FileName: "theirs.csv",
		Side:     models.SideTheirs,
		Config: parsers.SideConfig{
			DateColumn:     "Date",
			DocumentColumn: "Invoice",
			AmountColumn:   "Amount",
			Role:           models.RoleSeller,
		},
	}))

	config := `{"ours": {"date_column": "Tarih", "document_column": "Belge No", "debit_column": "Borç", "credit_column": "Alacak"}}`
	body, contentType := multipartBody(t, config,
		upload{"ours", "ours.csv", oursCSV},
		upload{"theirs", "theirs.csv", theirsCSV},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode(t, rec)["matched_documents"], 2)
}

func TestRateLimit(t *testing.T) {
	config := DefaultConfig()
	config.RateLimit = 0.001
	config.Burst = 1

	s, err := New(config, nil, nil, nil)
	require.NoError(t, err)

	first := httptest.NewRecorder()
	s.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	s.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", recerrors.ConfigurationError(recerrors.CodeInvalidConfig, "mode", "x", nil), http.StatusBadRequest},
		{"validation", recerrors.ValidationError(recerrors.CodeMissingField, "ours", nil, nil), http.StatusBadRequest},
		{"parse", recerrors.ParseError(recerrors.CodeInvalidFormat, "a.csv", nil), http.StatusBadRequest},
		{"file", recerrors.FileError(recerrors.CodeFileNotFound, "a.csv", nil), http.StatusUnprocessableEntity},
		{"reconciliation", recerrors.ReconciliationError(recerrors.CodeMatchingFailed, "match", nil), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	config := DefaultConfig()
	config.Burst = 0
	assert.Error(t, config.Validate())

	_, err := New(config, nil, nil, nil)
	assert.Error(t, err)
}
