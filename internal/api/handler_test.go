package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/card-statement-ledger/internal/categorizer"
	"github.com/insightdelivered/card-statement-ledger/internal/extractor"
	"github.com/insightdelivered/card-statement-ledger/internal/metrics"
	"github.com/insightdelivered/card-statement-ledger/internal/models"
	"github.com/insightdelivered/card-statement-ledger/internal/pipeline"
)

const statementText = `04/02  UBER *TRIP HELP.UBER.COM   $18.20
04/03  STARBUCKS STORE #9          $5.25
04/20  AUTOPAY PAYMENT - THANK YOU ($200.00)`

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	p := pipeline.New(pipeline.Config{Budget: decimal.NewFromInt(100)}, zerolog.Nop(), nil)
	return New(p, Options{Version: "test", Logger: zerolog.Nop()}).App()
}

type part struct {
	field    string
	filename string
	content  string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, p := range parts {
		if p.filename != "" {
			fw, err := mw.CreateFormFile(p.field, p.filename)
			require.NoError(t, err)
			_, err = fw.Write([]byte(p.content))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, mw.WriteField(p.field, p.content))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/extract", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "fiber", result["engine"])
	assert.Equal(t, "test", result["version"])
}

func TestRequestID(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))
}

func TestExtractEndpointRequiresFile(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest("POST", "/api/extract", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=----test")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(multipartRequest(t, part{field: "card", content: "Sapphire"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	result := decode[errorResponse](t, resp)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no statement uploaded")
}

func TestExtractEndpoint_ExtractedText(t *testing.T) {
	app := setupTestApp(t)

	req := multipartRequest(t,
		part{field: "extractedText", content: statementText + extractor.PageBreak + "04/21  SWEETGREEN 44   $14.00"},
		part{field: "filename", content: "april.pdf"},
		part{field: "card", content: "Venture"},
		part{field: "billingYear", content: "2024"},
	)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decode[ExtractResponse](t, resp)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Count)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "april.pdf", result.Files[0].Source)
	assert.Equal(t, 1, result.Files[0].Payments)

	require.Len(t, result.Transactions, 3)
	assert.Equal(t, "Venture", result.Transactions[0].Card)
	assert.Equal(t, "Transportation", result.Transactions[0].Category)
	assert.Equal(t, "Coffee Shops", result.Transactions[1].Subcategory)
	assert.Equal(t, 2, result.Transactions[2].Page)
	assert.True(t, result.TotalSpend.Equal(decimal.RequireFromString("37.45")), "spend %s", result.TotalSpend)
	assert.True(t, result.Remaining.Equal(decimal.RequireFromString("62.55")), "remaining %s", result.Remaining)
}

func TestExtractEndpoint_IncludePayments(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t,
		part{field: "extractedText", content: statementText},
		part{field: "billingYear", content: "2024"},
		part{field: "includePayments", content: "true"},
	))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decode[ExtractResponse](t, resp)
	require.Len(t, result.Transactions, 3)
	assert.Equal(t, models.TypePayment, result.Transactions[2].Type)
	assert.True(t, result.Transactions[2].Amount.Equal(decimal.RequireFromString("-200")))
}

func TestExtractEndpoint_BadFilesAreIsolated(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t,
		part{field: "files", filename: "notes.txt", content: "hello"},
		part{field: "files", filename: "broken.pdf", content: "not really a pdf"},
		part{field: "extractedText", content: statementText},
		part{field: "billingYear", content: "2024"},
	))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decode[ExtractResponse](t, resp)
	require.Len(t, result.Files, 3)
	assert.Equal(t, "notes.txt", result.Files[0].Source)
	assert.Contains(t, result.Files[0].Err, "only PDF")
	assert.Equal(t, "broken.pdf", result.Files[1].Source)
	assert.NotEmpty(t, result.Files[1].Err)
	assert.Empty(t, result.Files[2].Err)
	assert.Equal(t, 2, result.Count)
}

func TestExtractEndpoint_InvalidOptions(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		name  string
		field string
		value string
	}{
		{"billing year", "billingYear", "soon"},
		{"include payments", "includePayments", "maybe"},
		{"issuer", "issuer", "monzo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(multipartRequest(t,
				part{field: "extractedText", content: statementText},
				part{field: tt.field, content: tt.value},
			))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCategorizeEndpoint(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest("POST", "/api/categorize",
		strings.NewReader(`{"descriptions":["STARBUCKS 123","ACME WIDGETS"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decode[struct {
		Results []Categorization `json:"results"`
	}](t, resp)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "Dining", result.Results[0].Category)
	assert.Equal(t, "coffee", result.Results[0].Rule)
	assert.Equal(t, categorizer.FallbackCategory, result.Results[1].Category)
	assert.Equal(t, categorizer.FallbackSubcategory, result.Results[1].Subcategory)
	assert.Empty(t, result.Results[1].Rule)
}

func TestCategorizeEndpoint_Empty(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest("POST", "/api/categorize", strings.NewReader(`{"descriptions":[]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRulesEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/rules", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decode[struct {
		Rules []RuleView `json:"rules"`
	}](t, resp)
	require.Len(t, result.Rules, len(categorizer.DefaultRules()))
	assert.Equal(t, 1, result.Rules[0].Position)
	assert.Equal(t, "coffee", result.Rules[0].Name)
	assert.Contains(t, result.Rules[0].Matcher, "starbucks")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector("ledger")
	require.NoError(t, collector.Register(reg))

	p := pipeline.New(pipeline.Config{}, zerolog.Nop(), collector)
	app := New(p, Options{Gatherer: reg, Logger: zerolog.Nop()}).App()

	resp, err := app.Test(multipartRequest(t,
		part{field: "extractedText", content: statementText},
		part{field: "billingYear", content: "2024"},
	))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ledger_files_total{issuer="generic",status="ok"} 1`)
	assert.Contains(t, string(body), `ledger_transactions_total{issuer="generic"} 2`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
