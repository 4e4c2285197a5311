package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderlens/internal/aggregate"
	"orderlens/internal/cache"
	"orderlens/internal/core"
	"orderlens/internal/dashboard"
	"orderlens/internal/log"
	"orderlens/internal/parser"
	"orderlens/internal/storage"

	"github.com/shopspring/decimal"
)

const sampleCSV = `Order ID,Order Date,Total Owed,Quantity,Category,Payment Instrument Type
A1,2024-01-05,12.18,1,Books,Visa
A2,2024-01-05,'-5.77',1,Electronics,Visa
A3,2024-02-10,20.00,2,Books,Amex
A4,2024-03-01,7.50,3,Toys,Visa
A5,,9.00,1,Books,Visa
`

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	logger := log.New(log.Config{Output: io.Discard})
	engine := dashboard.NewEngine(cache.NewLRUCache[dashboard.Snapshot](8, time.Minute), aggregate.BreakdownOptions{}, logger)
	rec := dashboard.NewRecomputer(engine, logger)
	t.Cleanup(rec.Close)

	now := func() time.Time { return testNow }
	defaults := dashboard.View{Granularity: core.Month, BreakdownColumn: "Payment Instrument Type", TopN: 5}
	deps := Deps{
		Session:          dashboard.NewSession(storage.NewMemoryStore(), engine, rec, defaults, now),
		Parser:           parser.New(parser.Options{}),
		Logger:           logger,
		MaxUploadBytes:   1 << 20,
		UploadsPerMinute: 100,
		Now:              now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer("127.0.0.1:0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type uploadResult struct {
	Dataset struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Rows    int    `json:"rows_read"`
		Dropped int    `json:"rows_dropped"`
		Orders  int    `json:"orders"`
	} `json:"dataset"`
	Stats struct {
		Rows        int `json:"rows"`
		Kept        int `json:"kept"`
		MissingDate int `json:"missing_date"`
	} `json:"stats"`
}

type dashboardResult struct {
	DatasetID string `json:"dataset_id"`
	Matched   int    `json:"matched_orders"`
	Summary   struct {
		Total decimal.Decimal `json:"total"`
		Count int             `json:"count"`
	} `json:"summary"`
	Series []struct {
		Key   string          `json:"key"`
		Value decimal.Decimal `json:"value"`
	} `json:"series"`
	Breakdown *struct {
		Column  string `json:"column"`
		Entries []struct {
			Value string          `json:"value"`
			Total decimal.Decimal `json:"total"`
		} `json:"entries"`
	} `json:"breakdown"`
	Stale bool `json:"stale"`
}

func upload(t *testing.T, srv *Server, body string) uploadResult {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/dataset?name=orders.csv", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[uploadResult](t, rec)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}
	ready := decode[readyResponse](t, rec)
	if ready.Status != "ready" || ready.DatasetLoaded {
		t.Fatalf("readyz = %+v", ready)
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", rec.Header())
	}
}

func TestDashboardBeforeUpload(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/api/dashboard", "/api/columns", "/api/columns/Category/values"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("%s status = %d, want 409", path, rec.Code)
		}
	}
	if rec := do(t, srv, http.MethodGet, "/api/dataset", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("dataset status = %d, want 404", rec.Code)
	}
}

func TestUploadAndDashboard(t *testing.T) {
	srv := newTestServer(t, nil)

	res := upload(t, srv, sampleCSV)
	if res.Dataset.Name != "orders.csv" || res.Stats.Rows != 5 || res.Stats.Kept != 4 || res.Stats.MissingDate != 1 {
		t.Fatalf("upload result = %+v", res)
	}
	if res.Dataset.Orders != 4 || res.Dataset.Dropped != 1 {
		t.Fatalf("dataset = %+v", res.Dataset)
	}

	rec := do(t, srv, http.MethodGet, "/api/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d: %s", rec.Code, rec.Body.String())
	}
	snap := decode[dashboardResult](t, rec)
	if snap.DatasetID != res.Dataset.ID || snap.Matched != 4 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.Summary.Total.Equal(decimal.RequireFromString("33.91")) {
		t.Fatalf("total = %s", snap.Summary.Total)
	}
	if len(snap.Series) != 3 || snap.Series[0].Key != "2024-01-01" {
		t.Fatalf("series = %+v", snap.Series)
	}
	if snap.Breakdown == nil || snap.Breakdown.Column != "Payment Instrument Type" || snap.Breakdown.Entries[0].Value != "Amex" {
		t.Fatalf("breakdown = %+v", snap.Breakdown)
	}
}

func TestExcludeValueNarrowsDashboard(t *testing.T) {
	srv := newTestServer(t, nil)
	upload(t, srv, sampleCSV)

	rec := do(t, srv, http.MethodPost, "/api/filter/columns/Payment%20Instrument%20Type/exclude", `{"value":"Amex"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("exclude status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"Payment Instrument Type":["Amex"]`) {
		t.Fatalf("filter state = %s", rec.Body.String())
	}

	snap := decode[dashboardResult](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	if !snap.Summary.Total.Equal(decimal.RequireFromString("13.91")) || snap.Matched != 3 {
		t.Fatalf("filtered snapshot = %+v", snap.Summary)
	}

	rec = do(t, srv, http.MethodPost, "/api/filter/columns/Payment%20Instrument%20Type/toggle", `{"value":"Amex"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	snap = decode[dashboardResult](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	if snap.Matched != 4 {
		t.Fatalf("toggle should re-include Amex, matched = %d", snap.Matched)
	}
}

func TestExcludeAllUsesDatasetValues(t *testing.T) {
	srv := newTestServer(t, nil)
	upload(t, srv, sampleCSV)

	rec := do(t, srv, http.MethodPost, "/api/filter/columns/Category/exclude-all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("exclude-all status = %d: %s", rec.Code, rec.Body.String())
	}
	snap := decode[dashboardResult](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	if snap.Matched != 0 || !snap.Summary.Total.IsZero() {
		t.Fatalf("everything should be excluded: %+v", snap)
	}

	if rec := do(t, srv, http.MethodPost, "/api/filter/columns/Category/include-all", ""); rec.Code != http.StatusOK {
		t.Fatalf("include-all status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/filter/columns/Category", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if strings.Contains(do(t, srv, http.MethodGet, "/api/filter", "").Body.String(), "Category") {
		t.Fatalf("column filter should be removed")
	}
}

func TestMalformedUploadKeepsDataset(t *testing.T) {
	srv := newTestServer(t, nil)
	first := upload(t, srv, sampleCSV)

	rec := do(t, srv, http.MethodPost, "/api/dataset", "Order Date,Total Owed\n2024-01-01,\"12\n")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/dataset", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), first.Dataset.ID) {
		t.Fatalf("previous dataset should survive: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) { d.MaxUploadBytes = 64 })

	rec := do(t, srv, http.MethodPost, "/api/dataset", sampleCSV)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMultipartUpload(t *testing.T) {
	srv := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "Retail.OrderHistory.1.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, sampleCSV)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/dataset", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if res := decode[uploadResult](t, rec); res.Dataset.Name != "Retail.OrderHistory.1.csv" || res.Stats.Kept != 4 {
		t.Fatalf("upload result = %+v", res)
	}
}

func TestMultipartUploadRequiresFile(t *testing.T) {
	srv := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("note", "no file here")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/dataset", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode[ErrorBody](t, rec); body.Field != "file" {
		t.Fatalf("error body = %+v", body)
	}
}

func TestUploadRateLimit(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) { d.UploadsPerMinute = 1 })

	upload(t, srv, sampleCSV)
	rec := do(t, srv, http.MethodPost, "/api/dataset", sampleCSV)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After missing")
	}
}

func TestThrottleCapsRequestRate(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) { d.RequestsPerSecond = 1 })

	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d", rec.Code)
	}
	if srv.throttle.Rejected() != 1 {
		t.Fatalf("expected 1 throttled request, got %d", srv.throttle.Rejected())
	}
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantCode  int
		wantField string
		wantMsg   string
	}{
		{"unknown metric", http.MethodPut, "/api/filter/metric", `{"metric":"bogus"}`, http.StatusBadRequest, "metric", "metric must be one of [amount quantity]"},
		{"missing metric", http.MethodPut, "/api/filter/metric", `{}`, http.StatusBadRequest, "metric", "metric is a required field"},
		{"unknown field", http.MethodPut, "/api/filter/metric", `{"metric":"amount","extra":1}`, http.StatusBadRequest, "", "invalid JSON"},
		{"trailing data", http.MethodPut, "/api/filter/metric", `{"metric":"amount"} {}`, http.StatusBadRequest, "", "unexpected trailing data"},
		{"empty body", http.MethodPost, "/api/filter/preset", ``, http.StatusBadRequest, "", "empty body"},
		{"unknown preset", http.MethodPost, "/api/filter/preset", `{"preset":"forever"}`, http.StatusBadRequest, "preset", "preset must be one of"},
		{"missing value", http.MethodPost, "/api/filter/columns/Category/exclude", `{}`, http.StatusBadRequest, "value", "value is a required field"},
		{"top n too large", http.MethodPut, "/api/view", `{"top_n":51}`, http.StatusBadRequest, "top_n", "top_n must be at most 50"},
		{"top n too small", http.MethodPut, "/api/view", `{"top_n":0}`, http.StatusBadRequest, "top_n", "top_n must be at least 1"},
		{"bad granularity", http.MethodPut, "/api/view", `{"granularity":"hour"}`, http.StatusBadRequest, "granularity", "granularity must be one of"},
		{"bad date", http.MethodPut, "/api/filter/date-range", `{"start":"yesterday"}`, http.StatusBadRequest, "start", "start must be an ISO 8601"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			body := decode[ErrorBody](t, rec)
			if body.Field != tt.wantField || !strings.Contains(body.Error, tt.wantMsg) {
				t.Fatalf("error body = %+v, want field %q containing %q", body, tt.wantField, tt.wantMsg)
			}
		})
	}
}

func TestSetDateRangeDateOnlyEndCoversDay(t *testing.T) {
	srv := newTestServer(t, nil)
	upload(t, srv, sampleCSV)

	rec := do(t, srv, http.MethodPut, "/api/filter/date-range", `{"start":"2024-01-05","end":"2024-01-05"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"end":"2024-01-05T23:59:59.999999999Z"`) {
		t.Fatalf("end bound should cover the whole day: %s", rec.Body.String())
	}
	snap := decode[dashboardResult](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	if snap.Matched != 2 || !snap.Summary.Total.Equal(decimal.RequireFromString("6.41")) {
		t.Fatalf("snapshot = %+v", snap)
	}

	rec = do(t, srv, http.MethodPut, "/api/filter/date-range", `{}`)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `"start"`) {
		t.Fatalf("empty body should clear the range: %s", rec.Body.String())
	}
}

func TestApplyPreset(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/filter/preset", `{"preset":"ytd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"start":"2025-01-01T00:00:00Z"`) {
		t.Fatalf("ytd should start on Jan 1: %s", rec.Body.String())
	}
}

func TestSetViewAndMetric(t *testing.T) {
	srv := newTestServer(t, nil)
	upload(t, srv, sampleCSV)

	rec := do(t, srv, http.MethodPut, "/api/view", `{"granularity":"year","breakdown_column":"Category","top_n":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("view status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, srv, http.MethodPut, "/api/filter/metric", `{"metric":"quantity"}`); rec.Code != http.StatusOK {
		t.Fatalf("metric status = %d", rec.Code)
	}

	snap := decode[dashboardResult](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	if !snap.Summary.Total.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("quantity total = %s", snap.Summary.Total)
	}
	if len(snap.Series) != 1 || snap.Series[0].Key != "2024-01-01" {
		t.Fatalf("series = %+v", snap.Series)
	}
	if snap.Breakdown == nil || len(snap.Breakdown.Entries) != 1 || snap.Breakdown.Entries[0].Value != "Books" {
		t.Fatalf("breakdown = %+v", snap.Breakdown)
	}

	rec = do(t, srv, http.MethodPut, "/api/view", `{"breakdown_column":"Nope"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown column status = %d", rec.Code)
	}
}

func TestColumnValues(t *testing.T) {
	srv := newTestServer(t, nil)
	upload(t, srv, sampleCSV)

	rec := do(t, srv, http.MethodGet, "/api/columns", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Category","Payment Instrument Type"`) {
		t.Fatalf("columns = %d %s", rec.Code, rec.Body.String())
	}

	do(t, srv, http.MethodPost, "/api/filter/columns/Category/exclude", `{"value":"Toys"}`)
	rec = do(t, srv, http.MethodGet, "/api/columns/Category/values?q=t", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("values status = %d", rec.Code)
	}
	got := decode[columnValuesResponse](t, rec)
	if got.Total != 3 || len(got.Values) != 2 {
		t.Fatalf("values = %+v", got)
	}
	if got.Values[0] != (columnValue{Value: "Electronics"}) || got.Values[1] != (columnValue{Value: "Toys", Excluded: true}) {
		t.Fatalf("values = %+v", got.Values)
	}
}

func TestNewUploadResetsFilter(t *testing.T) {
	srv := newTestServer(t, nil)
	upload(t, srv, sampleCSV)
	do(t, srv, http.MethodPost, "/api/filter/columns/Category/exclude", `{"value":"Books"}`)

	upload(t, srv, sampleCSV)
	if strings.Contains(do(t, srv, http.MethodGet, "/api/filter", "").Body.String(), "Books") {
		t.Fatalf("new upload should reset exclusions")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound || decode[ErrorBody](t, rec).Error == "" {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
