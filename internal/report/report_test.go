package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"orderlens/internal/core"
	"orderlens/internal/dashboard"
	"orderlens/internal/filter"
	"orderlens/internal/parser"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const sampleCSV = `Order ID,Order Date,Total Owed,Quantity,Category,Payment Instrument Type
A1,2024-01-05,12.18,1,Books,Visa
A2,2024-01-05,'-5.77',1,Electronics,Visa
A3,2024-02-10,20.00,2,Books,Amex
A4,2024-03-01,7.50,3,Toys,Visa
A5,,9.00,1,Books,Visa
`

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func load(t *testing.T) ([]core.Order, parser.Stats) {
	t.Helper()
	orders, stats, err := parser.New(parser.Options{}).Parse(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return orders, stats
}

func defaultOptions() Options {
	return Options{View: dashboard.View{Granularity: core.Month, BreakdownColumn: "Payment Instrument Type", TopN: 1}}
}

func TestBuild(t *testing.T) {
	orders, stats := load(t)
	r, err := Build("orders.csv", orders, stats, filter.NewSpec(core.MetricAmount), defaultOptions(), testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.Input != (InputStats{Rows: 5, Kept: 4, Dropped: 1}) {
		t.Fatalf("unexpected input stats %+v", r.Input)
	}
	if r.Matched != 4 || !r.Summary.Total.Equal(decimal.RequireFromString("33.91")) {
		t.Fatalf("unexpected summary: matched=%d total=%s", r.Matched, r.Summary.Total)
	}
	if len(r.Series) != 3 || r.Series[0].Label != "Jan 2024" {
		t.Fatalf("unexpected series %+v", r.Series)
	}
	if r.Breakdown == nil || len(r.Breakdown.Entries) != 1 || r.Breakdown.Entries[0].Value != "Amex" {
		t.Fatalf("unexpected breakdown %+v", r.Breakdown)
	}
	if r.Breakdown.Others.Count != 1 || !r.Breakdown.Others.Sum.Equal(decimal.RequireFromString("13.91")) {
		t.Fatalf("unexpected others %+v", r.Breakdown.Others)
	}
}

func TestBuildWithoutBreakdown(t *testing.T) {
	orders, stats := load(t)
	opts := defaultOptions()
	opts.BreakdownColumn = ""
	r, err := Build("orders.csv", orders, stats, filter.NewSpec(core.MetricAmount), opts, testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.Breakdown != nil {
		t.Fatalf("expected no breakdown, got %+v", r.Breakdown)
	}
}

func TestBuildRejects(t *testing.T) {
	orders, stats := load(t)
	spec := filter.NewSpec(core.MetricAmount)

	opts := defaultOptions()
	opts.BreakdownColumn = "Seller"
	if _, err := Build("x", orders, stats, spec, opts, testNow); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}

	opts = defaultOptions()
	opts.TopN = 0
	if _, err := Build("x", orders, stats, spec, opts, testNow); err == nil {
		t.Fatal("expected error for top 0")
	}

	opts = defaultOptions()
	opts.Granularity = "fortnight"
	if _, err := Build("x", orders, stats, spec, opts, testNow); !errors.Is(err, core.ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}

	if _, err := Build("x", orders, stats, filter.NewSpec("weight"), defaultOptions(), testNow); !errors.Is(err, core.ErrInvalidMetric) {
		t.Fatalf("expected ErrInvalidMetric, got %v", err)
	}
}

func TestRenderText(t *testing.T) {
	orders, stats := load(t)
	spec := filter.NewSpec(core.MetricAmount).ExcludeValue("Category", "Toys")
	opts := defaultOptions()
	opts.TopN = 5
	r, err := Build("orders.csv", orders, stats, spec, opts, testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var buf bytes.Buffer
	if err := Render(&buf, r, FormatText, language.AmericanEnglish); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"orders.csv",
		"5 read, 4 kept, 1 dropped",
		"all time",
		"Category: Toys",
		"26.41",
		"8.80",
		"Jan 5, 2024",
		"Feb 10, 2024",
		"Jan 2024",
		"By Payment Instrument Type (top 5)",
		"Amex",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Others") {
		t.Fatalf("unexpected others line:\n%s", out)
	}
}

func TestRenderTextEmpty(t *testing.T) {
	orders, stats := load(t)
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := filter.NewSpec(core.MetricAmount).SetDateRange(&start, nil)
	r, err := Build("orders.csv", orders, stats, spec, defaultOptions(), testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderText(&buf, r, message.NewPrinter(language.AmericanEnglish)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "from Jan 1, 2030") || !strings.Contains(out, "no matching orders") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "First order") {
		t.Fatalf("empty report must not print order dates:\n%s", out)
	}
}

func TestRenderJSON(t *testing.T) {
	orders, stats := load(t)
	r, err := Build("orders.csv", orders, stats, filter.NewSpec(core.MetricQuantity), defaultOptions(), testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := Render(&buf, r, FormatJSON, language.AmericanEnglish); err != nil {
		t.Fatalf("render: %v", err)
	}

	var got struct {
		Source  string `json:"source"`
		Matched int    `json:"matched_orders"`
		View    struct {
			TopN int `json:"top_n"`
		} `json:"view"`
		Filter struct {
			Metric string `json:"metric"`
		} `json:"filter"`
		Summary struct {
			Total string `json:"total"`
		} `json:"summary"`
		Breakdown *struct {
			Column string `json:"column"`
		} `json:"breakdown"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.Source != "orders.csv" || got.Matched != 4 || got.View.TopN != 1 || got.Filter.Metric != "quantity" {
		t.Fatalf("unexpected report %+v", got)
	}
	if got.Summary.Total != "7" {
		t.Fatalf("expected quantity total 7, got %q", got.Summary.Total)
	}
	if got.Breakdown == nil || got.Breakdown.Column != "Payment Instrument Type" {
		t.Fatalf("unexpected breakdown %+v", got.Breakdown)
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if err := Render(&bytes.Buffer{}, Report{}, "yaml", language.AmericanEnglish); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFormatValue(t *testing.T) {
	p := message.NewPrinter(language.AmericanEnglish)
	tests := []struct {
		metric core.Metric
		in     string
		want   string
	}{
		{core.MetricAmount, "1234.5", "1,234.50"},
		{core.MetricAmount, "-5.77", "-5.77"},
		{core.MetricAmount, "0", "0.00"},
		{core.MetricQuantity, "1234", "1,234"},
	}
	for _, tt := range tests {
		if got := formatValue(p, tt.metric, decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("formatValue(%s, %s) = %q, want %q", tt.metric, tt.in, got, tt.want)
		}
	}
}
