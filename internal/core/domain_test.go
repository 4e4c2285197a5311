package core

import (
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMetric(t *testing.T) {
	cases := []struct {
		in   string
		want Metric
		ok   bool
	}{
		{"amount", MetricAmount, true},
		{" Quantity ", MetricQuantity, true},
		{"", "", false},
		{"price", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMetric(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidMetric) {
			t.Fatalf("%q expected ErrInvalidMetric, got %v", tc.in, err)
		}
	}
}

func TestMetricValue(t *testing.T) {
	o := Order{ParsedAmount: decimal.RequireFromString("-5.77"), ParsedQuantity: 3}
	if got := MetricAmount.Value(o); !got.Equal(decimal.RequireFromString("-5.77")) {
		t.Fatalf("amount value = %s", got)
	}
	if got := MetricQuantity.Value(o); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("quantity value = %s", got)
	}
}

func TestParseGranularity(t *testing.T) {
	for _, g := range Granularities() {
		got, err := ParseGranularity(string(g))
		if err != nil || got != g {
			t.Fatalf("%q round trip failed: %q %v", g, got, err)
		}
	}
	if _, err := ParseGranularity("decade"); !errors.Is(err, ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	var err error = &MalformedInputError{Line: 3, Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("MalformedInputError should match ErrMalformedInput")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("MalformedInputError should unwrap its cause")
	}
	if err.Error() != "malformed input at line 3: unexpected EOF" {
		t.Fatalf("unexpected message: %s", err.Error())
	}

	err = &SourceReadError{Source: "orders.csv", Err: io.ErrClosedPipe}
	if !errors.Is(err, ErrSourceRead) || errors.Is(err, ErrMalformedInput) {
		t.Fatalf("SourceReadError sentinel mismatch")
	}
}

func TestOrderAttributeMissing(t *testing.T) {
	o := Order{}
	if o.Attribute("Category") != "" {
		t.Fatalf("missing attribute should be empty")
	}
}
