package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MetricAmount   Metric = "amount"
	MetricQuantity Metric = "quantity"
)

const (
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

type (
	// Metric selects the numeric field aggregations operate on.
	Metric string

	// Granularity is the width of a time-series bucket.
	Granularity string

	// RawRecord is one input row keyed by header name.
	RawRecord map[string]string

	// Order is a normalized export row. The typed fields are guaranteed by
	// the parser; every other column lives in Attributes verbatim.
	Order struct {
		OrderID        string
		OrderDateRaw   string
		ParsedDate     time.Time
		TotalOwedRaw   string
		ParsedAmount   decimal.Decimal
		QuantityRaw    string
		ParsedQuantity int64
		Attributes     map[string]string
	}
)

var (
	ErrInvalidMetric      = errors.New("invalid metric")
	ErrInvalidGranularity = errors.New("invalid granularity")

	// ErrMalformedInput marks input that could not be tokenized into rows and columns.
	ErrMalformedInput = errors.New("malformed input")
	// ErrSourceRead marks a failure to obtain the raw input bytes.
	ErrSourceRead = errors.New("source read failed")
)

// MalformedInputError is returned when the whole input is rejected.
type MalformedInputError struct {
	Line int
	Err  error
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed input: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformedInput) match any MalformedInputError.
func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// SourceReadError is returned when the raw source cannot be read.
type SourceReadError struct {
	Source string
	Err    error
}

func (e *SourceReadError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("read source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("read source: %v", e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

func (e *SourceReadError) Is(target error) bool { return target == ErrSourceRead }

// ParseMetric accepts the metric names case-insensitively.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

func (m Metric) Validate() error {
	switch m {
	case MetricAmount, MetricQuantity:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMetric, string(m))
	}
}

// Value returns the order's contribution to the metric.
func (m Metric) Value(o Order) decimal.Decimal {
	if m == MetricQuantity {
		return decimal.NewFromInt(o.ParsedQuantity)
	}
	return o.ParsedAmount
}

// Granularities lists every supported bucket width, narrowest first.
func Granularities() []Granularity {
	return []Granularity{Day, Week, Month, Quarter, Year}
}

func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if err := g.Validate(); err != nil {
		return "", err
	}
	return g, nil
}

func (g Granularity) Validate() error {
	switch g {
	case Day, Week, Month, Quarter, Year:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
	}
}

// Attribute returns the value of a free-form column, "" when absent.
func (o Order) Attribute(column string) string {
	return o.Attributes[column]
}
