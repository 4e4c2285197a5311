// Package parser turns a delimited order-history export into normalized
// orders.
//
// Malformed rows never fail a parse. A row without a date or amount cell, or
// with a date that cannot be read, is dropped; bad amounts and quantities
// normalize to zero. Only input that cannot be tokenized at all is rejected
// with a *core.MalformedInputError.
package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"orderlens/internal/core"
)

// Default column names of the Amazon "Retail.OrderHistory" export.
const (
	DefaultIDColumn       = "Order ID"
	DefaultDateColumn     = "Order Date"
	DefaultAmountColumn   = "Total Owed"
	DefaultQuantityColumn = "Quantity"
)

const utf8BOM = "\uFEFF"

// ctxCheckEvery bounds how many rows are read between cancellation checks.
const ctxCheckEvery = 1024

// Options configures column mapping and date interpretation.
type Options struct {
	IDColumn       string
	DateColumn     string
	AmountColumn   string
	QuantityColumn string
	// Delimiter defaults to ','.
	Delimiter rune
	// Location is used for zone-less dates and as the output zone of every
	// parsed date. Defaults to UTC.
	Location *time.Location
	Logger   *slog.Logger
}

// DefaultOptions returns the mapping for the stock export.
func DefaultOptions() Options {
	return Options{
		IDColumn:       DefaultIDColumn,
		DateColumn:     DefaultDateColumn,
		AmountColumn:   DefaultAmountColumn,
		QuantityColumn: DefaultQuantityColumn,
		Delimiter:      ',',
		Location:       time.UTC,
	}
}

// Stats describes what happened to the rows of one parse.
type Stats struct {
	Rows            int
	Kept            int
	MissingDate     int
	MissingAmount   int
	UnparseableDate int
}

// Dropped is the number of rows that did not become orders.
func (s Stats) Dropped() int { return s.Rows - s.Kept }

// Parser converts exports using a fixed set of Options.
type Parser struct {
	opts   Options
	logger *slog.Logger
}

// New fills unset options from DefaultOptions.
func New(opts Options) *Parser {
	def := DefaultOptions()
	if opts.IDColumn == "" {
		opts.IDColumn = def.IDColumn
	}
	if opts.DateColumn == "" {
		opts.DateColumn = def.DateColumn
	}
	if opts.AmountColumn == "" {
		opts.AmountColumn = def.AmountColumn
	}
	if opts.QuantityColumn == "" {
		opts.QuantityColumn = def.QuantityColumn
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = def.Delimiter
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{opts: opts, logger: logger}
}

// Options returns the effective options.
func (p *Parser) Options() Options { return p.opts }

// Parse parses r with the default options.
func Parse(r io.Reader) ([]core.Order, error) {
	orders, _, err := New(Options{}).Parse(context.Background(), r)
	return orders, err
}

// Parse reads the whole export. Orders keep input row order.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]core.Order, Stats, error) {
	var stats Stats

	reader := csv.NewReader(r)
	reader.Comma = p.opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, &core.MalformedInputError{Err: errors.New("missing header row")}
		}
		return nil, stats, classifyReadError(err)
	}
	columns := normalizeHeader(header)
	for _, required := range []string{p.opts.DateColumn, p.opts.AmountColumn} {
		if !contains(columns, required) {
			return nil, stats, &core.MalformedInputError{Line: 1, Err: fmt.Errorf("missing required column %q", required)}
		}
	}

	var orders []core.Order
	for {
		if stats.Rows%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, classifyReadError(err)
		}
		stats.Rows++

		order, ok := p.buildOrder(columns, record, &stats)
		if !ok {
			continue
		}
		orders = append(orders, order)
		stats.Kept++
	}

	p.logger.DebugContext(ctx, "Export parsed",
		"operation", "parse",
		"rows", stats.Rows,
		"kept", stats.Kept,
		"missing_date", stats.MissingDate,
		"missing_amount", stats.MissingAmount,
		"unparseable_date", stats.UnparseableDate)

	return orders, stats, nil
}

// buildOrder zips one record with the header. The record slice is reused by
// the reader; only the strings are kept.
func (p *Parser) buildOrder(columns []string, record []string, stats *Stats) (core.Order, bool) {
	raw := make(core.RawRecord, len(columns))
	for i, name := range columns {
		if i < len(record) {
			raw[name] = record[i]
		} else {
			raw[name] = ""
		}
	}

	dateRaw := raw[p.opts.DateColumn]
	amountRaw := raw[p.opts.AmountColumn]
	if strings.TrimSpace(dateRaw) == "" {
		stats.MissingDate++
		return core.Order{}, false
	}
	if strings.TrimSpace(amountRaw) == "" {
		stats.MissingAmount++
		return core.Order{}, false
	}
	date, err := core.ParseOrderDate(dateRaw, p.opts.Location)
	if err != nil {
		stats.UnparseableDate++
		return core.Order{}, false
	}

	quantityRaw := raw[p.opts.QuantityColumn]
	order := core.Order{
		OrderID:        raw[p.opts.IDColumn],
		OrderDateRaw:   dateRaw,
		ParsedDate:     date,
		TotalOwedRaw:   amountRaw,
		ParsedAmount:   core.ParseAmount(amountRaw),
		QuantityRaw:    quantityRaw,
		ParsedQuantity: core.ParseQuantity(quantityRaw),
		Attributes:     make(map[string]string, len(raw)),
	}
	for name, value := range raw {
		if p.isCoreColumn(name) {
			continue
		}
		order.Attributes[name] = value
	}
	return order, true
}

// CoreColumns lists the column names mapped onto typed Order fields.
func (p *Parser) CoreColumns() []string {
	return []string{p.opts.IDColumn, p.opts.DateColumn, p.opts.AmountColumn, p.opts.QuantityColumn}
}

func (p *Parser) isCoreColumn(name string) bool {
	return contains(p.CoreColumns(), name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// normalizeHeader trims names, drops a leading BOM and renames duplicates
// to name_1, name_2 so no column is silently overwritten.
func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimSpace(strings.TrimPrefix(name, utf8BOM))
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n)
		} else {
			seen[name] = 1
		}
		columns[i] = name
	}
	return columns
}

// classifyReadError separates tokenizer failures from I/O failures.
func classifyReadError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &core.MalformedInputError{Line: perr.Line, Err: perr.Err}
	}
	return &core.SourceReadError{Err: fmt.Errorf("read csv: %w", err)}
}
