// Package report produces a one-shot summary of an order export: the same
// summary, time series and breakdown the dashboard shows, rendered for a
// terminal or as JSON.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"orderlens/internal/aggregate"
	"orderlens/internal/core"
	"orderlens/internal/dashboard"
	"orderlens/internal/filter"
	"orderlens/internal/parser"
)

// ErrUnknownColumn is returned when the breakdown column does not occur in
// the export.
var ErrUnknownColumn = errors.New("unknown column")

// Options selects the aggregations of a report. An empty
// View.BreakdownColumn skips the breakdown.
type Options struct {
	dashboard.View
	Breakdown aggregate.BreakdownOptions
}

// InputStats describes the parsed export.
type InputStats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// Report is everything a renderer prints.
type Report struct {
	Source      string            `json:"source"`
	GeneratedAt time.Time         `json:"generated_at"`
	Input       InputStats        `json:"input"`
	Filter      filter.Spec       `json:"filter"`
	Matched     int               `json:"matched_orders"`
	Summary     core.SummaryStats `json:"summary"`
	View        dashboard.View    `json:"view"`
	Series      core.TimeSeries   `json:"series"`
	Breakdown   *core.Breakdown   `json:"breakdown,omitempty"`
}

// Build filters orders with spec and aggregates the result.
func Build(source string, orders []core.Order, stats parser.Stats, spec filter.Spec, opts Options, now time.Time) (Report, error) {
	if err := spec.Metric.Validate(); err != nil {
		return Report{}, err
	}
	if err := opts.View.Validate(); err != nil {
		return Report{}, err
	}
	if opts.BreakdownColumn != "" {
		columns := aggregate.Columns(orders)
		if !containsString(columns, opts.BreakdownColumn) {
			return Report{}, fmt.Errorf("%w %q, available: %s", ErrUnknownColumn, opts.BreakdownColumn, strings.Join(columns, ", "))
		}
	}

	matched := filter.Apply(orders, spec)
	series, err := aggregate.BucketByTime(matched, spec.Metric, opts.Granularity)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		Source:      source,
		GeneratedAt: now,
		Input:       InputStats{Rows: stats.Rows, Kept: stats.Kept, Dropped: stats.Dropped()},
		Filter:      spec,
		Matched:     len(matched),
		Summary:     aggregate.Summarize(matched, spec.Metric),
		View:        opts.View,
		Series:      series,
	}
	if opts.BreakdownColumn != "" {
		b := aggregate.BreakdownWith(matched, spec.Metric, opts.BreakdownColumn, opts.TopN, opts.Breakdown)
		r.Breakdown = &b
	}
	return r, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
