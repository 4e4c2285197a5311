// Package aggregate computes the presentation-ready views of a filtered
// order set: summary totals, time series and categorical breakdowns.
//
// Every function is pure and deterministic. Empty input yields zero values,
// never an error.
package aggregate

import (
	"time"

	"orderlens/internal/core"

	"github.com/shopspring/decimal"
)

// Summarize totals metric over orders.
func Summarize(orders []core.Order, metric core.Metric) core.SummaryStats {
	stats := core.SummaryStats{
		Metric:      metric,
		Total:       decimal.Zero,
		Average:     decimal.Zero,
		TotalAmount: decimal.Zero,
	}
	var minDate, maxDate time.Time
	for i, o := range orders {
		stats.Total = stats.Total.Add(metric.Value(o))
		stats.TotalAmount = stats.TotalAmount.Add(o.ParsedAmount)
		stats.TotalQuantity += o.ParsedQuantity
		if i == 0 || o.ParsedDate.Before(minDate) {
			minDate = o.ParsedDate
		}
		if i == 0 || o.ParsedDate.After(maxDate) {
			maxDate = o.ParsedDate
		}
	}
	stats.Count = len(orders)
	if stats.Count == 0 {
		return stats
	}
	stats.Average = stats.Total.Div(decimal.NewFromInt(int64(stats.Count)))
	stats.MinDate = &minDate
	stats.MaxDate = &maxDate
	return stats
}
