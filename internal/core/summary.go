package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmptyDimensionValue stands in for a missing or blank attribute in a breakdown.
const EmptyDimensionValue = "(empty)"

// SummaryStats totals the selected metric over a filtered order set.
// MinDate and MaxDate are nil when the set is empty.
type SummaryStats struct {
	Metric        Metric          `json:"metric"`
	Total         decimal.Decimal `json:"total"`
	Count         int             `json:"count"`
	Average       decimal.Decimal `json:"average"`
	MinDate       *time.Time      `json:"min_date,omitempty"`
	MaxDate       *time.Time      `json:"max_date,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalQuantity int64           `json:"total_quantity"`
}

// TimeBucket is one period of a time series. Key is the bucket start as
// 2006-01-02 and is what the series is ordered by.
type TimeBucket struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Start time.Time       `json:"start"`
	Value decimal.Decimal `json:"value"`
}

// TimeSeries is ordered by bucket start ascending.
type TimeSeries []TimeBucket

// Total sums every bucket.
func (ts TimeSeries) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, b := range ts {
		sum = sum.Add(b.Value)
	}
	return sum
}

// BreakdownEntry is the metric total of one dimension value.
type BreakdownEntry struct {
	Value string          `json:"value"`
	Total decimal.Decimal `json:"total"`
}

// OthersBucket folds every group past the top N.
type OthersBucket struct {
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Breakdown is sorted by Total descending and truncated to the requested size.
type Breakdown struct {
	Column  string           `json:"column"`
	Metric  Metric           `json:"metric"`
	Entries []BreakdownEntry `json:"entries"`
	Others  OthersBucket     `json:"others"`
}

// Total sums the visible entries and the others bucket.
func (b Breakdown) Total() decimal.Decimal {
	sum := b.Others.Sum
	for _, e := range b.Entries {
		sum = sum.Add(e.Total)
	}
	return sum
}
