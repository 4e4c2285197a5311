package aggregate

import (
	"sort"
	"strings"

	"orderlens/internal/core"

	"github.com/shopspring/decimal"
)

// BreakdownOptions tunes BreakdownBy.
type BreakdownOptions struct {
	// KeepNonPositive keeps groups whose sum is zero or negative. By default
	// they are dropped from both the entries and the others bucket.
	KeepNonPositive bool
}

// BreakdownBy groups orders by the value of column with default options.
func BreakdownBy(orders []core.Order, metric core.Metric, column string, topN int) core.Breakdown {
	return BreakdownWith(orders, metric, column, topN, BreakdownOptions{})
}

// BreakdownWith groups orders by the value of column and sums metric per
// group. Blank values fall into core.EmptyDimensionValue. Groups are sorted
// by sum descending; equal sums keep first-seen order. The first topN groups
// become entries, the rest fold into Others.
func BreakdownWith(orders []core.Order, metric core.Metric, column string, topN int, opts BreakdownOptions) core.Breakdown {
	if topN < 0 {
		topN = 0
	}

	index := make(map[string]int)
	var groups []core.BreakdownEntry
	for _, o := range orders {
		value := o.Attribute(column)
		if strings.TrimSpace(value) == "" {
			value = core.EmptyDimensionValue
		}
		i, ok := index[value]
		if !ok {
			i = len(groups)
			index[value] = i
			groups = append(groups, core.BreakdownEntry{Value: value, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(metric.Value(o))
	}

	if !opts.KeepNonPositive {
		kept := groups[:0]
		for _, g := range groups {
			if g.Total.IsPositive() {
				kept = append(kept, g)
			}
		}
		groups = kept
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Total.GreaterThan(groups[j].Total)
	})

	out := core.Breakdown{
		Column:  column,
		Metric:  metric,
		Entries: []core.BreakdownEntry{},
		Others:  core.OthersBucket{Sum: decimal.Zero},
	}
	for i, g := range groups {
		if i < topN {
			out.Entries = append(out.Entries, g)
			continue
		}
		out.Others.Count++
		out.Others.Sum = out.Others.Sum.Add(g.Total)
	}
	return out
}
