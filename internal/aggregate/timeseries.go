package aggregate

import (
	"sort"

	"orderlens/internal/core"

	"github.com/shopspring/decimal"
)

// BucketKeyLayout formats bucket starts into keys that sort chronologically.
const BucketKeyLayout = "2006-01-02"

// BucketByTime sums metric per period of granularity g. Only periods that
// contain at least one order appear, sorted by start ascending. The only
// error is an unknown granularity.
func BucketByTime(orders []core.Order, metric core.Metric, g core.Granularity) (core.TimeSeries, error) {
	bucketer, err := BucketerFor(g)
	if err != nil {
		return nil, err
	}
	return Bucket(orders, metric, bucketer), nil
}

// Bucket runs the bucketing with an explicit strategy.
func Bucket(orders []core.Order, metric core.Metric, b Bucketer) core.TimeSeries {
	index := make(map[string]int)
	series := core.TimeSeries{}
	for _, o := range orders {
		start := b.Start(o.ParsedDate)
		key := start.Format(BucketKeyLayout)
		i, ok := index[key]
		if !ok {
			i = len(series)
			index[key] = i
			series = append(series, core.TimeBucket{
				Key:   key,
				Label: b.Label(start),
				Start: start,
				Value: decimal.Zero,
			})
		}
		series[i].Value = series[i].Value.Add(metric.Value(o))
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Key < series[j].Key })
	return series
}
