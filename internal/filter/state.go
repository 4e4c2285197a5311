package filter

import (
	"time"

	"orderlens/internal/core"
)

// withColumn copies the exclusion map and stores set under column. The
// copy keeps earlier Spec values independent of the new one.
func (s Spec) withColumn(column string, set ValueSet) Spec {
	next := s.Exclusions()
	next[column] = set
	s.exclusions = next
	return s
}

// SetDateRange replaces the date range. Either bound may be nil.
func (s Spec) SetDateRange(start, end *time.Time) Spec {
	s.DateRange = DateRange{Start: copyTime(start), End: copyTime(end)}
	return s
}

// SetMetric switches the aggregated metric.
func (s Spec) SetMetric(m core.Metric) Spec {
	s.Metric = m
	return s
}

// ExcludeValue adds value to the exclusion set of column.
func (s Spec) ExcludeValue(column, value string) Spec {
	set, _ := s.Excluded(column)
	return s.withColumn(column, set.With(value))
}

// IncludeValue removes value from the exclusion set of column. The column
// entry is kept even when it becomes empty.
func (s Spec) IncludeValue(column, value string) Spec {
	set, _ := s.Excluded(column)
	return s.withColumn(column, set.Without(value))
}

// ToggleValue flips membership of value in the exclusion set of column.
func (s Spec) ToggleValue(column, value string) Spec {
	set, _ := s.Excluded(column)
	if set.Has(value) {
		return s.IncludeValue(column, value)
	}
	return s.ExcludeValue(column, value)
}

// IncludeAll clears the exclusion set of column but keeps its entry.
func (s Spec) IncludeAll(column string) Spec {
	return s.withColumn(column, NewValueSet())
}

// ExcludeAll sets the exclusion set of column to exactly candidates.
func (s Spec) ExcludeAll(column string, candidates []string) Spec {
	return s.withColumn(column, NewValueSet(candidates...))
}

// RemoveColumnFilter deletes the entry for column entirely.
func (s Spec) RemoveColumnFilter(column string) Spec {
	if _, ok := s.exclusions[column]; !ok {
		return s
	}
	next := s.Exclusions()
	delete(next, column)
	s.exclusions = next
	return s
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
