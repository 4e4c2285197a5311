// Package filter decides which orders take part in an aggregation and owns
// the filter specification the presentation layer edits.
//
// A Spec is a value. Every transition returns a new Spec and never touches
// the receiver, so old versions stay valid for comparison or undo.
package filter

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"orderlens/internal/core"
)

// DateRange is an inclusive interval. A nil bound leaves that side open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Inverted reports a range whose start lies after its end. Such a range
// matches nothing.
func (r DateRange) Inverted() bool {
	return r.Start != nil && r.End != nil && r.Start.After(*r.End)
}

// Contains reports whether t falls inside the closed interval.
func (r DateRange) Contains(t time.Time) bool {
	if r.Inverted() {
		return false
	}
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// IsZero reports an unbounded range.
func (r DateRange) IsZero() bool { return r.Start == nil && r.End == nil }

// ValueSet is an immutable set of attribute values.
type ValueSet struct {
	m map[string]struct{}
}

// NewValueSet builds a set from values; duplicates collapse.
func NewValueSet(values ...string) ValueSet {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return ValueSet{m: m}
}

func (s ValueSet) Has(v string) bool {
	_, ok := s.m[v]
	return ok
}

func (s ValueSet) Len() int { return len(s.m) }

// Values returns the members in ascending order.
func (s ValueSet) Values() []string {
	out := make([]string, 0, len(s.m))
	for v := range s.m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// With returns a copy of the set that also holds v.
func (s ValueSet) With(v string) ValueSet {
	m := make(map[string]struct{}, len(s.m)+1)
	for k := range s.m {
		m[k] = struct{}{}
	}
	m[v] = struct{}{}
	return ValueSet{m: m}
}

// Without returns a copy of the set minus v.
func (s ValueSet) Without(v string) ValueSet {
	m := make(map[string]struct{}, len(s.m))
	for k := range s.m {
		if k != v {
			m[k] = struct{}{}
		}
	}
	return ValueSet{m: m}
}

func (s ValueSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// Spec is the complete filter state: a date range, the selected metric and
// per-column exclusion sets.
type Spec struct {
	DateRange  DateRange
	Metric     core.Metric
	exclusions map[string]ValueSet
}

// NewSpec returns an unfiltered spec for metric.
func NewSpec(metric core.Metric) Spec {
	return Spec{Metric: metric}
}

// Default is the initial dashboard state: the previous calendar year,
// summing amounts.
func Default(now time.Time) Spec {
	return NewSpec(core.MetricAmount).SetDateRange(LastYear(now).Start, LastYear(now).End)
}

// Exclusions returns a copy of the column → excluded-values mapping,
// including columns whose set is empty.
func (s Spec) Exclusions() map[string]ValueSet {
	out := make(map[string]ValueSet, len(s.exclusions))
	for k, v := range s.exclusions {
		out[k] = v
	}
	return out
}

// Excluded returns the exclusion set of column and whether the column has
// an entry at all.
func (s Spec) Excluded(column string) (ValueSet, bool) {
	set, ok := s.exclusions[column]
	return set, ok
}

// ActiveFilter summarizes one column that currently hides values.
type ActiveFilter struct {
	Column        string `json:"column"`
	ExcludedCount int    `json:"excluded_count"`
}

// ActiveFilters lists columns with a non-empty exclusion set, by name.
func (s Spec) ActiveFilters() []ActiveFilter {
	var out []ActiveFilter
	for _, col := range s.columns() {
		if n := s.exclusions[col].Len(); n > 0 {
			out = append(out, ActiveFilter{Column: col, ExcludedCount: n})
		}
	}
	return out
}

func (s Spec) columns() []string {
	cols := make([]string, 0, len(s.exclusions))
	for c := range s.exclusions {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Fingerprint is a canonical encoding of the spec. Equal specs produce
// equal fingerprints; it is used as a cache key.
func (s Spec) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(s.Metric))
	b.WriteByte('|')
	if s.DateRange.Start != nil {
		b.WriteString(s.DateRange.Start.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('|')
	if s.DateRange.End != nil {
		b.WriteString(s.DateRange.End.UTC().Format(time.RFC3339Nano))
	}
	for _, col := range s.columns() {
		set := s.exclusions[col]
		if set.Len() == 0 {
			continue
		}
		b.WriteByte('|')
		b.WriteString(strconv.Quote(col))
		b.WriteByte('=')
		for i, v := range set.Values() {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(v))
		}
	}
	return b.String()
}

type specJSON struct {
	DateRange     DateRange           `json:"date_range"`
	Metric        core.Metric         `json:"metric"`
	Exclusions    map[string]ValueSet `json:"exclusions"`
	ActiveFilters []ActiveFilter      `json:"active_filters"`
}

func (s Spec) MarshalJSON() ([]byte, error) {
	active := s.ActiveFilters()
	if active == nil {
		active = []ActiveFilter{}
	}
	return json.Marshal(specJSON{
		DateRange:     s.DateRange,
		Metric:        s.Metric,
		Exclusions:    s.Exclusions(),
		ActiveFilters: active,
	})
}
