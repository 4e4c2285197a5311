package aggregate

import (
	"sort"
	"strings"

	"orderlens/internal/core"

	"golang.org/x/text/cases"
)

// Columns lists the attribute names usable as breakdown or filter
// dimensions, sorted. Names in skip are left out.
func Columns(orders []core.Order, skip ...string) []string {
	seen := make(map[string]struct{})
	for _, s := range skip {
		seen[s] = struct{}{}
	}
	var out []string
	for _, o := range orders {
		for name := range o.Attributes {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// DistinctValues returns the non-blank values of column, sorted.
func DistinctValues(orders []core.Order, column string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, o := range orders {
		v := o.Attribute(column)
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SearchValues keeps the values containing query, compared under Unicode
// case folding. An empty query returns values unchanged.
func SearchValues(values []string, query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return values
	}
	fold := cases.Fold()
	needle := fold.String(query)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.Contains(fold.String(v), needle) {
			out = append(out, v)
		}
	}
	return out
}
