package filter

import "orderlens/internal/core"

// Matches reports whether o passes the date check and every column
// exclusion of s. A column missing from the order reads as "".
func Matches(o core.Order, s Spec) bool {
	if !s.DateRange.Contains(o.ParsedDate) {
		return false
	}
	for col, set := range s.exclusions {
		if set.Len() == 0 {
			continue
		}
		if set.Has(o.Attribute(col)) {
			return false
		}
	}
	return true
}

// Apply returns the orders matching s in their original order. The input
// slice is never modified.
func Apply(orders []core.Order, s Spec) []core.Order {
	out := make([]core.Order, 0, len(orders))
	for _, o := range orders {
		if Matches(o, s) {
			out = append(out, o)
		}
	}
	return out
}
