// Package dashboard assembles the filtered aggregates shown together on the
// dashboard and keeps recomputation off the request path.
package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"orderlens/internal/core"
)

// MaxTopN bounds View.TopN.
const MaxTopN = 50

// View holds the presentation choices that are not part of the filter:
// time-series width and the breakdown dimension.
type View struct {
	Granularity     core.Granularity `json:"granularity"`
	BreakdownColumn string           `json:"breakdown_column"`
	TopN            int              `json:"top_n"`
}

// Validate rejects unknown granularities and sizes outside 1..MaxTopN.
func (v View) Validate() error {
	if err := v.Granularity.Validate(); err != nil {
		return err
	}
	if v.TopN < 1 || v.TopN > MaxTopN {
		return fmt.Errorf("top_n %d out of range 1..%d", v.TopN, MaxTopN)
	}
	return nil
}

func (v View) key() string {
	var b strings.Builder
	b.WriteString(string(v.Granularity))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(v.BreakdownColumn))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(v.TopN))
	return b.String()
}

// resolveColumn keeps the chosen breakdown column when the dataset has it
// and otherwise falls back to the first available one.
func (v View) resolveColumn(columns []string) View {
	for _, c := range columns {
		if c == v.BreakdownColumn {
			return v
		}
	}
	if len(columns) > 0 {
		v.BreakdownColumn = columns[0]
	} else {
		v.BreakdownColumn = ""
	}
	return v
}
