package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"orderlens/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const dateLayout = "Jan 2, 2006"

// Render writes r in the given format. Text output formats numbers for tag.
func Render(w io.Writer, r Report, format Format, tag language.Tag) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, r)
	case FormatText, "":
		return RenderText(w, r, message.NewPrinter(tag))
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// RenderJSON writes r as indented JSON.
func RenderJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderText writes r as aligned plain-text sections.
func RenderText(w io.Writer, r Report, p *message.Printer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	metric := r.Filter.Metric

	fmt.Fprintf(tw, "Source\t%s\n", r.Source)
	fmt.Fprintf(tw, "Rows\t%s read, %s kept, %s dropped\n",
		p.Sprintf("%d", r.Input.Rows), p.Sprintf("%d", r.Input.Kept), p.Sprintf("%d", r.Input.Dropped))
	fmt.Fprintf(tw, "Period\t%s\n", describeRange(r))
	fmt.Fprintf(tw, "Metric\t%s\n", metric)
	for _, af := range r.Filter.ActiveFilters() {
		set, _ := r.Filter.Excluded(af.Column)
		fmt.Fprintf(tw, "Excluding\t%s: %s\n", af.Column, strings.Join(set.Values(), ", "))
	}

	fmt.Fprintf(tw, "\nSummary\n")
	fmt.Fprintf(tw, "  Total\t%s\n", formatValue(p, metric, r.Summary.Total))
	fmt.Fprintf(tw, "  Orders\t%s\n", p.Sprintf("%d", r.Summary.Count))
	fmt.Fprintf(tw, "  Average\t%s\n", formatDecimal(p, r.Summary.Average))
	if r.Summary.MinDate != nil && r.Summary.MaxDate != nil {
		fmt.Fprintf(tw, "  First order\t%s\n", r.Summary.MinDate.Format(dateLayout))
		fmt.Fprintf(tw, "  Last order\t%s\n", r.Summary.MaxDate.Format(dateLayout))
	}

	fmt.Fprintf(tw, "\nBy %s\n", r.View.Granularity)
	if len(r.Series) == 0 {
		fmt.Fprintf(tw, "  no matching orders\n")
	}
	for _, b := range r.Series {
		fmt.Fprintf(tw, "  %s\t%s\n", b.Label, formatValue(p, metric, b.Value))
	}

	if b := r.Breakdown; b != nil {
		fmt.Fprintf(tw, "\nBy %s (top %d)\n", b.Column, r.View.TopN)
		if len(b.Entries) == 0 {
			fmt.Fprintf(tw, "  no matching orders\n")
		}
		for _, e := range b.Entries {
			fmt.Fprintf(tw, "  %s\t%s\n", e.Value, formatValue(p, metric, e.Total))
		}
		if b.Others.Count > 0 {
			fmt.Fprintf(tw, "  %s\t%s\n", p.Sprintf("Others (%d)", b.Others.Count), formatValue(p, metric, b.Others.Sum))
		}
	}
	return tw.Flush()
}

func describeRange(r Report) string {
	rng := r.Filter.DateRange
	switch {
	case rng.Start == nil && rng.End == nil:
		return "all time"
	case rng.Start == nil:
		return "until " + rng.End.Format(dateLayout)
	case rng.End == nil:
		return "from " + rng.Start.Format(dateLayout)
	default:
		return rng.Start.Format(dateLayout) + " to " + rng.End.Format(dateLayout)
	}
}

// formatValue prints amounts with two decimals and quantities as integers.
func formatValue(p *message.Printer, metric core.Metric, d decimal.Decimal) string {
	if metric == core.MetricQuantity {
		return p.Sprintf("%d", d.IntPart())
	}
	return formatDecimal(p, d)
}

func formatDecimal(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f", d.Round(2).InexactFloat64())
}
