// Command orderlens-report prints the dashboard aggregates of an order
// history export without starting the server.
//
// Usage:
//
//	orderlens-report [flags] [FILE]
//
// FILE defaults to standard input. Column names and the timezone come from
// the same environment variables the server reads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"orderlens/internal/aggregate"
	"orderlens/internal/cli"
	"orderlens/internal/config"
	"orderlens/internal/core"
	"orderlens/internal/dashboard"
	"orderlens/internal/filter"
	"orderlens/internal/log"
	"orderlens/internal/parser"
	"orderlens/internal/report"

	"golang.org/x/text/language"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	cli.LoadEnvFile()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, time.Now)
	stop()
	os.Exit(code)
}

// exclusions collects repeated -exclude column=value flags.
type exclusions [][2]string

func (e *exclusions) String() string {
	parts := make([]string, len(*e))
	for i, ex := range *e {
		parts[i] = ex[0] + "=" + ex[1]
	}
	return strings.Join(parts, ",")
}

func (e *exclusions) Set(s string) error {
	column, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(column) == "" {
		return fmt.Errorf("want column=value, got %q", s)
	}
	*e = append(*e, [2]string{column, value})
	return nil
}

type options struct {
	from, to        string
	preset          string
	metric          string
	granularity     string
	breakdown       string
	top             int
	json            bool
	keepNonPositive bool
	excluded        exclusions
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, now func() time.Time) int {
	cfg := config.Load()
	logger := log.New(log.Config{Level: levelFor(cfg.LogLevel), Output: stderr, Component: log.ComponentReport})

	var opts options
	fs := flag.NewFlagSet("orderlens-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.from, "from", "", "first day to include (YYYY-MM-DD or ISO 8601 date-time)")
	fs.StringVar(&opts.to, "to", "", "last day to include; a plain date covers the whole day")
	fs.StringVar(&opts.preset, "preset", "", "date preset: last_year, ytd, last_month or past_6_months")
	fs.StringVar(&opts.metric, "metric", string(core.MetricAmount), "metric to sum: amount or quantity")
	fs.StringVar(&opts.granularity, "granularity", string(core.Month), "time bucket: day, week, month, quarter or year")
	fs.StringVar(&opts.breakdown, "breakdown", cfg.DefaultBreakdownColumn, "column to break totals down by; empty for none")
	fs.IntVar(&opts.top, "top", cfg.DefaultTopN, "number of breakdown groups to list")
	fs.BoolVar(&opts.json, "json", false, "print JSON instead of text")
	fs.BoolVar(&opts.keepNonPositive, "keep-non-positive", cfg.KeepNonPositiveGroups, "keep breakdown groups whose total is zero or negative")
	fs.Var(&opts.excluded, "exclude", "exclude rows where column=value; repeatable")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "at most one input file may be given")
		return exitUsage
	}
	breakdownSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "breakdown" {
			breakdownSet = true
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	parserOpts, err := cli.ParserOptions(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	loc := parserOpts.Location

	spec, err := buildSpec(opts, loc, now().In(loc))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	granularity, err := core.ParseGranularity(opts.granularity)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	in, source, err := openInput(fs.Arg(0), stdin)
	if err != nil {
		logger.Error("Cannot open input", log.FieldError, err, log.FieldOperation, log.OpParse)
		return exitError
	}
	defer in.Close()

	orders, stats, err := parser.New(parserOpts).Parse(ctx, in)
	if err != nil {
		logger.Error("Cannot parse input", log.FieldError, err, log.FieldOperation, log.OpParse, "source", source)
		return exitError
	}
	logger.Debug("Parsed input", log.NewFields().WithDataset("", source, stats.Rows, stats.Kept).ToSlice()...)

	column := opts.breakdown
	if !breakdownSet && column != "" && !hasColumn(orders, column) {
		logger.Debug("Default breakdown column not in input", log.FieldColumn, column)
		column = ""
	}

	r, err := report.Build(source, orders, stats, spec, report.Options{
		View:      dashboard.View{Granularity: granularity, BreakdownColumn: column, TopN: opts.top},
		Breakdown: aggregate.BreakdownOptions{KeepNonPositive: opts.keepNonPositive},
	}, now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	format := report.FormatText
	if opts.json {
		format = report.FormatJSON
	}
	if err := report.Render(stdout, r, format, language.AmericanEnglish); err != nil {
		logger.Error("Cannot write report", log.FieldError, err, log.FieldOperation, log.OpRender)
		return exitError
	}
	return exitOK
}

// buildSpec turns the filter flags into a filter spec. -preset and
// -from/-to are mutually exclusive.
func buildSpec(opts options, loc *time.Location, now time.Time) (filter.Spec, error) {
	metric, err := core.ParseMetric(opts.metric)
	if err != nil {
		return filter.Spec{}, err
	}
	spec := filter.NewSpec(metric)

	if opts.preset != "" {
		if opts.from != "" || opts.to != "" {
			return filter.Spec{}, errors.New("-preset cannot be combined with -from or -to")
		}
		p, err := filter.ParsePreset(opts.preset)
		if err != nil {
			return filter.Spec{}, err
		}
		if spec, err = spec.ApplyPreset(p, now); err != nil {
			return filter.Spec{}, err
		}
	} else {
		start, err := parseBound(opts.from, "-from", loc)
		if err != nil {
			return filter.Spec{}, err
		}
		end, err := parseBound(opts.to, "-to", loc)
		if err != nil {
			return filter.Spec{}, err
		}
		if end != nil && isDateOnly(opts.to) {
			e := filter.EndOfDay(*end)
			end = &e
		}
		spec = spec.SetDateRange(start, end)
	}

	for _, ex := range opts.excluded {
		spec = spec.ExcludeValue(ex[0], ex[1])
	}
	return spec, nil
}

func parseBound(s, name string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := core.ParseOrderDate(s, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an ISO 8601 date or date-time", name, s)
	}
	return &t, nil
}

func isDateOnly(s string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	return err == nil
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", &core.SourceReadError{Source: path, Err: err}
	}
	return f, filepath.Base(path), nil
}

func hasColumn(orders []core.Order, column string) bool {
	for _, c := range aggregate.Columns(orders) {
		if c == column {
			return true
		}
	}
	return false
}

// levelFor ignores unknown levels; the server rejects them at startup.
func levelFor(s string) slog.Level {
	lvl, _ := log.ParseLevel(s)
	return lvl
}
