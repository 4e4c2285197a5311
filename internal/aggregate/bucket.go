package aggregate

import (
	"fmt"
	"time"

	"orderlens/internal/core"
)

// Bucketer is the strategy that maps an instant to the start of its
// time-series bucket and names that bucket for display.
type Bucketer interface {
	Start(t time.Time) time.Time
	Label(start time.Time) string
}

// DayBucketer groups by calendar day.
type DayBucketer struct{}

func (DayBucketer) Start(t time.Time) time.Time { return midnight(t) }

func (DayBucketer) Label(start time.Time) string { return start.Format("Jan 2, 2006") }

// WeekBucketer groups by week. Weeks start on Sunday regardless of locale.
type WeekBucketer struct{}

func (WeekBucketer) Start(t time.Time) time.Time {
	d := midnight(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

func (WeekBucketer) Label(start time.Time) string { return "Wk " + start.Format("Jan 2") }

// MonthBucketer groups by calendar month.
type MonthBucketer struct{}

func (MonthBucketer) Start(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func (MonthBucketer) Label(start time.Time) string { return start.Format("Jan 2006") }

// QuarterBucketer groups by calendar quarter.
type QuarterBucketer struct{}

func (QuarterBucketer) Start(t time.Time) time.Time {
	first := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), first, 1, 0, 0, 0, 0, t.Location())
}

func (QuarterBucketer) Label(start time.Time) string {
	return fmt.Sprintf("Q%d %d", (int(start.Month())-1)/3+1, start.Year())
}

// YearBucketer groups by calendar year.
type YearBucketer struct{}

func (YearBucketer) Start(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

func (YearBucketer) Label(start time.Time) string { return start.Format("2006") }

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

var bucketers = map[core.Granularity]Bucketer{
	core.Day:     DayBucketer{},
	core.Week:    WeekBucketer{},
	core.Month:   MonthBucketer{},
	core.Quarter: QuarterBucketer{},
	core.Year:    YearBucketer{},
}

// BucketerFor returns the strategy for g.
func BucketerFor(g core.Granularity) (Bucketer, error) {
	b, ok := bucketers[g]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidGranularity, string(g))
	}
	return b, nil
}
