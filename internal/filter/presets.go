package filter

import (
	"fmt"
	"strings"
	"time"
)

// Preset names a date-range shortcut relative to "now".
type Preset string

const (
	PresetLastYear      Preset = "last_year"
	PresetYearToDate    Preset = "ytd"
	PresetLastMonth     Preset = "last_month"
	PresetPastSixMonths Preset = "past_6_months"
)

// Presets lists the supported shortcuts in display order.
func Presets() []Preset {
	return []Preset{PresetLastYear, PresetYearToDate, PresetLastMonth, PresetPastSixMonths}
}

func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Presets() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown date preset %q", s)
}

// Range computes the preset's interval. All arithmetic happens in now's
// location.
func (p Preset) Range(now time.Time) (DateRange, error) {
	switch p {
	case PresetLastYear:
		return LastYear(now), nil
	case PresetYearToDate:
		return YearToDate(now), nil
	case PresetLastMonth:
		return LastMonth(now), nil
	case PresetPastSixMonths:
		return PastSixMonths(now), nil
	default:
		return DateRange{}, fmt.Errorf("unknown date preset %q", string(p))
	}
}

// ApplyPreset sets the date range of s from p.
func (s Spec) ApplyPreset(p Preset, now time.Time) (Spec, error) {
	r, err := p.Range(now)
	if err != nil {
		return s, err
	}
	return s.SetDateRange(r.Start, r.End), nil
}

// LastYear covers the whole previous calendar year.
func LastYear(now time.Time) DateRange {
	start := time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)
	return DateRange{Start: &start, End: &end}
}

// YearToDate runs from January 1st of the current year until now.
func YearToDate(now time.Time) DateRange {
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	end := now
	return DateRange{Start: &start, End: &end}
}

// LastMonth covers the whole previous calendar month.
func LastMonth(now time.Time) DateRange {
	start := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return DateRange{Start: &start, End: &end}
}

// PastSixMonths runs from the same instant six months ago until now. Day
// overflow is clamped to the end of the target month (Aug 31 -> Feb 28/29).
func PastSixMonths(now time.Time) DateRange {
	start := subMonths(now, 6)
	end := now
	return DateRange{Start: &start, End: &end}
}

func subMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()-time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}

// EndOfDay returns the last nanosecond of t's calendar day. Inclusive end
// bounds entered as plain dates use it so the whole day matches.
func EndOfDay(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
