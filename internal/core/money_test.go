package core

import (
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"12.18", "12.18"},
		{"-5.77", "-5.77"},
		{"'-5.77'", "-5.77"},
		{`"-5.77"`, "-5.77"},
		{"$1,234.56", "1234.56"},
		{" 2.50 ", "2.5"},
		{"0", "0"},
		{"", "0"},
		{"abc", "0"},
		{"1.2.3", "0"},
		{"£12.50", "12.5"},
		{"€12.50", "12.5"},
		{"12.18 USD", "12.18"},
		{"USD 12.18", "12.18"},
		{"-€5.77", "-5.77"},
		{"n/a", "0"},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if got.String() != tc.out {
			t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got.String())
		}
	}
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in  string
		out int64
	}{
		{"1", 1},
		{" 3 ", 3},
		{"0", 0},
		{"-2", 0},
		{"", 0},
		{"two", 0},
		{"1.5", 1},
		{"2.0", 2},
		{"3abc", 3},
		{"+4", 4},
		{"-2.5", 0},
		{"99999999999999999999", 0},
	}
	for _, tc := range cases {
		if got := ParseQuantity(tc.in); got != tc.out {
			t.Fatalf("%q expected %d, got %d", tc.in, tc.out, got)
		}
	}
}

func TestParseOrderDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	cases := []struct {
		in   string
		loc  *time.Location
		want time.Time
		ok   bool
	}{
		{"2025-12-17T09:05:16Z", nil, time.Date(2025, 12, 17, 9, 5, 16, 0, time.UTC), true},
		{"2025-12-17T09:05:16.250Z", nil, time.Date(2025, 12, 17, 9, 5, 16, 250_000_000, time.UTC), true},
		{"2024-01-05", nil, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"2024-01-05 10:30:00", nil, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), true},
		{"2024-01-05", berlin, time.Date(2024, 1, 5, 0, 0, 0, 0, berlin), true},
		{"2024-01-05T23:30:00Z", berlin, time.Date(2024, 1, 6, 0, 30, 0, 0, berlin), true},
		{"2024-01-05T09:05Z", nil, time.Date(2024, 1, 5, 9, 5, 0, 0, time.UTC), true},
		{"2024-01-05T09:05+02:00", nil, time.Date(2024, 1, 5, 7, 5, 0, 0, time.UTC), true},
		{"2024-01-05T09:05:16+01", nil, time.Date(2024, 1, 5, 8, 5, 16, 0, time.UTC), true},
		{"", nil, time.Time{}, false},
		{"not a date", nil, time.Time{}, false},
		{"05/01/2024", nil, time.Time{}, false},
		{"2024-13-01", nil, time.Time{}, false},
	}
	for _, tc := range cases {
		got, err := ParseOrderDate(tc.in, tc.loc)
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q unexpected error: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.want, got)
		}
		if tc.loc != nil && got.Location() != tc.loc {
			t.Fatalf("%q expected location %v, got %v", tc.in, tc.loc, got.Location())
		}
	}
}
