package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/kafka-connector/internal/schedule"
)

func TestParseBegin(t *testing.T) {
	table := []struct {
		raw  string
		want string
	}{
		{raw: "", want: "immediately"},
		{raw: "Immediately", want: "immediately"},
		{raw: "full-second", want: "full-second"},
		{raw: "FULL-HOUR", want: "full-hour"},
		{raw: "full-centisecond", want: "full-centisecond"},
		{raw: "18:00, 06:00", want: "at 06:00:00,18:00:00"},
		{raw: "19:04:20.5", want: "at 19:04:20.500"},
		{raw: "cron:*/5 * * * *", want: "cron */5 * * * *"},
	}

	for _, tc := range table {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := schedule.ParseBegin(tc.raw)
			if err != nil {
				t.Fatalf("ParseBegin(%q) returned error: %v", tc.raw, err)
			}
			if got.String() != tc.want {
				t.Errorf("ParseBegin(%q) = %q; want %q", tc.raw, got.String(), tc.want)
			}
		})
	}
}

func TestParseBeginFailure(t *testing.T) {
	for _, raw := range []string{"tomorrow", "25:00", "12:60", "12", "cron:", "cron:nope", ",", "12:00:00.0000000001"} {
		t.Run(raw, func(t *testing.T) {
			got, err := schedule.ParseBegin(raw)
			if err == nil {
				t.Fatalf("ParseBegin(%q) expected error but got %v", raw, got)
			}
			var cfgErr *schedule.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected *ConfigurationError, got %T", err)
			}
		})
	}
}

func TestParseTimesOfDay(t *testing.T) {
	got, err := schedule.ParseTimesOfDay("00:00,06:00,12:00,18:00:15")
	if err != nil {
		t.Fatalf("ParseTimesOfDay returned error: %v", err)
	}
	want := []schedule.TimeOfDay{{}, {Hour: 6}, {Hour: 12}, {Hour: 18, Second: 15}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseTimesOfDay mismatch (-want +got):\n%s", diff)
	}
}

func TestParseUnit(t *testing.T) {
	table := map[string]schedule.Unit{
		"ms":      schedule.Millisecond,
		"Second":  schedule.Second,
		"min":     schedule.Minute,
		" hours ": schedule.Hour,
	}
	for raw, want := range table {
		got, err := schedule.ParseUnit(raw)
		if err != nil {
			t.Errorf("ParseUnit(%q) returned error: %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseUnit(%q) = %v; want %v", raw, got, want)
		}
	}
	if _, err := schedule.ParseUnit("fortnight"); err == nil {
		t.Errorf("expected error for unknown unit")
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := schedule.ParseLocation("")
	if err != nil || loc != time.Local {
		t.Errorf("ParseLocation(\"\") = %v, %v; want Local", loc, err)
	}
	loc, err = schedule.ParseLocation("UTC")
	if err != nil || loc.String() != "UTC" {
		t.Errorf("ParseLocation(\"UTC\") = %v, %v", loc, err)
	}
	if _, err := schedule.ParseLocation("Mars/Olympus_Mons"); err == nil {
		t.Errorf("expected error for unknown zone")
	}
}
