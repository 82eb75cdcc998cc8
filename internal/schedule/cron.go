package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// NextRunTimes returns the next N run times that a cron expression will run.
// Each run time is in UTC.
func NextRunTimes(cron string, n int) ([]time.Time, error) {
	cutoff := time.Now().UTC()
	return NextRunTimesAfter(cron, cutoff, n)
}

// NextRunTimesAfter returns the next N run times after a specific time.
// It returns an error if the cron expression is invalid or if count is less than 1.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}

func ValidateCron(cron string) error {
	_, err := cronexpr.Parse(cron)
	if err != nil {
		return &ConfigurationError{Field: "cron", Reason: fmt.Sprintf("invalid cron expression %q", cron), Err: err}
	}
	return nil
}

// Preview lists the first n instants a Timer with this configuration
// would tick at if it were started at now.
func Preview(interval int, unit Unit, begin Begin, now time.Time, loc *time.Location, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	if loc == nil {
		loc = time.Local
	}
	if interval <= 0 {
		return nil, &ConfigurationError{Field: "interval", Reason: fmt.Sprintf("must be a positive integer, got %d", interval)}
	}
	if unit.Duration() == 0 {
		return nil, &ConfigurationError{Field: "unit", Reason: fmt.Sprintf("unrecognized unit %s", unit)}
	}
	if err := begin.validate(now.In(loc)); err != nil {
		return nil, err
	}

	step := int64(interval) * unit.Duration().Milliseconds()
	next := begin.FirstRun(now, loc)
	runs := make([]time.Time, 0, n)
	for range n {
		runs = append(runs, time.UnixMilli(next).In(loc))
		next += step
	}
	return runs, nil
}
