package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseBegin parses the textual begin policies accepted by the binaries:
//
//   - "" or "immediately"
//   - "full-centisecond", "full-decisecond", "full-second", "full-minute", "full-hour"
//   - a comma separated list of times of day, e.g. "06:00,18:00:30"
//   - "cron:" followed by a cron expression, e.g. "cron:*/5 * * * *"
func ParseBegin(raw string) (Begin, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)

	switch low {
	case "", "immediately", "now":
		return Immediately(), nil
	case "full-centisecond":
		return Aligned(FullCentisecond), nil
	case "full-decisecond":
		return Aligned(FullDecisecond), nil
	case "full-second":
		return Aligned(FullSecond), nil
	case "full-minute":
		return Aligned(FullMinute), nil
	case "full-hour":
		return Aligned(FullHour), nil
	}

	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Begin{}, &ConfigurationError{Field: "begin", Reason: "cron expression required after 'cron:'"}
		}
		if err := ValidateCron(expr); err != nil {
			return Begin{}, err
		}
		return AtCron(expr), nil
	}

	times, err := ParseTimesOfDay(s)
	if err != nil {
		return Begin{}, err
	}
	return AtTimesOfDay(times...), nil
}

// ParseTimesOfDay parses a comma separated list of HH:MM[:SS[.mmm]] values.
func ParseTimesOfDay(raw string) ([]TimeOfDay, error) {
	var times []TimeOfDay
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := parseTimeOfDay(part)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if len(times) == 0 {
		return nil, &ConfigurationError{Field: "begin", Reason: "time-of-day list is empty"}
	}
	return times, nil
}

func parseTimeOfDay(s string) (TimeOfDay, error) {
	invalid := func(reason string) error {
		return &ConfigurationError{Field: "begin", Reason: fmt.Sprintf("invalid time of day %q: %s", s, reason)}
	}

	clock, frac, hasFrac := strings.Cut(s, ".")
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, invalid("expected HH:MM or HH:MM:SS")
	}

	var fields [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, invalid("non-numeric component")
		}
		fields[i] = v
	}

	t := TimeOfDay{Hour: fields[0], Minute: fields[1], Second: fields[2]}
	if hasFrac {
		if frac == "" || len(frac) > 9 {
			return TimeOfDay{}, invalid("bad fractional seconds")
		}
		v, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
		if err != nil {
			return TimeOfDay{}, invalid("bad fractional seconds")
		}
		t.Nanosecond = v
	}
	if err := t.validate(); err != nil {
		return TimeOfDay{}, invalid(err.Error())
	}
	return t, nil
}

// ParseUnit parses a unit name or abbreviation.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ms", "millisecond", "milliseconds":
		return Millisecond, nil
	case "s", "sec", "second", "seconds":
		return Second, nil
	case "m", "min", "minute", "minutes":
		return Minute, nil
	case "h", "hour", "hours":
		return Hour, nil
	}
	return 0, &ConfigurationError{Field: "unit", Reason: fmt.Sprintf("unrecognized unit %q", raw)}
}

// ParseLocation loads an IANA time zone name; an empty name means time.Local.
func ParseLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &ConfigurationError{Field: "location", Reason: fmt.Sprintf("unknown time zone %q", name), Err: err}
	}
	return loc, nil
}
