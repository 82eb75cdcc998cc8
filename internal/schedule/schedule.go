package schedule

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/cronexpr"
)

// Unit is the unit of a Timer interval.
type Unit int

const (
	Millisecond Unit = iota + 1
	Second
	Minute
	Hour
)

// Duration returns the length of one unit.
func (u Unit) Duration() time.Duration {
	switch u {
	case Millisecond:
		return time.Millisecond
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return 0
	}
}

func (u Unit) String() string {
	switch u {
	case Millisecond:
		return "millisecond"
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Alignment is a wall-clock granularity the first tick can be aligned to.
type Alignment time.Duration

const (
	FullCentisecond = Alignment(10 * time.Millisecond)
	FullDecisecond  = Alignment(100 * time.Millisecond)
	FullSecond      = Alignment(time.Second)
	FullMinute      = Alignment(time.Minute)
	FullHour        = Alignment(time.Hour)
)

func (a Alignment) valid() bool {
	switch a {
	case FullCentisecond, FullDecisecond, FullSecond, FullMinute, FullHour:
		return true
	}
	return false
}

func (a Alignment) String() string {
	switch a {
	case FullCentisecond:
		return "full-centisecond"
	case FullDecisecond:
		return "full-decisecond"
	case FullSecond:
		return "full-second"
	case FullMinute:
		return "full-minute"
	case FullHour:
		return "full-hour"
	default:
		return fmt.Sprintf("Alignment(%s)", time.Duration(a))
	}
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

func (t TimeOfDay) validate() error {
	switch {
	case t.Hour < 0 || t.Hour > 23:
		return fmt.Errorf("hour %d out of range [0,23]", t.Hour)
	case t.Minute < 0 || t.Minute > 59:
		return fmt.Errorf("minute %d out of range [0,59]", t.Minute)
	case t.Second < 0 || t.Second > 59:
		return fmt.Errorf("second %d out of range [0,59]", t.Second)
	case t.Nanosecond < 0 || t.Nanosecond >= int(time.Second):
		return fmt.Errorf("nanosecond %d out of range", t.Nanosecond)
	}
	return nil
}

func (t TimeOfDay) offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

func (t TimeOfDay) on(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour, t.Minute, t.Second, t.Nanosecond, loc)
}

func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Nanosecond != 0 {
		s += fmt.Sprintf(".%03d", t.Nanosecond/int(time.Millisecond))
	}
	return s
}

type beginKind int

const (
	beginImmediately beginKind = iota
	beginAligned
	beginTimesOfDay
	beginCron
)

// Begin selects the instant of the first tick. The zero value starts
// immediately.
type Begin struct {
	kind      beginKind
	alignment Alignment
	times     []TimeOfDay
	cronExpr  string
	cron      *cronexpr.Expression
	err       error
}

// Immediately runs the first tick as soon as the Timer starts.
func Immediately() Begin {
	return Begin{kind: beginImmediately}
}

// Aligned runs the first tick on the next exact multiple of a.
func Aligned(a Alignment) Begin {
	return Begin{kind: beginAligned, alignment: a}
}

// AtTimesOfDay runs the first tick at the nearest upcoming time in times.
// Duplicates are dropped and the list is kept in chronological order.
func AtTimesOfDay(times ...TimeOfDay) Begin {
	sorted := slices.Clone(times)
	slices.SortFunc(sorted, func(a, b TimeOfDay) int {
		return cmp.Compare(a.offset(), b.offset())
	})
	sorted = slices.Compact(sorted)
	return Begin{kind: beginTimesOfDay, times: sorted}
}

// AtCron runs the first tick at the next time matched by a cron expression.
func AtCron(expr string) Begin {
	parsed, err := cronexpr.Parse(expr)
	return Begin{kind: beginCron, cronExpr: expr, cron: parsed, err: err}
}

// TimesOfDay returns the configured times of day, if any.
func (b Begin) TimesOfDay() []TimeOfDay {
	return slices.Clone(b.times)
}

func (b Begin) String() string {
	switch b.kind {
	case beginImmediately:
		return "immediately"
	case beginAligned:
		return b.alignment.String()
	case beginTimesOfDay:
		parts := make([]string, len(b.times))
		for i, t := range b.times {
			parts[i] = t.String()
		}
		return "at " + strings.Join(parts, ",")
	case beginCron:
		return "cron " + b.cronExpr
	default:
		return fmt.Sprintf("Begin(%d)", int(b.kind))
	}
}

func (b Begin) validate(now time.Time) error {
	switch b.kind {
	case beginImmediately:
		return nil
	case beginAligned:
		if !b.alignment.valid() {
			return &ConfigurationError{Field: "begin", Reason: fmt.Sprintf("unrecognized alignment %s", time.Duration(b.alignment))}
		}
		return nil
	case beginTimesOfDay:
		if len(b.times) == 0 {
			return &ConfigurationError{Field: "begin", Reason: "time-of-day list is empty"}
		}
		for _, t := range b.times {
			if err := t.validate(); err != nil {
				return &ConfigurationError{Field: "begin", Reason: fmt.Sprintf("time of day %s", t), Err: err}
			}
		}
		return nil
	case beginCron:
		if b.err != nil {
			return &ConfigurationError{Field: "begin", Reason: fmt.Sprintf("cron expression %q", b.cronExpr), Err: b.err}
		}
		if b.cron.Next(now).IsZero() {
			return &ConfigurationError{Field: "begin", Reason: fmt.Sprintf("cron expression %q never fires", b.cronExpr)}
		}
		return nil
	default:
		return &ConfigurationError{Field: "begin", Reason: "unrecognized begin policy"}
	}
}

// FirstRun returns the unix millisecond instant of the first tick for a
// Timer started at now. The result is never before now.
func (b Begin) FirstRun(now time.Time, loc *time.Location) int64 {
	switch b.kind {
	case beginAligned:
		g := time.Duration(b.alignment).Milliseconds()
		ms := ceilMilli(now)
		return (ms + g - 1) / g * g
	case beginTimesOfDay:
		return ceilMilli(nextTimeOfDay(now, b.times, loc))
	case beginCron:
		return ceilMilli(b.cron.Next(now.In(loc)))
	default:
		return ceilMilli(now)
	}
}

// nextTimeOfDay searches today and then tomorrow. Tomorrow always has a
// candidate, so the search ends after at most two days.
func nextTimeOfDay(now time.Time, times []TimeOfDay, loc *time.Location) time.Time {
	local := now.In(loc)
	year, month, day := local.Date()
	for offset := 0; offset < 2; offset++ {
		for _, t := range times {
			candidate := t.on(year, month, day+offset, loc)
			if !candidate.Before(local) {
				return candidate
			}
		}
	}
	return times[0].on(year, month, day+2, loc)
}

func ceilMilli(t time.Time) int64 {
	ns := t.UnixNano()
	ms := ns / int64(time.Millisecond)
	if ns%int64(time.Millisecond) > 0 {
		ms++
	}
	return ms
}
