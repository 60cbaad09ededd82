package config

import (
	"fmt"
	"time"
)

// ScheduleKind identifies which variant of Schedule is populated.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleWeekly   ScheduleKind = "weekly"
)

// Schedule is a tagged union mirroring the three schedule shapes a backup
// job can be configured with. Exactly one of the Kind-specific fields is
// meaningful at a time; Kind selects which.
type Schedule struct {
	Kind ScheduleKind `json:"type" yaml:"type"`

	// Interval
	Seconds int64 `json:"seconds,omitempty" yaml:"seconds,omitempty"`

	// Daily / Weekly
	Hour   int `json:"hour,omitempty" yaml:"hour,omitempty"`
	Minute int `json:"minute,omitempty" yaml:"minute,omitempty"`

	// Weekly only. 1=Monday .. 7=Sunday, matching time.Weekday shifted so
	// Sunday (0 in time.Weekday) becomes 7.
	Day int `json:"day,omitempty" yaml:"day,omitempty"`
}

// weekday converts a time.Time's Weekday into the 1=Monday..7=Sunday scheme
// used by Schedule.Day.
func weekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// NextRunDuration computes how long to wait before the next run given the
// last run time (zero value if the job has never run) and the current time.
//
// For Interval schedules, elapsed time since lastRun is compared against the
// interval; a zero lastRun means the job is immediately due. Daily and Weekly
// schedules ignore lastRun entirely and are computed purely from now.
func (s Schedule) NextRunDuration(lastRun time.Time, now time.Time) time.Duration {
	switch s.Kind {
	case ScheduleInterval:
		return s.nextIntervalDuration(lastRun, now)
	case ScheduleDaily:
		return s.calculateNextDaily(now)
	case ScheduleWeekly:
		return s.calculateNextWeekly(now)
	default:
		return 0
	}
}

func (s Schedule) nextIntervalDuration(lastRun time.Time, now time.Time) time.Duration {
	interval := time.Duration(s.Seconds) * time.Second
	if lastRun.IsZero() {
		return 0
	}
	elapsed := now.Sub(lastRun)
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

func (s Schedule) calculateNextDaily(now time.Time) time.Duration {
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	if !scheduled.After(now) {
		scheduled = scheduled.Add(24 * time.Hour)
	}
	return scheduled.Sub(now)
}

func (s Schedule) calculateNextWeekly(now time.Time) time.Duration {
	currentWeekday := weekday(now)
	scheduledToday := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())

	var daysUntil int
	switch {
	case currentWeekday < s.Day:
		daysUntil = s.Day - currentWeekday
	case currentWeekday == s.Day:
		if scheduledToday.After(now) {
			daysUntil = 0
		} else {
			daysUntil = 7
		}
	default:
		daysUntil = 7 - (currentWeekday - s.Day)
	}

	target := scheduledToday.Add(time.Duration(daysUntil) * 24 * time.Hour)
	return target.Sub(now)
}

// Validate checks that the schedule is internally consistent.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleInterval:
		if s.Seconds <= 0 {
			return fmt.Errorf("interval schedule requires seconds > 0")
		}
	case ScheduleDaily:
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return fmt.Errorf("daily schedule requires hour in [0,23] and minute in [0,59]")
		}
	case ScheduleWeekly:
		if s.Day < 1 || s.Day > 7 {
			return fmt.Errorf("weekly schedule requires day in [1,7] (1=Monday..7=Sunday)")
		}
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return fmt.Errorf("weekly schedule requires hour in [0,23] and minute in [0,59]")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}
