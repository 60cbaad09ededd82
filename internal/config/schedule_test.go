package config

import (
	"testing"
	"time"

	"oss.nandlabs.io/keephive/testing/assert"
)

func TestIntervalScheduleNoLastRunIsImmediatelyDue(t *testing.T) {
	s := Schedule{Kind: ScheduleInterval, Seconds: 3600}
	d := s.NextRunDuration(time.Time{}, time.Now())
	assert.Equal(t, time.Duration(0), d)
}

func TestIntervalScheduleElapsedExceedsInterval(t *testing.T) {
	s := Schedule{Kind: ScheduleInterval, Seconds: 60}
	now := time.Now()
	lastRun := now.Add(-2 * time.Minute)
	d := s.NextRunDuration(lastRun, now)
	assert.Equal(t, time.Duration(0), d)
}

func TestIntervalScheduleStillWaiting(t *testing.T) {
	s := Schedule{Kind: ScheduleInterval, Seconds: 600}
	now := time.Now()
	lastRun := now.Add(-1 * time.Minute)
	d := s.NextRunDuration(lastRun, now)
	if d <= 0 || d > 9*time.Minute {
		t.Fatalf("expected wait around 9m, got %v", d)
	}
}

func TestDailyScheduleLaterToday(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	s := Schedule{Kind: ScheduleDaily, Hour: 14, Minute: 30}
	d := s.NextRunDuration(time.Time{}, now)
	assert.Equal(t, 4*time.Hour+30*time.Minute, d)
}

func TestDailyScheduleAlreadyPassedRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 3, 5, 16, 0, 0, 0, time.UTC)
	s := Schedule{Kind: ScheduleDaily, Hour: 14, Minute: 30}
	d := s.NextRunDuration(time.Time{}, now)
	assert.Equal(t, 22*time.Hour+30*time.Minute, d)
}

func TestWeeklyScheduleLaterThisWeek(t *testing.T) {
	// 2026-03-05 is a Thursday (weekday 4).
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	s := Schedule{Kind: ScheduleWeekly, Day: 6, Hour: 9, Minute: 0} // Saturday
	d := s.NextRunDuration(time.Time{}, now)
	assert.Equal(t, 2*24*time.Hour-time.Hour, d)
}

func TestWeeklyScheduleSameDayNotYetPassed(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC) // Thursday
	s := Schedule{Kind: ScheduleWeekly, Day: 4, Hour: 9, Minute: 0}
	d := s.NextRunDuration(time.Time{}, now)
	assert.Equal(t, time.Hour, d)
}

func TestWeeklyScheduleSameDayAlreadyPassedRollsToNextWeek(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC) // Thursday
	s := Schedule{Kind: ScheduleWeekly, Day: 4, Hour: 9, Minute: 0}
	d := s.NextRunDuration(time.Time{}, now)
	assert.Equal(t, 7*24*time.Hour-time.Hour, d)
}

func TestWeeklyScheduleEarlierDayNextWeek(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC) // Thursday (4)
	s := Schedule{Kind: ScheduleWeekly, Day: 2, Hour: 9, Minute: 0}  // Tuesday
	d := s.NextRunDuration(time.Time{}, now)
	assert.Equal(t, 5*24*time.Hour-time.Hour, d)
}

func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, Schedule{Kind: ScheduleInterval, Seconds: 1}.Validate())
	assert.Error(t, Schedule{Kind: ScheduleInterval, Seconds: 0}.Validate())
	assert.NoError(t, Schedule{Kind: ScheduleDaily, Hour: 23, Minute: 59}.Validate())
	assert.Error(t, Schedule{Kind: ScheduleDaily, Hour: 24}.Validate())
	assert.NoError(t, Schedule{Kind: ScheduleWeekly, Day: 7, Hour: 0, Minute: 0}.Validate())
	assert.Error(t, Schedule{Kind: ScheduleWeekly, Day: 8}.Validate())
	assert.Error(t, Schedule{Kind: "bogus"}.Validate())
}
