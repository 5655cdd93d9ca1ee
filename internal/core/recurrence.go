package core

import (
	"fmt"
	"time"
)

// NextRun returns the next due time for a task executed at executedAt.
// The second return value is false for one-shot tasks, which never run again.
func NextRun(schedule Schedule, intervalSeconds *int, executedAt time.Time) (time.Time, bool, error) {
	switch schedule {
	case ScheduleOnce:
		return time.Time{}, false, nil
	case ScheduleHourly:
		return executedAt.Add(time.Hour), true, nil
	case ScheduleDaily:
		return executedAt.Add(24 * time.Hour), true, nil
	case ScheduleWeekly:
		return executedAt.Add(7 * 24 * time.Hour), true, nil
	case ScheduleMonthly:
		return AddMonth(executedAt), true, nil
	case ScheduleInterval:
		if intervalSeconds == nil || *intervalSeconds <= 0 {
			return time.Time{}, false, fmt.Errorf("interval schedule without a positive interval")
		}
		return executedAt.Add(time.Duration(*intervalSeconds) * time.Second), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule %q", schedule)
	}
}

// AddMonth advances t by one calendar month keeping the clock time. When the
// day-of-month does not exist in the target month it is clamped to the last day
// (Jan 31 -> Feb 28/29) instead of overflowing into the month after.
func AddMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	hour, minute, sec := t.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}
