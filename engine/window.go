package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"coldreach/models"
)

// clockMinutes parses "HH:MM" into minutes since midnight.
func clockMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// withinClockWindow checks a minutes-since-midnight value against a
// start/end pair. An end before start means the window spans midnight.
func withinClockWindow(now, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// dayAllowed checks the weekday against the campaign's sending days,
// using the 0=Sunday convention. An empty set allows every day.
func dayAllowed(day time.Weekday, days []int) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if int(day) == d {
			return true
		}
	}
	return false
}

// WindowOpen reports whether the campaign may send at the given instant.
// The time is evaluated in the campaign's timezone; an unknown timezone
// falls back to UTC.
func WindowOpen(c *models.Campaign, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if !dayAllowed(local.Weekday(), c.SendingDays) {
		return false, nil
	}

	start, err := clockMinutes(c.SendingStart)
	if err != nil {
		return false, err
	}
	end, err := clockMinutes(c.SendingEnd)
	if err != nil {
		return false, err
	}

	return withinClockWindow(local.Hour()*60+local.Minute(), start, end), nil
}

// EligibleAt returns the earliest instant the given step may go out,
// based on when the previous step went out. The first step has no
// previous send and is eligible immediately.
func EligibleAt(prevSentAt *time.Time, step *models.SequenceStep) time.Time {
	if prevSentAt == nil {
		return time.Time{}
	}
	return prevSentAt.AddDate(0, 0, step.DelayDays)
}
