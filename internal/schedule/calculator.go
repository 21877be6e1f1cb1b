package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// ParseWeekday maps an API day-of-week string to a time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown day of week: %s", s)
}

// ExecutionHour is the fixed local hour recurring jobs fire at.
const ExecutionHour = 9

// NextExecution computes the next eligible run instant strictly after from.
// It is pure: identical inputs always produce the identical output.
//
// Daily jobs run the next day at the execution hour. Weekly jobs run on the
// anchored weekday (Monday when no anchor is given). Monthly and quarterly
// jobs keep the anchored day of month, clamped to the last valid day of the
// target month so an anchor of 31 lands on the 30th or 28th rather than
// rolling into the following month.
func NextExecution(freq domain.Frequency, anchor domain.Anchor, from time.Time) time.Time {
	switch freq {
	case domain.FrequencyDaily:
		return atExecutionHour(from.AddDate(0, 0, 1))
	case domain.FrequencyWeekly:
		target := time.Monday
		if anchor.DayOfWeek != nil {
			target = *anchor.DayOfWeek
		}
		days := (int(target) - int(from.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return atExecutionHour(from.AddDate(0, 0, days))
	case domain.FrequencyMonthly:
		return monthsAhead(from, anchor, 1)
	case domain.FrequencyQuarterly:
		return monthsAhead(from, anchor, 3)
	}
	// unknown frequency behaves like daily so a bad record cannot stall
	return atExecutionHour(from.AddDate(0, 0, 1))
}

func monthsAhead(from time.Time, anchor domain.Anchor, months int) time.Time {
	day := from.Day()
	if anchor.DayOfMonth > 0 {
		day = anchor.DayOfMonth
	}
	year, month, _ := from.Date()
	// normalize month arithmetic without AddDate so a day-31 anchor cannot
	// overflow into the month after the target
	m := int(month) + months
	y := year + (m-1)/12
	m = (m-1)%12 + 1
	if last := daysIn(y, time.Month(m)); day > last {
		day = last
	}
	return time.Date(y, time.Month(m), day, ExecutionHour, 0, 0, 0, from.Location())
}

func atExecutionHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), ExecutionHour, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
