// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package progress

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
)

// =============================================================================
// Weeks
// =============================================================================

// StartOfWeek returns the Sunday on or before d.
func StartOfWeek(d civil.Date) civil.Date {
	return d.AddDays(-int(weekday(d)))
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// WeekStarts enumerates the week-start dates covering [start, end].
//
// # Description
//
// The first element is the Sunday on or before start. Each following element
// is seven days later, for as long as it is not after end. The sequence is
// lazy and can be ranged over any number of times. It is empty when end is
// before start.
//
// # Examples
//
//	for ws := range progress.WeekStarts(goal.StartDate, goal.EndDate) {
//	    fmt.Println(ws) // 2024-01-14, 2024-01-21, ...
//	}
func WeekStarts(start, end civil.Date) iter.Seq[civil.Date] {
	return func(yield func(civil.Date) bool) {
		if end.Before(start) {
			return
		}
		for ws := StartOfWeek(start); !ws.After(end); ws = ws.AddDays(7) {
			if !yield(ws) {
				return
			}
		}
	}
}

// =============================================================================
// Months
// =============================================================================

// MonthKeys enumerates "YYYY-MM" keys for every calendar month touched by
// [start, end], oldest first. Empty when end is before start.
//
// # Examples
//
//	slices.Collect(MonthKeys(2024-01-15, 2024-03-10))
//	// ["2024-01", "2024-02", "2024-03"]
func MonthKeys(start, end civil.Date) iter.Seq[string] {
	return func(yield func(string) bool) {
		if end.Before(start) {
			return
		}
		first := civil.Date{Year: start.Year, Month: start.Month, Day: 1}
		for m := first; !m.After(end); m = m.AddMonths(1) {
			if !yield(datatypes.MonthKey(m)) {
				return
			}
		}
	}
}

// MonthRange returns the first and last day of the month named by key.
func MonthRange(key string) (first, last civil.Date, err error) {
	first, err = datatypes.ParseMonthKey(key)
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	return first, first.AddMonths(1).AddDays(-1), nil
}

// InRange reports whether the month key touches [start, end].
func InRange(key string, start, end civil.Date) bool {
	first, last, err := MonthRange(key)
	if err != nil {
		return false
	}
	return !last.Before(start) && !first.After(end)
}

// =============================================================================
// Deadlines
// =============================================================================

// DaysRemaining is max(0, ceil((end - now) / 24h)), with end taken as
// midnight UTC at the start of the end date. Whole days are counted on the
// calendar, which keeps far deadlines exact; any time into today rounds up
// to the same count as its midnight.
func DaysRemaining(end civil.Date, now time.Time) int {
	days := end.DaysSince(civil.DateOf(now.UTC()))
	if days <= 0 {
		return 0
	}
	return days
}
