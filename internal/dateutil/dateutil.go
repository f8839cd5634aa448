// Package dateutil provides local-timezone date formatting and Japanese
// holiday calculation. Everything here is a pure function of its inputs.
package dateutil

import (
	"fmt"
	"sort"
	"time"
)

// Holiday is a named Japanese public holiday.
type Holiday struct {
	Date time.Time
	Name string
}

// FormatLocalDate formats t as YYYY-MM-DD using its local calendar day.
// Using the local fields (not UTC) avoids off-by-one days near midnight.
func FormatLocalDate(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// FormatMonthStr formats t as YYYY-MM. This is the bucket key for
// month-scoped todos and is always 7 characters, never 10.
func FormatMonthStr(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// floorDiv divides rounding toward negative infinity, matching the
// Math.floor arithmetic the equinox formulas were defined with.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// vernalEquinoxDay approximates the day-of-month of 春分の日 with a banded
// linear formula.
func vernalEquinoxDay(year int) int {
	switch {
	case year <= 1947:
		return 21
	case year <= 1979:
		return 20 + floorDiv(year-1980, 4)
	case year <= 2099:
		return 20 + floorDiv(year-2000, 4)
	case year <= 2150:
		return 20 + floorDiv(year-2000, 4) - 1
	default:
		return 20
	}
}

// autumnalEquinoxDay approximates the day-of-month of 秋分の日.
func autumnalEquinoxDay(year int) int {
	switch {
	case year <= 1947:
		return 23
	case year <= 1979:
		return 23 + floorDiv(year-1980, 4)
	case year <= 2099:
		return 23 + floorDiv(year-2000, 4)
	case year <= 2150:
		return 23 + floorDiv(year-2000, 4) - 1
	default:
		return 23
	}
}

func localDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

// nthMonday returns the day-of-month of the n-th Monday of the given month.
func nthMonday(year int, month time.Month, n int) int {
	first := localDate(year, month, 1)
	firstMonday := 1 + (8-int(first.Weekday()))%7
	return firstMonday + 7*(n-1)
}

// Holidays returns the Japanese public holidays of a year, ascending by
// date. Substitute holidays (振替休日) are generated only for holidays that
// fall on a Sunday; Saturday-adjacent bridge rules are out of scope.
func Holidays(year int) []Holiday {
	holidays := []Holiday{
		{localDate(year, time.January, 1), "元日"},
		{localDate(year, time.February, 11), "建国記念の日"},
		{localDate(year, time.April, 29), "昭和の日"},
		{localDate(year, time.May, 3), "憲法記念日"},
		{localDate(year, time.May, 4), "みどりの日"},
		{localDate(year, time.May, 5), "こどもの日"},
		{localDate(year, time.August, 11), "山の日"},
		{localDate(year, time.November, 3), "文化の日"},
		{localDate(year, time.November, 23), "勤労感謝の日"},
	}

	// 海の日: third Monday of July from 2020, July 20 before
	if year >= 2020 {
		holidays = append(holidays, Holiday{localDate(year, time.July, nthMonday(year, time.July, 3)), "海の日"})
	} else {
		holidays = append(holidays, Holiday{localDate(year, time.July, 20), "海の日"})
	}

	// スポーツの日: second Monday of October from 2020, October 10 before
	if year >= 2020 {
		holidays = append(holidays, Holiday{localDate(year, time.October, nthMonday(year, time.October, 2)), "スポーツの日"})
	} else {
		holidays = append(holidays, Holiday{localDate(year, time.October, 10), "スポーツの日"})
	}

	// 敬老の日: third Monday of September
	holidays = append(holidays, Holiday{localDate(year, time.September, nthMonday(year, time.September, 3)), "敬老の日"})

	holidays = append(holidays,
		Holiday{localDate(year, time.March, vernalEquinoxDay(year)), "春分の日"},
		Holiday{localDate(year, time.September, autumnalEquinoxDay(year)), "秋分の日"},
	)

	// 天皇誕生日: February 23 from 2020, December 23 before
	if year >= 2020 {
		holidays = append(holidays, Holiday{localDate(year, time.February, 23), "天皇誕生日"})
	} else {
		holidays = append(holidays, Holiday{localDate(year, time.December, 23), "天皇誕生日"})
	}

	// 振替休日: a holiday on Sunday moves its observance to the next Monday
	var substitutes []Holiday
	for _, h := range holidays {
		if h.Date.Weekday() == time.Sunday {
			substitutes = append(substitutes, Holiday{h.Date.AddDate(0, 0, 1), "振替休日"})
		}
	}
	holidays = append(holidays, substitutes...)

	sort.SliceStable(holidays, func(i, j int) bool {
		return holidays[i].Date.Before(holidays[j].Date)
	})

	return holidays
}

// HolidayName returns the holiday name for t's local calendar day, if any.
func HolidayName(t time.Time) (string, bool) {
	dateStr := FormatLocalDate(t)
	for _, h := range Holidays(t.Year()) {
		if FormatLocalDate(h.Date) == dateStr {
			return h.Name, true
		}
	}
	return "", false
}
