// Package calendar builds the 42-cell month grid shown by the UI.
package calendar

import (
	"sort"
	"time"

	"github.com/ytomioka/kizuna-calendar/internal/dateutil"
	"github.com/ytomioka/kizuna-calendar/internal/models"
)

// Weekdays are the Sunday-first column headers of the grid.
var Weekdays = []string{"日", "月", "火", "水", "木", "金", "土"}

// GridSize is the fixed cell count of a month view: 6 rows of 7 days.
const GridSize = 42

// MonthGrid returns exactly GridSize cells for the month containing ref.
// Leading cells come from the previous month (one per weekday before the
// 1st, Sunday-first), trailing cells from the next month. Each cell carries
// the todos whose DateStr matches its day, incomplete items first.
// now decides which cell is flagged as today.
func MonthGrid(ref, now time.Time, todos []models.TodoItem) []models.DayData {
	year, month := ref.Year(), ref.Month()

	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.Local).Day()
	leading := int(firstOfMonth.Weekday())

	days := make([]models.DayData, 0, GridSize)
	todayStr := dateutil.FormatLocalDate(now)

	appendCell := func(d time.Time, current bool) {
		dStr := dateutil.FormatLocalDate(d)
		name, isHoliday := dateutil.HolidayName(d)
		days = append(days, models.DayData{
			Date:           d,
			IsCurrentMonth: current,
			IsToday:        current && dStr == todayStr,
			DateStr:        dStr,
			Todos:          todosForDate(todos, dStr),
			IsHoliday:      isHoliday,
			HolidayName:    name,
			IsWeekend:      dateutil.IsWeekend(d),
		})
	}

	// previous month padding
	for i := 0; i < leading; i++ {
		appendCell(time.Date(year, month, 1-leading+i, 0, 0, 0, 0, time.Local), false)
	}

	// current month
	for day := 1; day <= daysInMonth; day++ {
		appendCell(time.Date(year, month, day, 0, 0, 0, 0, time.Local), true)
	}

	// next month padding up to GridSize
	for day := 1; len(days) < GridSize; day++ {
		appendCell(time.Date(year, month+1, day, 0, 0, 0, 0, time.Local), false)
	}

	return days
}

// todosForDate filters by exact DateStr match and sorts incomplete items
// before completed ones, keeping the original relative order within each.
func todosForDate(todos []models.TodoItem, dateStr string) []models.TodoItem {
	var matched []models.TodoItem
	for _, t := range todos {
		if t.DateStr == dateStr {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return !matched[i].Completed && matched[j].Completed
	})
	return matched
}
