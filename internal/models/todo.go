package models

import (
	"time"
)

// Reserved dateStr buckets that are not calendar dates.
const (
	BucketImportant = "important"
	BucketShopping  = "shopping"
)

// TodoItem represents a single task.
//
// DateStr decides which view the item belongs to: a day ("2024-05-10"),
// a month ("2024-05"), or one of the reserved buckets above.
type TodoItem struct {
	ID        string   `json:"id"`
	DateStr   string   `json:"dateStr"`
	Text      string   `json:"text"`
	Completed bool     `json:"completed"`
	CreatedBy string   `json:"createdBy"`
	ImageURLs []string `json:"imageUrls,omitempty"`
}

// User represents a logged-in family member.
type User struct {
	ID          string `firestore:"id" json:"id"`
	Name        string `firestore:"name" json:"name"`
	Role        string `firestore:"role" json:"role"`
	AvatarColor string `firestore:"avatar_color" json:"avatarColor"`
}

// DayData is one cell of the month grid. It is derived on every build and
// never mutated in place.
type DayData struct {
	Date           time.Time  `json:"date"`
	IsCurrentMonth bool       `json:"isCurrentMonth"`
	IsToday        bool       `json:"isToday"`
	DateStr        string     `json:"dateStr"`
	Todos          []TodoItem `json:"todos"`
	IsHoliday      bool       `json:"isHoliday"`
	HolidayName    string     `json:"holidayName,omitempty"`
	IsWeekend      bool       `json:"isWeekend"`
}
