package models

import "time"

// DateLayout is the wire and storage format of a day list's date.
const DateLayout = "2006-01-02"

// MonthLayout identifies a calendar month.
const MonthLayout = "2006-01"

type WaitingList struct {
	ID        int64        `json:"id"`
	Date      string       `json:"date"`
	Entries   []PuppyEntry `json:"entries"`
	CreatedAt time.Time    `json:"createdAt"`
}

type Counts struct {
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
}
