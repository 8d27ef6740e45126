package models

import "time"

type PuppyEntry struct {
	ID              int64     `json:"id"`
	WaitingListID   int64     `json:"waitingListId"`
	PuppyName       string    `json:"puppyName"`
	OwnerName       string    `json:"ownerName"`
	ServiceRequired string    `json:"serviceRequired"`
	ArrivalTime     time.Time `json:"arrivalTime"`
	Status          string    `json:"status"`
	Rank            int       `json:"rank"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

const (
	StatusWaiting   = "WAITING"
	StatusCompleted = "COMPLETED"
)

// SearchResult pairs a matching entry with the date of the day it belongs to.
type SearchResult struct {
	Entry PuppyEntry `json:"entry"`
	Date  string     `json:"date"`
}
