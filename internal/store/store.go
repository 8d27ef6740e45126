package store

import (
	"context"
	"time"

	"puppyspa/waitlist-service/internal/models"
)

type CreateEntryInput struct {
	WaitingListID   int64
	PuppyName       string
	OwnerName       string
	ServiceRequired string
	ArrivalTime     time.Time
	CreatedAt       time.Time
}

type WaitingListStore interface {
	CreateList(ctx context.Context, date string) (models.WaitingList, bool, error)
	GetListByDate(ctx context.Context, date string) (models.WaitingList, error)
	GetList(ctx context.Context, listID int64) (models.WaitingList, error)
	ListDatesInMonth(ctx context.Context, month time.Time) ([]string, error)
	ListDates(ctx context.Context) ([]string, error)
	CreateEntry(ctx context.Context, input CreateEntryInput) (models.PuppyEntry, error)
	ListEntries(ctx context.Context, listID int64) ([]models.PuppyEntry, error)
	GetEntry(ctx context.Context, entryID int64) (models.PuppyEntry, error)
	SetStatus(ctx context.Context, entryID int64, status string) (models.PuppyEntry, error)
	SetRank(ctx context.Context, entryID int64, rank int) (models.PuppyEntry, error)
	ApplyRanks(ctx context.Context, listID int64, orderedIDs []int64) ([]models.PuppyEntry, error)
	SearchEntries(ctx context.Context, term string, limit int) ([]models.SearchResult, error)
	ListEvents(ctx context.Context, offset EventOffset, limit int) ([]OutboxEvent, error)
}

// MonthBounds returns the first day of month and the first day of the next one.
func MonthBounds(month time.Time) (time.Time, time.Time) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// SameIDSet reports whether ordered is a permutation of current.
func SameIDSet(current, ordered []int64) bool {
	if len(current) != len(ordered) {
		return false
	}
	seen := make(map[int64]bool, len(current))
	for _, id := range current {
		seen[id] = true
	}
	for _, id := range ordered {
		if !seen[id] {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}
