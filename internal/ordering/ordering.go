// Package ordering holds the pure rank and status rules for a day's entries.
// Functions never mutate their input; every result is a fresh slice.
package ordering

import (
	"errors"
	"sort"
	"strings"

	"puppyspa/waitlist-service/internal/models"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrEntryNotInList  = errors.New("entry not in list")
	ErrUnknownFilter   = errors.New("unknown status filter")
)

type Filter string

const (
	FilterAll       Filter = "ALL"
	FilterWaiting   Filter = "WAITING"
	FilterCompleted Filter = "COMPLETED"
)

// ParseFilter accepts filter names case-insensitively. An empty value means ALL
// and "serviced" is accepted as an alias for COMPLETED.
func ParseFilter(raw string) (Filter, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(FilterAll):
		return FilterAll, nil
	case string(FilterWaiting):
		return FilterWaiting, nil
	case string(FilterCompleted), "SERVICED":
		return FilterCompleted, nil
	default:
		return "", ErrUnknownFilter
	}
}

// Reorder moves the entry at from to position to, shifting the entries in
// between by one, and renumbers every rank as index+1.
func Reorder(entries []models.PuppyEntry, from, to int) ([]models.PuppyEntry, error) {
	if from < 0 || from >= len(entries) || to < 0 || to >= len(entries) {
		return nil, ErrIndexOutOfRange
	}
	out := make([]models.PuppyEntry, 0, len(entries))
	out = append(out, entries[:from]...)
	out = append(out, entries[from+1:]...)

	moved := entries[from]
	out = append(out, models.PuppyEntry{})
	copy(out[to+1:], out[to:])
	out[to] = moved

	return Renumber(out), nil
}

// MoveToIndex moves the entry with the given id to position to of the full list.
func MoveToIndex(entries []models.PuppyEntry, entryID int64, to int) ([]models.PuppyEntry, error) {
	from := indexOf(entries, entryID)
	if from < 0 {
		return nil, ErrEntryNotInList
	}
	return Reorder(entries, from, to)
}

// MoveByID moves sourceID to the position currently held by targetID. Views
// that hide entries behind a filter resolve drops to ids so hidden entries keep
// their relative order.
func MoveByID(entries []models.PuppyEntry, sourceID, targetID int64) ([]models.PuppyEntry, error) {
	from := indexOf(entries, sourceID)
	to := indexOf(entries, targetID)
	if from < 0 || to < 0 {
		return nil, ErrEntryNotInList
	}
	return Reorder(entries, from, to)
}

func Renumber(entries []models.PuppyEntry) []models.PuppyEntry {
	out := make([]models.PuppyEntry, len(entries))
	copy(out, entries)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Sort orders entries by rank. Equal ranks fall back to arrival time and then
// id so the display order stays deterministic for corrupted imports.
func Sort(entries []models.PuppyEntry) []models.PuppyEntry {
	out := make([]models.PuppyEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if !a.ArrivalTime.Equal(b.ArrivalTime) {
			return a.ArrivalTime.Before(b.ArrivalTime)
		}
		return a.ID < b.ID
	})
	return out
}

func ToggleStatus(entry models.PuppyEntry) models.PuppyEntry {
	if entry.Status == models.StatusCompleted {
		entry.Status = models.StatusWaiting
	} else {
		entry.Status = models.StatusCompleted
	}
	return entry
}

func FilterByStatus(entries []models.PuppyEntry, filter Filter) []models.PuppyEntry {
	out := make([]models.PuppyEntry, 0, len(entries))
	for _, entry := range entries {
		switch filter {
		case FilterWaiting:
			if entry.Status != models.StatusWaiting {
				continue
			}
		case FilterCompleted:
			if entry.Status != models.StatusCompleted {
				continue
			}
		}
		out = append(out, entry)
	}
	return out
}

// ContiguousRanks reports whether the ranks form exactly 1..N.
func ContiguousRanks(entries []models.PuppyEntry) bool {
	seen := make([]bool, len(entries)+1)
	for _, entry := range entries {
		if entry.Rank < 1 || entry.Rank > len(entries) || seen[entry.Rank] {
			return false
		}
		seen[entry.Rank] = true
	}
	return true
}

func Count(entries []models.PuppyEntry) models.Counts {
	counts := models.Counts{Total: len(entries)}
	for _, entry := range entries {
		switch entry.Status {
		case models.StatusWaiting:
			counts.Waiting++
		case models.StatusCompleted:
			counts.Completed++
		}
	}
	return counts
}

// IDs returns the entry ids in slice order.
func IDs(entries []models.PuppyEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return ids
}

func indexOf(entries []models.PuppyEntry, id int64) int {
	for i, entry := range entries {
		if entry.ID == id {
			return i
		}
	}
	return -1
}
