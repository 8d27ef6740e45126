package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"puppyspa/waitlist-service/internal/models"
)

const (
	EventListCreated        = "list.created"
	EventEntryCreated       = "entry.created"
	EventEntryStatusChanged = "entry.status_changed"
	EventEntryReordered     = "entry.reordered"
)

type OutboxEvent struct {
	EventID   string          `json:"eventId"`
	Type      string          `json:"type"`
	Date      string          `json:"date"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventOffset marks the last event a reader has consumed. Events are ordered by
// creation time and then id.
type EventOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

func (o EventOffset) Before(event OutboxEvent) bool {
	if event.CreatedAt.After(o.LastEventTime) {
		return true
	}
	return event.CreatedAt.Equal(o.LastEventTime) && event.EventID > o.LastEventID
}

type entryPayload struct {
	EntryID       int64  `json:"entryId"`
	WaitingListID int64  `json:"waitingListId"`
	PuppyName     string `json:"puppyName"`
	OwnerName     string `json:"ownerName"`
	Status        string `json:"status"`
	Rank          int    `json:"rank"`
}

type reorderPayload struct {
	WaitingListID int64   `json:"waitingListId"`
	Order         []int64 `json:"order"`
}

type listPayload struct {
	WaitingListID int64  `json:"waitingListId"`
	Date          string `json:"date"`
}

func NewListCreatedEvent(list models.WaitingList, at time.Time) (OutboxEvent, error) {
	return newEvent(EventListCreated, list.Date, listPayload{WaitingListID: list.ID, Date: list.Date}, at)
}

func NewEntryEvent(eventType, date string, entry models.PuppyEntry, at time.Time) (OutboxEvent, error) {
	return newEvent(eventType, date, entryPayload{
		EntryID:       entry.ID,
		WaitingListID: entry.WaitingListID,
		PuppyName:     entry.PuppyName,
		OwnerName:     entry.OwnerName,
		Status:        entry.Status,
		Rank:          entry.Rank,
	}, at)
}

func NewReorderEvent(listID int64, date string, order []int64, at time.Time) (OutboxEvent, error) {
	return newEvent(EventEntryReordered, date, reorderPayload{WaitingListID: listID, Order: order}, at)
}

func newEvent(eventType, date string, payload interface{}, at time.Time) (OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Date:      date,
		Payload:   raw,
		CreatedAt: at.UTC(),
	}, nil
}
