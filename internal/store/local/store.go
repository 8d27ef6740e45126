// Package local is a JSON file backed WaitingListStore. The file is read once
// by Open and rewritten after every mutation; with an empty path the store
// lives purely in memory.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/ordering"
	"puppyspa/waitlist-service/internal/store"
)

const defaultMaxEvents = 1000

type Store struct {
	mu        sync.Mutex
	path      string
	state     fileState
	events    []store.OutboxEvent
	maxEvents int
	now       func() time.Time
}

type Options struct {
	MaxEvents int
	Now       func() time.Time
}

type fileState struct {
	NextListID  int64        `json:"nextListId"`
	NextEntryID int64        `json:"nextEntryId"`
	Lists       []listRecord `json:"lists"`
}

type listRecord struct {
	ID        int64               `json:"id"`
	Date      string              `json:"date"`
	CreatedAt time.Time           `json:"createdAt"`
	Entries   []models.PuppyEntry `json:"entries"`
}

// Open loads the store file at path. A missing file starts an empty store.
func Open(path string, options Options) (*Store, error) {
	s := &Store{
		path:      path,
		maxEvents: options.MaxEvents,
		now:       options.Now,
	}
	if s.maxEvents <= 0 {
		s.maxEvents = defaultMaxEvents
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", path, err)
	}
	return s, nil
}

// NewMemory returns a store that never touches the filesystem.
func NewMemory() *Store {
	s, _ := Open("", Options{})
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) CreateList(ctx context.Context, date string) (models.WaitingList, bool, error) {
	var created models.WaitingList
	existed := false
	err := s.mutate(ctx, func(st *fileState, now time.Time) ([]store.OutboxEvent, error) {
		if idx := st.indexByDate(date); idx >= 0 {
			created = st.Lists[idx].toModel()
			existed = true
			return nil, nil
		}
		st.NextListID++
		record := listRecord{ID: st.NextListID, Date: date, CreatedAt: now, Entries: []models.PuppyEntry{}}
		st.Lists = append(st.Lists, record)
		created = record.toModel()
		event, err := store.NewListCreatedEvent(created, now)
		if err != nil {
			return nil, err
		}
		return []store.OutboxEvent{event}, nil
	})
	if err != nil {
		return models.WaitingList{}, false, err
	}
	return created, !existed, nil
}

func (s *Store) GetListByDate(ctx context.Context, date string) (models.WaitingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.state.indexByDate(date)
	if idx < 0 {
		return models.WaitingList{}, store.ErrListNotFound
	}
	return s.state.Lists[idx].toModel(), nil
}

func (s *Store) GetList(ctx context.Context, listID int64) (models.WaitingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.state.indexByID(listID)
	if idx < 0 {
		return models.WaitingList{}, store.ErrListNotFound
	}
	return s.state.Lists[idx].toModel(), nil
}

func (s *Store) ListDatesInMonth(ctx context.Context, month time.Time) ([]string, error) {
	prefix := month.Format(models.MonthLayout) + "-"
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := []string{}
	for _, list := range s.state.Lists {
		if strings.HasPrefix(list.Date, prefix) {
			dates = append(dates, list.Date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (s *Store) ListDates(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := make([]string, 0, len(s.state.Lists))
	for _, list := range s.state.Lists {
		dates = append(dates, list.Date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func (s *Store) CreateEntry(ctx context.Context, input store.CreateEntryInput) (models.PuppyEntry, error) {
	var entry models.PuppyEntry
	err := s.mutate(ctx, func(st *fileState, now time.Time) ([]store.OutboxEvent, error) {
		idx := st.indexByID(input.WaitingListID)
		if idx < 0 {
			return nil, store.ErrListNotFound
		}
		createdAt := input.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		st.NextEntryID++
		list := &st.Lists[idx]
		entry = models.PuppyEntry{
			ID:              st.NextEntryID,
			WaitingListID:   list.ID,
			PuppyName:       input.PuppyName,
			OwnerName:       input.OwnerName,
			ServiceRequired: input.ServiceRequired,
			ArrivalTime:     input.ArrivalTime.UTC(),
			Status:          models.StatusWaiting,
			Rank:            len(list.Entries) + 1,
			CreatedAt:       createdAt,
			UpdatedAt:       createdAt,
		}
		list.Entries = append(list.Entries, entry)
		event, err := store.NewEntryEvent(store.EventEntryCreated, list.Date, entry, now)
		if err != nil {
			return nil, err
		}
		return []store.OutboxEvent{event}, nil
	})
	if err != nil {
		return models.PuppyEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListEntries(ctx context.Context, listID int64) ([]models.PuppyEntry, error) {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	return list.Entries, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID int64) (models.PuppyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	li, ei := s.state.indexOfEntry(entryID)
	if li < 0 {
		return models.PuppyEntry{}, store.ErrEntryNotFound
	}
	return s.state.Lists[li].Entries[ei], nil
}

func (s *Store) SetStatus(ctx context.Context, entryID int64, status string) (models.PuppyEntry, error) {
	if !store.ValidStatus(status) {
		return models.PuppyEntry{}, store.ErrInvalidStatus
	}
	var entry models.PuppyEntry
	err := s.mutate(ctx, func(st *fileState, now time.Time) ([]store.OutboxEvent, error) {
		li, ei := st.indexOfEntry(entryID)
		if li < 0 {
			return nil, store.ErrEntryNotFound
		}
		target := &st.Lists[li].Entries[ei]
		target.Status = status
		target.UpdatedAt = now
		entry = *target
		event, err := store.NewEntryEvent(store.EventEntryStatusChanged, st.Lists[li].Date, entry, now)
		if err != nil {
			return nil, err
		}
		return []store.OutboxEvent{event}, nil
	})
	if err != nil {
		return models.PuppyEntry{}, err
	}
	return entry, nil
}

func (s *Store) SetRank(ctx context.Context, entryID int64, rank int) (models.PuppyEntry, error) {
	var entry models.PuppyEntry
	err := s.mutate(ctx, func(st *fileState, now time.Time) ([]store.OutboxEvent, error) {
		li, ei := st.indexOfEntry(entryID)
		if li < 0 {
			return nil, store.ErrEntryNotFound
		}
		target := &st.Lists[li].Entries[ei]
		target.Rank = rank
		target.UpdatedAt = now
		entry = *target
		return nil, nil
	})
	if err != nil {
		return models.PuppyEntry{}, err
	}
	return entry, nil
}

func (s *Store) ApplyRanks(ctx context.Context, listID int64, orderedIDs []int64) ([]models.PuppyEntry, error) {
	var entries []models.PuppyEntry
	err := s.mutate(ctx, func(st *fileState, now time.Time) ([]store.OutboxEvent, error) {
		idx := st.indexByID(listID)
		if idx < 0 {
			return nil, store.ErrListNotFound
		}
		list := &st.Lists[idx]
		if !store.SameIDSet(ordering.IDs(list.Entries), orderedIDs) {
			return nil, store.ErrOrderingMismatch
		}
		position := make(map[int64]int, len(orderedIDs))
		for i, id := range orderedIDs {
			position[id] = i + 1
		}
		for i := range list.Entries {
			rank := position[list.Entries[i].ID]
			if list.Entries[i].Rank != rank {
				list.Entries[i].Rank = rank
				list.Entries[i].UpdatedAt = now
			}
		}
		entries = ordering.Sort(list.Entries)
		event, err := store.NewReorderEvent(list.ID, list.Date, orderedIDs, now)
		if err != nil {
			return nil, err
		}
		return []store.OutboxEvent{event}, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SearchEntries(ctx context.Context, term string, limit int) ([]models.SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	s.mu.Lock()
	defer s.mu.Unlock()

	lists := make([]listRecord, len(s.state.Lists))
	copy(lists, s.state.Lists)
	sort.SliceStable(lists, func(i, j int) bool { return lists[i].Date > lists[j].Date })

	results := []models.SearchResult{}
	for _, list := range lists {
		for _, entry := range ordering.Sort(list.Entries) {
			if !strings.Contains(strings.ToLower(entry.PuppyName), needle) &&
				!strings.Contains(strings.ToLower(entry.OwnerName), needle) {
				continue
			}
			results = append(results, models.SearchResult{Entry: entry, Date: list.Date})
			if limit > 0 && len(results) >= limit {
				return results, nil
			}
		}
	}
	return results, nil
}

func (s *Store) ListEvents(ctx context.Context, offset store.EventOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := []store.OutboxEvent{}
	for _, event := range s.events {
		if !offset.Before(event) {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

// mutate applies fn to a copy of the state, flushes the copy and only then
// makes it current.
func (s *Store) mutate(ctx context.Context, fn func(st *fileState, now time.Time) ([]store.OutboxEvent, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	events, err := fn(&next, s.now())
	if err != nil {
		return err
	}
	if err := s.flush(next); err != nil {
		return err
	}
	s.state = next
	s.appendEvents(events)
	return nil
}

func (s *Store) flush(state fileState) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("flush store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("flush store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("flush store: %w", err)
	}
	return nil
}

// appendEvents keeps event times strictly increasing so offsets taken from
// one event never hide a later event that shares its clock reading.
func (s *Store) appendEvents(events []store.OutboxEvent) {
	for _, event := range events {
		if n := len(s.events); n > 0 {
			if last := s.events[n-1].CreatedAt; !event.CreatedAt.After(last) {
				event.CreatedAt = last.Add(time.Microsecond)
			}
		}
		s.events = append(s.events, event)
	}
	if over := len(s.events) - s.maxEvents; over > 0 {
		s.events = append([]store.OutboxEvent(nil), s.events[over:]...)
	}
}

func (st fileState) clone() fileState {
	out := fileState{
		NextListID:  st.NextListID,
		NextEntryID: st.NextEntryID,
		Lists:       make([]listRecord, len(st.Lists)),
	}
	for i, list := range st.Lists {
		list.Entries = append([]models.PuppyEntry(nil), list.Entries...)
		out.Lists[i] = list
	}
	return out
}

func (st *fileState) indexByDate(date string) int {
	for i, list := range st.Lists {
		if list.Date == date {
			return i
		}
	}
	return -1
}

func (st *fileState) indexByID(listID int64) int {
	for i, list := range st.Lists {
		if list.ID == listID {
			return i
		}
	}
	return -1
}

func (st *fileState) indexOfEntry(entryID int64) (int, int) {
	for li, list := range st.Lists {
		for ei, entry := range list.Entries {
			if entry.ID == entryID {
				return li, ei
			}
		}
	}
	return -1, -1
}

func (r listRecord) toModel() models.WaitingList {
	return models.WaitingList{
		ID:        r.ID,
		Date:      r.Date,
		CreatedAt: r.CreatedAt,
		Entries:   ordering.Sort(r.Entries),
	}
}
