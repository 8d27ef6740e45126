// Package waitlist is the List Service: it validates staff input, drives the
// ordering engine and persists the outcome through a WaitingListStore.
package waitlist

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"puppyspa/waitlist-service/internal/metrics"
	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/ordering"
	"puppyspa/waitlist-service/internal/store"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultSearchLimit = 100
)

type Options struct {
	Timeout     time.Duration
	SearchLimit int
	Location    *time.Location
	Now         func() time.Time
	Logger      *zap.Logger
}

type Service struct {
	store       store.WaitingListStore
	timeout     time.Duration
	searchLimit int
	location    *time.Location
	now         func() time.Time
	logger      *zap.Logger
	validate    *validator.Validate
}

// ListView is a day list as shown to staff: entries sorted and filtered, with
// counts taken over the whole day.
type ListView struct {
	ID        int64               `json:"id"`
	Date      string              `json:"date"`
	CreatedAt time.Time           `json:"createdAt"`
	Filter    ordering.Filter     `json:"filter"`
	Counts    models.Counts       `json:"counts"`
	Entries   []models.PuppyEntry `json:"entries"`
}

type CreateEntryInput struct {
	WaitingListID   int64  `json:"waitingListId" validate:"gt=0"`
	PuppyName       string `json:"puppyName" validate:"notblank"`
	OwnerName       string `json:"ownerName" validate:"notblank"`
	ServiceRequired string `json:"serviceRequired" validate:"notblank"`
	ArrivalTime     string `json:"arrivalTime" validate:"required"`
}

// ReorderInput moves EntryID either to ToIndex of the full day list or onto
// the slot held by TargetEntryID. Exactly one target must be set.
type ReorderInput struct {
	ListID        int64
	EntryID       int64
	ToIndex       *int
	TargetEntryID *int64
}

func NewService(st store.WaitingListStore, options Options) *Service {
	s := &Service{
		store:       st,
		timeout:     options.Timeout,
		searchLimit: options.SearchLimit,
		location:    options.Location,
		now:         options.Now,
		logger:      options.Logger,
		validate:    newValidator(),
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.searchLimit <= 0 {
		s.searchLimit = defaultSearchLimit
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Today is the current date in the configured time zone.
func (s *Service) Today() string {
	return s.now().In(s.location).Format(models.DateLayout)
}

func (s *Service) GetOrCreateList(ctx context.Context, date string) (models.WaitingList, bool, error) {
	if err := validateDate(date); err != nil {
		return models.WaitingList{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.store.GetListByDate(ctx, date)
	if err == nil {
		return list, false, nil
	}
	if !errors.Is(err, store.ErrListNotFound) {
		return models.WaitingList{}, false, s.fail("get_or_create_list", err)
	}

	list, created, err := s.store.CreateList(ctx, date)
	if errors.Is(err, store.ErrListExists) {
		// Lost a creation race; the winner's list is the answer.
		list, err = s.store.GetListByDate(ctx, date)
		created = false
	}
	if err != nil {
		return models.WaitingList{}, false, s.fail("get_or_create_list", err)
	}
	if created {
		metrics.ListsCreatedTotal.Inc()
		s.logger.Info("day list created", zap.String("date", date), zap.Int64("list_id", list.ID))
	}
	return list, created, nil
}

func (s *Service) CreateTodayList(ctx context.Context) (models.WaitingList, bool, error) {
	return s.GetOrCreateList(ctx, s.Today())
}

func (s *Service) GetListByDate(ctx context.Context, date string, filter ordering.Filter) (ListView, error) {
	if err := validateDate(date); err != nil {
		return ListView{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.store.GetListByDate(ctx, date)
	if err != nil {
		return ListView{}, s.fail("get_list_by_date", err)
	}
	return newListView(list, filter), nil
}

// GetTodayList never creates the day; starting a day is an explicit action.
func (s *Service) GetTodayList(ctx context.Context, filter ordering.Filter) (ListView, error) {
	return s.GetListByDate(ctx, s.Today(), filter)
}

func (s *Service) GetEntries(ctx context.Context, listID int64, filter ordering.Filter) ([]models.PuppyEntry, error) {
	if listID <= 0 {
		return nil, invalid("listId", "must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries, err := s.store.ListEntries(ctx, listID)
	if err != nil {
		return nil, s.fail("get_entries", err)
	}
	return ordering.FilterByStatus(ordering.Sort(entries), filter), nil
}

func (s *Service) GetEntry(ctx context.Context, entryID int64) (models.PuppyEntry, error) {
	if entryID <= 0 {
		return models.PuppyEntry{}, invalid("id", "must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.PuppyEntry{}, s.fail("get_entry", err)
	}
	return entry, nil
}

// ListDatesWithData returns the ascending dates inside month (YYYY-MM) that
// have a list.
func (s *Service) ListDatesWithData(ctx context.Context, month string) ([]string, error) {
	parsed, err := time.Parse(models.MonthLayout, strings.TrimSpace(month))
	if err != nil {
		return nil, invalid("month", "must be YYYY-MM")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dates, err := s.store.ListDatesInMonth(ctx, parsed)
	if err != nil {
		return nil, s.fail("list_dates_in_month", err)
	}
	return dates, nil
}

func (s *Service) ListAllDates(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dates, err := s.store.ListDates(ctx)
	if err != nil {
		return nil, s.fail("list_dates", err)
	}
	return dates, nil
}

// SearchEntries matches term against puppy and owner names across all days.
// A blank term matches nothing and never reaches the store.
func (s *Service) SearchEntries(ctx context.Context, term string) ([]models.SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []models.SearchResult{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.store.SearchEntries(ctx, term, s.searchLimit)
	if err != nil {
		return nil, s.fail("search_entries", err)
	}
	return results, nil
}

func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (models.PuppyEntry, error) {
	if err := s.validate.Struct(input); err != nil {
		return models.PuppyEntry{}, fromValidator(err)
	}
	arrival, err := time.Parse(time.RFC3339, strings.TrimSpace(input.ArrivalTime))
	if err != nil {
		return models.PuppyEntry{}, invalid("arrivalTime", "must be an RFC 3339 timestamp")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry, err := s.store.CreateEntry(ctx, store.CreateEntryInput{
		WaitingListID:   input.WaitingListID,
		PuppyName:       strings.TrimSpace(input.PuppyName),
		OwnerName:       strings.TrimSpace(input.OwnerName),
		ServiceRequired: strings.TrimSpace(input.ServiceRequired),
		ArrivalTime:     arrival.UTC(),
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return models.PuppyEntry{}, s.fail("create_entry", err)
	}
	metrics.EntriesCreatedTotal.Inc()
	s.logger.Info("entry created",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("list_id", entry.WaitingListID),
		zap.Int("rank", entry.Rank))
	return entry, nil
}

func (s *Service) ToggleStatus(ctx context.Context, entryID int64) (models.PuppyEntry, error) {
	if entryID <= 0 {
		return models.PuppyEntry{}, invalid("id", "must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.PuppyEntry{}, s.fail("toggle_status", err)
	}
	return s.applyStatus(ctx, current, ordering.ToggleStatus(current).Status)
}

// SetStatus moves an entry to status. Setting the status it already has
// returns the entry without writing.
func (s *Service) SetStatus(ctx context.Context, entryID int64, status string) (models.PuppyEntry, error) {
	if entryID <= 0 {
		return models.PuppyEntry{}, invalid("id", "must be positive")
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	if !store.ValidStatus(status) {
		return models.PuppyEntry{}, invalid("status", "must be WAITING or COMPLETED")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.PuppyEntry{}, s.fail("set_status", err)
	}
	if current.Status == status {
		return current, nil
	}
	return s.applyStatus(ctx, current, status)
}

func (s *Service) applyStatus(ctx context.Context, current models.PuppyEntry, status string) (models.PuppyEntry, error) {
	action, ok := store.ActionFor(current.Status, status)
	if !ok || !store.ValidTransition(action, current.Status) {
		return models.PuppyEntry{}, invalid("status", "cannot move from "+current.Status+" to "+status)
	}
	updated, err := s.store.SetStatus(ctx, current.ID, status)
	if err != nil {
		return models.PuppyEntry{}, s.fail("set_status", err)
	}
	metrics.StatusChangesTotal.WithLabelValues(status).Inc()
	s.logger.Info("entry status changed",
		zap.Int64("entry_id", updated.ID),
		zap.String("action", action),
		zap.String("status", updated.Status))
	return updated, nil
}

// ReorderEntries moves one entry within its day and commits every rank of the
// day in one batch. Ranks are always 1..N afterwards.
func (s *Service) ReorderEntries(ctx context.Context, input ReorderInput) ([]models.PuppyEntry, error) {
	if input.ListID <= 0 {
		return nil, invalid("listId", "must be positive")
	}
	if input.EntryID <= 0 {
		return nil, invalid("entryId", "must be positive")
	}
	if (input.ToIndex == nil) == (input.TargetEntryID == nil) {
		return nil, invalid("toIndex", "exactly one of toIndex or targetEntryId is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.store.ListEntries(ctx, input.ListID)
	if err != nil {
		return nil, s.fail("reorder", err)
	}
	current = ordering.Sort(current)

	var next []models.PuppyEntry
	if input.ToIndex != nil {
		next, err = ordering.MoveToIndex(current, input.EntryID, *input.ToIndex)
	} else {
		next, err = ordering.MoveByID(current, input.EntryID, *input.TargetEntryID)
	}
	switch {
	case errors.Is(err, ordering.ErrIndexOutOfRange):
		return nil, invalid("toIndex", "out of range")
	case err != nil:
		return nil, s.fail("reorder", err)
	}

	entries, err := s.store.ApplyRanks(ctx, input.ListID, ordering.IDs(next))
	if err != nil {
		return nil, s.fail("reorder", err)
	}
	metrics.ReordersTotal.Inc()
	s.logger.Info("entries reordered",
		zap.Int64("list_id", input.ListID),
		zap.Int64("entry_id", input.EntryID),
		zap.Int("entries", len(entries)))
	return ordering.Sort(entries), nil
}

// MoveToRank places an entry at a 1-based rank of its day.
func (s *Service) MoveToRank(ctx context.Context, entryID int64, rank int) ([]models.PuppyEntry, error) {
	if entryID <= 0 {
		return nil, invalid("id", "must be positive")
	}
	if rank <= 0 {
		return nil, invalid("rank", "must be positive")
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	entry, err := s.store.GetEntry(lookupCtx, entryID)
	cancel()
	if err != nil {
		return nil, s.fail("move_to_rank", err)
	}
	index := rank - 1
	entries, err := s.ReorderEntries(ctx, ReorderInput{ListID: entry.WaitingListID, EntryID: entryID, ToIndex: &index})
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Field == "toIndex" {
		return nil, invalid("rank", "out of range")
	}
	return entries, err
}

func (s *Service) fail(op string, err error) error {
	classified := classify(op, err)
	var transport *TransportError
	if errors.As(classified, &transport) {
		metrics.OperationErrorsTotal.WithLabelValues(op).Inc()
		s.logger.Error("store operation failed", zap.String("operation", op), zap.Error(err))
	}
	return classified
}

func newListView(list models.WaitingList, filter ordering.Filter) ListView {
	if filter == "" {
		filter = ordering.FilterAll
	}
	sorted := ordering.Sort(list.Entries)
	return ListView{
		ID:        list.ID,
		Date:      list.Date,
		CreatedAt: list.CreatedAt,
		Filter:    filter,
		Counts:    ordering.Count(sorted),
		Entries:   ordering.FilterByStatus(sorted, filter),
	}
}

func validateDate(date string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return invalid("date", "must be YYYY-MM-DD")
	}
	return nil
}

// ListEvents pages through committed changes in outbox order.
func (s *Service) ListEvents(ctx context.Context, offset store.EventOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		return nil, invalid("limit", "must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.store.ListEvents(ctx, offset, limit)
	if err != nil {
		return nil, s.fail("list_events", err)
	}
	return events, nil
}
