package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/ordering"
	"puppyspa/waitlist-service/internal/store"
	"puppyspa/waitlist-service/internal/store/local"
)

// countingStore records every store call that reaches the backend.
type countingStore struct {
	store.WaitingListStore
	calls   map[string]int
	failErr error
}

func newCountingStore() *countingStore {
	return &countingStore{WaitingListStore: local.NewMemory(), calls: map[string]int{}}
}

func (c *countingStore) CreateEntry(ctx context.Context, input store.CreateEntryInput) (models.PuppyEntry, error) {
	c.calls["CreateEntry"]++
	if c.failErr != nil {
		return models.PuppyEntry{}, c.failErr
	}
	return c.WaitingListStore.CreateEntry(ctx, input)
}

func (c *countingStore) SearchEntries(ctx context.Context, term string, limit int) ([]models.SearchResult, error) {
	c.calls["SearchEntries"]++
	return c.WaitingListStore.SearchEntries(ctx, term, limit)
}

func (c *countingStore) SetStatus(ctx context.Context, entryID int64, status string) (models.PuppyEntry, error) {
	c.calls["SetStatus"]++
	return c.WaitingListStore.SetStatus(ctx, entryID, status)
}

func (c *countingStore) GetListByDate(ctx context.Context, date string) (models.WaitingList, error) {
	c.calls["GetListByDate"]++
	if c.failErr != nil {
		return models.WaitingList{}, c.failErr
	}
	return c.WaitingListStore.GetListByDate(ctx, date)
}

// racingStore loses the first lookup and then finds that another writer
// created the list between its lookup and its insert.
type racingStore struct {
	store.WaitingListStore
	lookupMissed bool
	winnerID     int64
}

func (r *racingStore) GetListByDate(ctx context.Context, date string) (models.WaitingList, error) {
	if !r.lookupMissed {
		r.lookupMissed = true
		return models.WaitingList{}, store.ErrListNotFound
	}
	return r.WaitingListStore.GetListByDate(ctx, date)
}

func (r *racingStore) CreateList(ctx context.Context, date string) (models.WaitingList, bool, error) {
	winner, _, err := r.WaitingListStore.CreateList(ctx, date)
	if err != nil {
		return models.WaitingList{}, false, err
	}
	r.winnerID = winner.ID
	return models.WaitingList{}, false, store.ErrListExists
}

var fixedNow = time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *countingStore) {
	t.Helper()
	st := newCountingStore()
	svc := NewService(st, Options{Now: func() time.Time { return fixedNow }})
	return svc, st
}

func seedDay(t *testing.T, svc *Service, date string, names ...string) (models.WaitingList, []models.PuppyEntry) {
	t.Helper()
	ctx := context.Background()
	list, _, err := svc.GetOrCreateList(ctx, date)
	require.NoError(t, err)
	entries := make([]models.PuppyEntry, 0, len(names))
	for i, name := range names {
		entry, err := svc.CreateEntry(ctx, CreateEntryInput{
			WaitingListID:   list.ID,
			PuppyName:       name,
			OwnerName:       "Owner " + name,
			ServiceRequired: "Bath",
			ArrivalTime:     time.Date(2026, 10, 19, 9, i, 0, 0, time.UTC).Format(time.RFC3339),
		})
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return list, entries
}

func TestGetOrCreateListIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.GetOrCreateList(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.GetOrCreateList(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	dates, err := svc.ListAllDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-19"}, dates)
}

func TestGetOrCreateListRejectsBadDate(t *testing.T) {
	svc, st := newTestService(t)
	_, _, err := svc.GetOrCreateList(context.Background(), "19-10-2026")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)
	assert.Zero(t, st.calls["GetListByDate"])
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	svc := NewService(local.NewMemory(), Options{Location: tokyo, Now: func() time.Time { return fixedNow }})
	assert.Equal(t, "2026-10-20", svc.Today())

	list, created, err := svc.CreateTodayList(context.Background())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "2026-10-20", list.Date)
}

func TestGetTodayListDoesNotCreate(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetTodayList(context.Background(), ordering.FilterAll)
	assert.True(t, IsNotFound(err))

	dates, err := svc.ListAllDates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestCreateEntryAssignsSequentialRanks(t *testing.T) {
	svc, _ := newTestService(t)
	_, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex", "Bella")

	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Rank)
		assert.Equal(t, models.StatusWaiting, entry.Status)
	}
}

func TestCreateEntryValidationSkipsStore(t *testing.T) {
	svc, st := newTestService(t)
	list, _ := seedDay(t, svc, "2026-10-19")

	cases := []struct {
		name  string
		input CreateEntryInput
		field string
	}{
		{"empty puppy", CreateEntryInput{WaitingListID: list.ID, PuppyName: "", OwnerName: "Jane", ServiceRequired: "Bath", ArrivalTime: "2026-10-19T09:00:00Z"}, "puppyName"},
		{"blank owner", CreateEntryInput{WaitingListID: list.ID, PuppyName: "Milo", OwnerName: "   ", ServiceRequired: "Bath", ArrivalTime: "2026-10-19T09:00:00Z"}, "ownerName"},
		{"blank service", CreateEntryInput{WaitingListID: list.ID, PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "\t", ArrivalTime: "2026-10-19T09:00:00Z"}, "serviceRequired"},
		{"bad arrival", CreateEntryInput{WaitingListID: list.ID, PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "Bath", ArrivalTime: "9am"}, "arrivalTime"},
		{"missing arrival", CreateEntryInput{WaitingListID: list.ID, PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "Bath"}, "arrivalTime"},
		{"no list", CreateEntryInput{PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "Bath", ArrivalTime: "2026-10-19T09:00:00Z"}, "waitingListId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEntry(context.Background(), tc.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Zero(t, st.calls["CreateEntry"])
}

func TestCreateEntryTrimsAndStoresUTC(t *testing.T) {
	svc, _ := newTestService(t)
	list, _ := seedDay(t, svc, "2026-10-19")

	entry, err := svc.CreateEntry(context.Background(), CreateEntryInput{
		WaitingListID:   list.ID,
		PuppyName:       "  Milo ",
		OwnerName:       "Jane",
		ServiceRequired: "Nail trim",
		ArrivalTime:     "2026-10-19T11:15:00+02:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "Milo", entry.PuppyName)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC), entry.ArrivalTime)
}

func TestCreateEntryTransportFailure(t *testing.T) {
	svc, st := newTestService(t)
	list, _ := seedDay(t, svc, "2026-10-19")
	st.failErr = errors.New("disk full")

	_, err := svc.CreateEntry(context.Background(), CreateEntryInput{
		WaitingListID: list.ID, PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "Bath", ArrivalTime: "2026-10-19T09:00:00Z",
	})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "create_entry", terr.Op)
	assert.False(t, IsNotFound(err))
}

func TestCreateEntryUnknownListIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateEntry(context.Background(), CreateEntryInput{
		WaitingListID: 77, PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "Bath", ArrivalTime: "2026-10-19T09:00:00Z",
	})
	assert.True(t, IsNotFound(err))
}

func TestToggleStatusRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	_, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex")
	ctx := context.Background()

	once, err := svc.ToggleStatus(ctx, entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, once.Status)
	assert.Equal(t, 2, once.Rank)

	twice, err := svc.ToggleStatus(ctx, entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, twice.Status)
	assert.Equal(t, 2, twice.Rank)

	_, err = svc.ToggleStatus(ctx, 999)
	assert.True(t, IsNotFound(err))
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	svc, st := newTestService(t)
	_, entries := seedDay(t, svc, "2026-10-19", "Milo")

	entry, err := svc.SetStatus(context.Background(), entries[0].ID, "waiting")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, entry.Status)
	assert.Zero(t, st.calls["SetStatus"])

	_, err = svc.SetStatus(context.Background(), entries[0].ID, "CANCELLED")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetListByDateFiltersAndCounts(t *testing.T) {
	svc, _ := newTestService(t)
	_, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex", "Bella")
	ctx := context.Background()
	_, err := svc.ToggleStatus(ctx, entries[1].ID)
	require.NoError(t, err)

	view, err := svc.GetListByDate(ctx, "2026-10-19", ordering.FilterWaiting)
	require.NoError(t, err)
	assert.Equal(t, models.Counts{Total: 3, Waiting: 2, Completed: 1}, view.Counts)
	assert.Equal(t, []int64{entries[0].ID, entries[2].ID}, ordering.IDs(view.Entries))

	completed, err := svc.GetEntries(ctx, view.ID, ordering.FilterCompleted)
	require.NoError(t, err)
	assert.Equal(t, []int64{entries[1].ID}, ordering.IDs(completed))

	_, err = svc.GetListByDate(ctx, "2026-10-18", ordering.FilterAll)
	assert.True(t, IsNotFound(err))
}

func TestReorderEntriesByIndex(t *testing.T) {
	svc, _ := newTestService(t)
	list, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex", "Bella")
	to := 2

	got, err := svc.ReorderEntries(context.Background(), ReorderInput{ListID: list.ID, EntryID: entries[0].ID, ToIndex: &to})
	require.NoError(t, err)
	assert.Equal(t, []int64{entries[1].ID, entries[2].ID, entries[0].ID}, ordering.IDs(got))
	assert.True(t, ordering.ContiguousRanks(got))

	stored, err := svc.GetEntries(context.Background(), list.ID, ordering.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, ordering.IDs(got), ordering.IDs(stored))
}

func TestReorderEntriesByTargetAcrossFilter(t *testing.T) {
	svc, _ := newTestService(t)
	list, entries := seedDay(t, svc, "2026-10-19", "A", "B", "C", "D")
	ctx := context.Background()
	_, err := svc.ToggleStatus(ctx, entries[1].ID)
	require.NoError(t, err)

	target := entries[0].ID
	got, err := svc.ReorderEntries(ctx, ReorderInput{ListID: list.ID, EntryID: entries[3].ID, TargetEntryID: &target})
	require.NoError(t, err)
	assert.Equal(t, []int64{entries[3].ID, entries[0].ID, entries[1].ID, entries[2].ID}, ordering.IDs(got))
}

func TestReorderEntriesRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	list, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex")
	ctx := context.Background()

	_, err := svc.ReorderEntries(ctx, ReorderInput{ListID: list.ID, EntryID: entries[0].ID})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	far := 5
	_, err = svc.ReorderEntries(ctx, ReorderInput{ListID: list.ID, EntryID: entries[0].ID, ToIndex: &far})
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "toIndex", verr.Field)

	zero := 0
	_, err = svc.ReorderEntries(ctx, ReorderInput{ListID: list.ID, EntryID: 999, ToIndex: &zero})
	assert.True(t, IsNotFound(err))
}

func TestGetOrCreateListRereadsAfterLostRace(t *testing.T) {
	st := &racingStore{WaitingListStore: local.NewMemory()}
	svc := NewService(st, Options{Now: func() time.Time { return fixedNow }})
	ctx := context.Background()

	list, created, err := svc.GetOrCreateList(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.False(t, created)
	require.NotZero(t, st.winnerID)
	assert.Equal(t, st.winnerID, list.ID)
	assert.Equal(t, "2026-10-19", list.Date)

	dates, err := svc.ListAllDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-19"}, dates)
}

func TestMoveToRankOutOfRangeNamesRank(t *testing.T) {
	svc, _ := newTestService(t)
	_, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex")

	_, err := svc.MoveToRank(context.Background(), entries[0].ID, 3)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rank", verr.Field)
}

func TestMoveToRank(t *testing.T) {
	svc, _ := newTestService(t)
	_, entries := seedDay(t, svc, "2026-10-19", "Milo", "Rex", "Bella")

	got, err := svc.MoveToRank(context.Background(), entries[2].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{entries[2].ID, entries[0].ID, entries[1].ID}, ordering.IDs(got))
	assert.True(t, ordering.ContiguousRanks(got))

	_, err = svc.MoveToRank(context.Background(), entries[2].ID, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSearchEntries(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	dayA, _, err := svc.GetOrCreateList(ctx, "2026-10-18")
	require.NoError(t, err)
	dayB, _, err := svc.GetOrCreateList(ctx, "2026-10-19")
	require.NoError(t, err)
	for _, in := range []CreateEntryInput{
		{WaitingListID: dayA.ID, PuppyName: "Milo", OwnerName: "Jane", ServiceRequired: "Bath", ArrivalTime: "2026-10-18T09:00:00Z"},
		{WaitingListID: dayB.ID, PuppyName: "Rex", OwnerName: "Milo Smith", ServiceRequired: "Cut", ArrivalTime: "2026-10-19T09:00:00Z"},
		{WaitingListID: dayB.ID, PuppyName: "Bella", OwnerName: "Ann", ServiceRequired: "Cut", ArrivalTime: "2026-10-19T10:00:00Z"},
	} {
		_, err := svc.CreateEntry(ctx, in)
		require.NoError(t, err)
	}

	results, err := svc.SearchEntries(ctx, "milo")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"Milo", "Rex"}, []string{results[0].Entry.PuppyName, results[1].Entry.PuppyName})

	empty, err := svc.SearchEntries(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
	assert.Equal(t, 1, st.calls["SearchEntries"])
}

func TestListDatesWithData(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, date := range []string{"2026-10-19", "2026-10-02", "2026-11-01"} {
		_, _, err := svc.GetOrCreateList(ctx, date)
		require.NoError(t, err)
	}

	dates, err := svc.ListDatesWithData(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-02", "2026-10-19"}, dates)

	_, err = svc.ListDatesWithData(ctx, "October")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("op", store.ErrListNotFound), store.ErrListNotFound)
	assert.True(t, IsConflict(classify("op", store.ErrOrderingMismatch)))

	wrapped := classify("op", context.DeadlineExceeded)
	var terr *TransportError
	require.ErrorAs(t, wrapped, &terr)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.Nil(t, classify("op", nil))
}
