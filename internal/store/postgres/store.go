package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const entryColumns = `entry_id, list_id, puppy_name, owner_name, service_required, arrival_time, status, rank, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *Store) CreateList(ctx context.Context, date string) (models.WaitingList, bool, error) {
	day, err := parseDate(date)
	if err != nil {
		return models.WaitingList{}, false, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.WaitingList{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	list := models.WaitingList{Date: date, Entries: []models.PuppyEntry{}}
	row := tx.QueryRow(ctx, `
		INSERT INTO waiting_lists (list_date, created_at)
		VALUES ($1, $2)
		ON CONFLICT (list_date) DO NOTHING
		RETURNING list_id, created_at
	`, day, time.Now().UTC())
	if err = row.Scan(&list.ID, &list.CreatedAt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.WaitingList{}, false, err
		}
		existing, lookupErr := getListByDate(ctx, tx, day)
		if lookupErr != nil {
			err = lookupErr
			return models.WaitingList{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.WaitingList{}, false, err
		}
		return existing, false, nil
	}

	event, err := store.NewListCreatedEvent(list, list.CreatedAt)
	if err != nil {
		return models.WaitingList{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, event); err != nil {
		return models.WaitingList{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return models.WaitingList{}, false, store.ErrListExists
		}
		return models.WaitingList{}, false, err
	}
	return list, true, nil
}

func (s *Store) GetListByDate(ctx context.Context, date string) (models.WaitingList, error) {
	day, err := parseDate(date)
	if err != nil {
		return models.WaitingList{}, err
	}
	return getListByDate(ctx, s.pool, day)
}

func (s *Store) GetList(ctx context.Context, listID int64) (models.WaitingList, error) {
	var list models.WaitingList
	row := s.pool.QueryRow(ctx, `
		SELECT list_id, to_char(list_date, 'YYYY-MM-DD'), created_at
		FROM waiting_lists
		WHERE list_id = $1
	`, listID)
	if err := row.Scan(&list.ID, &list.Date, &list.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WaitingList{}, store.ErrListNotFound
		}
		return models.WaitingList{}, err
	}
	entries, err := listEntries(ctx, s.pool, list.ID)
	if err != nil {
		return models.WaitingList{}, err
	}
	list.Entries = entries
	return list, nil
}

func (s *Store) ListDatesInMonth(ctx context.Context, month time.Time) ([]string, error) {
	start, next := store.MonthBounds(month)
	return queryDates(ctx, s.pool, `
		SELECT to_char(list_date, 'YYYY-MM-DD')
		FROM waiting_lists
		WHERE list_date >= $1 AND list_date < $2
		ORDER BY list_date ASC
	`, start, next)
}

func (s *Store) ListDates(ctx context.Context) ([]string, error) {
	return queryDates(ctx, s.pool, `
		SELECT to_char(list_date, 'YYYY-MM-DD')
		FROM waiting_lists
		ORDER BY list_date DESC
	`)
}

func (s *Store) CreateEntry(ctx context.Context, input store.CreateEntryInput) (models.PuppyEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PuppyEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	date, err := lockList(ctx, tx, input.WaitingListID)
	if err != nil {
		return models.PuppyEntry{}, err
	}

	var count int
	if err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM puppy_entries WHERE list_id = $1`, input.WaitingListID).Scan(&count); err != nil {
		return models.PuppyEntry{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO puppy_entries (
			list_id, puppy_name, owner_name, service_required, arrival_time, status, rank, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		RETURNING `+entryColumns,
		input.WaitingListID, input.PuppyName, input.OwnerName, input.ServiceRequired,
		input.ArrivalTime.UTC(), models.StatusWaiting, count+1, createdAt)
	entry, err := scanEntry(row)
	if err != nil {
		return models.PuppyEntry{}, err
	}

	event, err := store.NewEntryEvent(store.EventEntryCreated, date, entry, createdAt)
	if err != nil {
		return models.PuppyEntry{}, err
	}
	if err = insertOutboxEvent(ctx, tx, event); err != nil {
		return models.PuppyEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.PuppyEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListEntries(ctx context.Context, listID int64) ([]models.PuppyEntry, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM waiting_lists WHERE list_id = $1)`, listID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrListNotFound
	}
	return listEntries(ctx, s.pool, listID)
}

func (s *Store) GetEntry(ctx context.Context, entryID int64) (models.PuppyEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM puppy_entries WHERE entry_id = $1`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PuppyEntry{}, store.ErrEntryNotFound
		}
		return models.PuppyEntry{}, err
	}
	return entry, nil
}

func (s *Store) SetStatus(ctx context.Context, entryID int64, status string) (models.PuppyEntry, error) {
	if !store.ValidStatus(status) {
		return models.PuppyEntry{}, store.ErrInvalidStatus
	}
	return s.updateEntry(ctx, entryID, store.EventEntryStatusChanged, `
		UPDATE puppy_entries SET status = $2, updated_at = $3
		WHERE entry_id = $1
		RETURNING `+entryColumns, status)
}

func (s *Store) SetRank(ctx context.Context, entryID int64, rank int) (models.PuppyEntry, error) {
	entry, err := s.updateEntry(ctx, entryID, "", `
		UPDATE puppy_entries SET rank = $2, updated_at = $3
		WHERE entry_id = $1
		RETURNING `+entryColumns, rank)
	if isUniqueViolation(err) {
		return models.PuppyEntry{}, store.ErrOrderingMismatch
	}
	return entry, err
}

func (s *Store) updateEntry(ctx context.Context, entryID int64, eventType, query string, value interface{}) (models.PuppyEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PuppyEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	entry, err := scanEntry(tx.QueryRow(ctx, query, entryID, value, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrEntryNotFound
		}
		return models.PuppyEntry{}, err
	}

	if eventType != "" {
		var date string
		if err = tx.QueryRow(ctx, `SELECT to_char(list_date, 'YYYY-MM-DD') FROM waiting_lists WHERE list_id = $1`, entry.WaitingListID).Scan(&date); err != nil {
			return models.PuppyEntry{}, err
		}
		event, eventErr := store.NewEntryEvent(eventType, date, entry, now)
		if eventErr != nil {
			err = eventErr
			return models.PuppyEntry{}, err
		}
		if err = insertOutboxEvent(ctx, tx, event); err != nil {
			return models.PuppyEntry{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.PuppyEntry{}, err
	}
	return entry, nil
}

// ApplyRanks rewrites every rank of a list in one transaction. The list row
// lock serializes concurrent reorders and entry creation for the same day.
func (s *Store) ApplyRanks(ctx context.Context, listID int64, orderedIDs []int64) ([]models.PuppyEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	date, err := lockList(ctx, tx, listID)
	if err != nil {
		return nil, err
	}
	current, err := listEntries(ctx, tx, listID)
	if err != nil {
		return nil, err
	}
	currentIDs := make([]int64, len(current))
	for i, entry := range current {
		currentIDs[i] = entry.ID
	}
	if !store.SameIDSet(currentIDs, orderedIDs) {
		err = store.ErrOrderingMismatch
		return nil, err
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i, id := range orderedIDs {
		batch.Queue(`
			UPDATE puppy_entries SET rank = $2, updated_at = $3
			WHERE entry_id = $1 AND rank <> $2
		`, id, i+1, now)
	}
	results := tx.SendBatch(ctx, batch)
	for range orderedIDs {
		if _, err = results.Exec(); err != nil {
			_ = results.Close()
			return nil, err
		}
	}
	if err = results.Close(); err != nil {
		return nil, err
	}

	entries, err := listEntries(ctx, tx, listID)
	if err != nil {
		return nil, err
	}
	event, err := store.NewReorderEvent(listID, date, orderedIDs, now)
	if err != nil {
		return nil, err
	}
	if err = insertOutboxEvent(ctx, tx, event); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrOrderingMismatch
		}
		return nil, err
	}
	return entries, nil
}

func (s *Store) SearchEntries(ctx context.Context, term string, limit int) ([]models.SearchResult, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"
	query := `
		SELECT e.entry_id, e.list_id, e.puppy_name, e.owner_name, e.service_required, e.arrival_time,
			e.status, e.rank, e.created_at, e.updated_at, to_char(l.list_date, 'YYYY-MM-DD')
		FROM puppy_entries e
		JOIN waiting_lists l ON l.list_id = e.list_id
		WHERE e.puppy_name ILIKE $1 ESCAPE '\' OR e.owner_name ILIKE $1 ESCAPE '\'
		ORDER BY l.list_date DESC, e.rank ASC, e.arrival_time ASC, e.entry_id ASC
	`
	args := []interface{}{pattern}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var result models.SearchResult
		entry := &result.Entry
		if err := rows.Scan(&entry.ID, &entry.WaitingListID, &entry.PuppyName, &entry.OwnerName, &entry.ServiceRequired,
			&entry.ArrivalTime, &entry.Status, &entry.Rank, &entry.CreatedAt, &entry.UpdatedAt, &result.Date); err != nil {
			return nil, err
		}
		normalizeTimes(entry)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) ListEvents(ctx context.Context, offset store.EventOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id::text, type, to_char(list_date, 'YYYY-MM-DD'), payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	switch {
	case offset.LastEventTime.IsZero():
	case offset.LastEventID == "":
		query += " WHERE created_at > $1"
		args = append(args, offset.LastEventTime)
	default:
		query += " WHERE (created_at, event_id::text) > ($1, $2)"
		args = append(args, offset.LastEventTime, offset.LastEventID)
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC, event_id::text ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []store.OutboxEvent{}
	for rows.Next() {
		var event store.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.Type, &event.Date, &payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func getListByDate(ctx context.Context, q querier, day time.Time) (models.WaitingList, error) {
	var list models.WaitingList
	row := q.QueryRow(ctx, `
		SELECT list_id, to_char(list_date, 'YYYY-MM-DD'), created_at
		FROM waiting_lists
		WHERE list_date = $1
	`, day)
	if err := row.Scan(&list.ID, &list.Date, &list.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WaitingList{}, store.ErrListNotFound
		}
		return models.WaitingList{}, err
	}
	entries, err := listEntries(ctx, q, list.ID)
	if err != nil {
		return models.WaitingList{}, err
	}
	list.Entries = entries
	return list, nil
}

func lockList(ctx context.Context, tx pgx.Tx, listID int64) (string, error) {
	var date string
	row := tx.QueryRow(ctx, `
		SELECT to_char(list_date, 'YYYY-MM-DD')
		FROM waiting_lists
		WHERE list_id = $1
		FOR UPDATE
	`, listID)
	if err := row.Scan(&date); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrListNotFound
		}
		return "", err
	}
	return date, nil
}

func listEntries(ctx context.Context, q querier, listID int64) ([]models.PuppyEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT `+entryColumns+`
		FROM puppy_entries
		WHERE list_id = $1
		ORDER BY rank ASC, arrival_time ASC, entry_id ASC
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.PuppyEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func queryDates(ctx context.Context, q querier, query string, args ...interface{}) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dates, nil
}

func scanEntry(row pgx.Row) (models.PuppyEntry, error) {
	var entry models.PuppyEntry
	if err := row.Scan(&entry.ID, &entry.WaitingListID, &entry.PuppyName, &entry.OwnerName, &entry.ServiceRequired,
		&entry.ArrivalTime, &entry.Status, &entry.Rank, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return models.PuppyEntry{}, err
	}
	normalizeTimes(&entry)
	return entry, nil
}

func normalizeTimes(entry *models.PuppyEntry) {
	entry.ArrivalTime = entry.ArrivalTime.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, event store.OutboxEvent) error {
	day, err := parseDate(event.Date)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, list_date, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.EventID, event.Type, day, []byte(event.Payload), event.CreatedAt.Truncate(time.Microsecond))
	return err
}

func parseDate(date string) (time.Time, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid list date %q: %w", date, err)
	}
	return day, nil
}

// escapeLike quotes the ILIKE wildcards so a search term always matches literally.
func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
