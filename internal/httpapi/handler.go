package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"puppyspa/waitlist-service/internal/ordering"
	"puppyspa/waitlist-service/internal/store"
	"puppyspa/waitlist-service/internal/waitlist"
)

type Handler struct {
	service *waitlist.Service
}

type createListRequest struct {
	Date string `json:"date"`
}

type reorderRequest struct {
	EntryID       int64  `json:"entryId"`
	ToIndex       *int   `json:"toIndex"`
	TargetEntryID *int64 `json:"targetEntryId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type rankRequest struct {
	Rank int `json:"rank"`
}

type monthResponse struct {
	Month string   `json:"month"`
	Dates []string `json:"dates"`
}

type errorResponse struct {
	RequestID string        `json:"requestId"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewHandler(service *waitlist.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/waiting-lists", h.handleCreateList)
	mux.HandleFunc("/api/waiting-lists/", h.handleWaitingLists)
	mux.HandleFunc("/api/entries", h.handleCreateEntry)
	mux.HandleFunc("/api/entries/", h.handleEntries)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCreateList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// An empty body, chunked or not, starts today's list.
	var req createListRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = h.service.Today()
	}

	list, created, err := h.service.GetOrCreateList(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, list)
}

func (h *Handler) handleWaitingLists(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/waiting-lists/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "today":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.handleListView(w, r, "")
	case len(parts) == 1 && parts[0] == "dates":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.handleAllDates(w, r)
	case len(parts) == 2 && parts[0] == "date":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.handleListView(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "month":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.handleMonth(w, r, parts[1])
	case len(parts) == 2 && parts[1] == "reorder":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		listID, ok := parseID(w, r, parts[0], "listId")
		if !ok {
			return
		}
		h.handleReorder(w, r, listID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleListView(w http.ResponseWriter, r *http.Request, date string) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	var (
		view waitlist.ListView
		err  error
	)
	if date == "" {
		view, err = h.service.GetTodayList(r.Context(), filter)
	} else {
		view, err = h.service.GetListByDate(r.Context(), date, filter)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAllDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.service.ListAllDates(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

func (h *Handler) handleMonth(w http.ResponseWriter, r *http.Request, month string) {
	dates, err := h.service.ListDatesWithData(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{Month: month, Dates: dates})
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request, listID int64) {
	var req reorderRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	entries, err := h.service.ReorderEntries(r.Context(), waitlist.ReorderInput{
		ListID:        listID,
		EntryID:       req.EntryID,
		ToIndex:       req.ToIndex,
		TargetEntryID: req.TargetEntryID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req waitlist.CreateEntryInput
	if !decodeRequest(w, r, &req) {
		return
	}

	entry, err := h.service.CreateEntry(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 1 && parts[0] == "list" {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.handleListEntries(w, r)
		return
	}
	if len(parts) == 0 || len(parts) > 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	entryID, ok := parseID(w, r, parts[0], "id")
	if !ok {
		return
	}
	if len(parts) == 1 {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		entry, err := h.service.GetEntry(r.Context(), entryID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}

	switch parts[1] {
	case "status":
		if !allowMethod(w, r, http.MethodPut) {
			return
		}
		h.handleSetStatus(w, r, entryID)
	case "toggle":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		entry, err := h.service.ToggleStatus(r.Context(), entryID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case "rank":
		if !allowMethod(w, r, http.MethodPut) {
			return
		}
		h.handleSetRank(w, r, entryID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleListEntries serves both the per-day listing (listId) and the
// cross-day search (q).
func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if _, searching := query["q"]; searching {
		results, err := h.service.SearchEntries(r.Context(), query.Get("q"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
		return
	}

	listRaw := strings.TrimSpace(query.Get("listId"))
	if listRaw == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "listId or q is required")
		return
	}
	listID, ok := parseID(w, r, listRaw, "listId")
	if !ok {
		return
	}
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetEntries(r.Context(), listID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request, entryID int64) {
	var req statusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	entry, err := h.service.SetStatus(r.Context(), entryID, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleSetRank(w http.ResponseWriter, r *http.Request, entryID int64) {
	var req rankRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	entries, err := h.service.MoveToRank(r.Context(), entryID, req.Rank)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var offset store.EventOffset
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after")); afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, afterRaw)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		offset.LastEventTime = parsed
		offset.LastEventID = strings.TrimSpace(r.URL.Query().Get("afterId"))
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.service.ListEvents(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, raw, field string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", field+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (ordering.Filter, bool) {
	filter, err := ordering.ParseFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "status must be ALL, WAITING or COMPLETED")
		return "", false
	}
	return filter, true
}

func decodeBody(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	resp := errorResponse{
		RequestID: requestIDFromRequest(r),
		Error:     responseError{Code: code, Message: msg},
	}
	var validation *waitlist.ValidationError
	if errors.As(err, &validation) {
		resp.Error.Field = validation.Field
	}
	writeJSON(w, status, resp)
}

func mapError(err error) (int, string, string) {
	var validation *waitlist.ValidationError
	var transport *waitlist.TransportError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "invalid_request", validation.Error()
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_request", "status must be WAITING or COMPLETED"
	case errors.Is(err, store.ErrListNotFound):
		return http.StatusNotFound, "list_not_found", "waiting list not found"
	case errors.Is(err, store.ErrEntryNotFound), errors.Is(err, ordering.ErrEntryNotInList):
		return http.StatusNotFound, "entry_not_found", "entry not found"
	case errors.Is(err, store.ErrListExists):
		return http.StatusConflict, "list_exists", "a waiting list already exists for this date"
	case errors.Is(err, store.ErrOrderingMismatch):
		return http.StatusConflict, "ordering_conflict", "the list changed; reload and try again"
	case errors.As(err, &transport):
		return http.StatusServiceUnavailable, "storage_unavailable", "request failed; storage is unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
