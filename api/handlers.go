/*
handlers.go - HTTP API handlers for the fuel allocation engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates everything else to the engine package.

ENDPOINTS:
  Dispense events:
    POST   /api/dispense               Submit a pump reading
    GET    /api/dispense               List events (truck/status/recordId)
    GET    /api/dispense/{id}          Get one event with history
    POST   /api/dispense/{id}/link     Manually link a pending event
    POST   /api/dispense/{id}/reject   Dispute a linked event
    POST   /api/dispense/{id}/resolve  Acknowledge a rejection
    POST   /api/dispense/{id}/reenter  Re-run a rejected event

  Journey records:
    POST   /api/records                Create a journey record
    GET    /api/records                List records (truck/locked/deleted)
    GET    /api/records/verify         Balance audit
    GET    /api/records/{id}           Get one record
    POST   /api/records/{id}/checkpoints Post a station quantity
    POST   /api/records/{id}/return-do Attach the return DO
    POST   /api/records/{id}/cancel    Void the record
    DELETE /api/records/{id}           Soft delete

ERROR HANDLING:
  Domain errors map onto HTTP status by taxonomy:
  - 400: Validation errors (truck, liters, DO, yard, slot)
  - 404: Missing records/events
  - 409: Duplicate DO, cancelled target, forbidden transition,
         write conflict that survived the engine's retry
  - 500: Everything else
  A submission with no matching record is a 201 with a message, not an
  error.

SECURITY NOTE:
  Currently NO authentication or authorization; the API is meant to sit
  behind the back-office network boundary.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ../engine: The operations these handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Logger *zap.Logger
}

// NewHandler creates a new handler around the engine.
func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: eng, Logger: logger}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// DISPENSE EVENT HANDLERS
// =============================================================================

// SubmitDispense runs a pump reading through the pipeline.
// POST /api/dispense
func (h *Handler) SubmitDispense(w http.ResponseWriter, r *http.Request) {
	var req SubmitDispenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	eventDate, err := parseDate(req.EventDate, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid eventDate (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Engine.SubmitDispenseEvent(r.Context(), engine.SubmitInput{
		TruckNumber: req.TruckNumber,
		Yard:        req.Yard,
		EventDate:   eventDate,
		Liters:      req.Liters,
		EnteredBy:   req.EnteredBy,
		Notes:       req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := SubmitDispenseResponse{Event: toEventDTO(res.Event), Message: res.Message}
	if res.Record != nil {
		rec := toRecordDTO(res.Record)
		resp.Record = &rec
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListDispenseEvents lists events filtered by truck, status, recordId.
// GET /api/dispense
func (h *Handler) ListDispenseEvents(w http.ResponseWriter, r *http.Request) {
	var f fuel.EventFilter

	if raw := r.URL.Query().Get("truck"); raw != "" {
		truck, err := fuel.NormalizeTruckNumber(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		f.Truck = truck
	}
	f.Status = fuel.EventStatus(r.URL.Query().Get("status"))
	f.RecordID = fuel.RecordID(r.URL.Query().Get("recordId"))

	events, err := h.Engine.ListEvents(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// GetDispenseEvent returns one event with its full history.
// GET /api/dispense/{id}
func (h *Handler) GetDispenseEvent(w http.ResponseWriter, r *http.Request) {
	id := fuel.EventID(chi.URLParam(r, "id"))
	ev, err := h.Engine.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// LinkDispenseEvent manually links a pending event to a chosen record.
// Other pending events of the same truck sweep along.
// POST /api/dispense/{id}/link
func (h *Handler) LinkDispenseEvent(w http.ResponseWriter, r *http.Request) {
	id := fuel.EventID(chi.URLParam(r, "id"))

	var req LinkEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RecordID == "" {
		writeError(w, http.StatusBadRequest, "recordId is required", nil)
		return
	}

	res, err := h.Engine.LinkPendingEvent(r.Context(), id, fuel.RecordID(req.RecordID), actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := LinkEventResponse{
		Event:       toEventDTO(res.Event),
		SweptEvents: toEventDTOs(res.SweptEvents),
		LinkedCount: res.LinkedCount,
	}
	if res.Record != nil {
		rec := toRecordDTO(res.Record)
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// RejectDispenseEvent disputes a linked event; the posted liters are
// reversed on the record.
// POST /api/dispense/{id}/reject
func (h *Handler) RejectDispenseEvent(w http.ResponseWriter, r *http.Request) {
	id := fuel.EventID(chi.URLParam(r, "id"))

	var req RejectEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	ev, err := h.Engine.RejectDispenseEvent(r.Context(), id, req.Reason, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// ResolveRejection acknowledges a rejection.
// POST /api/dispense/{id}/resolve
func (h *Handler) ResolveRejection(w http.ResponseWriter, r *http.Request) {
	id := fuel.EventID(chi.URLParam(r, "id"))

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ev, err := h.Engine.ResolveRejection(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// ReenterDispenseEvent re-runs a rejected event through the pipeline.
// POST /api/dispense/{id}/reenter
func (h *Handler) ReenterDispenseEvent(w http.ResponseWriter, r *http.Request) {
	id := fuel.EventID(chi.URLParam(r, "id"))

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Engine.ReenterEvent(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := SubmitDispenseResponse{Event: toEventDTO(res.Event), Message: res.Message}
	if res.Record != nil {
		rec := toRecordDTO(res.Record)
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// JOURNEY RECORD HANDLERS
// =============================================================================

// CreateRecord opens a journey record and sweeps pending events in.
// POST /api/records
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tripDate, err := parseDate(req.TripDate, time.Time{})
	if err != nil || tripDate.IsZero() {
		writeError(w, http.StatusBadRequest, "Invalid tripDate (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Engine.CreateJourneyRecord(r.Context(), engine.CreateRecordInput{
		TruckNumber: req.TruckNumber,
		GoingDO:     req.GoingDO,
		Destination: req.Destination,
		TripDate:    tripDate,
		OriginYard:  req.OriginYard,
		Actor:       actorOr(req.Actor),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRecordResponse{
		Record:      toRecordDTO(res.Record),
		SweptEvents: toEventDTOs(res.SweptEvents),
	})
}

// ListRecords lists journey records.
// GET /api/records?truck=&locked=1&deleted=1 (booleans accept 1/true)
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	var f fuel.RecordFilter

	if raw := r.URL.Query().Get("truck"); raw != "" {
		truck, err := fuel.NormalizeTruckNumber(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		f.Truck = truck
	}
	f.LockedOnly = queryBool(r, "locked")
	f.IncludeDeleted = queryBool(r, "deleted")

	records, err := h.Engine.ListRecords(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetRecord returns one journey record.
// GET /api/records/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := fuel.RecordID(chi.URLParam(r, "id"))
	rec, err := h.Engine.GetRecord(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// PostCheckpoint writes a station quantity into a slot.
// POST /api/records/{id}/checkpoints
func (h *Handler) PostCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := fuel.RecordID(chi.URLParam(r, "id"))

	var req PostCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Engine.PostCheckpoint(r.Context(), engine.PostCheckpointInput{
		RecordID: id,
		Slot:     req.Slot,
		Quantity: req.Quantity,
		Actor:    actorOr(req.Actor),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// AttachReturnDO opens the return leg of the record.
// POST /api/records/{id}/return-do
func (h *Handler) AttachReturnDO(w http.ResponseWriter, r *http.Request) {
	id := fuel.RecordID(chi.URLParam(r, "id"))

	var req AttachReturnDORequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Engine.AttachReturnDO(r.Context(), id, req.ReturnDO, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// CancelRecord voids the record and returns its events to pending.
// POST /api/records/{id}/cancel
func (h *Handler) CancelRecord(w http.ResponseWriter, r *http.Request) {
	id := fuel.RecordID(chi.URLParam(r, "id"))

	var req CancelRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	rec, err := h.Engine.CancelJourneyRecord(r.Context(), id, req.Reason, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// SoftDeleteRecord hides the record from listings and matching.
// DELETE /api/records/{id}
func (h *Handler) SoftDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := fuel.RecordID(chi.URLParam(r, "id"))

	actor := fuel.SystemActor
	if r.Body != nil {
		var req ActorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			actor = actorOr(req.Actor)
		}
	}

	if err := h.Engine.SoftDeleteJourneyRecord(r.Context(), id, actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyBalances recomputes every stored balance and reports drift.
// GET /api/records/verify
func (h *Handler) VerifyBalances(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.Engine.VerifyBalances(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		Clean:      len(mismatches) == 0,
		Mismatches: toMismatchDTOs(mismatches),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseDate accepts YYYY-MM-DD or RFC3339; empty falls back to def.
func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func actorOr(actor string) string {
	if actor == "" {
		return fuel.SystemActor
	}
	return actor
}

// queryBool reads a boolean query parameter, accepting 1/true/t.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// statusForError maps the domain taxonomy onto HTTP status codes.
// Conflict-class errors are matched before the broader client-error
// bucket, which also contains them.
func statusForError(err error) int {
	switch {
	case fuel.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, fuel.ErrDuplicateDO),
		errors.Is(err, fuel.ErrRecordCancelled),
		errors.Is(err, fuel.ErrInvalidTransition),
		fuel.IsRetryable(err):
		return http.StatusConflict
	case fuel.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), ErrorResponse{Error: err.Error()})
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
