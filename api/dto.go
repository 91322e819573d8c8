/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing field renaming without breaking clients and API-specific
  shaping (dates as YYYY-MM-DD strings, liters as decimal strings).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

LITERS ON THE WIRE:
  fuel.Liters marshals as a bare decimal string ("550", "43.5") and
  unmarshals from either a string or a number, so request bodies can
  send {"liters": 350} or {"liters": "350"}.

VALIDATION:
  Validation is done in handlers and the domain, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ../fuel: Domain types embedded here (history, rejection)
*/
package api

import (
	"time"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

const dateLayout = "2006-01-02"

// =============================================================================
// RECORD TYPES
// =============================================================================

// RecordDTO represents a journey record in API responses.
type RecordDTO struct {
	ID                  string                      `json:"id"`
	TruckNumber         string                      `json:"truckNumber"`
	GoingDO             string                      `json:"goingDo"`
	ReturnDO            string                      `json:"returnDo,omitempty"`
	Destination         string                      `json:"destination"`
	TripDate            string                      `json:"tripDate"`
	MonthTag            string                      `json:"monthTag"`
	TotalLiters         fuel.Liters                 `json:"totalLiters"`
	ExtraLiters         fuel.Liters                 `json:"extraFuel"`
	Slots               map[fuel.SlotID]fuel.Liters `json:"slots"`
	Balance             fuel.Liters                 `json:"balance"`
	Locked              bool                        `json:"locked"`
	PendingConfigReason string                      `json:"pendingConfigReason,omitempty"`
	Cancelled           *fuel.Cancellation          `json:"cancelled,omitempty"`
	SoftDeleted         bool                        `json:"softDeleted,omitempty"`
	CreatedAt           string                      `json:"createdAt"`
	UpdatedAt           string                      `json:"updatedAt"`
	Version             int64                       `json:"version"`
}

// CreateRecordRequest opens a new journey record.
type CreateRecordRequest struct {
	TruckNumber string `json:"truckNumber"`
	GoingDO     string `json:"goingDo"`
	Destination string `json:"destination"`
	TripDate    string `json:"tripDate"`
	OriginYard  string `json:"originYard"`
	Actor       string `json:"actor,omitempty"`
}

// CreateRecordResponse returns the new record plus any pending events
// that were swept onto it.
type CreateRecordResponse struct {
	Record      RecordDTO  `json:"record"`
	SweptEvents []EventDTO `json:"sweptEvents,omitempty"`
}

// PostCheckpointRequest posts a station quantity into a slot.
// Quantity absent means "compute it from the standard allocation".
type PostCheckpointRequest struct {
	Slot     string       `json:"slot"`
	Quantity *fuel.Liters `json:"quantity,omitempty"`
	Actor    string       `json:"actor,omitempty"`
}

// AttachReturnDORequest opens the return leg of a record.
type AttachReturnDORequest struct {
	ReturnDO string `json:"returnDo"`
	Actor    string `json:"actor,omitempty"`
}

// CancelRecordRequest voids a journey record.
type CancelRecordRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"`
}

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventDTO represents a dispense event in API responses, history
// included.
type EventDTO struct {
	ID          string              `json:"id"`
	TruckNumber string              `json:"truckNumber"`
	RawTruck    string              `json:"rawTruck,omitempty"`
	Yard        string              `json:"yard"`
	EventDate   string              `json:"eventDate"`
	Liters      fuel.Liters         `json:"liters"`
	EnteredBy   string              `json:"enteredBy,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	Status      string              `json:"status"`
	RecordID    string              `json:"recordId,omitempty"`
	GoingDO     string              `json:"goingDo,omitempty"`
	AutoLinked  bool                `json:"autoLinked"`
	Rejection   *fuel.Rejection     `json:"rejection,omitempty"`
	History     []fuel.HistoryEntry `json:"history"`
	CreatedAt   string              `json:"createdAt"`
	UpdatedAt   string              `json:"updatedAt"`
	Version     int64               `json:"version"`
}

// SubmitDispenseRequest is one pump reading from a yard operator.
type SubmitDispenseRequest struct {
	TruckNumber string      `json:"truckNumber"`
	Yard        string      `json:"yard"`
	EventDate   string      `json:"eventDate,omitempty"`
	Liters      fuel.Liters `json:"liters"`
	EnteredBy   string      `json:"enteredBy,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// SubmitDispenseResponse carries the two successful outcomes: linked
// (record set) or pending (message set).
type SubmitDispenseResponse struct {
	Event   EventDTO   `json:"event"`
	Record  *RecordDTO `json:"record,omitempty"`
	Message string     `json:"message,omitempty"`
}

// LinkEventRequest links a pending event to an explicit record.
type LinkEventRequest struct {
	RecordID string `json:"recordId"`
	Actor    string `json:"actor,omitempty"`
}

// LinkEventResponse reports the manual link plus the sweep that rode
// along with it.
type LinkEventResponse struct {
	Event       EventDTO   `json:"event"`
	Record      *RecordDTO `json:"record,omitempty"`
	SweptEvents []EventDTO `json:"sweptEvents,omitempty"`
	LinkedCount int        `json:"linkedCount"`
}

// RejectEventRequest disputes a linked dispense.
type RejectEventRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"`
}

// ActorRequest is the body for actions that only need to know who
// clicked (resolve, re-enter, soft delete).
type ActorRequest struct {
	Actor string `json:"actor,omitempty"`
}

// =============================================================================
// VERIFICATION + SHARED TYPES
// =============================================================================

// BalanceMismatchDTO is one record whose stored balance drifted from a
// fresh recomputation.
type BalanceMismatchDTO struct {
	RecordID string      `json:"recordId"`
	GoingDO  string      `json:"goingDo"`
	Truck    string      `json:"truckNumber"`
	Stored   fuel.Liters `json:"stored"`
	Computed fuel.Liters `json:"computed"`
	Drift    fuel.Liters `json:"drift"`
}

// VerifyResponse is the balance audit result.
type VerifyResponse struct {
	Clean      bool                 `json:"clean"`
	Mismatches []BalanceMismatchDTO `json:"mismatches"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toRecordDTO(r *fuel.Record) RecordDTO {
	return RecordDTO{
		ID:                  string(r.ID()),
		TruckNumber:         r.TruckNumber().String(),
		GoingDO:             r.GoingDO(),
		ReturnDO:            r.ReturnDO(),
		Destination:         r.Destination(),
		TripDate:            r.TripDate().Format(dateLayout),
		MonthTag:            r.MonthTag(),
		TotalLiters:         r.TotalLiters(),
		ExtraLiters:         r.ExtraLiters(),
		Slots:               r.Slots(),
		Balance:             r.Balance(),
		Locked:              r.IsLocked(),
		PendingConfigReason: string(r.PendingConfigReason()),
		Cancelled:           r.CancellationDetails(),
		SoftDeleted:         r.IsSoftDeleted(),
		CreatedAt:           r.CreatedAt().Format(time.RFC3339),
		UpdatedAt:           r.UpdatedAt().Format(time.RFC3339),
		Version:             r.Version(),
	}
}

func toRecordDTOs(records []*fuel.Record) []RecordDTO {
	out := make([]RecordDTO, len(records))
	for i, r := range records {
		out[i] = toRecordDTO(r)
	}
	return out
}

func toEventDTO(e *fuel.Event) EventDTO {
	return EventDTO{
		ID:          string(e.ID),
		TruckNumber: e.TruckNumber.String(),
		RawTruck:    e.RawTruck,
		Yard:        string(e.Yard),
		EventDate:   e.EventDate.Format(dateLayout),
		Liters:      e.Liters,
		EnteredBy:   e.EnteredBy,
		Notes:       e.Notes,
		Status:      string(e.Status),
		RecordID:    string(e.RecordID),
		GoingDO:     e.GoingDO,
		AutoLinked:  e.AutoLinked,
		Rejection:   e.Rejection,
		History:     e.History,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
		Version:     e.Version,
	}
}

func toEventDTOs(events []*fuel.Event) []EventDTO {
	out := make([]EventDTO, len(events))
	for i, e := range events {
		out[i] = toEventDTO(e)
	}
	return out
}

func toMismatchDTOs(mismatches []engine.BalanceMismatch) []BalanceMismatchDTO {
	out := make([]BalanceMismatchDTO, len(mismatches))
	for i, m := range mismatches {
		out[i] = BalanceMismatchDTO{
			RecordID: string(m.RecordID),
			GoingDO:  m.GoingDO,
			Truck:    m.Truck.String(),
			Stored:   m.Stored,
			Computed: m.Computed,
			Drift:    m.Drift,
		}
	}
	return out
}
