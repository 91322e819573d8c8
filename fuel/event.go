/*
event.go - Dispense event lifecycle

PURPOSE:
  A dispense event is one pump reading at a yard: truck, yard, liters,
  operator. Events enter the system faster than journey paperwork, so
  an event may exist before the journey record it belongs to. The
  lifecycle tracks that gap:

    pending   - no journey record found yet; waiting
    linked    - attached to a journey record automatically (or swept in
                alongside a manual link)
    manual    - attached by an operator picking the record explicitly
    rejected  - linkage disputed; the posted quantity was reversed

  "re-entered" is an action, not a status: a rejected event re-enters
  the pipeline and lands pending or linked again.

TRANSITIONS:
  The legal edges live in a single table below. Every mutation method
  guards its edge and appends exactly one history entry; there is no
  other way to move an event between states. The linked/manual to
  pending edges belong to Unlink alone: Reenter demands the rejected
  status, because a linked posting has to be reversed through rejection
  before the event can run again.

INVARIANTS:
  - linked/manual events always reference a journey record
  - pending events never reference one
  - rejected events keep their last reference for audit
  - history is append-only

SEE ALSO:
  - history.go: Entry and details types
  - ../engine/lifecycle.go: Orchestration (reversal, persistence, retry)
*/
package fuel

import (
	"fmt"
	"time"
)

// =============================================================================
// STATUS + TRANSITION TABLE
// =============================================================================

type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventLinked   EventStatus = "linked"
	EventManual   EventStatus = "manual"
	EventRejected EventStatus = "rejected"
)

type transition struct {
	from EventStatus
	to   EventStatus
}

var transitionTable = []transition{
	{EventPending, EventLinked},   // auto-match, sweep, or record creation
	{EventPending, EventManual},   // explicit manual link target
	{EventLinked, EventRejected},  // dispute
	{EventManual, EventRejected},  // dispute
	{EventLinked, EventPending},   // unlink when the record is cancelled
	{EventManual, EventPending},   // unlink when the record is cancelled
	{EventRejected, EventPending}, // re-entry, no match found
	{EventRejected, EventLinked},  // re-entry, matched again
}

// CanTransition reports whether the lifecycle allows the edge.
func CanTransition(from, to EventStatus) bool {
	for _, t := range transitionTable {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// =============================================================================
// REJECTION SUB-STATE
// =============================================================================

type Rejection struct {
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
	Resolved   bool      `json:"resolved"`
	ResolvedBy string    `json:"resolvedBy,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt,omitzero"`
}

// =============================================================================
// EVENT
// =============================================================================

type Event struct {
	ID          EventID
	TruckNumber TruckNumber // canonical form, used for matching
	RawTruck    string      // as typed by the yard operator
	Yard        Yard
	EventDate   time.Time
	Liters      Liters
	EnteredBy   string
	Notes       string

	Status     EventStatus
	RecordID   RecordID
	GoingDO    string
	AutoLinked bool

	Rejection *Rejection

	History []HistoryEntry

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// NewEvent builds a pending event from validated input and stamps the
// "created" history entry. Truck normalization and yard parsing happen
// at the edge; quantity positivity is re-checked here because a
// non-positive dispense corrupts every downstream balance.
func NewEvent(truck TruckNumber, rawTruck string, yard Yard, eventDate time.Time, liters Liters, enteredBy, notes string, now time.Time) (*Event, error) {
	if !liters.IsPositive() {
		return nil, fmt.Errorf("dispense quantity %s: %w", liters, ErrInvalidLiters)
	}
	if _, ok := SlotForYard(yard); !ok {
		return nil, fmt.Errorf("yard %q: %w", yard, ErrUnknownYard)
	}

	e := &Event{
		ID:          NewEventID(),
		TruckNumber: truck,
		RawTruck:    rawTruck,
		Yard:        yard,
		EventDate:   eventDate,
		Liters:      liters,
		EnteredBy:   enteredBy,
		Notes:       notes,
		Status:      EventPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	e.appendHistory(HistoryEntry{
		Action:  HistoryCreated,
		Actor:   enteredBy,
		At:      now,
		Details: CreatedDetails{Yard: yard, Liters: liters},
	})
	return e, nil
}

func (e *Event) appendHistory(entry HistoryEntry) {
	e.History = append(e.History, entry)
}

// IsLinked reports whether the event currently references a journey record.
func (e *Event) IsLinked() bool {
	return e.Status == EventLinked || e.Status == EventManual
}

// Link attaches the event to a journey record through the automatic
// path (matcher, sweep, or record creation). via is recorded in history.
func (e *Event) Link(recordID RecordID, goingDO string, auto bool, via, actor string, now time.Time) error {
	return e.link(EventLinked, recordID, goingDO, auto, via, actor, now)
}

// LinkManual attaches the event to the record an operator picked
// explicitly.
func (e *Event) LinkManual(recordID RecordID, goingDO, actor string, now time.Time) error {
	return e.link(EventManual, recordID, goingDO, false, "manual", actor, now)
}

func (e *Event) link(target EventStatus, recordID RecordID, goingDO string, auto bool, via, actor string, now time.Time) error {
	if !CanTransition(e.Status, target) {
		return &TransitionError{EventID: e.ID, From: e.Status, To: target}
	}
	e.Status = target
	e.RecordID = recordID
	e.GoingDO = goingDO
	e.AutoLinked = auto
	e.UpdatedAt = now
	e.appendHistory(HistoryEntry{
		Action:  HistoryLinked,
		Actor:   actor,
		At:      now,
		Details: LinkedDetails{RecordID: recordID, GoingDO: goingDO, AutoLinked: auto, Via: via},
	})
	return nil
}

// Reject marks a linked or manual event as disputed. The caller is
// responsible for reversing the posted quantity on the journey record
// before persisting; the reversed amount is recorded in history here.
// The last record reference is kept on the event for audit.
func (e *Event) Reject(reason, actor string, now time.Time) error {
	if !CanTransition(e.Status, EventRejected) {
		return &TransitionError{EventID: e.ID, From: e.Status, To: EventRejected}
	}
	previous := e.Status
	e.Status = EventRejected
	e.Rejection = &Rejection{Reason: reason, Actor: actor, At: now}
	e.UpdatedAt = now
	e.appendHistory(HistoryEntry{
		Action: HistoryRejected,
		Actor:  actor,
		At:     now,
		Details: RejectedDetails{
			Reason:         reason,
			PreviousStatus: previous,
			RecordID:       e.RecordID,
			ReversedLiters: e.Liters,
		},
	})
	return nil
}

// ResolveRejection acknowledges a rejection without changing status.
func (e *Event) ResolveRejection(actor string, now time.Time) error {
	if e.Status != EventRejected || e.Rejection == nil {
		return &TransitionError{EventID: e.ID, From: e.Status, To: EventRejected}
	}
	if e.Rejection.Resolved {
		return nil // already acknowledged, idempotent
	}
	e.Rejection.Resolved = true
	e.Rejection.ResolvedBy = actor
	e.Rejection.ResolvedAt = now
	e.UpdatedAt = now
	e.appendHistory(HistoryEntry{
		Action:  HistoryUpdated,
		Actor:   actor,
		At:      now,
		Details: UpdatedDetails{Field: "rejectionResolved", From: "false", To: "true"},
	})
	return nil
}

// Reenter clears the rejection and linkage so the event can run through
// the automatic pipeline again. Only rejected events re-enter: a linked
// or manual event still holds its posted liters on the record, and that
// posting must be reversed through rejection before the event may run
// again. The rejection reason survives in history.
func (e *Event) Reenter(actor string, now time.Time) error {
	if e.Status != EventRejected {
		return &TransitionError{EventID: e.ID, From: e.Status, To: EventPending}
	}
	reason := ""
	if e.Rejection != nil {
		reason = e.Rejection.Reason
	}
	e.Status = EventPending
	e.RecordID = ""
	e.GoingDO = ""
	e.AutoLinked = false
	e.Rejection = nil
	e.UpdatedAt = now
	e.appendHistory(HistoryEntry{
		Action:  HistoryReentered,
		Actor:   actor,
		At:      now,
		Details: ReenteredDetails{RejectionReason: reason},
	})
	return nil
}

// Unlink detaches the event from its record, returning it to pending.
// Used when the journey record is cancelled out from under its events.
func (e *Event) Unlink(note, actor string, now time.Time) error {
	if !CanTransition(e.Status, EventPending) {
		return &TransitionError{EventID: e.ID, From: e.Status, To: EventPending}
	}
	previousDO := e.GoingDO
	e.Status = EventPending
	e.RecordID = ""
	e.GoingDO = ""
	e.AutoLinked = false
	e.UpdatedAt = now
	e.appendHistory(HistoryEntry{
		Action:  HistoryUpdated,
		Actor:   actor,
		At:      now,
		Details: UpdatedDetails{Field: "linkage", From: previousDO, To: "", Note: note},
	})
	return nil
}

// Clone returns a deep copy safe to hand across store boundaries.
func (e *Event) Clone() *Event {
	out := *e
	out.History = make([]HistoryEntry, len(e.History))
	copy(out.History, e.History)
	if e.Rejection != nil {
		rej := *e.Rejection
		out.Rejection = &rej
	}
	return &out
}
