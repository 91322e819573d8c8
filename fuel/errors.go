/*
errors.go - Centralized error types for the fuel domain

PURPOSE:
  All error types in one place for consistency and discoverability.
  The engine and API layers wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors - Malformed operator input, rejected at the edge
  2. Lookup errors - Referenced records/events that do not exist
  3. State errors - Lifecycle and linking rule violations
  4. Store errors - Optimistic concurrency conflicts

NOT ERRORS:
  - A dispense event with no matching journey is a successful "pending"
    outcome, never an error.
  - Missing fleet configuration locks the record (pending-config state)
    and is reported through the success path.

USAGE:
  if errors.Is(err, fuel.ErrRecordCancelled) {
      // surface the cancelled-target message to the operator
  }

SEE ALSO:
  - event.go: Lifecycle states checked by TransitionError
  - record.go: Cancelled/locked states referenced here
*/
package fuel

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTruckNumber is returned when a truck number cannot be
	// normalized (empty, or no letters/digits at all).
	ErrInvalidTruckNumber = errors.New("invalid truck number")

	// ErrInvalidLiters is returned for zero, negative, or unparseable
	// dispense quantities.
	ErrInvalidLiters = errors.New("invalid liters quantity")

	// ErrUnknownYard is returned when a dispense event names a yard that
	// is not in the yard slot table.
	ErrUnknownYard = errors.New("unknown yard")

	// ErrUnknownCheckpoint is returned when a posting names a slot that
	// is not in the checkpoint slot table.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint slot")

	// ErrSlotNotApplicable is returned when posting to a return-leg slot
	// before a return DO has been attached to the record.
	ErrSlotNotApplicable = errors.New("checkpoint slot not applicable")

	// ErrInvalidDO is returned for an empty or malformed delivery order
	// number.
	ErrInvalidDO = errors.New("invalid DO number")

	// ErrInvalidDestination is returned when a record is created without
	// a destination.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrRecordNotFound is returned when a referenced journey record does
	// not exist (or has been soft-deleted).
	ErrRecordNotFound = errors.New("journey record not found")

	// ErrEventNotFound is returned when a referenced dispense event does
	// not exist.
	ErrEventNotFound = errors.New("dispense event not found")

	// ErrDuplicateDO is returned when creating a record whose going DO
	// number is already taken by a live record.
	ErrDuplicateDO = errors.New("duplicate DO number")

	// ErrRecordCancelled is returned when an operation targets a
	// cancelled journey record. See CancelledTargetError.
	ErrRecordCancelled = errors.New("journey record is cancelled")

	// ErrInvalidTransition is returned when a dispense event is moved
	// along an edge the lifecycle does not allow. See TransitionError.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrConcurrentModification is returned when optimistic locking
	// detects a conflicting write. The engine retries once before
	// surfacing this.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CancelledTargetError is returned when a manual link (or any other
// mutation) targets a cancelled journey record. The message always
// contains the word "cancelled" so operator-facing surfaces can relay
// it verbatim.
type CancelledTargetError struct {
	RecordID    RecordID
	GoingDO     string
	TruckNumber TruckNumber
	Reason      string
}

func (e *CancelledTargetError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("journey record %s (DO %s, truck %s) is cancelled: %s",
			e.RecordID, e.GoingDO, e.TruckNumber, e.Reason)
	}
	return fmt.Sprintf("journey record %s (DO %s, truck %s) is cancelled",
		e.RecordID, e.GoingDO, e.TruckNumber)
}

func (e *CancelledTargetError) Unwrap() error {
	return ErrRecordCancelled
}

// TransitionError reports a forbidden lifecycle edge, naming both ends
// so the caller can log exactly what was attempted.
type TransitionError struct {
	EventID EventID
	From    EventStatus
	To      EventStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %s: cannot transition from %s to %s", e.EventID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input
// or a business-rule violation the client can correct.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTruckNumber) ||
		errors.Is(err, ErrInvalidLiters) ||
		errors.Is(err, ErrInvalidDO) ||
		errors.Is(err, ErrInvalidDestination) ||
		errors.Is(err, ErrUnknownYard) ||
		errors.Is(err, ErrUnknownCheckpoint) ||
		errors.Is(err, ErrSlotNotApplicable) ||
		errors.Is(err, ErrDuplicateDO) ||
		errors.Is(err, ErrRecordCancelled) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record or event.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrEventNotFound)
}
