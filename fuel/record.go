/*
record.go - Journey record value object

PURPOSE:
  A journey record is the per-trip fuel ledger for one truck: the DO
  (delivery order) it is driving against, its allocation budget, and
  one value per checkpoint slot. The balance is derived state:

    balance = (totalLiters + extraLiters) - sum(|slot value|)

  Absolute values on purpose: a slot driven negative by historical
  over-dispensing still counts as consumption.

MUTATION DISCIPLINE:
  Slot values, allocation, and balance are unexported. Every mutation
  goes through a method, and every mutating method recomputes the
  balance from scratch before returning, so a record in memory is never
  carrying a stale balance. Persistence rehydrates through RecordData,
  which re-validates the slot set on the way in.

LOCKING:
  A record whose fleet configuration cannot be resolved is "locked":
  fully usable for manual postings and reconciliation, flagged with the
  reason until configuration appears and the engine backfills it.

SEE ALSO:
  - slots.go: The closed slot table
  - balance.go: ComputeBalance and the verification tolerance
  - event.go: Dispense events that post into these slots
*/
package fuel

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SUPPORTING STATE
// =============================================================================

// PendingConfigReason says which part of the fleet configuration was
// missing when the record was locked.
type PendingConfigReason string

const (
	PendingNone         PendingConfigReason = ""
	PendingMissingTotal PendingConfigReason = "missing_total_liters"
	PendingMissingExtra PendingConfigReason = "missing_extra_fuel"
	PendingMissingBoth  PendingConfigReason = "both"
)

type Cancellation struct {
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// =============================================================================
// RECORD
// =============================================================================

type Record struct {
	id          RecordID
	truckNumber TruckNumber
	goingDO     string
	returnDO    string
	destination string
	tripDate    time.Time
	monthTag    string

	totalLiters Liters
	extraLiters Liters
	slots       map[SlotID]Liters
	balance     Liters

	locked              bool
	pendingConfigReason PendingConfigReason

	cancelled   *Cancellation
	softDeleted bool

	createdAt time.Time
	updatedAt time.Time
	version   int64
}

// NewRecord creates the ledger for a new journey. The origin yard slot
// is seeded with its standard allocation immediately (yard dispenses
// draw it down); station slots start at zero and are assigned by
// checkpoint postings. Allocation totals are applied separately once
// configuration is resolved.
func NewRecord(truck TruckNumber, goingDO, destination string, tripDate time.Time, originYard Yard, yardSeed Liters, now time.Time) (*Record, error) {
	goingDO = strings.TrimSpace(goingDO)
	if goingDO == "" {
		return nil, fmt.Errorf("going DO: %w", ErrInvalidDO)
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, fmt.Errorf("destination: %w", ErrInvalidDestination)
	}
	yardSlot, ok := SlotForYard(originYard)
	if !ok {
		return nil, fmt.Errorf("origin yard %q: %w", originYard, ErrUnknownYard)
	}
	if yardSeed.IsNegative() {
		return nil, fmt.Errorf("yard seed %s: %w", yardSeed, ErrInvalidLiters)
	}

	slots := make(map[SlotID]Liters, len(slotTable))
	for _, s := range slotTable {
		slots[s.ID] = ZeroLiters()
	}
	slots[yardSlot.ID] = yardSeed

	r := &Record{
		id:          NewRecordID(),
		truckNumber: truck,
		goingDO:     goingDO,
		destination: destination,
		tripDate:    tripDate,
		monthTag:    MonthTag(tripDate),
		slots:       slots,
		createdAt:   now,
		updatedAt:   now,
		version:     1,
	}
	r.RecomputeBalance()
	return r, nil
}

// =============================================================================
// GETTERS
// =============================================================================

func (r *Record) ID() RecordID              { return r.id }
func (r *Record) TruckNumber() TruckNumber  { return r.truckNumber }
func (r *Record) GoingDO() string           { return r.goingDO }
func (r *Record) ReturnDO() string          { return r.returnDO }
func (r *Record) Destination() string       { return r.destination }
func (r *Record) TripDate() time.Time       { return r.tripDate }
func (r *Record) MonthTag() string          { return r.monthTag }
func (r *Record) TotalLiters() Liters       { return r.totalLiters }
func (r *Record) ExtraLiters() Liters       { return r.extraLiters }
func (r *Record) Balance() Liters           { return r.balance }
func (r *Record) IsLocked() bool            { return r.locked }
func (r *Record) IsCancelled() bool         { return r.cancelled != nil }
func (r *Record) IsSoftDeleted() bool       { return r.softDeleted }
func (r *Record) HasReturnDO() bool         { return r.returnDO != "" }
func (r *Record) CreatedAt() time.Time      { return r.createdAt }
func (r *Record) UpdatedAt() time.Time      { return r.updatedAt }
func (r *Record) Version() int64            { return r.version }

func (r *Record) PendingConfigReason() PendingConfigReason { return r.pendingConfigReason }

// Slot returns the current value of one checkpoint slot.
func (r *Record) Slot(id SlotID) Liters { return r.slots[id] }

// Slots returns a copy of all slot values keyed by slot ID.
func (r *Record) Slots() map[SlotID]Liters {
	return cloneSlots(r.slots)
}

// CancellationDetails returns a copy of the cancellation state, or nil
// for an active record.
func (r *Record) CancellationDetails() *Cancellation {
	if r.cancelled == nil {
		return nil
	}
	c := *r.cancelled
	return &c
}

// =============================================================================
// MUTATORS - each recomputes the balance before returning
// =============================================================================

func (r *Record) guardMutable() error {
	if r.cancelled != nil {
		return &CancelledTargetError{
			RecordID:    r.id,
			GoingDO:     r.goingDO,
			TruckNumber: r.truckNumber,
			Reason:      r.cancelled.Reason,
		}
	}
	return nil
}

// ApplySlotDelta adds a signed quantity to a slot. Yard dispenses pass
// the negative of the dispensed liters; rejection reversals pass the
// positive quantity back.
func (r *Record) ApplySlotDelta(id SlotID, delta Liters, now time.Time) error {
	if err := r.guardMutable(); err != nil {
		return err
	}
	if _, ok := SlotByID(id); !ok {
		return fmt.Errorf("slot %q: %w", id, ErrUnknownCheckpoint)
	}
	r.slots[id] = r.slots[id].Add(delta)
	r.touch(now)
	return nil
}

// SetSlot overwrites a slot with an absolute value (checkpoint postings
// and manual overrides).
func (r *Record) SetSlot(id SlotID, value Liters, now time.Time) error {
	if err := r.guardMutable(); err != nil {
		return err
	}
	if _, ok := SlotByID(id); !ok {
		return fmt.Errorf("slot %q: %w", id, ErrUnknownCheckpoint)
	}
	r.slots[id] = value
	r.touch(now)
	return nil
}

// SetAllocation backfills the resolved configuration values.
func (r *Record) SetAllocation(total, extra Liters, now time.Time) error {
	if err := r.guardMutable(); err != nil {
		return err
	}
	if total.IsNegative() || extra.IsNegative() {
		return fmt.Errorf("allocation %s/%s: %w", total, extra, ErrInvalidLiters)
	}
	r.totalLiters = total
	r.extraLiters = extra
	r.touch(now)
	return nil
}

// Lock marks the record as waiting for fleet configuration.
func (r *Record) Lock(reason PendingConfigReason, now time.Time) {
	r.locked = true
	r.pendingConfigReason = reason
	r.touch(now)
}

// Unlock clears the pending-configuration state after a backfill.
func (r *Record) Unlock(now time.Time) {
	r.locked = false
	r.pendingConfigReason = PendingNone
	r.touch(now)
}

// AttachReturnDO opens the return leg. Overwriting an existing return
// DO is allowed (operators correcting a typo).
func (r *Record) AttachReturnDO(do string, now time.Time) error {
	if err := r.guardMutable(); err != nil {
		return err
	}
	do = strings.TrimSpace(do)
	if do == "" {
		return fmt.Errorf("return DO: %w", ErrInvalidDO)
	}
	r.returnDO = do
	r.touch(now)
	return nil
}

// Cancel excludes the record from matching permanently. Cancelling an
// already-cancelled record is an error.
func (r *Record) Cancel(reason, actor string, now time.Time) error {
	if err := r.guardMutable(); err != nil {
		return err
	}
	r.cancelled = &Cancellation{Reason: reason, Actor: actor, At: now}
	r.touch(now)
	return nil
}

// SoftDelete hides the record from listings and matching. The row
// itself survives for audit.
func (r *Record) SoftDelete(now time.Time) {
	r.softDeleted = true
	r.touch(now)
}

// RecomputeBalance recalculates the derived balance from scratch.
// Idempotent: calling it any number of times yields the same value.
func (r *Record) RecomputeBalance() {
	r.balance = ComputeBalance(r.totalLiters, r.extraLiters, r.slots)
}

func (r *Record) touch(now time.Time) {
	r.RecomputeBalance()
	r.updatedAt = now
}

// =============================================================================
// PERSISTENCE FORM
// =============================================================================

// RecordData is the explicit rehydration form used by stores. It exists
// so persistence cannot bypass the mutation discipline above: documents
// cross the store boundary as plain data and come back through
// RecordFromData, which re-validates the slot set.
type RecordData struct {
	ID          RecordID
	TruckNumber TruckNumber
	GoingDO     string
	ReturnDO    string
	Destination string
	TripDate    time.Time
	MonthTag    string

	TotalLiters Liters
	ExtraLiters Liters
	Slots       map[SlotID]Liters
	Balance     Liters

	Locked              bool
	PendingConfigReason PendingConfigReason

	Cancelled   *Cancellation
	SoftDeleted bool

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Data snapshots the record for persistence.
func (r *Record) Data() RecordData {
	return RecordData{
		ID:                  r.id,
		TruckNumber:         r.truckNumber,
		GoingDO:             r.goingDO,
		ReturnDO:            r.returnDO,
		Destination:         r.destination,
		TripDate:            r.tripDate,
		MonthTag:            r.monthTag,
		TotalLiters:         r.totalLiters,
		ExtraLiters:         r.extraLiters,
		Slots:               cloneSlots(r.slots),
		Balance:             r.balance,
		Locked:              r.locked,
		PendingConfigReason: r.pendingConfigReason,
		Cancelled:           r.CancellationDetails(),
		SoftDeleted:         r.softDeleted,
		CreatedAt:           r.createdAt,
		UpdatedAt:           r.updatedAt,
		Version:             r.version,
	}
}

// RecordFromData rehydrates a stored document. Unknown slot IDs are
// rejected; slots absent from the document are zero-filled. The stored
// balance is kept as-is so balance verification can detect drift
// against a fresh recomputation.
func RecordFromData(d RecordData) (*Record, error) {
	slots := make(map[SlotID]Liters, len(slotTable))
	for _, s := range slotTable {
		slots[s.ID] = ZeroLiters()
	}
	for id, v := range d.Slots {
		if _, ok := SlotByID(id); !ok {
			return nil, fmt.Errorf("stored record %s: slot %q: %w", d.ID, id, ErrUnknownCheckpoint)
		}
		slots[id] = v
	}

	var cancelled *Cancellation
	if d.Cancelled != nil {
		c := *d.Cancelled
		cancelled = &c
	}

	return &Record{
		id:                  d.ID,
		truckNumber:         d.TruckNumber,
		goingDO:             d.GoingDO,
		returnDO:            d.ReturnDO,
		destination:         d.Destination,
		tripDate:            d.TripDate,
		monthTag:            d.MonthTag,
		totalLiters:         d.TotalLiters,
		extraLiters:         d.ExtraLiters,
		slots:               slots,
		balance:             d.Balance,
		locked:              d.Locked,
		pendingConfigReason: d.PendingConfigReason,
		cancelled:           cancelled,
		softDeleted:         d.SoftDeleted,
		createdAt:           d.CreatedAt,
		updatedAt:           d.UpdatedAt,
		version:             d.Version,
	}, nil
}

func cloneSlots(in map[SlotID]Liters) map[SlotID]Liters {
	out := make(map[SlotID]Liters, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
