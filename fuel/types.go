/*
Package fuel provides the core domain model for fleet fuel allocation.

PURPOSE:
  This package contains the types shared by every part of the allocation
  engine: journey records (the per-trip fuel ledger), dispense events
  (yard pump readings entering the system), the closed checkpoint slot
  table, and the balance arithmetic that ties them together.

KEY CONCEPTS IN THIS FILE (types.go):
  - Liters: A fuel quantity backed by decimal.Decimal
  - RecordID/EventID: Type-safe identifiers (UUID strings)
  - MonthTag: The YYYY-MM reporting bucket derived from a trip date

DESIGN PRINCIPLES:
  1. Precision: All liter arithmetic uses decimal.Decimal, never floats
  2. Type Safety: Strong typing for IDs prevents mixing record/event IDs
  3. Immutability of history: Events carry an append-only audit trail
  4. Persistence-agnostic: Stores rehydrate via explicit data structs

USAGE:
  qty := fuel.NewLiters(44)
  rec.ApplySlotDelta(fuel.SlotDarYard, qty.Neg())

SEE ALSO:
  - truck.go: Truck number normalization
  - slots.go: The closed checkpoint slot table
  - record.go: Journey record value object
  - event.go: Dispense event lifecycle state
  - balance.go: Balance computation and tolerance comparison
  - errors.go: Sentinel and structured errors
*/
package fuel

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LITERS - Fuel quantity (decimal fixed-point)
// =============================================================================

type Liters struct {
	Value decimal.Decimal
}

func NewLiters(value float64) Liters {
	return Liters{Value: decimal.NewFromFloat(value)}
}

func NewLitersFromInt(value int) Liters {
	return Liters{Value: decimal.NewFromInt(int64(value))}
}

// ParseLiters parses an operator-entered quantity string.
func ParseLiters(s string) (Liters, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Liters{}, err
	}
	return Liters{Value: d}, nil
}

func MustParseLiters(s string) Liters {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Liters{}
	}
	return Liters{Value: d}
}

func ZeroLiters() Liters { return Liters{Value: decimal.Zero} }

func (l Liters) Add(o Liters) Liters         { return Liters{Value: l.Value.Add(o.Value)} }
func (l Liters) Sub(o Liters) Liters         { return Liters{Value: l.Value.Sub(o.Value)} }
func (l Liters) Neg() Liters                 { return Liters{Value: l.Value.Neg()} }
func (l Liters) Abs() Liters                 { return Liters{Value: l.Value.Abs()} }
func (l Liters) IsNegative() bool            { return l.Value.IsNegative() }
func (l Liters) IsZero() bool                { return l.Value.IsZero() }
func (l Liters) IsPositive() bool            { return l.Value.IsPositive() }
func (l Liters) GreaterThan(o Liters) bool   { return l.Value.GreaterThan(o.Value) }
func (l Liters) LessThan(o Liters) bool      { return l.Value.LessThan(o.Value) }
func (l Liters) Equal(o Liters) bool         { return l.Value.Equal(o.Value) }
func (l Liters) Max(o Liters) Liters         { if l.GreaterThan(o) { return l }; return o }
func (l Liters) Float64() float64            { f, _ := l.Value.Float64(); return f }
func (l Liters) String() string              { return l.Value.String() }

// JSON form is the bare decimal string ("44", "506.5"), not an object.
func (l Liters) MarshalJSON() ([]byte, error)  { return l.Value.MarshalJSON() }
func (l *Liters) UnmarshalJSON(b []byte) error { return l.Value.UnmarshalJSON(b) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type EventID string

func NewRecordID() RecordID { return RecordID(uuid.NewString()) }
func NewEventID() EventID   { return EventID(uuid.NewString()) }

// SystemActor marks history entries written by the engine itself rather
// than by a named operator.
const SystemActor = "system"

// =============================================================================
// MONTH TAG - YYYY-MM reporting bucket
// =============================================================================

// MonthTag derives the reporting bucket from a trip date. It is stored
// denormalized on the record and recomputed whenever the trip date changes.
func MonthTag(tripDate time.Time) string {
	return tripDate.Format("2006-01")
}
