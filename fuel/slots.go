/*
slots.go - The closed checkpoint slot table

PURPOSE:
  Every journey record carries the same named set of fuel slots: two
  origin yards plus the going and return legs of the corridor. The set
  is closed: slots are table entries here, not free-form keys, so a
  typo in a posting is a validation error instead of a silent new
  column.

CORRIDOR ORDER (going):
  yard -> Morogoro -> Singida -> Nyakanazi -> lake crossing -> border
  and the same stations mirrored on the return leg.

SPECIAL RULES ENCODED IN THE TABLE:
  - Yard slots carry the yard name used by dispense events.
  - returnLake deducts from returnBorder: a truck fueled at the border
    on the way back only gets the remainder of the lake standard.
  - Return-leg slots are not applicable until a return DO is attached.

SEE ALSO:
  - record.go: Slot values live on the journey record
  - ../engine/allocator.go: Assigned-quantity rules using this table
  - ../config/config.go: Standard allocation liters per slot
*/
package fuel

import (
	"fmt"
	"strings"
)

// =============================================================================
// SLOT IDENTIFIERS
// =============================================================================

type SlotID string

const (
	SlotDarYard         SlotID = "darYard"
	SlotTangaYard       SlotID = "tangaYard"
	SlotGoingMorogoro   SlotID = "goingMorogoro"
	SlotGoingSingida    SlotID = "goingSingida"
	SlotGoingNyakanazi  SlotID = "goingNyakanazi"
	SlotGoingLake       SlotID = "goingLake"
	SlotGoingBorder     SlotID = "goingBorder"
	SlotReturnBorder    SlotID = "returnBorder"
	SlotReturnLake      SlotID = "returnLake"
	SlotReturnNyakanazi SlotID = "returnNyakanazi"
	SlotReturnSingida   SlotID = "returnSingida"
	SlotReturnMorogoro  SlotID = "returnMorogoro"
)

type Leg string

const (
	LegYard   Leg = "yard"
	LegGoing  Leg = "going"
	LegReturn Leg = "return"
)

// Yard is a dispensing location. The enum is exactly the yard names
// carried by the yard slots.
type Yard string

const (
	YardDar   Yard = "DAR YARD"
	YardTanga Yard = "TANGA YARD"
)

// =============================================================================
// SLOT TABLE
// =============================================================================

type Slot struct {
	ID   SlotID
	Leg  Leg
	Yard Yard // set only for yard slots

	// DeductsFrom names an earlier slot on the same leg whose consumption
	// reduces this slot's standard allocation (the remaining-capacity rule).
	DeductsFrom SlotID
}

// RequiresReturnDO reports whether a posting to this slot needs the
// record's return leg to be open.
func (s Slot) RequiresReturnDO() bool { return s.Leg == LegReturn }

var slotTable = []Slot{
	{ID: SlotDarYard, Leg: LegYard, Yard: YardDar},
	{ID: SlotTangaYard, Leg: LegYard, Yard: YardTanga},
	{ID: SlotGoingMorogoro, Leg: LegGoing},
	{ID: SlotGoingSingida, Leg: LegGoing},
	{ID: SlotGoingNyakanazi, Leg: LegGoing},
	{ID: SlotGoingLake, Leg: LegGoing},
	{ID: SlotGoingBorder, Leg: LegGoing},
	{ID: SlotReturnBorder, Leg: LegReturn},
	{ID: SlotReturnLake, Leg: LegReturn, DeductsFrom: SlotReturnBorder},
	{ID: SlotReturnNyakanazi, Leg: LegReturn},
	{ID: SlotReturnSingida, Leg: LegReturn},
	{ID: SlotReturnMorogoro, Leg: LegReturn},
}

// =============================================================================
// LOOKUPS
// =============================================================================

// Slots returns the full table in corridor order.
func Slots() []Slot {
	out := make([]Slot, len(slotTable))
	copy(out, slotTable)
	return out
}

// SlotIDs returns the slot identifiers in corridor order. Serialization
// and reporting iterate in this order for deterministic output.
func SlotIDs() []SlotID {
	out := make([]SlotID, len(slotTable))
	for i, s := range slotTable {
		out[i] = s.ID
	}
	return out
}

func SlotByID(id SlotID) (Slot, bool) {
	for _, s := range slotTable {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotForYard maps a dispensing yard to its yard slot.
func SlotForYard(y Yard) (Slot, bool) {
	for _, s := range slotTable {
		if s.Leg == LegYard && s.Yard == y {
			return s, true
		}
	}
	return Slot{}, false
}

// ParseSlotID validates an externally-supplied slot name.
func ParseSlotID(raw string) (SlotID, error) {
	id := SlotID(strings.TrimSpace(raw))
	if _, ok := SlotByID(id); !ok {
		return "", fmt.Errorf("checkpoint slot %q: %w", raw, ErrUnknownCheckpoint)
	}
	return id, nil
}

// ParseYard validates an externally-supplied yard name. Comparison is
// case-insensitive and whitespace-tolerant; the canonical form is the
// upper-case yard name from the slot table.
func ParseYard(raw string) (Yard, error) {
	canon := strings.Join(strings.Fields(strings.ToUpper(raw)), " ")
	y := Yard(canon)
	if _, ok := SlotForYard(y); !ok {
		return "", fmt.Errorf("yard %q: %w", raw, ErrUnknownYard)
	}
	return y, nil
}
