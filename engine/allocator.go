/*
allocator.go - Checkpoint allocation rules

PURPOSE:
  Decides how many liters a checkpoint posting writes into a slot:

  1. An explicit operator quantity always wins (manual override, the
     escape hatch for locked records and odd loads).
  2. Slots with a deducts-from reference get the remainder of their
     standard after what the referenced slot already consumed,
     clamped at zero. A truck that tanked 300 L at the return border
     against a 400 L lake standard gets max(0, 400 - 300) = 100 L at
     the lake station.
  3. Everything else gets the standard allocation for the slot.

RETURN LEG:
  Return-leg slots are not postable until the record has a return DO
  attached; AttachReturnDO opens them.

SEE ALSO:
  - ../fuel/slots.go: DeductsFrom lives on the slot table
  - ../config/config.go: Standard allocations
*/
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/config"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocator computes assigned checkpoint quantities from the fleet
// configuration and the record's prior state.
type Allocator struct {
	Config *config.FleetConfig
}

// AssignedQuantity returns what a posting to the slot should write.
// override is the operator-entered quantity, nil for automatic.
func (a *Allocator) AssignedQuantity(rec *fuel.Record, slot fuel.Slot, override *fuel.Liters) fuel.Liters {
	if override != nil {
		return *override
	}
	std := a.Config.StandardAllocation(slot.ID)
	if slot.DeductsFrom != "" {
		prior := rec.Slot(slot.DeductsFrom).Abs()
		return std.Sub(prior).Max(fuel.ZeroLiters())
	}
	return std
}

// =============================================================================
// CHECKPOINT POSTING
// =============================================================================

type PostCheckpointInput struct {
	RecordID fuel.RecordID
	Slot     string
	// Quantity is the manual override; nil posts the computed quantity.
	Quantity *fuel.Liters
	Actor    string
}

// PostCheckpoint writes a station quantity into a slot and reconciles
// the record. Locked records accept postings like any other; cancelled
// records refuse them.
func (e *Engine) PostCheckpoint(ctx context.Context, in PostCheckpointInput) (*fuel.Record, error) {
	rec, err := e.loadLiveRecord(ctx, in.RecordID)
	if err != nil {
		return nil, err
	}

	slotID, err := fuel.ParseSlotID(in.Slot)
	if err != nil {
		return nil, err
	}
	slot, _ := fuel.SlotByID(slotID)

	if slot.RequiresReturnDO() && !rec.HasReturnDO() {
		return nil, fmt.Errorf("slot %s needs a return DO on record %s: %w",
			slotID, rec.ID(), fuel.ErrSlotNotApplicable)
	}
	if in.Quantity != nil && in.Quantity.IsNegative() {
		return nil, fmt.Errorf("checkpoint quantity %s: %w", in.Quantity, fuel.ErrInvalidLiters)
	}

	now := e.Now()
	qty := e.Allocator.AssignedQuantity(rec, slot, in.Quantity)
	if err := rec.SetSlot(slotID, qty, now); err != nil {
		return nil, err
	}
	e.applyConfig(rec, now)

	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	e.Logger.Info("checkpoint posted",
		zap.String("record", string(saved.ID())),
		zap.String("slot", string(slotID)),
		zap.String("liters", qty.String()),
		zap.Bool("manual", in.Quantity != nil),
		zap.String("actor", in.Actor))
	return saved, nil
}

// AttachReturnDO opens the record's return leg.
func (e *Engine) AttachReturnDO(ctx context.Context, id fuel.RecordID, returnDO, actor string) (*fuel.Record, error) {
	rec, err := e.loadLiveRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	if err := rec.AttachReturnDO(returnDO, now); err != nil {
		return nil, err
	}
	e.applyConfig(rec, now)

	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	e.Logger.Info("return DO attached",
		zap.String("record", string(saved.ID())),
		zap.String("returnDo", returnDO),
		zap.String("actor", actor))
	return saved, nil
}
