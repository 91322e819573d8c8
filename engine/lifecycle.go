/*
lifecycle.go - Dispense event lifecycle operations

PURPOSE:
  The operator-driven paths through the event lifecycle:

    pending ──▶ manual      LinkPendingEvent (explicit target; other
                            pending events of the truck sweep along)
    linked  ──▶ rejected    RejectDispenseEvent (reverses the posted
    manual  ──▶ rejected    quantity on the record FIRST, then marks)
    rejected ──▶ pending/   ReenterEvent (clears the rejection and runs
                 linked     the automatic pipeline again)

  plus the record-side operations that feed back into events:
  CancelJourneyRecord unlinks the record's events to pending, and
  SoftDeleteJourneyRecord hides the record without touching them.

ORDERING RULE:
  Whenever an operation touches both a record and events, the record
  (the contended, balance-carrying document) is written first; event
  writes that fail afterwards are compensated on the record, best
  effort, and verification catches anything that slips through.

SEE ALSO:
  - ../fuel/event.go: The transition table these operations obey
  - reconciler.go: saveRecord and compensation helpers
*/
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/metrics"
)

// =============================================================================
// MANUAL LINK
// =============================================================================

type LinkResult struct {
	// Event is the explicitly-targeted event, now in manual status.
	Event  *fuel.Event
	Record *fuel.Record
	// SweptEvents are the truck's other pending events, linked along
	// with the target (linked status, not auto-linked).
	SweptEvents []*fuel.Event
	// LinkedCount = 1 + len(SweptEvents).
	LinkedCount int
}

// LinkPendingEvent links a pending event to the record an operator
// picked. A cancelled target refuses the link with an error naming the
// cancellation and mutates nothing. Every other pending event of the
// record's truck is swept onto the record in the same operation.
func (e *Engine) LinkPendingEvent(ctx context.Context, eventID fuel.EventID, recordID fuel.RecordID, actor string) (*LinkResult, error) {
	ev, err := e.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	rec, err := e.Matcher.VerifyManualTarget(ctx, recordID)
	if err != nil {
		return nil, err
	}

	now := e.Now()

	// Target first: post its liters and move it to manual.
	slot, ok := fuel.SlotForYard(ev.Yard)
	if !ok {
		return nil, fmt.Errorf("yard %q: %w", ev.Yard, fuel.ErrUnknownYard)
	}
	if err := rec.ApplySlotDelta(slot.ID, ev.Liters.Neg(), now); err != nil {
		return nil, err
	}
	if err := ev.LinkManual(rec.ID(), rec.GoingDO(), actor, now); err != nil {
		return nil, err
	}

	// Sweep the truck's other pending events along.
	pending, err := e.Store.ListEvents(ctx, fuel.EventFilter{Truck: rec.TruckNumber(), Status: fuel.EventPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	var attached []*fuel.Event
	for _, other := range pending {
		if other.ID == ev.ID {
			continue
		}
		if err := e.attach(rec, other, false, "sweep", actor, now); err != nil {
			e.Logger.Error("failed to sweep pending event",
				zap.String("event", string(other.ID)), zap.Error(err))
			continue
		}
		attached = append(attached, other)
	}

	e.applyConfig(rec, now)
	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}

	freshTarget, err := e.Store.UpdateEvent(ctx, ev)
	if err != nil {
		undo := []slotDelta{{slot: slot.ID, liters: ev.Liters}}
		for _, other := range attached {
			if s, ok := fuel.SlotForYard(other.Yard); ok {
				undo = append(undo, slotDelta{slot: s.ID, liters: other.Liters})
			}
		}
		e.compensatePostings(ctx, saved.ID(), undo)
		return nil, fmt.Errorf("failed to persist manual link: %w", err)
	}

	result := &LinkResult{Event: freshTarget, LinkedCount: 1}
	for _, other := range attached {
		fresh, err := e.Store.UpdateEvent(ctx, other)
		if err != nil {
			e.Logger.Error("failed to persist swept event",
				zap.String("event", string(other.ID)), zap.Error(err))
			if s, ok := fuel.SlotForYard(other.Yard); ok {
				e.compensatePostings(ctx, saved.ID(), []slotDelta{{slot: s.ID, liters: other.Liters}})
			}
			continue
		}
		result.SweptEvents = append(result.SweptEvents, fresh)
		result.LinkedCount++
	}

	// Reload so the returned record reflects any compensation above.
	if final, err := e.GetRecord(ctx, saved.ID()); err == nil {
		result.Record = final
	} else {
		result.Record = saved
	}

	metrics.ManualLinks.Inc()
	e.Logger.Info("manual link",
		zap.String("event", string(freshTarget.ID)),
		zap.String("record", string(saved.ID())),
		zap.Int("linkedCount", result.LinkedCount),
		zap.String("actor", actor))
	return result, nil
}

// =============================================================================
// REJECTION
// =============================================================================

// RejectDispenseEvent disputes a linked or manual event. The posted
// quantity is reversed on the journey record before the event is
// marked, so a rejection can never leave the liters deducted. The
// record reference stays on the event for audit.
func (e *Engine) RejectDispenseEvent(ctx context.Context, id fuel.EventID, reason, actor string) (*fuel.Event, error) {
	ev, err := e.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ev.IsLinked() {
		return nil, &fuel.TransitionError{EventID: ev.ID, From: ev.Status, To: fuel.EventRejected}
	}

	// Reverse first. The record may be soft-deleted (hidden) and the
	// reversal still applies; only true absence is an error.
	d, err := e.Store.GetRecord(ctx, ev.RecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked record %s: %w", ev.RecordID, err)
	}
	rec, err := fuel.RecordFromData(d)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	slot, ok := fuel.SlotForYard(ev.Yard)
	if !ok {
		return nil, fmt.Errorf("yard %q: %w", ev.Yard, fuel.ErrUnknownYard)
	}
	if err := rec.ApplySlotDelta(slot.ID, ev.Liters, now); err != nil {
		return nil, err
	}
	e.applyConfig(rec, now)
	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := ev.Reject(reason, actor, now); err != nil {
		return nil, err
	}
	fresh, err := e.Store.UpdateEvent(ctx, ev)
	if err != nil {
		e.compensatePostings(ctx, saved.ID(), []slotDelta{{slot: slot.ID, liters: ev.Liters.Neg()}})
		return nil, fmt.Errorf("failed to persist rejection: %w", err)
	}

	metrics.Rejections.Inc()
	e.Logger.Info("dispense rejected",
		zap.String("event", string(fresh.ID)),
		zap.String("record", string(saved.ID())),
		zap.String("reason", reason),
		zap.String("actor", actor))
	return fresh, nil
}

// ResolveRejection acknowledges a rejection. Status does not change;
// acknowledging twice is a no-op.
func (e *Engine) ResolveRejection(ctx context.Context, id fuel.EventID, actor string) (*fuel.Event, error) {
	ev, err := e.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ev.ResolveRejection(actor, e.Now()); err != nil {
		return nil, err
	}
	fresh, err := e.Store.UpdateEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	e.Logger.Info("rejection acknowledged",
		zap.String("event", string(fresh.ID)), zap.String("actor", actor))
	return fresh, nil
}

// =============================================================================
// RE-ENTRY
// =============================================================================

// ReenterEvent puts a rejected event back through the automatic
// pipeline. Like a fresh submission it retries once on a lost write
// race and lands either linked or pending.
func (e *Engine) ReenterEvent(ctx context.Context, id fuel.EventID, actor string) (*SubmitResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		res, err := e.reenterOnce(ctx, id, actor)
		if err == nil {
			return res, nil
		}
		if !fuel.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		metrics.ConflictRetries.Inc()
		e.Logger.Warn("re-entry lost a write race, retrying",
			zap.String("event", string(id)), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}

func (e *Engine) reenterOnce(ctx context.Context, id fuel.EventID, actor string) (*SubmitResult, error) {
	ev, err := e.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	if err := ev.Reenter(actor, now); err != nil {
		return nil, err
	}

	rec, err := e.Matcher.Best(ctx, ev.TruckNumber)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		fresh, err := e.Store.UpdateEvent(ctx, ev)
		if err != nil {
			return nil, err
		}
		metrics.Reentries.Inc()
		e.Logger.Info("re-entered dispense parked as pending", zap.String("event", string(fresh.ID)))
		return &SubmitResult{Event: fresh, Message: PendingLinkMessage}, nil
	}

	if err := e.attach(rec, ev, true, "matcher", actor, now); err != nil {
		return nil, err
	}
	e.applyConfig(rec, now)
	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	fresh, err := e.Store.UpdateEvent(ctx, ev)
	if err != nil {
		if s, ok := fuel.SlotForYard(ev.Yard); ok {
			e.compensatePostings(ctx, saved.ID(), []slotDelta{{slot: s.ID, liters: ev.Liters}})
		}
		return nil, fmt.Errorf("failed to persist re-entered event: %w", err)
	}

	metrics.Reentries.Inc()
	e.Logger.Info("re-entered dispense linked",
		zap.String("event", string(fresh.ID)), zap.String("record", string(saved.ID())))
	return &SubmitResult{Event: fresh, Record: saved}, nil
}

// =============================================================================
// RECORD CANCELLATION / SOFT DELETE
// =============================================================================

// CancelJourneyRecord voids the record and returns its linked events to
// pending. The record's slot values stay as they were at cancellation
// (the void paperwork is an audit snapshot); the unlinked events carry
// their liters to whichever record they are linked to next.
func (e *Engine) CancelJourneyRecord(ctx context.Context, id fuel.RecordID, reason, actor string) (*fuel.Record, error) {
	rec, err := e.loadLiveRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	if err := rec.Cancel(reason, actor, now); err != nil {
		return nil, err
	}
	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}

	evs, err := e.Store.ListEvents(ctx, fuel.EventFilter{RecordID: saved.ID()})
	if err != nil {
		e.Logger.Error("failed to list events of cancelled record",
			zap.String("record", string(saved.ID())), zap.Error(err))
		return saved, nil
	}
	unlinked := 0
	for _, ev := range evs {
		if !ev.IsLinked() {
			continue
		}
		if err := ev.Unlink("journey record cancelled", actor, now); err != nil {
			e.Logger.Error("failed to unlink event", zap.String("event", string(ev.ID)), zap.Error(err))
			continue
		}
		if _, err := e.Store.UpdateEvent(ctx, ev); err != nil {
			e.Logger.Error("failed to persist unlink", zap.String("event", string(ev.ID)), zap.Error(err))
			continue
		}
		unlinked++
	}

	e.Logger.Info("journey record cancelled",
		zap.String("record", string(saved.ID())),
		zap.String("goingDo", saved.GoingDO()),
		zap.String("reason", reason),
		zap.Int("unlinkedEvents", unlinked),
		zap.String("actor", actor))
	return saved, nil
}

// SoftDeleteJourneyRecord hides the record from matching and listings.
// Linked events are left alone; rejection reversals still reach the
// hidden record.
func (e *Engine) SoftDeleteJourneyRecord(ctx context.Context, id fuel.RecordID, actor string) error {
	rec, err := e.loadLiveRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.SoftDelete(e.Now())
	if _, err := e.saveRecord(ctx, rec); err != nil {
		return err
	}
	e.Logger.Info("journey record soft-deleted",
		zap.String("record", string(id)), zap.String("actor", actor))
	return nil
}
