package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/config"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel/store"
	"go.uber.org/zap"
)

// storeRecord creates a record directly in the store, bypassing the
// engine's creation sweep. Used where the test needs pending events and
// an existing record side by side.
func storeRecord(t *testing.T, mem *store.Memory, truck fuel.TruckNumber, goingDO string) *fuel.Record {
	t.Helper()
	rec, err := fuel.NewRecord(truck, goingDO, "KIGALI",
		time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		fuel.YardDar, fuel.NewLitersFromInt(550), baseTime)
	require.NoError(t, err)
	require.NoError(t, rec.SetAllocation(fuel.NewLitersFromInt(3000), fuel.NewLitersFromInt(200), baseTime))
	require.NoError(t, mem.CreateRecord(context.Background(), rec.Data()))
	return rec
}

// =============================================================================
// MANUAL LINK
// =============================================================================

func TestLinkPendingEvent_SweepsTrucksOtherPending(t *testing.T) {
	// GIVEN: Two pending dispenses for T 999 DVH and a record an
	//        operator has picked by hand
	// WHEN: Linking the first event explicitly
	// THEN: The target goes manual, the second rides along as linked,
	//       and both quantities land in the yard slot

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	target := submit(t, eng, "T 999 DVH", 100)
	rider := submit(t, eng, "T 999 DVH", 50)
	rec := storeRecord(t, mem, "T 999 DVH", "DO-7")

	res, err := eng.LinkPendingEvent(ctx, target.Event.ID, rec.ID(), "dispatcher-jane")
	require.NoError(t, err)

	assert.Equal(t, fuel.EventManual, res.Event.Status)
	assert.False(t, res.Event.AutoLinked)
	assert.Equal(t, rec.ID(), res.Event.RecordID)

	require.Len(t, res.SweptEvents, 1)
	assert.Equal(t, rider.Event.ID, res.SweptEvents[0].ID)
	assert.Equal(t, fuel.EventLinked, res.SweptEvents[0].Status)
	assert.Equal(t, 2, res.LinkedCount)

	// 550 - 100 - 50 = 400; balance 3200 - 400 = 2800.
	assert.True(t, res.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(400)))
	assert.True(t, res.Record.Balance().Equal(fuel.NewLitersFromInt(2800)))

	// Via is recorded per path.
	targetLast := res.Event.History[len(res.Event.History)-1].Details.(fuel.LinkedDetails)
	assert.Equal(t, "manual", targetLast.Via)
	riderLast := res.SweptEvents[0].History[len(res.SweptEvents[0].History)-1].Details.(fuel.LinkedDetails)
	assert.Equal(t, "sweep", riderLast.Via)
}

func TestLinkPendingEvent_DifferentTruck_NoCrossSweep(t *testing.T) {
	// An operator may deliberately link a mistyped event onto another
	// truck's record; only the record's own truck sweeps along.
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	target := submit(t, eng, "T 111 DSV", 80)
	bystander := submit(t, eng, "T 222 DSV", 25)
	rec := storeRecord(t, mem, "T 999 DVH", "DO-7")

	res, err := eng.LinkPendingEvent(ctx, target.Event.ID, rec.ID(), "dispatcher-jane")
	require.NoError(t, err)

	assert.Equal(t, 1, res.LinkedCount)
	assert.Empty(t, res.SweptEvents)
	assert.True(t, res.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(470)))

	stored, err := mem.GetEvent(ctx, bystander.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventPending, stored.Status)
}

func TestLinkPendingEvent_CancelledTarget_RefusedUntouched(t *testing.T) {
	// GIVEN: A pending event and a cancelled record
	// WHEN: The operator forces a link to the cancelled record
	// THEN: Refused with a message naming the cancellation, and neither
	//       the event nor the record is mutated

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	_, err := eng.CancelJourneyRecord(ctx, rec.ID(), "entered against wrong truck", "ops")
	require.NoError(t, err)

	ev := submit(t, eng, "T 455 DSV", 60)

	_, err = eng.LinkPendingEvent(ctx, ev.Event.ID, rec.ID(), "dispatcher-jane")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.ErrorIs(t, err, fuel.ErrRecordCancelled)

	storedEv, err := mem.GetEvent(ctx, ev.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventPending, storedEv.Status)
	assert.Len(t, storedEv.History, 1, "no link attempt in history")

	storedRec, err := mem.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	assert.True(t, storedRec.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(550)))
}

func TestLinkPendingEvent_MissingPieces(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.LinkPendingEvent(ctx, "ghost-event", "ghost-record", "a")
	assert.ErrorIs(t, err, fuel.ErrEventNotFound)

	ev := submit(t, eng, "T 455 DSV", 60)
	_, err = eng.LinkPendingEvent(ctx, ev.Event.ID, "ghost-record", "a")
	assert.ErrorIs(t, err, fuel.ErrRecordNotFound)
}

func TestLinkPendingEvent_AlreadyLinkedEvent(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44) // auto-links
	require.Equal(t, fuel.EventLinked, res.Event.Status)

	other := storeRecord(t, mem, "T 500 DVH", "DO-5000")
	_, err := eng.LinkPendingEvent(ctx, res.Event.ID, other.ID(), "a")
	assert.ErrorIs(t, err, fuel.ErrInvalidTransition)

	// Neither record moved.
	first, err := mem.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	assert.True(t, first.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(506)))
	second, err := mem.GetRecord(ctx, other.ID())
	require.NoError(t, err)
	assert.True(t, second.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(550)))
}

// =============================================================================
// REJECTION
// =============================================================================

func TestRejectDispenseEvent_ReversesExactQuantity(t *testing.T) {
	// GIVEN: An auto-linked 44 L dispense (dar 506, balance 2694)
	// WHEN: The event is rejected
	// THEN: The 44 L returns to the slot and the balance is exactly
	//       what it was before the dispense

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	require.True(t, res.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(506)))

	rejected, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "pump meter misread", "auditor-sam")
	require.NoError(t, err)

	assert.Equal(t, fuel.EventRejected, rejected.Status)
	assert.Equal(t, res.Record.ID(), rejected.RecordID, "audit reference kept")
	require.NotNil(t, rejected.Rejection)
	assert.Equal(t, "pump meter misread", rejected.Rejection.Reason)

	stored, err := mem.GetRecord(ctx, res.Record.ID())
	require.NoError(t, err)
	assert.True(t, stored.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(550)))
	assert.True(t, stored.Balance.Equal(fuel.NewLitersFromInt(2650)))
}

func TestRejectDispenseEvent_PendingEvent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ev := submit(t, eng, "T 872 DVH", 44)

	_, err := eng.RejectDispenseEvent(context.Background(), ev.Event.ID, "r", "a")
	assert.ErrorIs(t, err, fuel.ErrInvalidTransition)
}

func TestRejectDispenseEvent_SoftDeletedRecord_StillReverses(t *testing.T) {
	// Hiding a record must not strand its liters: the reversal reaches
	// the hidden row.
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	require.NoError(t, eng.SoftDeleteJourneyRecord(ctx, res.Record.ID(), "ops"))

	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.NoError(t, err)

	stored, err := mem.GetRecord(ctx, res.Record.ID())
	require.NoError(t, err)
	assert.True(t, stored.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(550)))
}

func TestRejectDispenseEvent_EventWriteFails_ReversalCompensated(t *testing.T) {
	// GIVEN: A linked dispense on a soft-deleted record and an event
	//        store that refuses the next write
	// WHEN: Rejection saves the reversal but cannot persist the event
	// THEN: The reversal is compensated back off the hidden record, so
	//       the still-linked event and the slots keep agreeing

	mem := store.NewMemory()
	fs := &failingEventStore{Store: mem}
	eng := engine.New(fs, config.Default(), zap.NewNop())
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	require.NoError(t, eng.SoftDeleteJourneyRecord(ctx, res.Record.ID(), "ops"))

	fs.failures = 1
	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist rejection")

	stored, err := mem.GetRecord(ctx, res.Record.ID())
	require.NoError(t, err)
	assert.True(t, stored.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(506)),
		"reversal undone once its event write failed")
	assert.True(t, stored.Balance.Equal(fuel.NewLitersFromInt(2694)))

	ev, err := mem.GetEvent(ctx, res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventLinked, ev.Status, "event untouched by the failed rejection")
	assert.Equal(t, res.Record.ID(), ev.RecordID)
}

func TestResolveRejection_EngineLevel(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.NoError(t, err)

	ack, err := eng.ResolveRejection(ctx, res.Event.ID, "supervisor")
	require.NoError(t, err)
	assert.True(t, ack.Rejection.Resolved)
	assert.Equal(t, "supervisor", ack.Rejection.ResolvedBy)
	assert.Equal(t, fuel.EventRejected, ack.Status, "acknowledging does not change status")

	// Idempotent.
	again, err := eng.ResolveRejection(ctx, res.Event.ID, "supervisor")
	require.NoError(t, err)
	assert.Len(t, again.History, len(ack.History))
}

// =============================================================================
// RE-ENTRY
// =============================================================================

func TestReenterEvent_RelinksAutomatically(t *testing.T) {
	// GIVEN: A rejected dispense whose record is still the best match
	// WHEN: Re-entering
	// THEN: It links again and the liters post again, exactly once

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.NoError(t, err)

	back, err := eng.ReenterEvent(ctx, res.Event.ID, "auditor")
	require.NoError(t, err)

	assert.Equal(t, fuel.EventLinked, back.Event.Status)
	assert.Nil(t, back.Event.Rejection)
	assert.Empty(t, back.Message)
	assert.True(t, back.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(506)))
	assert.True(t, back.Record.Balance().Equal(fuel.NewLitersFromInt(2694)))

	// created, linked, rejected, re-entered, linked.
	stored, err := mem.GetEvent(ctx, res.Event.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 5)
	assert.Equal(t, fuel.HistoryReentered, stored.History[3].Action)
	assert.Equal(t, fuel.HistoryLinked, stored.History[4].Action)
}

func TestReenterEvent_ParksPendingWhenNoTarget(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.NoError(t, err)
	_, err = eng.CancelJourneyRecord(ctx, rec.ID(), "trip voided", "ops")
	require.NoError(t, err)

	back, err := eng.ReenterEvent(ctx, res.Event.ID, "auditor")
	require.NoError(t, err)

	assert.Equal(t, fuel.EventPending, back.Event.Status)
	assert.Nil(t, back.Record)
	assert.Equal(t, engine.PendingLinkMessage, back.Message)
	assert.Empty(t, back.Event.RecordID)
}

func TestReenterEvent_NotRejected(t *testing.T) {
	eng, _ := newTestEngine(t)
	ev := submit(t, eng, "T 872 DVH", 44)

	_, err := eng.ReenterEvent(context.Background(), ev.Event.ID, "a")
	assert.ErrorIs(t, err, fuel.ErrInvalidTransition)
}

func TestReenterEvent_LinkedEvent_RefusedNoDoublePost(t *testing.T) {
	// GIVEN: An auto-linked 44 L dispense (dar 506, balance 2694)
	// WHEN: Re-entry is attempted without rejecting first
	// THEN: Refused; re-entry from linked would clear the linkage with
	//       no reversal and then deduct the same dispense again

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	require.Equal(t, fuel.EventLinked, res.Event.Status)

	_, err := eng.ReenterEvent(ctx, res.Event.ID, "auditor")
	require.Error(t, err)
	assert.ErrorIs(t, err, fuel.ErrInvalidTransition)

	stored, err := mem.GetRecord(ctx, res.Record.ID())
	require.NoError(t, err)
	assert.True(t, stored.Slots[fuel.SlotDarYard].Equal(fuel.NewLitersFromInt(506)),
		"the 44 L dispense must stay deducted exactly once")
	assert.True(t, stored.Balance.Equal(fuel.NewLitersFromInt(2694)))

	ev, err := mem.GetEvent(ctx, res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventLinked, ev.Status)
	assert.Equal(t, res.Record.ID(), ev.RecordID)
	assert.Len(t, ev.History, 2, "created, linked; nothing else")
}

func TestReenterEvent_RetriesOnceOnConflict(t *testing.T) {
	mem := store.NewMemory()
	cs := &conflictingStore{Store: mem}
	eng := engine.New(cs, config.Default(), zap.NewNop())
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.NoError(t, err)

	cs.conflicts = 1
	back, err := eng.ReenterEvent(ctx, res.Event.ID, "auditor")
	require.NoError(t, err)
	assert.Equal(t, fuel.EventLinked, back.Event.Status)
	assert.True(t, back.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(506)),
		"retry must not double-post")
}

// =============================================================================
// RECORD CANCELLATION / SOFT DELETE
// =============================================================================

func TestCancelJourneyRecord_UnlinksEventsKeepsSnapshot(t *testing.T) {
	// GIVEN: A record with a linked dispense (dar 506)
	// WHEN: The record is cancelled
	// THEN: The event returns to pending for relinking elsewhere, while
	//       the record keeps its slot values as a frozen audit snapshot

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)

	cancelled, err := eng.CancelJourneyRecord(ctx, res.Record.ID(), "trip voided", "dispatcher-jane")
	require.NoError(t, err)

	assert.True(t, cancelled.IsCancelled())
	assert.Equal(t, "trip voided", cancelled.CancellationDetails().Reason)
	assert.True(t, cancelled.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(506)),
		"no slot reversal on cancellation")

	ev, err := mem.GetEvent(ctx, res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventPending, ev.Status)
	assert.Empty(t, ev.RecordID)

	last := ev.History[len(ev.History)-1].Details.(fuel.UpdatedDetails)
	assert.Equal(t, "linkage", last.Field)
	assert.Equal(t, "DO-4185", last.From)
}

func TestCancelJourneyRecord_Twice(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")

	_, err := eng.CancelJourneyRecord(ctx, rec.ID(), "first", "ops")
	require.NoError(t, err)
	_, err = eng.CancelJourneyRecord(ctx, rec.ID(), "second", "ops")
	assert.ErrorIs(t, err, fuel.ErrRecordCancelled)
}

func TestCancelJourneyRecord_RejectedEventsKeepTheirState(t *testing.T) {
	// Rejected events are not "linked": cancellation leaves them alone.
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	res := submit(t, eng, "T 872 DVH", 44)
	_, err := eng.RejectDispenseEvent(ctx, res.Event.ID, "misread", "auditor")
	require.NoError(t, err)

	_, err = eng.CancelJourneyRecord(ctx, rec.ID(), "trip voided", "ops")
	require.NoError(t, err)

	ev, err := mem.GetEvent(ctx, res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventRejected, ev.Status)
	assert.Equal(t, rec.ID(), ev.RecordID, "audit reference survives the cancel")
}

func TestSoftDeleteJourneyRecord(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")

	require.NoError(t, eng.SoftDeleteJourneyRecord(ctx, rec.ID(), "ops"))

	// Hidden from default listings, still directly fetchable.
	live, err := eng.ListRecords(ctx, fuel.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, live)

	got, err := eng.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	assert.True(t, got.IsSoftDeleted())

	// Deleting twice: the record is already hidden, loadLiveRecord
	// reports it as gone.
	err = eng.SoftDeleteJourneyRecord(ctx, rec.ID(), "ops")
	assert.ErrorIs(t, err, fuel.ErrRecordNotFound)
}
