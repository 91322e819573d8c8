package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/config"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var baseTime = time.Date(2025, time.June, 10, 8, 0, 0, 0, time.UTC)

// newTestEngine wires the engine against the in-memory store with the
// default fleet configuration and a ticking clock, so successive
// operations get strictly increasing timestamps.
func newTestEngine(t *testing.T) (*engine.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng := engine.New(mem, config.Default(), zap.NewNop())

	tick := 0
	eng.Now = func() time.Time {
		tick++
		return baseTime.Add(time.Duration(tick) * time.Second)
	}
	return eng, mem
}

func createKigaliRecord(t *testing.T, eng *engine.Engine, truck, goingDO string) *fuel.Record {
	t.Helper()
	res, err := eng.CreateJourneyRecord(context.Background(), engine.CreateRecordInput{
		TruckNumber: truck,
		GoingDO:     goingDO,
		Destination: "KIGALI",
		TripDate:    time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard:  "DAR YARD",
		Actor:       "dispatcher-jane",
	})
	require.NoError(t, err)
	return res.Record
}

func submit(t *testing.T, eng *engine.Engine, truck string, liters int) *engine.SubmitResult {
	t.Helper()
	res, err := eng.SubmitDispenseEvent(context.Background(), engine.SubmitInput{
		TruckNumber: truck,
		Yard:        "DAR YARD",
		EventDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		Liters:      fuel.NewLitersFromInt(liters),
		EnteredBy:   "pump-op-1",
	})
	require.NoError(t, err)
	return res
}

// conflictingStore fails the next N record updates with a version
// conflict, then behaves normally. Simulates a concurrent writer
// without needing actual goroutine races.
type conflictingStore struct {
	fuel.Store
	conflicts int
}

func (s *conflictingStore) UpdateRecord(ctx context.Context, d fuel.RecordData) (fuel.RecordData, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return fuel.RecordData{}, fmt.Errorf("record %s: %w", d.ID, fuel.ErrConcurrentModification)
	}
	return s.Store.UpdateRecord(ctx, d)
}

// failingEventStore refuses the next N event updates, then behaves
// normally. Simulates the event write dying after the record write
// already landed.
type failingEventStore struct {
	fuel.Store
	failures int
}

func (s *failingEventStore) UpdateEvent(ctx context.Context, ev *fuel.Event) (*fuel.Event, error) {
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("event %s: write refused", ev.ID)
	}
	return s.Store.UpdateEvent(ctx, ev)
}

// =============================================================================
// SUBMISSION - pending outcome
// =============================================================================

func TestSubmitDispense_NoRecord_ParksPending(t *testing.T) {
	// GIVEN: No journey record anywhere for the truck
	// WHEN: A dispense is submitted
	// THEN: The outcome is a successful pending event with the operator
	//       message, never an error

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	res := submit(t, eng, "t872dvh", 120)

	assert.Equal(t, fuel.EventPending, res.Event.Status)
	assert.Nil(t, res.Record)
	assert.Equal(t, engine.PendingLinkMessage, res.Message)
	assert.Empty(t, res.Event.RecordID)

	// Persisted, not just returned.
	stored, err := mem.GetEvent(ctx, res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventPending, stored.Status)
	assert.Equal(t, "t872dvh", stored.RawTruck)
	assert.Equal(t, fuel.TruckNumber("T 872 DVH"), stored.TruckNumber)
}

func TestSubmitDispense_InvalidInput(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "---", Yard: "DAR YARD", Liters: fuel.NewLitersFromInt(10),
	})
	assert.ErrorIs(t, err, fuel.ErrInvalidTruckNumber)

	_, err = eng.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "t872dvh", Yard: "NAIROBI YARD", Liters: fuel.NewLitersFromInt(10),
	})
	assert.ErrorIs(t, err, fuel.ErrUnknownYard)

	_, err = eng.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "t872dvh", Yard: "DAR YARD", Liters: fuel.ZeroLiters(),
	})
	assert.ErrorIs(t, err, fuel.ErrInvalidLiters)
}

// =============================================================================
// SUBMISSION - auto-link outcome
// =============================================================================

func TestSubmitDispense_AutoLinks(t *testing.T) {
	// GIVEN: An active KIGALI record for T 872 DVH (550 L seeded at Dar,
	//        3000 + 200 allocation)
	// WHEN: A 44 L Dar dispense is submitted as "t872dvh"
	// THEN: The event links automatically and the record shows
	//       dar 506 L, balance 3200 - 506 = 2694 L

	eng, _ := newTestEngine(t)
	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")

	res := submit(t, eng, "t872dvh", 44)

	require.NotNil(t, res.Record)
	assert.Empty(t, res.Message)
	assert.Equal(t, fuel.EventLinked, res.Event.Status)
	assert.True(t, res.Event.AutoLinked)
	assert.Equal(t, rec.ID(), res.Event.RecordID)
	assert.Equal(t, "DO-4185", res.Event.GoingDO)

	assert.True(t, res.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(506)))
	assert.True(t, res.Record.Balance().Equal(fuel.NewLitersFromInt(2694)))
	assert.Equal(t, int64(2), res.Record.Version(), "CAS bumped the version")
}

func TestSubmitDispense_TangaYardPostsToTangaSlot(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 455 DSV",
		GoingDO:     "DO-4201",
		Destination: "MWANZA",
		TripDate:    time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard:  "tanga yard",
	})
	require.NoError(t, err)

	res, err := eng.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "t455dsv",
		Yard:        "TANGA YARD",
		Liters:      fuel.NewLitersFromInt(60),
		EnteredBy:   "pump-op-2",
	})
	require.NoError(t, err)

	// Tanga standard 400 - 60 = 340; MWANZA 1800 + DSV 150.
	assert.True(t, res.Record.Slot(fuel.SlotTangaYard).Equal(fuel.NewLitersFromInt(340)))
	assert.True(t, res.Record.Slot(fuel.SlotDarYard).IsZero())
	assert.True(t, res.Record.Balance().Equal(fuel.NewLitersFromInt(1610)))
}

func TestSubmitDispense_MostRecentTripWins(t *testing.T) {
	// GIVEN: Two active records for the truck, last week's and today's
	// WHEN: A dispense is submitted
	// THEN: It links to the record with the most recent trip date

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	older, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 872 DVH", GoingDO: "DO-100", Destination: "KIGALI",
		TripDate:   time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)
	newer, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 872 DVH", GoingDO: "DO-101", Destination: "GOMA",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)

	res := submit(t, eng, "T 872 DVH", 44)
	assert.Equal(t, newer.Record.ID(), res.Event.RecordID)
	assert.NotEqual(t, older.Record.ID(), res.Event.RecordID)
}

func TestSubmitDispense_NoTripDateWindow(t *testing.T) {
	// Paperwork can trail the pump by a long way: a record whose trip
	// date is months old must still match. There is no cutoff.
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 872 DVH", GoingDO: "DO-OLD", Destination: "KIGALI",
		TripDate:   time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)

	got := submit(t, eng, "T 872 DVH", 44)
	assert.Equal(t, res.Record.ID(), got.Event.RecordID)
}

func TestSubmitDispense_CancelledRecordNeverMatches(t *testing.T) {
	// GIVEN: The truck's only record is cancelled
	// WHEN: A dispense is submitted
	// THEN: The matcher skips it and the event parks pending

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	_, err := eng.CancelJourneyRecord(ctx, rec.ID(), "entered against wrong truck", "dispatcher-jane")
	require.NoError(t, err)

	res := submit(t, eng, "T 872 DVH", 44)
	assert.Equal(t, fuel.EventPending, res.Event.Status)
	assert.Equal(t, engine.PendingLinkMessage, res.Message)
}

func TestSubmitDispense_ActiveRecordWinsOverCancelled(t *testing.T) {
	// GIVEN: The truck has a cancelled journey and an active one, both
	//        seeded with 550 in the dar yard slot
	// WHEN: A 44 liter dispense is submitted
	// THEN: It links to the active journey (550 -> 506) and the
	//       cancelled journey's slot stays untouched

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cancelled := createKigaliRecord(t, eng, "TEST001ABC", "DO-4150")
	_, err := eng.CancelJourneyRecord(ctx, cancelled.ID(), "trip rescheduled", "dispatcher-jane")
	require.NoError(t, err)
	active := createKigaliRecord(t, eng, "TEST001ABC", "DO-4203")

	res := submit(t, eng, "TEST001ABC", 44)

	require.NotNil(t, res.Record)
	assert.Equal(t, active.ID(), res.Record.ID(), "must link to the active journey")
	assert.Equal(t, fuel.EventLinked, res.Event.Status)
	assert.True(t, res.Event.AutoLinked)
	assert.Equal(t, "506", res.Record.Slot(fuel.SlotDarYard).String())

	untouched, err := eng.GetRecord(ctx, cancelled.ID())
	require.NoError(t, err)
	assert.Equal(t, "550", untouched.Slot(fuel.SlotDarYard).String(),
		"cancelled journey keeps its slot values")
}

func TestSubmitDispense_SoftDeletedRecordNeverMatches(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	require.NoError(t, eng.SoftDeleteJourneyRecord(ctx, rec.ID(), "dispatcher-jane"))

	res := submit(t, eng, "T 872 DVH", 44)
	assert.Equal(t, fuel.EventPending, res.Event.Status)
}

// =============================================================================
// SUBMISSION - write races
// =============================================================================

func TestSubmitDispense_RetriesOnceOnConflict(t *testing.T) {
	// GIVEN: The first record save loses the version race
	// WHEN: Submitting
	// THEN: The pipeline reruns from the match and succeeds

	mem := store.NewMemory()
	cs := &conflictingStore{Store: mem}
	eng := engine.New(cs, config.Default(), zap.NewNop())

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	cs.conflicts = 1

	res := submit(t, eng, "T 872 DVH", 44)
	assert.Equal(t, fuel.EventLinked, res.Event.Status)
	assert.True(t, res.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(506)),
		"the retry must not double-post")
}

func TestSubmitDispense_SecondConflictSurfaces(t *testing.T) {
	mem := store.NewMemory()
	cs := &conflictingStore{Store: mem}
	eng := engine.New(cs, config.Default(), zap.NewNop())

	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")
	cs.conflicts = 2

	_, err := eng.SubmitDispenseEvent(context.Background(), engine.SubmitInput{
		TruckNumber: "T 872 DVH", Yard: "DAR YARD",
		Liters: fuel.NewLitersFromInt(44), EnteredBy: "pump-op-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fuel.ErrConcurrentModification)
	assert.True(t, fuel.IsRetryable(err))
}

// =============================================================================
// RECORD CREATION
// =============================================================================

func TestCreateJourneyRecord_SeedsAndAllocates(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")

	assert.Equal(t, fuel.TruckNumber("T 872 DVH"), rec.TruckNumber())
	assert.True(t, rec.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(550)))
	assert.True(t, rec.TotalLiters().Equal(fuel.NewLitersFromInt(3000)))
	assert.True(t, rec.ExtraLiters().Equal(fuel.NewLitersFromInt(200)))
	assert.True(t, rec.Balance().Equal(fuel.NewLitersFromInt(2650)))
	assert.False(t, rec.IsLocked())
	assert.Equal(t, "2025-06", rec.MonthTag())
}

func TestCreateJourneyRecord_NormalizesTruck(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createKigaliRecord(t, eng, "t872dvh", "DO-4185")
	assert.Equal(t, fuel.TruckNumber("T 872 DVH"), rec.TruckNumber())
}

func TestCreateJourneyRecord_DuplicateDO(t *testing.T) {
	eng, _ := newTestEngine(t)
	createKigaliRecord(t, eng, "T 872 DVH", "DO-4185")

	_, err := eng.CreateJourneyRecord(context.Background(), engine.CreateRecordInput{
		TruckNumber: "T 999 DVH", GoingDO: "DO-4185", Destination: "GOMA",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	assert.ErrorIs(t, err, fuel.ErrDuplicateDO)
}

func TestCreateJourneyRecord_SweepsPendingEvents(t *testing.T) {
	// GIVEN: Two dispenses waiting pending for a truck with no record
	// WHEN: The journey record is finally created
	// THEN: Both events link onto it and their liters land in the yard slot

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	first := submit(t, eng, "t872dvh", 100)
	second := submit(t, eng, "T 872 DVH", 20)
	require.Equal(t, fuel.EventPending, first.Event.Status)
	require.Equal(t, fuel.EventPending, second.Event.Status)

	res, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 872 DVH", GoingDO: "DO-4185", Destination: "KIGALI",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)

	assert.Len(t, res.SweptEvents, 2)
	for _, ev := range res.SweptEvents {
		assert.Equal(t, fuel.EventLinked, ev.Status)
		assert.Equal(t, res.Record.ID(), ev.RecordID)
	}

	// 550 - 100 - 20 = 430; balance 3200 - 430 = 2770.
	assert.True(t, res.Record.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(430)))
	assert.True(t, res.Record.Balance().Equal(fuel.NewLitersFromInt(2770)))

	// The store agrees.
	stored, err := mem.GetEvent(ctx, first.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventLinked, stored.Status)
}

func TestCreateJourneyRecord_SweepOnlyTakesOwnTruck(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	mine := submit(t, eng, "T 872 DVH", 100)
	other := submit(t, eng, "T 455 DSV", 75)

	res, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 872 DVH", GoingDO: "DO-4185", Destination: "KIGALI",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)
	require.Len(t, res.SweptEvents, 1)
	assert.Equal(t, mine.Event.ID, res.SweptEvents[0].ID)

	stored, err := mem.GetEvent(ctx, other.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.EventPending, stored.Status, "other truck's event stays pending")
}

// =============================================================================
// MISSING CONFIGURATION - locked records, never errors
// =============================================================================

func TestCreateJourneyRecord_UnknownBatch_LockedMissingExtra(t *testing.T) {
	// GIVEN: A truck whose suffix has no batch entry
	// WHEN: Creating its record
	// THEN: Creation succeeds with the record locked, reason missing_extra_fuel

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 311 KLM", GoingDO: "DO-4202", Destination: "GOMA",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err, "missing configuration must not fail creation")

	rec := res.Record
	assert.True(t, rec.IsLocked())
	assert.Equal(t, fuel.PendingMissingExtra, rec.PendingConfigReason())
	assert.True(t, rec.TotalLiters().IsZero(), "no allocation applied while locked")
	assert.True(t, rec.Slot(fuel.SlotDarYard).Equal(fuel.NewLitersFromInt(550)),
		"yard seed still applies to locked records")
}

func TestCreateJourneyRecord_UnknownRoute_LockedMissingTotal(t *testing.T) {
	eng, _ := newTestEngine(t)
	res, err := eng.CreateJourneyRecord(context.Background(), engine.CreateRecordInput{
		TruckNumber: "T 872 DVH", GoingDO: "DO-4203", Destination: "NAIROBI",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)
	assert.True(t, res.Record.IsLocked())
	assert.Equal(t, fuel.PendingMissingTotal, res.Record.PendingConfigReason())
}

func TestCreateJourneyRecord_BothMissing(t *testing.T) {
	eng, _ := newTestEngine(t)
	res, err := eng.CreateJourneyRecord(context.Background(), engine.CreateRecordInput{
		TruckNumber: "T 311 KLM", GoingDO: "DO-4204", Destination: "NAIROBI",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)
	assert.Equal(t, fuel.PendingMissingBoth, res.Record.PendingConfigReason())
}

func TestLockedRecord_BackfilledWhenConfigAppears(t *testing.T) {
	// GIVEN: A record locked for a missing batch
	// WHEN: The batch is configured and the next posting arrives
	// THEN: The allocation backfills and the lock clears in the same save

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	created, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 311 KLM", GoingDO: "DO-4202", Destination: "GOMA",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)
	require.True(t, created.Record.IsLocked())

	// Fleet office ships the missing batch.
	eng.Config.TruckBatches = append(eng.Config.TruckBatches,
		config.TruckBatch{Suffix: "KLM", ExtraLiters: 160})

	res, err := eng.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "T 311 KLM", Yard: "DAR YARD",
		Liters: fuel.NewLitersFromInt(44), EnteredBy: "pump-op-1",
	})
	require.NoError(t, err)

	rec := res.Record
	assert.False(t, rec.IsLocked())
	assert.Equal(t, fuel.PendingNone, rec.PendingConfigReason())
	assert.True(t, rec.TotalLiters().Equal(fuel.NewLitersFromInt(3600)))
	assert.True(t, rec.ExtraLiters().Equal(fuel.NewLitersFromInt(160)))
	// 3760 - |550-44| = 3254.
	assert.True(t, rec.Balance().Equal(fuel.NewLitersFromInt(3254)))

	stored, err := mem.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	assert.False(t, stored.Locked)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestListRecords_Filters(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	createKigaliRecord(t, eng, "T 872 DVH", "DO-1")
	locked, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 311 KLM", GoingDO: "DO-2", Destination: "KIGALI",
		TripDate:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard: "DAR YARD",
	})
	require.NoError(t, err)
	hidden := createKigaliRecord(t, eng, "T 999 DTZ", "DO-3")
	require.NoError(t, eng.SoftDeleteJourneyRecord(ctx, hidden.ID(), "ops"))

	all, err := eng.ListRecords(ctx, fuel.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "soft-deleted excluded by default")

	withDeleted, err := eng.ListRecords(ctx, fuel.RecordFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)

	lockedOnly, err := eng.ListRecords(ctx, fuel.RecordFilter{LockedOnly: true})
	require.NoError(t, err)
	require.Len(t, lockedOnly, 1)
	assert.Equal(t, locked.Record.ID(), lockedOnly[0].ID())

	byTruck, err := eng.ListRecords(ctx, fuel.RecordFilter{Truck: "T 872 DVH"})
	require.NoError(t, err)
	require.Len(t, byTruck, 1)
	assert.Equal(t, "DO-1", byTruck[0].GoingDO())
}
