/*
seed.go - Demo fixtures

Loads a small, readable scenario through the real engine operations
(never raw inserts), so the seeded data exercises matching, sweeping,
locking and checkpoint allocation exactly the way production traffic
does:

  - a pending dispense that waits for its journey record, then sweeps
    in when the record is created
  - a Kigali trip whose yard dispense auto-links (550 - 44 = 506 in
    the dar yard slot) and a Morogoro checkpoint on top
  - a truck from an unconfigured batch, creating a locked record
  - a truck with one cancelled and one active journey, showing the
    dispense always lands on the active one
*/
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

func seedCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo fixtures into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	return cmd
}

func runSeed(dbPath string) error {
	a, err := bootstrap(dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	yesterday := time.Now().AddDate(0, 0, -1)

	// 1. A dispense arrives before its paperwork: parks as pending.
	pendingRes, err := a.engine.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "t455dsv",
		Yard:        "TANGA YARD",
		EventDate:   yesterday,
		Liters:      fuel.NewLitersFromInt(120),
		EnteredBy:   "yard.tanga",
	})
	if err != nil {
		return fmt.Errorf("seed: pending dispense: %w", err)
	}
	fmt.Printf("dispense %s: %s\n", pendingRes.Event.ID, pendingRes.Event.Status)

	// 2. The journey record shows up and sweeps the pending event in.
	mwanza, err := a.engine.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T455 DSV",
		GoingDO:     "DO-4201",
		Destination: "MWANZA",
		TripDate:    yesterday,
		OriginYard:  "TANGA YARD",
		Actor:       "dispatch.alice",
	})
	if err != nil {
		return fmt.Errorf("seed: mwanza record: %w", err)
	}
	fmt.Printf("record %s (DO-4201): swept %d pending event(s), balance %s\n",
		mwanza.Record.ID(), len(mwanza.SweptEvents), mwanza.Record.Balance())

	// 3. A fully configured Kigali trip.
	kigali, err := a.engine.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "t872dvh",
		GoingDO:     "DO-4185",
		Destination: "KIGALI",
		TripDate:    yesterday,
		OriginYard:  "DAR YARD",
		Actor:       "dispatch.alice",
	})
	if err != nil {
		return fmt.Errorf("seed: kigali record: %w", err)
	}

	// 4. Its yard dispense auto-links: 550 seed - 44 dispensed = 506.
	linked, err := a.engine.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "T 872 DVH",
		Yard:        "DAR YARD",
		EventDate:   time.Now(),
		Liters:      fuel.NewLitersFromInt(44),
		EnteredBy:   "yard.dar",
	})
	if err != nil {
		return fmt.Errorf("seed: kigali dispense: %w", err)
	}
	fmt.Printf("dispense %s: %s to DO %s, dar yard slot now %s\n",
		linked.Event.ID, linked.Event.Status, linked.Event.GoingDO,
		linked.Record.Slot(fuel.SlotDarYard))

	// 5. A checkpoint posting along the going leg.
	posted, err := a.engine.PostCheckpoint(ctx, engine.PostCheckpointInput{
		RecordID: kigali.Record.ID(),
		Slot:     string(fuel.SlotGoingMorogoro),
		Actor:    "station.morogoro",
	})
	if err != nil {
		return fmt.Errorf("seed: morogoro checkpoint: %w", err)
	}
	fmt.Printf("record %s: morogoro %s, balance %s\n",
		posted.ID(), posted.Slot(fuel.SlotGoingMorogoro), posted.Balance())

	// 6. A truck whose batch has no configuration: the record locks
	//    instead of erroring.
	lockedRec, err := a.engine.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 311 KLM",
		GoingDO:     "DO-4202",
		Destination: "GOMA",
		TripDate:    time.Now(),
		OriginYard:  "DAR YARD",
		Actor:       "dispatch.bob",
	})
	if err != nil {
		return fmt.Errorf("seed: locked record: %w", err)
	}
	fmt.Printf("record %s (DO-4202): locked=%v reason=%s\n",
		lockedRec.Record.ID(), lockedRec.Record.IsLocked(), lockedRec.Record.PendingConfigReason())

	// 7. A cancelled journey must never capture a dispense meant for
	//    the live one. TEST 001 ABC has an old cancelled trip and a
	//    fresh active one; the dispense lands on the active trip only.
	stale, err := a.engine.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "TEST001ABC",
		GoingDO:     "DO-4150",
		Destination: "KIGALI",
		TripDate:    yesterday.AddDate(0, 0, -3),
		OriginYard:  "DAR YARD",
		Actor:       "dispatch.bob",
	})
	if err != nil {
		return fmt.Errorf("seed: stale abc record: %w", err)
	}
	if _, err := a.engine.CancelJourneyRecord(ctx, stale.Record.ID(), "trip rescheduled", "dispatch.bob"); err != nil {
		return fmt.Errorf("seed: cancel stale abc record: %w", err)
	}
	active, err := a.engine.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "TEST 001 ABC",
		GoingDO:     "DO-4203",
		Destination: "KIGALI",
		TripDate:    yesterday,
		OriginYard:  "DAR YARD",
		Actor:       "dispatch.bob",
	})
	if err != nil {
		return fmt.Errorf("seed: active abc record: %w", err)
	}
	abcDispense, err := a.engine.SubmitDispenseEvent(ctx, engine.SubmitInput{
		TruckNumber: "test001abc",
		Yard:        "DAR YARD",
		EventDate:   time.Now(),
		Liters:      fuel.NewLitersFromInt(44),
		EnteredBy:   "yard.dar",
	})
	if err != nil {
		return fmt.Errorf("seed: abc dispense: %w", err)
	}
	fmt.Printf("dispense %s: %s to active DO %s (not cancelled DO %s), dar slot %s\n",
		abcDispense.Event.ID, abcDispense.Event.Status, active.Record.GoingDO(),
		stale.Record.GoingDO(), abcDispense.Record.Slot(fuel.SlotDarYard))

	fmt.Println("seed complete")
	return nil
}
