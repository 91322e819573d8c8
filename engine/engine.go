/*
Package engine orchestrates the fuel allocation pipeline.

PURPOSE:
  Ties the domain pieces together: dispense events come in, the matcher
  finds the journey record, the allocator decides quantities, the
  record recomputes its balance, and everything is persisted through
  versioned single-document updates.

SUBMISSION FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │                                                                │
  │  Operator      Normalize        Match          Post + link     │
  │  submits  ──▶  truck+yard  ──▶  journey  ──▶   (slot delta,    │
  │  dispense                       record         reconcile,      │
  │                                    │           CAS save)       │
  │                                    │                           │
  │                              no match?                         │
  │                                    │                           │
  │                                    ▼                           │
  │                          park as pending; swept in when        │
  │                          the journey record is created         │
  │                                                                │
  └────────────────────────────────────────────────────────────────┘

CONCURRENCY:
  Record writes are compare-and-swap on a version column. A submission
  that loses the race is retried once from the top (including the
  match, since the winning record may have been cancelled in between);
  a second loss surfaces the conflict to the caller. Other operations
  surface the conflict immediately and let the client retry.

KEY COMPONENTS:
  Engine:    Orchestration, owns the store, config, logger and clock
  Matcher:   Candidate selection and ranking (matcher.go)
  Allocator: Checkpoint quantity rules (allocator.go)

SEE ALSO:
  - lifecycle.go: Manual link, reject, resolve, re-enter, cancel
  - reconciler.go: Versioned saves and balance verification
  - ../fuel: Domain types and invariants
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/config"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/metrics"
)

// PendingLinkMessage is returned with a submission that found no
// journey record. The wording is operator-facing.
const PendingLinkMessage = "no matching journey record found; the dispense will be linked when a fuel record is created"

// maxSubmitAttempts bounds the optimistic-concurrency retry: the
// original try plus one retry.
const maxSubmitAttempts = 2

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store     fuel.Store
	Config    *config.FleetConfig
	Matcher   *Matcher
	Allocator *Allocator
	Logger    *zap.Logger

	// Now is the clock; tests pin it for deterministic timestamps.
	Now func() time.Time
}

func New(store fuel.Store, cfg *config.FleetConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:     store,
		Config:    cfg,
		Matcher:   &Matcher{Store: store},
		Allocator: &Allocator{Config: cfg},
		Logger:    logger,
		Now:       time.Now,
	}
}

// =============================================================================
// DISPENSE SUBMISSION
// =============================================================================

type SubmitInput struct {
	TruckNumber string // raw operator input, normalized here
	Yard        string
	EventDate   time.Time
	Liters      fuel.Liters
	EnteredBy   string
	Notes       string
}

type SubmitResult struct {
	Event   *fuel.Event
	Record  *fuel.Record // nil for the pending outcome
	Message string       // set for the pending outcome
}

// SubmitDispenseEvent runs the full pipeline: normalize, match, post
// the liters into the yard slot, reconcile, persist. No match is a
// successful pending outcome. A lost CAS race is retried once from the
// top.
func (e *Engine) SubmitDispenseEvent(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	truck, err := fuel.NormalizeTruckNumber(in.TruckNumber)
	if err != nil {
		return nil, err
	}
	yard, err := fuel.ParseYard(in.Yard)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		res, err := e.submitOnce(ctx, truck, yard, in)
		if err == nil {
			return res, nil
		}
		if !fuel.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		metrics.ConflictRetries.Inc()
		e.Logger.Warn("dispense submission lost a write race, retrying",
			zap.String("truck", truck.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, lastErr
}

func (e *Engine) submitOnce(ctx context.Context, truck fuel.TruckNumber, yard fuel.Yard, in SubmitInput) (*SubmitResult, error) {
	now := e.Now()

	// 1. Build the event (validates the quantity).
	ev, err := fuel.NewEvent(truck, in.TruckNumber, yard, in.EventDate, in.Liters, in.EnteredBy, in.Notes, now)
	if err != nil {
		return nil, err
	}

	// 2. Match.
	rec, err := e.Matcher.Best(ctx, truck)
	if err != nil {
		return nil, err
	}

	// 3a. No match: park the event as pending.
	if rec == nil {
		if err := e.Store.CreateEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("failed to persist dispense event: %w", err)
		}
		metrics.DispenseSubmissions.WithLabelValues("pending").Inc()
		e.Logger.Info("dispense parked as pending",
			zap.String("event", string(ev.ID)),
			zap.String("truck", truck.String()),
			zap.String("liters", ev.Liters.String()))
		return &SubmitResult{Event: ev, Message: PendingLinkMessage}, nil
	}

	// 3b. Match: post the liters and link.
	if err := e.attach(rec, ev, true, "matcher", fuel.SystemActor, now); err != nil {
		return nil, err
	}
	e.applyConfig(rec, now)

	// 4. Persist the record first (the contended write), the event after.
	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	if err := e.Store.CreateEvent(ctx, ev); err != nil {
		if s, ok := fuel.SlotForYard(ev.Yard); ok {
			e.compensatePostings(ctx, saved.ID(), []slotDelta{{slot: s.ID, liters: ev.Liters}})
		}
		return nil, fmt.Errorf("failed to persist dispense event: %w", err)
	}

	metrics.DispenseSubmissions.WithLabelValues("linked").Inc()
	e.Logger.Info("dispense linked",
		zap.String("event", string(ev.ID)),
		zap.String("record", string(saved.ID())),
		zap.String("truck", truck.String()),
		zap.String("goingDo", saved.GoingDO()),
		zap.String("liters", ev.Liters.String()))
	return &SubmitResult{Event: ev, Record: saved}, nil
}

// attach posts the event's liters into the record's yard slot (as a
// negative delta) and links the event. Every linking path goes through
// here so the posting and the linkage can never drift apart.
func (e *Engine) attach(rec *fuel.Record, ev *fuel.Event, auto bool, via, actor string, now time.Time) error {
	slot, ok := fuel.SlotForYard(ev.Yard)
	if !ok {
		return fmt.Errorf("yard %q: %w", ev.Yard, fuel.ErrUnknownYard)
	}
	if err := rec.ApplySlotDelta(slot.ID, ev.Liters.Neg(), now); err != nil {
		return err
	}
	return ev.Link(rec.ID(), rec.GoingDO(), auto, via, actor, now)
}

// applyConfig re-resolves fleet configuration on every posting: a
// record whose route or batch is still unconfigured is (re)locked with
// the current reason; a locked record whose configuration has appeared
// gets its allocation backfilled and the lock cleared. Records created
// with configuration present keep their totals untouched.
func (e *Engine) applyConfig(rec *fuel.Record, now time.Time) {
	res := e.Config.Resolve(rec.TruckNumber(), rec.Destination())
	missing := res.Missing()

	if missing != fuel.PendingNone {
		if !rec.IsLocked() {
			metrics.ConfigLocks.Inc()
		}
		rec.Lock(missing, now)
		e.Logger.Warn("journey record pending configuration",
			zap.String("record", string(rec.ID())),
			zap.String("goingDo", rec.GoingDO()),
			zap.String("reason", string(missing)))
		return
	}

	if rec.IsLocked() {
		if err := rec.SetAllocation(res.TotalLiters, res.ExtraLiters, now); err != nil {
			e.Logger.Error("failed to backfill allocation",
				zap.String("record", string(rec.ID())), zap.Error(err))
			return
		}
		rec.Unlock(now)
		e.Logger.Info("journey record configuration backfilled",
			zap.String("record", string(rec.ID())),
			zap.String("total", res.TotalLiters.String()),
			zap.String("extra", res.ExtraLiters.String()))
	}
}

// =============================================================================
// JOURNEY RECORD CREATION
// =============================================================================

type CreateRecordInput struct {
	TruckNumber string // raw, normalized here
	GoingDO     string
	Destination string
	TripDate    time.Time
	OriginYard  string
	Actor       string
}

type CreateRecordResult struct {
	Record *fuel.Record
	// SweptEvents are pending dispense events of the same truck that
	// were linked onto the new record.
	SweptEvents []*fuel.Event
}

// CreateJourneyRecord opens the per-trip ledger: seeds the origin yard
// slot with its standard allocation, resolves the fleet configuration
// (locking the record when it is missing), and sweeps any pending
// dispense events of the truck onto the new record.
func (e *Engine) CreateJourneyRecord(ctx context.Context, in CreateRecordInput) (*CreateRecordResult, error) {
	truck, err := fuel.NormalizeTruckNumber(in.TruckNumber)
	if err != nil {
		return nil, err
	}
	yard, err := fuel.ParseYard(in.OriginYard)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	yardSlot, _ := fuel.SlotForYard(yard)
	seed := e.Config.StandardAllocation(yardSlot.ID)

	rec, err := fuel.NewRecord(truck, in.GoingDO, in.Destination, in.TripDate, yard, seed, now)
	if err != nil {
		return nil, err
	}

	res := e.Config.Resolve(truck, in.Destination)
	if reason := res.Missing(); reason != fuel.PendingNone {
		rec.Lock(reason, now)
		metrics.ConfigLocks.Inc()
		e.Logger.Warn("journey record created locked",
			zap.String("record", string(rec.ID())),
			zap.String("truck", truck.String()),
			zap.String("reason", string(reason)))
	} else if err := rec.SetAllocation(res.TotalLiters, res.ExtraLiters, now); err != nil {
		return nil, err
	}

	if err := e.Store.CreateRecord(ctx, rec.Data()); err != nil {
		return nil, err
	}
	metrics.RecordsCreated.Inc()
	e.Logger.Info("journey record created",
		zap.String("record", string(rec.ID())),
		zap.String("truck", truck.String()),
		zap.String("goingDo", rec.GoingDO()),
		zap.String("destination", rec.Destination()))

	swept, saved, err := e.sweepPending(ctx, rec, "record-created", fuel.SystemActor)
	if err != nil {
		// The record exists; a failed sweep leaves events pending and
		// manually linkable.
		e.Logger.Error("failed to sweep pending events onto new record",
			zap.String("record", string(rec.ID())), zap.Error(err))
		return &CreateRecordResult{Record: rec}, nil
	}
	return &CreateRecordResult{Record: saved, SweptEvents: swept}, nil
}

// sweepPending links every pending event of the record's truck onto the
// record, posting each event's liters into its yard slot. Returns the
// persisted events and the freshly stored record.
func (e *Engine) sweepPending(ctx context.Context, rec *fuel.Record, via, actor string) ([]*fuel.Event, *fuel.Record, error) {
	pending, err := e.Store.ListEvents(ctx, fuel.EventFilter{Truck: rec.TruckNumber(), Status: fuel.EventPending})
	if err != nil {
		return nil, rec, fmt.Errorf("failed to list pending events: %w", err)
	}
	if len(pending) == 0 {
		return nil, rec, nil
	}

	now := e.Now()
	var attached []*fuel.Event
	for _, ev := range pending {
		if err := e.attach(rec, ev, true, via, actor, now); err != nil {
			e.Logger.Error("failed to attach pending event",
				zap.String("event", string(ev.ID)), zap.Error(err))
			continue
		}
		attached = append(attached, ev)
	}
	if len(attached) == 0 {
		return nil, rec, nil
	}

	e.applyConfig(rec, now)
	saved, err := e.saveRecord(ctx, rec)
	if err != nil {
		return nil, rec, err
	}

	var swept []*fuel.Event
	for _, ev := range attached {
		fresh, err := e.Store.UpdateEvent(ctx, ev)
		if err != nil {
			e.Logger.Error("failed to persist swept event",
				zap.String("event", string(ev.ID)), zap.Error(err))
			if s, ok := fuel.SlotForYard(ev.Yard); ok {
				e.compensatePostings(ctx, saved.ID(), []slotDelta{{slot: s.ID, liters: ev.Liters}})
			}
			continue
		}
		swept = append(swept, fresh)
	}
	return swept, saved, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// GetRecord returns the rehydrated record, soft-deleted included.
func (e *Engine) GetRecord(ctx context.Context, id fuel.RecordID) (*fuel.Record, error) {
	d, err := e.Store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return fuel.RecordFromData(d)
}

// ListRecords returns rehydrated records matching the filter.
func (e *Engine) ListRecords(ctx context.Context, f fuel.RecordFilter) ([]*fuel.Record, error) {
	datas, err := e.Store.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*fuel.Record, 0, len(datas))
	for _, d := range datas {
		rec, err := fuel.RecordFromData(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *Engine) GetEvent(ctx context.Context, id fuel.EventID) (*fuel.Event, error) {
	return e.Store.GetEvent(ctx, id)
}

func (e *Engine) ListEvents(ctx context.Context, f fuel.EventFilter) ([]*fuel.Event, error) {
	return e.Store.ListEvents(ctx, f)
}
