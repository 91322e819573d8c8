/*
matcher.go - Journey record matching for dispense events

PURPOSE:
  When a yard operator enters a dispense, the engine looks for the
  journey record the fuel belongs to. The matcher owns that decision:
  which records are candidates, and which candidate wins.

MATCHING RULES:
  - Candidates are ALL records for the truck's canonical registration.
    There is deliberately no date filtering: paperwork regularly lands
    days after the pump reading, and a trip-date window was the root
    cause of silently orphaned dispenses in the old back office.
  - Cancelled records are never candidates, no matter how recent.
  - Soft-deleted records are never candidates.
  - Ranking: trip date descending, then creation time descending. The
    best candidate is the most recent active journey.

NO MATCH IS NOT AN ERROR:
  Best returns (nil, nil) when nothing matches. The caller parks the
  event as pending; it gets swept in when the record is created.

SEE ALSO:
  - engine.go: SubmitDispenseEvent drives the matcher
  - ../fuel/truck.go: Canonical registration form
*/
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// Matcher selects the journey record a dispense event belongs to.
type Matcher struct {
	Store fuel.RecordStore
}

// Candidates returns every matchable record for the truck, ranked best
// first. Cancelled and soft-deleted records are excluded; nothing else
// is.
func (m *Matcher) Candidates(ctx context.Context, truck fuel.TruckNumber) ([]fuel.RecordData, error) {
	all, err := m.Store.ListRecords(ctx, fuel.RecordFilter{Truck: truck})
	if err != nil {
		return nil, fmt.Errorf("failed to list records for %s: %w", truck, err)
	}

	candidates := all[:0]
	for _, d := range all {
		if d.Cancelled != nil || d.SoftDeleted {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].TripDate.Equal(candidates[j].TripDate) {
			return candidates[i].TripDate.After(candidates[j].TripDate)
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates, nil
}

// Best returns the winning record for the truck, rehydrated and ready
// to mutate, or (nil, nil) when the truck has no matchable record.
func (m *Matcher) Best(ctx context.Context, truck fuel.TruckNumber) (*fuel.Record, error) {
	candidates, err := m.Candidates(ctx, truck)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	rec, err := fuel.RecordFromData(candidates[0])
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate record %s: %w", candidates[0].ID, err)
	}
	return rec, nil
}

// VerifyManualTarget checks that a record an operator picked by hand is
// linkable: it must exist and must not be cancelled or soft-deleted.
// The cancelled case gets the structured error whose message names the
// cancellation, so the operator sees exactly why the link was refused.
func (m *Matcher) VerifyManualTarget(ctx context.Context, recordID fuel.RecordID) (*fuel.Record, error) {
	d, err := m.Store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if d.SoftDeleted {
		return nil, fmt.Errorf("record %s: %w", recordID, fuel.ErrRecordNotFound)
	}
	if d.Cancelled != nil {
		return nil, &fuel.CancelledTargetError{
			RecordID:    d.ID,
			GoingDO:     d.GoingDO,
			TruckNumber: d.TruckNumber,
			Reason:      d.Cancelled.Reason,
		}
	}
	rec, err := fuel.RecordFromData(d)
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate record %s: %w", d.ID, err)
	}
	return rec, nil
}
