// Package store provides the in-memory Store implementation used by
// tests and local development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[fuel.RecordID]fuel.RecordData
	byDO    map[string]fuel.RecordID
	events  map[fuel.EventID]*fuel.Event
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[fuel.RecordID]fuel.RecordData),
		byDO:    make(map[string]fuel.RecordID),
		events:  make(map[fuel.EventID]*fuel.Event),
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) CreateRecord(_ context.Context, d fuel.RecordData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byDO[d.GoingDO]; taken {
		return fmt.Errorf("going DO %q: %w", d.GoingDO, fuel.ErrDuplicateDO)
	}
	if _, exists := m.records[d.ID]; exists {
		return fmt.Errorf("record %s already exists", d.ID)
	}
	m.records[d.ID] = cloneRecordData(d)
	m.byDO[d.GoingDO] = d.ID
	return nil
}

func (m *Memory) GetRecord(_ context.Context, id fuel.RecordID) (fuel.RecordData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.records[id]
	if !ok {
		return fuel.RecordData{}, fmt.Errorf("record %s: %w", id, fuel.ErrRecordNotFound)
	}
	return cloneRecordData(d), nil
}

func (m *Memory) GetRecordByGoingDO(_ context.Context, goingDO string) (fuel.RecordData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byDO[goingDO]
	if !ok {
		return fuel.RecordData{}, fmt.Errorf("going DO %q: %w", goingDO, fuel.ErrRecordNotFound)
	}
	return cloneRecordData(m.records[id]), nil
}

func (m *Memory) UpdateRecord(_ context.Context, d fuel.RecordData) (fuel.RecordData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[d.ID]
	if !ok {
		return fuel.RecordData{}, fmt.Errorf("record %s: %w", d.ID, fuel.ErrRecordNotFound)
	}
	if stored.Version != d.Version {
		return fuel.RecordData{}, fmt.Errorf("record %s (version %d, stored %d): %w",
			d.ID, d.Version, stored.Version, fuel.ErrConcurrentModification)
	}

	next := cloneRecordData(d)
	next.Version = d.Version + 1
	m.records[d.ID] = next
	return cloneRecordData(next), nil
}

func (m *Memory) ListRecords(_ context.Context, f fuel.RecordFilter) ([]fuel.RecordData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fuel.RecordData
	for _, d := range m.records {
		if d.SoftDeleted && !f.IncludeDeleted {
			continue
		}
		if f.Truck != "" && d.TruckNumber != f.Truck {
			continue
		}
		if f.LockedOnly && !d.Locked {
			continue
		}
		out = append(out, cloneRecordData(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (m *Memory) CreateEvent(_ context.Context, e *fuel.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.events[e.ID]; exists {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	m.events[e.ID] = e.Clone()
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id fuel.EventID) (*fuel.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, fuel.ErrEventNotFound)
	}
	return e.Clone(), nil
}

func (m *Memory) UpdateEvent(_ context.Context, e *fuel.Event) (*fuel.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.events[e.ID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", e.ID, fuel.ErrEventNotFound)
	}
	if stored.Version != e.Version {
		return nil, fmt.Errorf("event %s (version %d, stored %d): %w",
			e.ID, e.Version, stored.Version, fuel.ErrConcurrentModification)
	}

	next := e.Clone()
	next.Version = e.Version + 1
	m.events[e.ID] = next
	return next.Clone(), nil
}

func (m *Memory) ListEvents(_ context.Context, f fuel.EventFilter) ([]*fuel.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*fuel.Event
	for _, e := range m.events {
		if f.Truck != "" && e.TruckNumber != f.Truck {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.RecordID != "" && e.RecordID != f.RecordID {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneRecordData(d fuel.RecordData) fuel.RecordData {
	out := d
	out.Slots = make(map[fuel.SlotID]fuel.Liters, len(d.Slots))
	for k, v := range d.Slots {
		out.Slots[k] = v
	}
	if d.Cancelled != nil {
		c := *d.Cancelled
		out.Cancelled = &c
	}
	return out
}
