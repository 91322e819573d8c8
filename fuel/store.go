/*
store.go - Persistence interface for journey records and dispense events

PURPOSE:
  Defines the boundary between the engine and the database. The core
  stays persistence-mechanics-agnostic: records cross this boundary as
  RecordData documents, events as deep-copied Event values, and
  implementations may back them with SQLite, another document store, or
  memory.

CONCURRENCY CONTRACT:
  Every document carries a Version. Update operations are
  compare-and-swap: the implementation matches the incoming Version
  against the stored row, writes with Version+1 on success, and returns
  ErrConcurrentModification when another writer got there first. The
  returned document is the freshly stored copy (bumped version), so the
  caller never continues with a stale one.

UNIQUENESS:
  The going DO number is unique across all records, soft-deleted
  included. CreateRecord returns ErrDuplicateDO on collision.

ORDERING:
  List operations return a deterministic order (creation time
  descending, ID as tiebreak) but make no further promises; callers
  that need ranking sort for themselves.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite document store
  - fuel/store (memory): In-memory store for tests and development

SEE ALSO:
  - record.go: RecordData rehydration form
  - event.go: Event.Clone used by implementations
  - errors.go: ErrConcurrentModification, ErrDuplicateDO, not-found errors
*/
package fuel

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// RecordFilter narrows ListRecords. Zero value lists every live record.
type RecordFilter struct {
	Truck          TruckNumber // "" = all trucks
	LockedOnly     bool        // only records waiting for configuration
	IncludeDeleted bool        // include soft-deleted rows
}

// EventFilter narrows ListEvents. Zero value lists everything.
type EventFilter struct {
	Truck    TruckNumber // "" = all trucks
	Status   EventStatus // "" = all statuses
	RecordID RecordID    // "" = any linkage
}

// =============================================================================
// STORES
// =============================================================================

type RecordStore interface {
	// CreateRecord persists a new record. Returns ErrDuplicateDO when the
	// going DO number is already taken.
	CreateRecord(ctx context.Context, d RecordData) error

	// GetRecord returns the record regardless of soft-delete state;
	// ErrRecordNotFound when no such row exists.
	GetRecord(ctx context.Context, id RecordID) (RecordData, error)

	// GetRecordByGoingDO looks a record up by its unique going DO.
	GetRecordByGoingDO(ctx context.Context, goingDO string) (RecordData, error)

	// UpdateRecord writes the document if d.Version matches the stored
	// row, bumping the version. Returns the stored copy, or
	// ErrConcurrentModification on a version mismatch.
	UpdateRecord(ctx context.Context, d RecordData) (RecordData, error)

	// ListRecords returns records matching the filter. Soft-deleted rows
	// are excluded unless the filter asks for them.
	ListRecords(ctx context.Context, f RecordFilter) ([]RecordData, error)
}

type EventStore interface {
	// CreateEvent persists a new dispense event.
	CreateEvent(ctx context.Context, e *Event) error

	// GetEvent returns the event or ErrEventNotFound.
	GetEvent(ctx context.Context, id EventID) (*Event, error)

	// UpdateEvent writes the event if e.Version matches the stored row,
	// bumping the version. Returns the stored copy, or
	// ErrConcurrentModification on a version mismatch.
	UpdateEvent(ctx context.Context, e *Event) (*Event, error)

	// ListEvents returns events matching the filter.
	ListEvents(ctx context.Context, f EventFilter) ([]*Event, error)
}

// Store is the full persistence surface the engine runs against.
type Store interface {
	RecordStore
	EventStore
}
