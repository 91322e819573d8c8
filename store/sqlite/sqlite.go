/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements fuel.Store (records + events) on SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  fuel_records:    One row per journey record. The checkpoint slots
                   travel as a JSON column; slot math happens in the
                   domain, never in SQL, so a row is always written
                   whole with its balance.
  dispense_events: One row per dispense event with its append-only
                   history as JSON.

OPTIMISTIC CONCURRENCY:
  Updates are compare-and-swap on the version column:

    UPDATE ... SET version = version + 1 WHERE id = ? AND version = ?

  Zero rows affected with the row present means another writer won the
  race; callers get fuel.ErrConcurrentModification and decide whether
  to retry.

UNIQUENESS:
  going_do carries a UNIQUE constraint: one journey record per going
  delivery order. Violations surface as fuel.ErrDuplicateDO.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time,
  better crash recovery.

USAGE:
  store, err := sqlite.New("./fuel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store, cfg, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fuel/store.go: Interface definitions and contracts
  - fuel/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// Store implements fuel.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Journey records (one per truck trip, keyed by going DO)
	CREATE TABLE IF NOT EXISTS fuel_records (
		id TEXT PRIMARY KEY,
		truck_number TEXT NOT NULL,
		going_do TEXT NOT NULL UNIQUE,
		return_do TEXT,
		destination TEXT NOT NULL,
		trip_date TEXT NOT NULL,
		month_tag TEXT NOT NULL,
		total_liters TEXT NOT NULL,
		extra_liters TEXT NOT NULL,
		slots_json TEXT NOT NULL,
		balance TEXT NOT NULL,
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		pending_config_reason TEXT,
		cancel_reason TEXT,
		cancel_actor TEXT,
		cancelled_at TEXT,
		soft_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	-- Matching scans by truck, newest trip first (hot path)
	CREATE INDEX IF NOT EXISTS idx_records_truck_trip
		ON fuel_records(truck_number, trip_date DESC, created_at DESC);

	-- Locked-record listings for the back office
	CREATE INDEX IF NOT EXISTS idx_records_locked
		ON fuel_records(locked) WHERE locked = TRUE;

	CREATE INDEX IF NOT EXISTS idx_records_month
		ON fuel_records(month_tag);

	-- Dispense events with their full history
	CREATE TABLE IF NOT EXISTS dispense_events (
		id TEXT PRIMARY KEY,
		truck_number TEXT NOT NULL,
		raw_truck TEXT NOT NULL,
		yard TEXT NOT NULL,
		event_date TEXT NOT NULL,
		liters TEXT NOT NULL,
		entered_by TEXT,
		notes TEXT,
		status TEXT NOT NULL,
		record_id TEXT,
		going_do TEXT,
		auto_linked BOOLEAN NOT NULL DEFAULT FALSE,
		rejection_json TEXT,
		history_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	-- Pending sweeps list by truck + status (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_truck_status
		ON dispense_events(truck_number, status);

	-- Record cancellation walks its linked events
	CREATE INDEX IF NOT EXISTS idx_events_record
		ON dispense_events(record_id) WHERE record_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_events_created
		ON dispense_events(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (fuel.RecordStore interface)
// =============================================================================

const recordColumns = `id, truck_number, going_do, return_do, destination, trip_date, month_tag,
	total_liters, extra_liters, slots_json, balance, locked, pending_config_reason,
	cancel_reason, cancel_actor, cancelled_at, soft_deleted, created_at, updated_at, version`

// CreateRecord inserts a new journey record. A going DO that already
// has a record is rejected with fuel.ErrDuplicateDO.
func (s *Store) CreateRecord(ctx context.Context, d fuel.RecordData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slotsJSON, err := json.Marshal(d.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	query := `
		INSERT INTO fuel_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var cancelReason, cancelActor, cancelledAt sql.NullString
	if d.Cancelled != nil {
		cancelReason = sql.NullString{String: d.Cancelled.Reason, Valid: true}
		cancelActor = sql.NullString{String: d.Cancelled.Actor, Valid: true}
		cancelledAt = sql.NullString{String: d.Cancelled.At.Format(time.RFC3339Nano), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query,
		d.ID,
		d.TruckNumber.String(),
		d.GoingDO,
		nullString(d.ReturnDO),
		d.Destination,
		d.TripDate.Format(time.RFC3339Nano),
		d.MonthTag,
		d.TotalLiters.String(),
		d.ExtraLiters.String(),
		string(slotsJSON),
		d.Balance.String(),
		d.Locked,
		nullString(string(d.PendingConfigReason)),
		cancelReason,
		cancelActor,
		cancelledAt,
		d.SoftDeleted,
		d.CreatedAt.Format(time.RFC3339Nano),
		d.UpdatedAt.Format(time.RFC3339Nano),
		d.Version,
	)

	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "going_do") {
			return fmt.Errorf("going DO %q: %w", d.GoingDO, fuel.ErrDuplicateDO)
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// GetRecord returns the record by ID, soft-deleted rows included.
func (s *Store) GetRecord(ctx context.Context, id fuel.RecordID) (fuel.RecordData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM fuel_records WHERE id = ?`, id)
	d, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return fuel.RecordData{}, fmt.Errorf("record %s: %w", id, fuel.ErrRecordNotFound)
	}
	return d, err
}

// GetRecordByGoingDO returns the record keyed by its going DO.
func (s *Store) GetRecordByGoingDO(ctx context.Context, goingDO string) (fuel.RecordData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM fuel_records WHERE going_do = ?`, goingDO)
	d, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return fuel.RecordData{}, fmt.Errorf("going DO %q: %w", goingDO, fuel.ErrRecordNotFound)
	}
	return d, err
}

// UpdateRecord writes the whole document through the version CAS and
// returns the stored copy with the bumped version.
func (s *Store) UpdateRecord(ctx context.Context, d fuel.RecordData) (fuel.RecordData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slotsJSON, err := json.Marshal(d.Slots)
	if err != nil {
		return fuel.RecordData{}, fmt.Errorf("failed to marshal slots: %w", err)
	}

	query := `
		UPDATE fuel_records SET
			truck_number = ?, going_do = ?, return_do = ?, destination = ?,
			trip_date = ?, month_tag = ?, total_liters = ?, extra_liters = ?,
			slots_json = ?, balance = ?, locked = ?, pending_config_reason = ?,
			cancel_reason = ?, cancel_actor = ?, cancelled_at = ?,
			soft_deleted = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?
	`

	var cancelReason, cancelActor, cancelledAt sql.NullString
	if d.Cancelled != nil {
		cancelReason = sql.NullString{String: d.Cancelled.Reason, Valid: true}
		cancelActor = sql.NullString{String: d.Cancelled.Actor, Valid: true}
		cancelledAt = sql.NullString{String: d.Cancelled.At.Format(time.RFC3339Nano), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query,
		d.TruckNumber.String(),
		d.GoingDO,
		nullString(d.ReturnDO),
		d.Destination,
		d.TripDate.Format(time.RFC3339Nano),
		d.MonthTag,
		d.TotalLiters.String(),
		d.ExtraLiters.String(),
		string(slotsJSON),
		d.Balance.String(),
		d.Locked,
		nullString(string(d.PendingConfigReason)),
		cancelReason,
		cancelActor,
		cancelledAt,
		d.SoftDeleted,
		d.UpdatedAt.Format(time.RFC3339Nano),
		d.Version+1,
		d.ID,
		d.Version,
	)
	if err != nil {
		return fuel.RecordData{}, fmt.Errorf("failed to update record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fuel.RecordData{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Row missing or version mismatch; one more read to tell apart.
		var stored int64
		err := s.db.QueryRowContext(ctx,
			"SELECT version FROM fuel_records WHERE id = ?", d.ID).Scan(&stored)
		if err == sql.ErrNoRows {
			return fuel.RecordData{}, fmt.Errorf("record %s: %w", d.ID, fuel.ErrRecordNotFound)
		}
		if err != nil {
			return fuel.RecordData{}, err
		}
		return fuel.RecordData{}, fmt.Errorf("record %s (version %d, stored %d): %w",
			d.ID, d.Version, stored, fuel.ErrConcurrentModification)
	}

	out := d
	out.Version = d.Version + 1
	return out, nil
}

// ListRecords returns records matching the filter, newest first.
// Soft-deleted rows are excluded unless the filter asks for them.
func (s *Store) ListRecords(ctx context.Context, f fuel.RecordFilter) ([]fuel.RecordData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + recordColumns + ` FROM fuel_records WHERE 1=1`
	var args []any
	if !f.IncludeDeleted {
		query += ` AND soft_deleted = FALSE`
	}
	if f.Truck != "" {
		query += ` AND truck_number = ?`
		args = append(args, f.Truck.String())
	}
	if f.LockedOnly {
		query += ` AND locked = TRUE`
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []fuel.RecordData
	for rows.Next() {
		d, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (fuel.RecordData, error) {
	var (
		d            fuel.RecordData
		truck        string
		returnDO     sql.NullString
		tripDate     string
		totalLiters  string
		extraLiters  string
		slotsJSON    string
		balance      string
		pendingCfg   sql.NullString
		cancelReason sql.NullString
		cancelActor  sql.NullString
		cancelledAt  sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&d.ID, &truck, &d.GoingDO, &returnDO, &d.Destination, &tripDate, &d.MonthTag,
		&totalLiters, &extraLiters, &slotsJSON, &balance, &d.Locked, &pendingCfg,
		&cancelReason, &cancelActor, &cancelledAt, &d.SoftDeleted,
		&createdAt, &updatedAt, &d.Version,
	)
	if err == sql.ErrNoRows {
		return d, err
	}
	if err != nil {
		return d, fmt.Errorf("failed to scan record: %w", err)
	}

	d.TruckNumber = fuel.TruckNumber(truck)
	d.ReturnDO = returnDO.String
	d.PendingConfigReason = fuel.PendingConfigReason(pendingCfg.String)
	d.TripDate, _ = time.Parse(time.RFC3339Nano, tripDate)
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	d.TotalLiters = fuel.MustParseLiters(totalLiters)
	d.ExtraLiters = fuel.MustParseLiters(extraLiters)
	d.Balance = fuel.MustParseLiters(balance)

	if err := json.Unmarshal([]byte(slotsJSON), &d.Slots); err != nil {
		return d, fmt.Errorf("record %s: failed to unmarshal slots: %w", d.ID, err)
	}

	if cancelledAt.Valid {
		at, _ := time.Parse(time.RFC3339Nano, cancelledAt.String)
		d.Cancelled = &fuel.Cancellation{
			Reason: cancelReason.String,
			Actor:  cancelActor.String,
			At:     at,
		}
	}

	return d, nil
}

// =============================================================================
// EVENT STORE (fuel.EventStore interface)
// =============================================================================

const eventColumns = `id, truck_number, raw_truck, yard, event_date, liters, entered_by, notes,
	status, record_id, going_do, auto_linked, rejection_json, history_json,
	created_at, updated_at, version`

// CreateEvent inserts a new dispense event.
func (s *Store) CreateEvent(ctx context.Context, e *fuel.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	historyJSON, rejectionJSON, err := marshalEventJSON(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dispense_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.TruckNumber.String(),
		e.RawTruck,
		string(e.Yard),
		e.EventDate.Format(time.RFC3339Nano),
		e.Liters.String(),
		e.EnteredBy,
		e.Notes,
		string(e.Status),
		nullString(string(e.RecordID)),
		nullString(e.GoingDO),
		e.AutoLinked,
		rejectionJSON,
		historyJSON,
		e.CreatedAt.Format(time.RFC3339Nano),
		e.UpdatedAt.Format(time.RFC3339Nano),
		e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent returns the event by ID.
func (s *Store) GetEvent(ctx context.Context, id fuel.EventID) (*fuel.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM dispense_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", id, fuel.ErrEventNotFound)
	}
	return e, err
}

// UpdateEvent writes the whole event through the version CAS and
// returns the stored copy with the bumped version.
func (s *Store) UpdateEvent(ctx context.Context, e *fuel.Event) (*fuel.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	historyJSON, rejectionJSON, err := marshalEventJSON(e)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE dispense_events SET
			truck_number = ?, raw_truck = ?, yard = ?, event_date = ?, liters = ?,
			entered_by = ?, notes = ?, status = ?, record_id = ?, going_do = ?,
			auto_linked = ?, rejection_json = ?, history_json = ?,
			updated_at = ?, version = ?
		WHERE id = ? AND version = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		e.TruckNumber.String(),
		e.RawTruck,
		string(e.Yard),
		e.EventDate.Format(time.RFC3339Nano),
		e.Liters.String(),
		e.EnteredBy,
		e.Notes,
		string(e.Status),
		nullString(string(e.RecordID)),
		nullString(e.GoingDO),
		e.AutoLinked,
		rejectionJSON,
		historyJSON,
		e.UpdatedAt.Format(time.RFC3339Nano),
		e.Version+1,
		e.ID,
		e.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var stored int64
		err := s.db.QueryRowContext(ctx,
			"SELECT version FROM dispense_events WHERE id = ?", e.ID).Scan(&stored)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("event %s: %w", e.ID, fuel.ErrEventNotFound)
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("event %s (version %d, stored %d): %w",
			e.ID, e.Version, stored, fuel.ErrConcurrentModification)
	}

	out := e.Clone()
	out.Version = e.Version + 1
	return out, nil
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, f fuel.EventFilter) ([]*fuel.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + eventColumns + ` FROM dispense_events WHERE 1=1`
	var args []any
	if f.Truck != "" {
		query += ` AND truck_number = ?`
		args = append(args, f.Truck.String())
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.RecordID != "" {
		query += ` AND record_id = ?`
		args = append(args, string(f.RecordID))
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*fuel.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalEventJSON(e *fuel.Event) (history string, rejection sql.NullString, err error) {
	h, err := json.Marshal(e.History)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to marshal history: %w", err)
	}
	if e.Rejection != nil {
		r, err := json.Marshal(e.Rejection)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("failed to marshal rejection: %w", err)
		}
		rejection = sql.NullString{String: string(r), Valid: true}
	}
	return string(h), rejection, nil
}

func scanEvent(row rowScanner) (*fuel.Event, error) {
	var (
		e             fuel.Event
		truck         string
		yard          string
		eventDate     string
		liters        string
		status        string
		recordID      sql.NullString
		goingDO       sql.NullString
		rejectionJSON sql.NullString
		historyJSON   string
		createdAt     string
		updatedAt     string
	)

	err := row.Scan(
		&e.ID, &truck, &e.RawTruck, &yard, &eventDate, &liters, &e.EnteredBy, &e.Notes,
		&status, &recordID, &goingDO, &e.AutoLinked, &rejectionJSON, &historyJSON,
		&createdAt, &updatedAt, &e.Version,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	e.TruckNumber = fuel.TruckNumber(truck)
	e.Yard = fuel.Yard(yard)
	e.Status = fuel.EventStatus(status)
	e.RecordID = fuel.RecordID(recordID.String)
	e.GoingDO = goingDO.String
	e.EventDate, _ = time.Parse(time.RFC3339Nano, eventDate)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	e.Liters = fuel.MustParseLiters(liters)

	// History is load-bearing (rejection reasons, reversal amounts); a
	// row that cannot round-trip is a hard error, not a silent skip.
	if err := json.Unmarshal([]byte(historyJSON), &e.History); err != nil {
		return nil, fmt.Errorf("event %s: failed to unmarshal history: %w", e.ID, err)
	}
	if rejectionJSON.Valid {
		var rej fuel.Rejection
		if err := json.Unmarshal([]byte(rejectionJSON.String), &rej); err != nil {
			return nil, fmt.Errorf("event %s: failed to unmarshal rejection: %w", e.ID, err)
		}
		e.Rejection = &rej
	}

	return &e, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"dispense_events", "fuel_records"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
