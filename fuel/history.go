/*
history.go - Append-only dispense event history

PURPOSE:
  Every lifecycle transition of a dispense event appends exactly one
  history entry. Entries are never edited or removed; the trail is the
  audit record operators rely on when a pump reading is disputed.

TAGGED DETAILS:
  Each action carries its own typed details payload instead of a
  free-form string map. The JSON codec writes the payload under
  "details" and picks the concrete type back by action on read, so the
  union survives the round trip through the document store unchanged.

ACTIONS:
  created, updated, rejected, re-entered, linked

SEE ALSO:
  - event.go: Appends entries on every transition
  - ../store/sqlite/sqlite.go: Persists the trail as a JSON column
*/
package fuel

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// ACTIONS
// =============================================================================

type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistoryUpdated   HistoryAction = "updated"
	HistoryRejected  HistoryAction = "rejected"
	HistoryReentered HistoryAction = "re-entered"
	HistoryLinked    HistoryAction = "linked"
)

// =============================================================================
// DETAILS - One payload type per action
// =============================================================================

// HistoryDetails is the closed union of per-action payloads. The
// unexported method keeps the union closed to this package.
type HistoryDetails interface {
	historyAction() HistoryAction
}

// CreatedDetails records the original pump reading.
type CreatedDetails struct {
	Yard   Yard   `json:"yard"`
	Liters Liters `json:"liters"`
}

// UpdatedDetails records a field change outside the normal lifecycle,
// such as unlinking when the journey record is cancelled.
type UpdatedDetails struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Note  string `json:"note,omitempty"`
}

// RejectedDetails records why the event was rejected and what was
// reversed on the journey record.
type RejectedDetails struct {
	Reason         string      `json:"reason"`
	PreviousStatus EventStatus `json:"previousStatus"`
	RecordID       RecordID    `json:"recordId,omitempty"`
	ReversedLiters Liters      `json:"reversedLiters"`
}

// ReenteredDetails records the rejection the event is recovering from.
type ReenteredDetails struct {
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// LinkedDetails records which journey record the event was attached to
// and through which path.
type LinkedDetails struct {
	RecordID   RecordID `json:"recordId"`
	GoingDO    string   `json:"goingDo"`
	AutoLinked bool     `json:"autoLinked"`
	Via        string   `json:"via"` // "matcher", "manual", "sweep", "record-created"
}

func (CreatedDetails) historyAction() HistoryAction   { return HistoryCreated }
func (UpdatedDetails) historyAction() HistoryAction   { return HistoryUpdated }
func (RejectedDetails) historyAction() HistoryAction  { return HistoryRejected }
func (ReenteredDetails) historyAction() HistoryAction { return HistoryReentered }
func (LinkedDetails) historyAction() HistoryAction    { return HistoryLinked }

// =============================================================================
// ENTRY + JSON CODEC
// =============================================================================

type HistoryEntry struct {
	Action  HistoryAction
	Actor   string
	At      time.Time
	Details HistoryDetails
}

type historyEntryJSON struct {
	Action  HistoryAction   `json:"action"`
	Actor   string          `json:"actor"`
	At      time.Time       `json:"at"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	out := historyEntryJSON{Action: e.Action, Actor: e.Actor, At: e.At}
	if e.Details != nil {
		if e.Details.historyAction() != e.Action {
			return nil, fmt.Errorf("history entry %s: details payload belongs to %s",
				e.Action, e.Details.historyAction())
		}
		b, err := json.Marshal(e.Details)
		if err != nil {
			return nil, err
		}
		out.Details = b
	}
	return json.Marshal(out)
}

func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw historyEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Action = raw.Action
	e.Actor = raw.Actor
	e.At = raw.At
	e.Details = nil
	if len(raw.Details) == 0 || string(raw.Details) == "null" {
		return nil
	}

	switch raw.Action {
	case HistoryCreated:
		var d CreatedDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		e.Details = d
	case HistoryUpdated:
		var d UpdatedDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		e.Details = d
	case HistoryRejected:
		var d RejectedDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		e.Details = d
	case HistoryReentered:
		var d ReenteredDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		e.Details = d
	case HistoryLinked:
		var d LinkedDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		e.Details = d
	default:
		return fmt.Errorf("history action %q: unknown details payload", raw.Action)
	}
	return nil
}
