package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// EventLogRepository is the durable side of the propagation bus: an
// append-only log keyed by sequence number. It is the shared channel other
// execution contexts replay from, so Trim must never remove entries newer
// than the oldest subscriber checkpoint (the bus enforces that bound).
type EventLogRepository struct {
	db *sql.DB
}

func NewEventLogRepository(db *sql.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

func (r *EventLogRepository) Append(ev *domain.Event) error {
	detail := ""
	if ev.Detail != nil {
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return err
		}
		detail = string(b)
	}
	query := `INSERT INTO event_log (sequence, kind, workflow_id, execution_id, step_id, occurred, detail)
		VALUES (` + placeholders(7) + `)`
	_, err := r.db.Exec(query, ev.Sequence, string(ev.Kind), ev.WorkflowID, ev.ExecutionID,
		ev.StepID, formatDateInDatabase(ev.Timestamp), detail)
	return err
}

// FindSince returns events with sequence strictly greater than since, oldest
// first.
func (r *EventLogRepository) FindSince(since int64, limit int) ([]domain.Event, error) {
	rows, err := r.db.Query(`SELECT sequence, kind, workflow_id, execution_id, step_id, occurred, detail
		FROM event_log WHERE sequence > `+placeholder(1)+`
		ORDER BY sequence ASC LIMIT `+placeholder(2), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var kind, detail string
		if err := rows.Scan(&ev.Sequence, &kind, &ev.WorkflowID, &ev.ExecutionID,
			&ev.StepID, &ev.Timestamp, &detail); err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		if detail != "" {
			if err := json.Unmarshal([]byte(detail), &ev.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MaxSequence returns the highest persisted sequence, or 0 on an empty log.
func (r *EventLogRepository) MaxSequence() (int64, error) {
	var seq sql.NullInt64
	err := r.db.QueryRow(`SELECT MAX(sequence) FROM event_log`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// TrimBefore deletes entries with sequence strictly below the given bound.
func (r *EventLogRepository) TrimBefore(sequence int64) error {
	_, err := r.db.Exec(`DELETE FROM event_log WHERE sequence < `+placeholder(1), sequence)
	return err
}
