package store

import (
	"database/sql"
	"time"
)

// EventKind names a journaled transition.
type EventKind string

const (
	EventPunchStart   EventKind = "punch_start"
	EventPunchEnd     EventKind = "punch_end"
	EventIdle         EventKind = "idle"
	EventActive       EventKind = "active"
	EventCameraDenied EventKind = "camera_denied"
	EventModelFailed  EventKind = "model_failed"
)

// Event is one transition recorded during a session.
type Event struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       EventKind `json:"kind"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventRepository provides operations on the events table.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Add inserts e and sets its ID. A zero CreatedAt is set to now.
func (r *EventRepository) Add(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO events (session_id, kind, confidence, created_at) VALUES (?, ?, ?, ?)`,
		e.SessionID, string(e.Kind), e.Confidence, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession retrieves a session's events in the order they happened.
func (r *EventRepository) ListBySession(sessionID string) ([]*Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, confidence, created_at
		 FROM events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CountByKind returns how many events of kind a session recorded.
func (r *EventRepository) CountByKind(sessionID string, kind EventKind) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE session_id = ? AND kind = ?`,
		sessionID, string(kind),
	).Scan(&n)
	return n, err
}
