package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/wayfinder/internal/telemetry"
)

// ErrNotFound is returned when an event id is unknown.
var ErrNotFound = errors.New("not found")

// TelemetryStore is a telemetry.Sink writing events to the database. The
// event payload is kept as protobuf JSON so its shape can grow without
// schema changes.
type TelemetryStore struct {
	db *DB
}

// NewTelemetryStore returns a store writing to db.
func NewTelemetryStore(db *DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// StoredEvent is one row of telemetry_events.
type StoredEvent struct {
	EventID           string
	SessionID         string
	TripID            string
	Kind              telemetry.Kind
	Created           time.Time
	RerouteCount      int
	DistanceTraveled  float64
	DistanceRemaining float64
	Payload           *structpb.Struct
}

// Send stores e. An event id already stored is ignored, so redelivery is
// harmless.
func (s *TelemetryStore) Send(e telemetry.Event) error {
	payload, err := structpb.NewStruct(e.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode %s event %s: %w", e.Kind, e.ID, err)
	}
	raw, err := protojson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event %s: %w", e.Kind, e.ID, err)
	}

	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO telemetry_events (
			event_id, session_id, trip_id, kind, created_unix_nano,
			reroute_count, distance_traveled, distance_remaining, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.ID, e.State.SessionID, e.State.TripID, string(e.Kind), e.Time.UnixNano(),
		e.State.RerouteCount, e.DistanceTraveled, e.DistanceRemaining, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s event %s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// Events returns the events of session in the order they were created. An
// empty session id returns every event.
func (s *TelemetryStore) Events(sessionID string) ([]StoredEvent, error) {
	query := `SELECT event_id, session_id, trip_id, kind, created_unix_nano,
		reroute_count, distance_traveled, distance_remaining, payload
		FROM telemetry_events`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_unix_nano, rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Event returns the event with id.
func (s *TelemetryStore) Event(id string) (StoredEvent, error) {
	row := s.db.QueryRow(`SELECT event_id, session_id, trip_id, kind, created_unix_nano,
		reroute_count, distance_traveled, distance_remaining, payload
		FROM telemetry_events WHERE event_id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredEvent{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return ev, err
}

// DeleteEvent removes the event with id.
func (s *TelemetryStore) DeleteEvent(id string) error {
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()
	res, err := s.db.Exec(`DELETE FROM telemetry_events WHERE event_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// SessionSummary totals one session's events.
type SessionSummary struct {
	SessionID string
	Events    int
	Reroutes  int
	First     time.Time
	Last      time.Time
}

// Sessions summarizes every stored session, most recent first.
func (s *TelemetryStore) Sessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(`SELECT session_id, COUNT(*),
		SUM(CASE WHEN kind = 'reroute' THEN 1 ELSE 0 END),
		MIN(created_unix_nano), MAX(created_unix_nano)
		FROM telemetry_events GROUP BY session_id ORDER BY MAX(created_unix_nano) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum         SessionSummary
			first, last int64
		)
		if err := rows.Scan(&sum.SessionID, &sum.Events, &sum.Reroutes, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.First = time.Unix(0, first).UTC()
		sum.Last = time.Unix(0, last).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (StoredEvent, error) {
	var (
		ev      StoredEvent
		kind    string
		created int64
		raw     string
	)
	err := row.Scan(&ev.EventID, &ev.SessionID, &ev.TripID, &kind, &created,
		&ev.RerouteCount, &ev.DistanceTraveled, &ev.DistanceRemaining, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredEvent{}, err
		}
		return StoredEvent{}, fmt.Errorf("failed to scan event: %w", err)
	}
	ev.Kind = telemetry.Kind(kind)
	ev.Created = time.Unix(0, created).UTC()
	ev.Payload = &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(raw), ev.Payload); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to decode payload of %s: %w", ev.EventID, err)
	}
	return ev, nil
}
