// Package db persists telemetry events and raw fixes in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/route"
)

type DB struct {
	*sql.DB
	writeMu sync.Mutex
}

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(time.Hour)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			monitoring.Logf("db: failed to set %s: %v", pragma, err)
		}
	}
	return &DB{DB: conn}, nil
}

// NewDB opens the database at path and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RecordFix stores a raw fix for session.
func (db *DB) RecordFix(sessionID string, f route.Fix) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	_, err := db.Exec(
		`INSERT INTO fixes (session_id, time_unix_nano, latitude, longitude, bearing, speed, accuracy, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, f.Time.UnixNano(), f.Latitude, f.Longitude,
		nullFloat(f.Bearing), f.Speed, f.Accuracy, f.Provider,
	)
	if err != nil {
		return fmt.Errorf("failed to record fix: %w", err)
	}
	return nil
}

// Fixes returns the fixes stored for session in time order.
func (db *DB) Fixes(sessionID string) ([]route.Fix, error) {
	rows, err := db.Query(
		`SELECT time_unix_nano, latitude, longitude, bearing, speed, accuracy, provider
		FROM fixes WHERE session_id = ? ORDER BY time_unix_nano`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fixes: %w", err)
	}
	defer rows.Close()

	var out []route.Fix
	for rows.Next() {
		var (
			ts                       int64
			f                        route.Fix
			bearing, speed, accuracy sql.NullFloat64
			provider                 sql.NullString
		)
		if err := rows.Scan(&ts, &f.Latitude, &f.Longitude, &bearing, &speed, &accuracy, &provider); err != nil {
			return nil, fmt.Errorf("failed to scan fix: %w", err)
		}
		f.Time = time.Unix(0, ts).UTC()
		f.Bearing = bearing.Float64
		f.Speed = speed.Float64
		f.Accuracy = accuracy.Float64
		f.Provider = provider.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
