// Package ephemeris records computed sky positions to SQLite so a run can be
// queried after the fact.
package ephemeris

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNonFiniteFrame is returned by Record for frames with NaN or infinite
// values; SQLite would store them as NULL.
var ErrNonFiniteFrame = errors.New("frame has non-finite values")

const schema = `CREATE TABLE IF NOT EXISTS positions (
	time_value      REAL NOT NULL,
	body_id         TEXT NOT NULL,
	right_ascension REAL NOT NULL,
	declination     REAL NOT NULL,
	distance        REAL NOT NULL,
	hour_angle      REAL NOT NULL,
	zenith_angle    REAL NOT NULL,
	altitude        REAL NOT NULL,
	PRIMARY KEY (time_value, body_id)
)`

// Position is one stored row.
type Position struct {
	TimeValue      float64
	BodyID         string
	RightAscension float64
	Declination    float64
	Distance       float64
	HourAngle      float64
	ZenithAngle    float64
	Altitude       float64
}

// FrameCounter counts recorded frames.
type FrameCounter interface {
	IncEphemerisFrames()
}

type Option func(*Recorder)

func WithLogger(log logging.Logger) Option {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

func WithFrameCounter(c FrameCounter) Option { return func(r *Recorder) { r.counter = c } }

// Recorder writes frames to the positions table.
type Recorder struct {
	db      *sql.DB
	log     logging.Logger
	counter FrameCounter
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string, opts ...Option) (*Recorder, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create positions table: %w", err)
	}
	r := &Recorder{db: db, log: logging.Noop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record stores every body of frame in one transaction. Recording the same
// time value again replaces the earlier rows.
func (r *Recorder) Record(ctx context.Context, frame core.Frame) (retErr error) {
	if !frame.Finite() {
		return ErrNonFiniteFrame
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO positions
		(time_value, body_id, right_ascension, declination, distance, hour_angle, zenith_angle, altitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, b := range frame.Bodies {
		if _, err := stmt.ExecContext(ctx, frame.TimeValue, b.ID, b.RightAscension, b.Declination,
			b.Distance, b.HourAngle, b.ZenithAngle, b.Altitude); err != nil {
			return fmt.Errorf("insert %s at %v: %w", b.ID, frame.TimeValue, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if r.counter != nil {
		r.counter.IncEphemerisFrames()
	}
	r.log.Debug(ctx, "recorded frame", logging.Float64("time_value", frame.TimeValue), logging.Int("bodies", len(frame.Bodies)))
	return nil
}

// Positions returns the rows for bodyID with from <= time_value <= to,
// oldest first.
func (r *Recorder) Positions(ctx context.Context, bodyID string, from, to float64) ([]Position, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT time_value, body_id, right_ascension, declination,
		distance, hour_angle, zenith_angle, altitude
		FROM positions WHERE body_id = ? AND time_value BETWEEN ? AND ?
		ORDER BY time_value`, bodyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.TimeValue, &p.BodyID, &p.RightAscension, &p.Declination,
			&p.Distance, &p.HourAngle, &p.ZenithAngle, &p.Altitude); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Recorder) Close() error { return r.db.Close() }
