// Package store manages all SQLite persistence for airlock.
//
// The database holds the station (rooms and blocks, with each block's
// mutable state as a JSON document) and the append-only event journal. A
// CLI run loads the station, drives the simulated plant, and writes the
// block states back; cycles in flight are never stored.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daviddao/airlock/pkg/model"

	_ "modernc.org/sqlite"
)

// ErrNoStation is returned by LoadStation when no layout was imported.
var ErrNoStation = errors.New("no station in database, run `airlock init --layout FILE`")

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention runs fn under the default retry policy. Every write goes
// through it.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

// inTx runs fn in a transaction, retrying the whole transaction on
// contention.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id     TEXT PRIMARY KEY,
		pos    INTEGER NOT NULL,
		oxygen REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS blocks (
		handle   INTEGER PRIMARY KEY,
		pos      INTEGER NOT NULL,
		name     TEXT NOT NULL,
		kind     TEXT NOT NULL,
		room     TEXT,
		leads_to TEXT,
		attached INTEGER NOT NULL DEFAULT 1,
		state    TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_pos ON blocks(pos);

	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id   TEXT,
		airlock    TEXT,
		kind       TEXT NOT NULL,
		phase      TEXT,
		tick       INTEGER NOT NULL,
		body       TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_cycle ON events(cycle_id, tick);
	CREATE INDEX IF NOT EXISTS idx_events_airlock ON events(airlock, tick);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Station
// ---------------------------------------------------------------------------

// ReplaceStation drops the stored station and writes st in its place. The
// journal is kept. Blocks must carry their handles.
func (s *Store) ReplaceStation(st model.Station) error {
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM blocks`); err != nil {
			return fmt.Errorf("clear blocks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM rooms`); err != nil {
			return fmt.Errorf("clear rooms: %w", err)
		}
		for i, r := range st.Rooms {
			if _, err := tx.Exec(`INSERT INTO rooms (id, pos, oxygen) VALUES (?, ?, ?)`,
				r.ID, i, r.Oxygen); err != nil {
				return fmt.Errorf("insert room %s: %w", r.ID, err)
			}
		}
		for i, b := range st.Blocks {
			if b.Handle == 0 {
				return fmt.Errorf("insert block %q: missing handle", b.Name)
			}
			state, err := json.Marshal(b.State)
			if err != nil {
				return fmt.Errorf("encode state of %q: %w", b.Name, err)
			}
			if _, err := tx.Exec(
				`INSERT INTO blocks (handle, pos, name, kind, room, leads_to, attached, state)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				int64(b.Handle), i, b.Name, b.Kind, b.Room, b.LeadsTo, boolToInt(b.Attached), string(state),
			); err != nil {
				return fmt.Errorf("insert block %q: %w", b.Name, err)
			}
		}
		return nil
	})
}

// LoadStation reads the stored station in import order. It returns
// ErrNoStation when the database holds no blocks.
func (s *Store) LoadStation() (model.Station, error) {
	var st model.Station

	rows, err := s.db.Query(`SELECT id, oxygen FROM rooms ORDER BY pos ASC`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var r model.Room
		if err := rows.Scan(&r.ID, &r.Oxygen); err != nil {
			rows.Close()
			return st, err
		}
		st.Rooms = append(st.Rooms, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = s.db.Query(
		`SELECT handle, name, kind, COALESCE(room,''), COALESCE(leads_to,''), attached, state
		 FROM blocks ORDER BY pos ASC`,
	)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var b model.Block
		var handle int64
		var attached int
		var state string
		if err := rows.Scan(&handle, &b.Name, &b.Kind, &b.Room, &b.LeadsTo, &attached, &state); err != nil {
			return st, err
		}
		b.Handle = uint64(handle)
		b.Attached = attached != 0
		if err := json.Unmarshal([]byte(state), &b.State); err != nil {
			return st, fmt.Errorf("decode state of block %d: %w", handle, err)
		}
		st.Blocks = append(st.Blocks, b)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	if len(st.Blocks) == 0 {
		return st, ErrNoStation
	}
	return st, nil
}

// SaveStates writes back the mutable part of st: room oxygen, block state
// and attachment. Rows are matched by room id and block handle; records
// unknown to the database are ignored.
func (s *Store) SaveStates(st model.Station) error {
	return s.inTx(func(tx *sql.Tx) error {
		for _, r := range st.Rooms {
			if _, err := tx.Exec(`UPDATE rooms SET oxygen = ? WHERE id = ?`, r.Oxygen, r.ID); err != nil {
				return fmt.Errorf("update room %s: %w", r.ID, err)
			}
		}
		for _, b := range st.Blocks {
			state, err := json.Marshal(b.State)
			if err != nil {
				return fmt.Errorf("encode state of %q: %w", b.Name, err)
			}
			if _, err := tx.Exec(`UPDATE blocks SET attached = ?, state = ? WHERE handle = ?`,
				boolToInt(b.Attached), string(state), int64(b.Handle)); err != nil {
				return fmt.Errorf("update block %d: %w", b.Handle, err)
			}
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// InsertEvent appends an event to the journal. Returns the row ID.
func (s *Store) InsertEvent(e *model.Event) (int64, error) {
	if !e.Kind.Valid() {
		return 0, fmt.Errorf("insert event: unknown kind %q", e.Kind)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var lastID int64
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`INSERT INTO events (cycle_id, airlock, kind, phase, tick, body, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.CycleID, e.Airlock, string(e.Kind), e.Phase, e.Tick, e.Body,
			e.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		lastID, err = res.LastInsertId()
		return err
	})
	e.ID = lastID
	return lastID, err
}

const eventColumns = `id, COALESCE(cycle_id,''), COALESCE(airlock,''), kind,
		        COALESCE(phase,''), tick, COALESCE(body,''), created_at`

// ListEvents returns events with tick >= sinceTick in journal order.
func (s *Store) ListEvents(sinceTick int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+eventColumns+`
		 FROM events WHERE tick >= ?
		 ORDER BY tick ASC, id ASC LIMIT ?`,
		sinceTick, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsForCycle returns every event of one cycle in journal order.
func (s *Store) ListEventsForCycle(cycleID string) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventColumns+`
		 FROM events WHERE cycle_id = ?
		 ORDER BY tick ASC, id ASC`,
		cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountEvents returns the total number of events in the journal.
func (s *Store) CountEvents() int64 {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// MaxTick returns the highest journaled tick, or 0 if the journal is empty.
// The scheduler clock resumes from it so ticks stay monotonic across runs.
func (s *Store) MaxTick() int64 {
	var tick int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(tick), 0) FROM events`).Scan(&tick); err != nil {
		return 0
	}
	return tick
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var kindStr, createdStr string
		if err := rows.Scan(&e.ID, &e.CycleID, &e.Airlock, &kindStr, &e.Phase, &e.Tick,
			&e.Body, &createdStr); err != nil {
			return nil, err
		}
		e.Kind = model.EventKind(kindStr)
		var parseErr error
		e.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse created_at time for event %d: %w", e.ID, parseErr)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
