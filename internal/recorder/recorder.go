package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"modsim/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS value_updates (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	at       TEXT    NOT NULL,
	tbl      TEXT    NOT NULL,
	address  INTEGER NOT NULL,
	value    REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_value_updates_addr ON value_updates(tbl, address);
`

// Recorder appends committed tick updates to a SQLite file. Writes go
// through a bounded queue and a single background writer, so the tick path
// never waits on the database.
type Recorder struct {
	db        *sql.DB
	q         chan row
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	dropped int64
}

type row struct {
	at      time.Time
	table   store.Kind
	address uint16
	value   float64
}

// Open creates or opens the history database and starts the writer.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	r := &Recorder{
		db:     db,
		q:      make(chan row, 1024),
		closed: make(chan struct{}),
	}
	go r.writer()
	return r, nil
}

// Record enqueues one update. When the queue is full the update is dropped;
// history is telemetry, the simulation never stalls for it.
func (r *Recorder) Record(at time.Time, table store.Kind, address uint16, value float64) {
	select {
	case r.q <- row{at: at, table: table, address: address, value: value}:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

func (r *Recorder) writer() {
	defer close(r.closed)
	stmt, err := r.db.Prepare(
		"INSERT INTO value_updates (at, tbl, address, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		log.Printf("recorder: prepare: %v", err)
		for range r.q {
		}
		return
	}
	defer stmt.Close()
	for u := range r.q {
		if _, err := stmt.Exec(
			u.at.UTC().Format(time.RFC3339Nano), u.table.String(), u.address, u.value,
		); err != nil {
			log.Printf("recorder: insert: %v", err)
		}
	}
}

// Update is one recorded row, as read back by Dump.
type Update struct {
	At      time.Time
	Table   string
	Address uint16
	Value   float64
}

// Dump reads the full history from a recorder database in insertion order.
func Dump(path string) ([]Update, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT at, tbl, address, value FROM value_updates ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var out []Update
	for rows.Next() {
		var u Update
		var at string
		if err := rows.Scan(&at, &u.Table, &u.Address, &u.Value); err != nil {
			return nil, err
		}
		if u.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", at, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Close drains the queue, stops the writer, and closes the database.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.q)
	})
	<-r.closed
	r.mu.Lock()
	dropped := r.dropped
	r.mu.Unlock()
	if dropped > 0 {
		log.Printf("recorder: dropped %d update(s) under backpressure", dropped)
	}
	return r.db.Close()
}
