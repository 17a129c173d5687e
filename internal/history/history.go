// Package history keeps a local SQLite log of unit state changes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/AfterAILab/flaps-esp/internal/device"
)

const schema = `
CREATE TABLE IF NOT EXISTS unit_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at INTEGER NOT NULL,
	address INTEGER NOT NULL,
	has_address INTEGER NOT NULL,
	position INTEGER NOT NULL,
	unit_offset INTEGER NOT NULL,
	mark INTEGER,
	rotating INTEGER NOT NULL,
	response_age_ms INTEGER NOT NULL,
	gateway_clock_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_unit_samples_address ON unit_samples(address, recorded_at);
CREATE INDEX IF NOT EXISTS idx_unit_samples_recorded_at ON unit_samples(recorded_at);
`

// Sample is one recorded unit state.
type Sample struct {
	RecordedAt         time.Time
	Address            int
	HasAddress         bool
	Position           int
	Offset             int
	CalibrationMark    *int
	Rotating           bool
	ResponseAgeMillis  int64
	GatewayClockMillis int64
}

type fingerprint struct {
	offset   int
	mark     int
	hasMark  bool
	rotating bool
}

// Recorder appends a sample whenever a unit's offset, mark or motion changes.
type Recorder struct {
	db  *sql.DB
	now func() time.Time

	mu   sync.Mutex
	last map[device.UnitKey]fingerprint
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// single connection serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Recorder{db: db, now: time.Now, last: make(map[device.UnitKey]fingerprint)}, nil
}

// Record stores the units of snap that changed since the last call.
func (r *Recorder) Record(ctx context.Context, snap device.DeviceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now().UnixMilli()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_samples (recorded_at, address, has_address, position, unit_offset, mark, rotating, response_age_ms, gateway_clock_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	changed := make(map[device.UnitKey]fingerprint)
	for i, u := range snap.Units {
		key := device.IdentityAddress.Key(u, i)
		fp := fingerprint{offset: u.Offset, rotating: u.Rotating}
		var mark sql.NullInt64
		if m, ok := u.Mark(); ok {
			fp.mark, fp.hasMark = m, true
			mark = sql.NullInt64{Int64: int64(m), Valid: true}
		}
		if prev, ok := r.last[key]; ok && prev == fp {
			continue
		}
		if _, err := stmt.ExecContext(ctx, at, device.BusAddress(u, i), u.HasAddress, i,
			u.Offset, mark, u.Rotating, u.LastResponseAgeMillis, snap.GatewayClockMillis); err != nil {
			return fmt.Errorf("insert history sample: %w", err)
		}
		changed[key] = fp
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	for k, fp := range changed {
		r.last[k] = fp
	}
	return nil
}

// Recent returns up to limit samples, newest first. A negative address
// returns samples for every unit.
func (r *Recorder) Recent(ctx context.Context, address, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT recorded_at, address, has_address, position, unit_offset, mark, rotating, response_age_ms, gateway_clock_ms
	          FROM unit_samples`
	args := []any{}
	if address >= 0 {
		query += ` WHERE address = ?`
		args = append(args, address)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Sample
	for rows.Next() {
		var (
			s    Sample
			at   int64
			mark sql.NullInt64
		)
		if err := rows.Scan(&at, &s.Address, &s.HasAddress, &s.Position, &s.Offset, &mark,
			&s.Rotating, &s.ResponseAgeMillis, &s.GatewayClockMillis); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		s.RecordedAt = time.UnixMilli(at)
		if mark.Valid {
			m := int(mark.Int64)
			s.CalibrationMark = &m
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes samples recorded before cutoff and returns how many went.
func (r *Recorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM unit_samples WHERE recorded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close checkpoints the WAL and closes the database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	_, _ = r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return r.db.Close()
}
