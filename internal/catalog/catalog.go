package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// BarRecord is one stored bar. Ts is nanoseconds since the Unix epoch, UTC.
type BarRecord struct {
	Ts     int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Store is a SQLite-backed bar catalog keyed by (symbol, interval, ts).
// Ingest writes series into it once; backtests read slices out of it.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids busy errors
	// when several ingest workers flush at once.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`create table if not exists bars (
		symbol   text not null,
		interval text not null,
		ts       integer not null,
		open     real not null,
		high     real not null,
		low      real not null,
		close    real not null,
		volume   real not null default 0,
		primary key (symbol, interval, ts)
	)`)
	if err != nil {
		return fmt.Errorf("ensureSchema: %w", err)
	}
	return nil
}

// WriteBars upserts a batch of bars for one (symbol, interval) series in a
// single transaction. Re-ingesting a file replaces matching timestamps.
func (s *Store) WriteBars(symbol, interval string, bars []BarRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`insert or replace into bars
		(symbol, interval, ts, open, high, low, close, volume)
		values (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.Exec(symbol, interval, b.Ts, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s %s ts %d: %w", symbol, interval, b.Ts, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// QueryBars returns the series slice with startNs <= ts < endNs, ordered by
// timestamp ascending.
func (s *Store) QueryBars(symbol, interval string, startNs, endNs int64) ([]BarRecord, error) {
	rows, err := s.db.Query(`select ts, open, high, low, close, volume from bars
		where symbol = ? and interval = ? and ts >= ? and ts < ?
		order by ts asc`, symbol, interval, startNs, endNs)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", symbol, interval, err)
	}
	defer rows.Close()
	var out []BarRecord
	for rows.Next() {
		var b BarRecord
		if err := rows.Scan(&b.Ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountBars returns the number of stored bars for one series.
func (s *Store) CountBars(symbol, interval string) (int, error) {
	var n int
	err := s.db.QueryRow(`select count(*) from bars where symbol = ? and interval = ?`,
		symbol, interval).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s %s: %w", symbol, interval, err)
	}
	return n, nil
}
