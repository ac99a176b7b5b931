package db

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Journal wraps a pgx pool and persists the decision trail of a session.
// What: Async-safe Postgres writer for runs, decisions, orders and fills.
// How: Initializes a connection pool, ensures tables exist, and inserts from
// short-lived goroutines so the hot path never blocks on the database.
// Params: NewJournal(dsn string) to construct; StartRun assigns the run id
// used by every later write.
// Returns: *Journal with Close() to release resources.
type Journal struct {
	pool  *pgxpool.Pool
	runID string
}

// DecisionRow represents a row in decisions for API responses.
type DecisionRow struct {
	RunID   string          `json:"runId"`
	TS      time.Time       `json:"ts"`
	BarTS   int64           `json:"barTs"`
	Trigger string          `json:"trigger"`
	Action  string          `json:"action"`
	Favored string          `json:"favored"`
	Details json.RawMessage `json:"details,omitempty"`
}

// NewJournal creates a connection pool and ensures tables exist.
func NewJournal(dsn string) (*Journal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	j := &Journal{pool: pool}
	if err := j.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

// Close releases the pool.
func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

// RunID returns the identifier assigned by StartRun, empty before that.
func (j *Journal) RunID() string { return j.runID }

// ensureSchema creates minimal tables if they don't exist.
func (j *Journal) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists runs (
			id bigserial primary key,
			run_id text unique not null,
			started_at timestamptz not null default now(),
			stopped_at timestamptz,
			mode text not null,
			asset_a text not null,
			asset_b text not null,
			params jsonb,
			status text not null default 'running'
		)`,
		`create table if not exists decisions (
			id bigserial primary key,
			run_id text not null,
			ts timestamptz not null default now(),
			bar_ts bigint,
			trigger_kind text not null,
			action text,
			favored text,
			details jsonb
		)`,
		`create index if not exists idx_decisions_run on decisions(run_id, ts desc)`,
		`create table if not exists orders (
			id bigserial primary key,
			run_id text not null,
			ts timestamptz not null default now(),
			client_id text not null,
			instrument text not null,
			side text not null,
			qty numeric,
			price numeric,
			tif text,
			reduce_only boolean not null default false,
			status text not null default 'submitted'
		)`,
		`create index if not exists idx_orders_run on orders(run_id, ts desc)`,
		`create table if not exists fills (
			id bigserial primary key,
			run_id text not null,
			ts timestamptz not null default now(),
			fill_ts bigint,
			instrument text not null,
			side text not null,
			qty numeric,
			price numeric
		)`,
		`create index if not exists idx_fills_run on fills(run_id, ts desc)`,
	}
	for _, s := range stmts {
		if _, err := j.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensureSchema: %w", err)
		}
	}
	return nil
}

// StartRun inserts the run row and fixes the run id for this session.
func (j *Journal) StartRun(mode, assetA, assetB string, params map[string]any) string {
	j.runID = newRunID()
	var pj []byte
	if params != nil {
		pj, _ = json.Marshal(params)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = j.pool.Exec(ctx, `insert into runs(run_id, mode, asset_a, asset_b, params, status)
			values($1,$2,$3,$4,$5,'running')`, j.runID, mode, assetA, assetB, pj)
	}()
	return j.runID
}

// StopRun stamps the run row with its final status.
func (j *Journal) StopRun(status string) {
	runID := j.runID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if status == "" {
			status = "stopped"
		}
		_, _ = j.pool.Exec(ctx, `update runs set stopped_at = now(), status=$2 where run_id=$1`, runID, status)
	}()
}

// LogDecision records one trigger evaluation that produced a rebalance.
func (j *Journal) LogDecision(barTs int64, trigger, action, favored string, details any) {
	runID := j.runID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var dj []byte
		if details != nil {
			dj, _ = json.Marshal(details)
		}
		_, _ = j.pool.Exec(ctx, `insert into decisions(run_id, bar_ts, trigger_kind, action, favored, details)
			values($1,$2,$3,$4,$5,$6)`, runID, barTs, trigger, action, favored, dj)
	}()
}

// LogOrder records a submitted order.
func (j *Journal) LogOrder(clientID, instrument, side string, qty, price float64, tif string, reduceOnly bool) {
	runID := j.runID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = j.pool.Exec(ctx, `insert into orders(run_id, client_id, instrument, side, qty, price, tif, reduce_only, status)
			values($1,$2,$3,$4,$5,$6,$7,$8,'submitted')`, runID, clientID, instrument, side, qty, price, tif, reduceOnly)
	}()
}

// LogFill records an applied fill event.
func (j *Journal) LogFill(fillTs int64, instrument, side string, qty, price float64) {
	runID := j.runID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = j.pool.Exec(ctx, `insert into fills(run_id, fill_ts, instrument, side, qty, price)
			values($1,$2,$3,$4,$5,$6)`, runID, fillTs, instrument, side, qty, price)
	}()
}

// QueryDecisions returns the newest decisions of a run for API responses.
func (j *Journal) QueryDecisions(ctx context.Context, runID string, limit int) ([]DecisionRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if runID == "" {
		runID = j.runID
	}
	rows, err := j.pool.Query(ctx, `select run_id, ts, coalesce(bar_ts,0), trigger_kind, coalesce(action,''), coalesce(favored,''), coalesce(details,'{}'::jsonb)
		from decisions where run_id=$1 order by ts desc limit $2`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []DecisionRow{}
	for rows.Next() {
		var r DecisionRow
		if err := rows.Scan(&r.RunID, &r.TS, &r.BarTS, &r.Trigger, &r.Action, &r.Favored, &r.Details); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

func newRunID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(b)
}
