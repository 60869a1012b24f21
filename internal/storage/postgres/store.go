package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammengine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_events (
	seq         BIGSERIAL,
	event_id    TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	pool_id     TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	token_in    TEXT NOT NULL DEFAULT '',
	token_out   TEXT NOT NULL DEFAULT '',
	amount_in   NUMERIC,
	amount_out  NUMERIC,
	amount_a    NUMERIC,
	amount_b    NUMERIC,
	shares      NUMERIC,
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE pool_events ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS pool_events_pool_idx ON pool_events (pool_id, seq);
CREATE TABLE IF NOT EXISTS engine_snapshots (
	name       TEXT PRIMARY KEY,
	taken_at   TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pool events and engine snapshots.
type Store struct {
	pool *pgxpool.Pool
	name string
}

// NewStore connects to dsn. snapshotName keys the snapshot row so several
// engines can share one database.
func NewStore(ctx context.Context, dsn, snapshotName string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if snapshotName == "" {
		snapshotName = "default"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, name: snapshotName}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutEventBatch inserts events; replays of an already stored ID are ignored.
func (s *Store) PutEventBatch(ctx context.Context, events []model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO pool_events (
				event_id, kind, pool_id, actor, token_in, token_out,
				amount_in, amount_out, amount_a, amount_b, shares, occurred_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (event_id) DO NOTHING
		`,
			ev.ID,
			ev.Kind,
			ev.PoolID,
			ev.Actor,
			ev.TokenIn,
			ev.TokenOut,
			numeric(ev.AmountIn),
			numeric(ev.AmountOut),
			numeric(ev.AmountA),
			numeric(ev.AmountB),
			numeric(ev.Shares),
			ev.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ReadPoolEvents returns stored events for poolID in insertion order.
func (s *Store) ReadPoolEvents(ctx context.Context, poolID string) ([]model.PoolEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, kind, pool_id, actor, token_in, token_out,
			amount_in, amount_out, amount_a, amount_b, shares, occurred_at
		FROM pool_events
		WHERE $1::text = '' OR pool_id = $1
		ORDER BY seq
	`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.PoolEvent
	for rows.Next() {
		var ev model.PoolEvent
		var amountIn, amountOut, amountA, amountB, shares pgtype.Numeric
		if err := rows.Scan(
			&ev.ID, &ev.Kind, &ev.PoolID, &ev.Actor, &ev.TokenIn, &ev.TokenOut,
			&amountIn, &amountOut, &amountA, &amountB, &shares, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.AmountIn = bigInt(amountIn)
		ev.AmountOut = bigInt(amountOut)
		ev.AmountA = bigInt(amountA)
		ev.AmountB = bigInt(amountB)
		ev.Shares = bigInt(shares)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LoadSnapshot returns the stored snapshot, if any.
func (s *Store) LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error) {
	var body []byte
	row := s.pool.QueryRow(ctx, `SELECT body FROM engine_snapshots WHERE name=$1`, s.name)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveSnapshot upserts the snapshot row.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_snapshots (name, taken_at, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET taken_at = EXCLUDED.taken_at, body = EXCLUDED.body, updated_at = now()
	`, s.name, snap.TakenAt, body)
	return err
}
