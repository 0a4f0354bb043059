// Package store is a reference persistence implementation backed by
// SQLite via the pure-Go modernc.org/sqlite driver, following the
// retrieved aristath-sentinel internal/database connection-setup
// idiom (WAL mode, busy-timeout pragma, single-writer pool sizing)
// applied to this domain's opportunity/fill ledger rather
// than that repo's multi-profile trading database.
//
// Per SPEC_FULL.md's persistence-granularity decision, writes are
// scoped per-opportunity-transition and per-fill: each call opens one
// transaction and commits before returning, so a crash mid-write never
// leaves a half-applied state transition on disk.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalshi-arb/arbcore/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id TEXT PRIMARY KEY,
	relationship_id TEXT NOT NULL,
	relation_kind TEXT NOT NULL,
	signal TEXT NOT NULL,
	state TEXT NOT NULL,
	reject_reason TEXT,
	raw_edge_cents INTEGER NOT NULL,
	net_magnitude INTEGER NOT NULL,
	score REAL NOT NULL,
	desired_count INTEGER NOT NULL,
	detected_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	opportunity_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	action TEXT NOT NULL,
	count INTEGER NOT NULL,
	price_cent INTEGER NOT NULL,
	fee_cent INTEGER NOT NULL,
	filled_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_opportunity ON fills(opportunity_id);
`

// Store is a SQLite-backed record of each opportunity's latest state
// (one row per opportunity, overwritten on every transition) and an
// append-only log of confirmed fills, used for post-hoc reconciliation
// and audit — it is not on the hot admission/execution path.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its parent directory) if
// needed, applies pragmas for a single-writer workload, and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("store: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	connStr := abs + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", abs, err)
	}
	db.SetMaxOpenConns(1) // single-writer: SQLite serializes writes anyway, avoid lock contention
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordTransition upserts the opportunity's current state in its own
// transaction — called once per state-machine transition.
func (s *Store) RecordTransition(ctx context.Context, opp domain.Opportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transition tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO opportunities (
			id, relationship_id, relation_kind, signal, state, reject_reason,
			raw_edge_cents, net_magnitude, score, desired_count, detected_at, expires_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			reject_reason = excluded.reject_reason,
			updated_at = excluded.updated_at
	`,
		opp.ID, opp.RelationshipID, string(opp.RelationKind), opp.Signal, string(opp.State), opp.RejectReason,
		opp.RawEdgeCents, opp.NetMagnitude, opp.Score, opp.DesiredCount, opp.DetectedAt, opp.ExpiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("store: record transition: %w", err)
	}
	return tx.Commit()
}

// RecordFill appends one confirmed fill in its own transaction.
func (s *Store) RecordFill(ctx context.Context, f domain.Fill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin fill tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fills (opportunity_id, ticker, side, action, count, price_cent, fee_cent, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.OpportunityID, f.Ticker, string(f.Side), string(f.Action), f.Count, f.PriceCent, f.FeeCent, f.FilledAt)
	if err != nil {
		return fmt.Errorf("store: record fill: %w", err)
	}
	return tx.Commit()
}

// FillsFor returns every recorded fill for one opportunity, oldest first.
func (s *Store) FillsFor(ctx context.Context, opportunityID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT opportunity_id, ticker, side, action, count, price_cent, fee_cent, filled_at
		FROM fills WHERE opportunity_id = ? ORDER BY id ASC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("store: query fills: %w", err)
	}
	defer rows.Close()

	var out []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, action string
		if err := rows.Scan(&f.OpportunityID, &f.Ticker, &side, &action, &f.Count, &f.PriceCent, &f.FeeCent, &f.FilledAt); err != nil {
			return nil, fmt.Errorf("store: scan fill: %w", err)
		}
		f.Side, f.Action = domain.Side(side), domain.Action(action)
		out = append(out, f)
	}
	return out, rows.Err()
}
