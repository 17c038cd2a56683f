package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
)

// PoolRepository persists the per-source pool buckets, grand totals and the
// snapshots frozen at close. Matches and karera win pools share the tables,
// keyed by the match or race id.
type PoolRepository struct {
	db *sqlx.DB
}

// NewPoolRepository creates a new PoolRepository.
func NewPoolRepository(db *sqlx.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// RecordStake adds amount to the (event, selection, source) bucket and to the
// (event, selection) grand total inside the caller's transaction. Both are
// single atomic upserts so concurrent stakes never lose an update.
func (r *PoolRepository) RecordStake(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, sel domain.Selection, amount decimal.Decimal, src domain.StakeSource) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: pool stake must be positive", domain.ErrValidation)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pool_buckets (event_id, selection, source, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, selection, source)
		DO UPDATE SET amount = pool_buckets.amount + EXCLUDED.amount`,
		eventID, string(sel), string(src), amount)
	if err != nil {
		return fmt.Errorf("pool_repo.RecordStake bucket: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pool_totals (event_id, selection, total)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, selection)
		DO UPDATE SET total = pool_totals.total + EXCLUDED.total`,
		eventID, string(sel), amount)
	if err != nil {
		return fmt.Errorf("pool_repo.RecordStake total: %w", err)
	}
	return nil
}

// ReleaseStake removes a refunded stake from the bucket and the grand total.
// Used when a scratched horse's win bets are refunded.
func (r *PoolRepository) ReleaseStake(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, sel domain.Selection, amount decimal.Decimal, src domain.StakeSource) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE pool_buckets SET amount = amount - $4
		WHERE event_id = $1 AND selection = $2 AND source = $3 AND amount >= $4`,
		eventID, string(sel), string(src), amount)
	if err != nil {
		return fmt.Errorf("pool_repo.ReleaseStake bucket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: release %s from %s/%s exceeds bucket", domain.ErrLedgerInconsistency, amount, sel, src)
	}
	res, err = tx.ExecContext(ctx, `
		UPDATE pool_totals SET total = total - $3
		WHERE event_id = $1 AND selection = $2 AND total >= $3`,
		eventID, string(sel), amount)
	if err != nil {
		return fmt.Errorf("pool_repo.ReleaseStake total: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: release %s from %s exceeds total", domain.ErrLedgerInconsistency, amount, sel)
	}
	return nil
}

// Snapshot reads the live buckets and totals of an event. q may be the pool
// or a transaction. selections are always present, even when empty.
func (r *PoolRepository) Snapshot(ctx context.Context, q sqlx.QueryerContext, eventID uuid.UUID, selections ...domain.Selection) (*domain.PoolSnapshot, error) {
	if q == nil {
		q = r.db
	}
	var buckets []domain.PoolBucket
	if err := sqlx.SelectContext(ctx, q, &buckets,
		`SELECT event_id, selection, source, amount FROM pool_buckets WHERE event_id = $1`, eventID); err != nil {
		return nil, fmt.Errorf("pool_repo.Snapshot buckets: %w", err)
	}
	var totals []domain.PoolTotal
	if err := sqlx.SelectContext(ctx, q, &totals,
		`SELECT event_id, selection, total FROM pool_totals WHERE event_id = $1`, eventID); err != nil {
		return nil, fmt.Errorf("pool_repo.Snapshot totals: %w", err)
	}
	return domain.BuildSnapshot(eventID, buckets, totals, selections...), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Frozen snapshots
// ──────────────────────────────────────────────────────────────────────────────

type frozenRow struct {
	EventID        uuid.UUID       `db:"event_id"`
	EventKind      string          `db:"event_kind"`
	Rate           decimal.Decimal `db:"rate"`
	PayoutBasis    string          `db:"payout_basis"`
	DrawMultiplier decimal.Decimal `db:"draw_multiplier"`
	Buckets        []byte          `db:"buckets"`
	FrozenAt       time.Time       `db:"frozen_at"`
}

// Freeze stores snap as the settlement input of the event. A second freeze of
// the same event keeps the first row.
func (r *PoolRepository) Freeze(ctx context.Context, tx *sqlx.Tx, kind domain.EventKind, snap *domain.PoolSnapshot) error {
	b, err := json.Marshal(snap.Selections)
	if err != nil {
		return fmt.Errorf("pool_repo.Freeze marshal: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pool_snapshots (event_id, event_kind, rate, payout_basis, draw_multiplier, buckets, frozen_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, now())
		ON CONFLICT (event_id) DO NOTHING`,
		snap.EventID, string(kind), snap.Rate, string(snap.Basis), snap.DrawMultiplier, string(b))
	if err != nil {
		return fmt.Errorf("pool_repo.Freeze: %w", err)
	}
	return nil
}

// ReplaceFrozenBuckets rewrites the buckets of an existing frozen snapshot,
// keeping its rate, policy and frozen_at.
func (r *PoolRepository) ReplaceFrozenBuckets(ctx context.Context, tx *sqlx.Tx, snap *domain.PoolSnapshot) error {
	b, err := json.Marshal(snap.Selections)
	if err != nil {
		return fmt.Errorf("pool_repo.ReplaceFrozenBuckets marshal: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE pool_snapshots SET buckets = $2::jsonb WHERE event_id = $1`, snap.EventID, string(b))
	if err != nil {
		return fmt.Errorf("pool_repo.ReplaceFrozenBuckets: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSnapshotNotFound
	}
	return nil
}

// GetFrozen loads the snapshot frozen at close.
func (r *PoolRepository) GetFrozen(ctx context.Context, q sqlx.QueryerContext, eventID uuid.UUID) (*domain.PoolSnapshot, error) {
	if q == nil {
		q = r.db
	}
	var row frozenRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT event_id, event_kind, rate, payout_basis, draw_multiplier, buckets, frozen_at
		FROM pool_snapshots WHERE event_id = $1`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("pool_repo.GetFrozen: %w", err)
	}
	snap := &domain.PoolSnapshot{
		EventID:        row.EventID,
		Rate:           row.Rate,
		Basis:          domain.PayoutBasis(row.PayoutBasis),
		DrawMultiplier: row.DrawMultiplier,
		FrozenAt:       &row.FrozenAt,
	}
	if err := json.Unmarshal(row.Buckets, &snap.Selections); err != nil {
		return nil, fmt.Errorf("pool_repo.GetFrozen decode: %w", err)
	}
	return snap, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Injection audit
// ──────────────────────────────────────────────────────────────────────────────

// LogInjection inserts an injection audit row inside a transaction.
func (r *PoolRepository) LogInjection(ctx context.Context, tx *sqlx.Tx, l *domain.InjectionLog) error {
	query := `
		INSERT INTO pool_injections
			(id, event_id, event_kind, selection, amount, bet_id, injected_by, reason, created_at)
		VALUES
			(:id, :event_id, :event_kind, :selection, :amount, :bet_id, :injected_by, :reason, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, l); err != nil {
		return fmt.Errorf("pool_repo.LogInjection: %w", err)
	}
	return nil
}

// ListInjections returns injection logs, newest first. eventID = uuid.Nil
// means all events.
func (r *PoolRepository) ListInjections(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]*domain.InjectionLog, error) {
	var logs []*domain.InjectionLog
	var err error
	if eventID != uuid.Nil {
		err = r.db.SelectContext(ctx, &logs, `
			SELECT * FROM pool_injections WHERE event_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, eventID, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &logs, `
			SELECT * FROM pool_injections
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("pool_repo.ListInjections: %w", err)
	}
	return logs, nil
}

// InjectionStats summarises all injections.
func (r *PoolRepository) InjectionStats(ctx context.Context) (*domain.InjectionStats, error) {
	var s domain.InjectionStats
	err := r.db.GetContext(ctx, &s, `
		SELECT COALESCE(SUM(amount), 0)     AS total_injected,
		       COUNT(DISTINCT event_id)     AS event_count,
		       COUNT(*)                     AS count
		FROM pool_injections`)
	if err != nil {
		return nil, fmt.Errorf("pool_repo.InjectionStats: %w", err)
	}
	return &s, nil
}
