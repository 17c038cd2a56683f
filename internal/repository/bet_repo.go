package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
)

// BetRepository handles all database operations for sabong bets.
type BetRepository struct {
	db *sqlx.DB
}

// NewBetRepository creates a new BetRepository.
func NewBetRepository(db *sqlx.DB) *BetRepository {
	return &BetRepository{db: db}
}

// Create inserts a new bet inside an existing transaction.
func (r *BetRepository) Create(ctx context.Context, tx *sqlx.Tx, b *domain.Bet) error {
	query := `
		INSERT INTO bets
			(id, user_id, match_id, selection, amount, source, status, placed_at)
		VALUES
			(:id, :user_id, :match_id, :selection, :amount, :source, :status, :placed_at)`
	if _, err := tx.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("bet_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a bet by its primary key.
func (r *BetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bet, error) {
	var b domain.Bet
	err := r.db.GetContext(ctx, &b, `SELECT * FROM bets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetByID: %w", err)
	}
	return &b, nil
}

// ListByMatch returns every bet of a match in placement order. Inside
// settlement q is the transaction holding the match lock.
func (r *BetRepository) ListByMatch(ctx context.Context, q sqlx.QueryerContext, matchID uuid.UUID) ([]domain.Bet, error) {
	if q == nil {
		q = r.db
	}
	var bets []domain.Bet
	if err := sqlx.SelectContext(ctx, q, &bets,
		`SELECT * FROM bets WHERE match_id = $1 ORDER BY placed_at ASC, id ASC`, matchID); err != nil {
		return nil, fmt.Errorf("bet_repo.ListByMatch: %w", err)
	}
	return bets, nil
}

// ListByUser returns a user's bet history, paginated.
func (r *BetRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Bet, error) {
	var bets []*domain.Bet
	err := r.db.SelectContext(ctx, &bets,
		`SELECT * FROM bets WHERE user_id = $1 ORDER BY placed_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.ListByUser: %w", err)
	}
	return bets, nil
}

// Settle moves a pending bet to its final status. It reports false without
// error when the bet already left pending, which makes re-runs skip it.
func (r *BetRepository) Settle(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.BetStatus, payout decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bets
		SET status = $1, payout = $2, settled_at = now()
		WHERE id = $3 AND status = 'pending'`,
		string(status), payout, id)
	if err != nil {
		return false, fmt.Errorf("bet_repo.Settle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bet_repo.Settle rows: %w", err)
	}
	return n == 1, nil
}

// MatchExposure is the per-source stake breakdown of one match.
type MatchExposure struct {
	MatchID   uuid.UUID        `json:"match_id"  db:"match_id"`
	Selection domain.Selection `json:"selection" db:"selection"`
	Source    string           `json:"source"    db:"source"`
	Stake     decimal.Decimal  `json:"stake"     db:"stake"`
	Count     int              `json:"count"     db:"count"`
}

// PendingExposure returns pending stake grouped by match, selection and
// source for every match still taking or awaiting settlement.
func (r *BetRepository) PendingExposure(ctx context.Context) ([]MatchExposure, error) {
	var rows []MatchExposure
	err := r.db.SelectContext(ctx, &rows, `
		SELECT b.match_id, b.selection, b.source, SUM(b.amount) AS stake, COUNT(*) AS count
		FROM bets b
		JOIN matches m ON m.id = b.match_id
		WHERE b.status = 'pending' AND m.status NOT IN ('finished', 'cancelled')
		GROUP BY b.match_id, b.selection, b.source
		ORDER BY b.match_id, b.selection, b.source`)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.PendingExposure: %w", err)
	}
	return rows, nil
}
