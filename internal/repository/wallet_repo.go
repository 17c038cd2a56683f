package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
)

// WalletRepository handles profile balances, the transactions ledger and the
// house ledger.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetBalance returns the current balance of a profile.
func (r *WalletRepository) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := r.db.GetContext(ctx, &bal, `SELECT balance FROM profiles WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("wallet_repo.GetBalance: %w", err)
	}
	return bal, nil
}

// Entry describes one ledger movement for Credit / Debit.
type Entry struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Type        domain.TxType
	RefID       *uuid.UUID
	SenderID    *uuid.UUID
	ReceiverID  *uuid.UUID
	Description string
}

// Credit adds e.Amount to the balance and appends the transaction row, both in
// tx. The profile row is locked FOR UPDATE so before/after are exact.
func (r *WalletRepository) Credit(ctx context.Context, tx *sqlx.Tx, e Entry) (*domain.Transaction, error) {
	if !e.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit must be positive", domain.ErrValidation)
	}
	return r.apply(ctx, tx, e, e.Amount)
}

// Debit subtracts e.Amount from the balance and appends the transaction row.
// Returns ErrInsufficientBalance when the balance would go negative.
func (r *WalletRepository) Debit(ctx context.Context, tx *sqlx.Tx, e Entry) (*domain.Transaction, error) {
	if !e.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: debit must be positive", domain.ErrValidation)
	}
	return r.apply(ctx, tx, e, e.Amount.Neg())
}

func (r *WalletRepository) apply(ctx context.Context, tx *sqlx.Tx, e Entry, delta decimal.Decimal) (*domain.Transaction, error) {
	before, after, err := r.Adjust(ctx, tx, e.UserID, delta)
	if err != nil {
		return nil, err
	}
	txn := &domain.Transaction{
		ID:            uuid.New(),
		UserID:        e.UserID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		SenderID:      e.SenderID,
		ReceiverID:    e.ReceiverID,
		RefID:         e.RefID,
		Description:   e.Description,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.LogTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Adjust applies a signed delta to a locked profile balance without writing a
// ledger row. Admin adjustments audit separately after commit.
func (r *WalletRepository) Adjust(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta decimal.Decimal) (before, after decimal.Decimal, err error) {
	err = tx.GetContext(ctx, &before, `SELECT balance FROM profiles WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, decimal.Zero, domain.ErrUserNotFound
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("wallet_repo.Adjust lock: %w", err)
	}
	after = before.Add(delta)
	if after.IsNegative() {
		return before, before, domain.ErrInsufficientBalance
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE profiles SET balance = $1, updated_at = now() WHERE id = $2`, after, userID); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("wallet_repo.Adjust update: %w", err)
	}
	return before, after, nil
}

const insertTransaction = `
	INSERT INTO transactions
		(id, user_id, type, amount, balance_before, balance_after, sender_id, receiver_id, ref_id, description, created_at)
	VALUES
		(:id, :user_id, :type, :amount, :balance_before, :balance_after, :sender_id, :receiver_id, :ref_id, :description, :created_at)`

// LogTransaction inserts a ledger row inside a transaction.
func (r *WalletRepository) LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error {
	if _, err := tx.NamedExecContext(ctx, insertTransaction, txn); err != nil {
		return fmt.Errorf("wallet_repo.LogTransaction: %w", err)
	}
	return nil
}

// LogTransactionDirect writes a ledger row outside any transaction. Used for
// the best-effort audit of admin balance changes.
func (r *WalletRepository) LogTransactionDirect(ctx context.Context, txn *domain.Transaction) error {
	if _, err := r.db.NamedExecContext(ctx, insertTransaction, txn); err != nil {
		return fmt.Errorf("wallet_repo.LogTransactionDirect: %w", err)
	}
	return nil
}

// ListTransactions returns a user's ledger rows, newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.ListTransactions: %w", err)
	}
	return txns, nil
}

// CountByRef returns how many ledger rows reference refID with type t.
func (r *WalletRepository) CountByRef(ctx context.Context, refID uuid.UUID, t domain.TxType) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM transactions WHERE ref_id = $1 AND type = $2`, refID, string(t)); err != nil {
		return 0, fmt.Errorf("wallet_repo.CountByRef: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// House ledger
// ──────────────────────────────────────────────────────────────────────────────

// InsertHouseEntry books the house result of a settled or cancelled event.
func (r *WalletRepository) InsertHouseEntry(ctx context.Context, tx *sqlx.Tx, e *domain.HouseLedgerEntry) error {
	query := `
		INSERT INTO house_ledger
			(id, event_id, event_kind, gross_pool, commission, paid_out, refunded, retained, created_at)
		VALUES
			(:id, :event_id, :event_kind, :gross_pool, :commission, :paid_out, :refunded, :retained, :created_at)
		ON CONFLICT (event_id) DO NOTHING`
	if _, err := tx.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("wallet_repo.InsertHouseEntry: %w", err)
	}
	return nil
}

// HouseSummary aggregates the house ledger since the given time.
type HouseSummary struct {
	Events     int             `json:"events"      db:"events"`
	GrossPool  decimal.Decimal `json:"gross_pool"  db:"gross_pool"`
	Commission decimal.Decimal `json:"commission"  db:"commission"`
	PaidOut    decimal.Decimal `json:"paid_out"    db:"paid_out"`
	Refunded   decimal.Decimal `json:"refunded"    db:"refunded"`
	Retained   decimal.Decimal `json:"retained"    db:"retained"`
}

// GetHouseSummary sums house ledger rows created at or after since.
func (r *WalletRepository) GetHouseSummary(ctx context.Context, since time.Time) (*HouseSummary, error) {
	var s HouseSummary
	err := r.db.GetContext(ctx, &s, `
		SELECT COUNT(*)                      AS events,
		       COALESCE(SUM(gross_pool), 0)  AS gross_pool,
		       COALESCE(SUM(commission), 0)  AS commission,
		       COALESCE(SUM(paid_out), 0)    AS paid_out,
		       COALESCE(SUM(refunded), 0)    AS refunded,
		       COALESCE(SUM(retained), 0)    AS retained
		FROM house_ledger
		WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetHouseSummary: %w", err)
	}
	return &s, nil
}

// ListHouseEntries returns house ledger rows, newest first.
func (r *WalletRepository) ListHouseEntries(ctx context.Context, limit, offset int) ([]*domain.HouseLedgerEntry, error) {
	var rows []*domain.HouseLedgerEntry
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM house_ledger ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, fmt.Errorf("wallet_repo.ListHouseEntries: %w", err)
	}
	return rows, nil
}
