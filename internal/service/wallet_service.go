package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
)

// Admin balance actions.
const (
	BalanceAdd      = "add"
	BalanceWithdraw = "withdraw"
	BalanceTransfer = "transfer"
)

// BalanceRequest is the body of an admin balance change. For a transfer,
// UserID is the sender and ReceiverID the receiver.
type BalanceRequest struct {
	Action     string          `json:"action"      binding:"required,oneof=add withdraw transfer"`
	UserID     uuid.UUID       `json:"user_id"     binding:"required"`
	ReceiverID *uuid.UUID      `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
}

// BalanceResult reports the balances after a committed admin change. Warnings
// lists audit rows that could not be written.
type BalanceResult struct {
	UserID         uuid.UUID        `json:"user_id"`
	Before         decimal.Decimal  `json:"balance_before"`
	After          decimal.Decimal  `json:"balance_after"`
	ReceiverID     *uuid.UUID       `json:"receiver_id,omitempty"`
	ReceiverBefore *decimal.Decimal `json:"receiver_balance_before,omitempty"`
	ReceiverAfter  *decimal.Decimal `json:"receiver_balance_after,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// WalletService
// ──────────────────────────────────────────────────────────────────────────────

// WalletService serves balances, ledger history and admin balance changes.
type WalletService struct {
	db         *sqlx.DB
	walletRepo *repository.WalletRepository
	userRepo   *repository.UserRepository
	deps       Deps
}

// NewWalletService creates a WalletService.
func NewWalletService(db *sqlx.DB, walletRepo *repository.WalletRepository, userRepo *repository.UserRepository, deps Deps) *WalletService {
	return &WalletService{db: db, walletRepo: walletRepo, userRepo: userRepo, deps: deps}
}

// Balance returns the caller's current balance.
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.walletRepo.GetBalance(ctx, userID)
}

// Transactions returns the caller's ledger rows, newest first.
func (s *WalletService) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	limit, offset = clampPage(limit, offset)
	txns, err := s.walletRepo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_service.Transactions: %w", err)
	}
	return txns, nil
}

// HouseSummary aggregates the house ledger over the trailing window.
func (s *WalletService) HouseSummary(ctx context.Context, window time.Duration) (*repository.HouseSummary, error) {
	sum, err := s.walletRepo.GetHouseSummary(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("wallet_service.HouseSummary: %w", err)
	}
	return sum, nil
}

// HouseEntries lists house ledger rows.
func (s *WalletService) HouseEntries(ctx context.Context, limit, offset int) ([]*domain.HouseLedgerEntry, error) {
	limit, offset = clampPage(limit, offset)
	return s.walletRepo.ListHouseEntries(ctx, limit, offset)
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin balance
// ──────────────────────────────────────────────────────────────────────────────

// AdminBalance applies an add, withdraw or transfer. The balance change
// commits on its own; the audit rows are written afterwards and a failure
// there only shows up in Warnings.
//
// Add and withdraw are admin only. A transfer by anyone else must come out of
// the caller's own balance and go to an account the caller manages.
func (s *WalletService) AdminBalance(ctx context.Context, actor Actor, req BalanceRequest) (*BalanceResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	req.Amount = req.Amount.Round(2)

	switch req.Action {
	case BalanceAdd, BalanceWithdraw:
		if !actor.Role.IsAdmin() {
			return nil, domain.ErrForbidden
		}
		return s.adjust(ctx, actor, req)
	case BalanceTransfer:
		if req.ReceiverID == nil || *req.ReceiverID == req.UserID {
			return nil, fmt.Errorf("%w: transfer needs a distinct receiver", domain.ErrValidation)
		}
		receiver, err := s.userRepo.GetByID(ctx, *req.ReceiverID)
		if err != nil {
			return nil, fmt.Errorf("wallet_service.AdminBalance: %w", err)
		}
		if !actor.Role.IsAdmin() {
			if req.UserID != actor.ID {
				return nil, domain.ErrForbidden
			}
			if err := actor.manages(ctx, s.userRepo, receiver); err != nil {
				return nil, err
			}
		}
		return s.transfer(ctx, actor, req)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, req.Action)
	}
}

func (s *WalletService) adjust(ctx context.Context, actor Actor, req BalanceRequest) (*BalanceResult, error) {
	delta, txType := req.Amount, domain.TxLoad
	if req.Action == BalanceWithdraw {
		delta, txType = req.Amount.Neg(), domain.TxWithdraw
	}

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("wallet_service.adjust: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	before, after, txErr := s.walletRepo.Adjust(ctx, tx, req.UserID, delta)
	if txErr != nil {
		return nil, fmt.Errorf("wallet_service.adjust: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("wallet_service.adjust: commit: %w", txErr)
	}

	res := &BalanceResult{UserID: req.UserID, Before: before, After: after}
	sender, receiver := actor.ID, req.UserID
	if txType == domain.TxWithdraw {
		sender, receiver = req.UserID, actor.ID
	}
	s.audit(ctx, res, &domain.Transaction{
		UserID: req.UserID, Type: txType, Amount: req.Amount,
		BalanceBefore: before, BalanceAfter: after,
		SenderID: &sender, ReceiverID: &receiver,
		Description: describe(txType, req.Note),
	})
	s.deps.logger().Info("admin balance change",
		zap.String("action", req.Action),
		zap.Stringer("actor", actor.ID),
		zap.Stringer("user_id", req.UserID),
		zap.String("amount", req.Amount.StringFixed(2)))
	return res, nil
}

func (s *WalletService) transfer(ctx context.Context, actor Actor, req BalanceRequest) (*BalanceResult, error) {
	from, to := req.UserID, *req.ReceiverID

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("wallet_service.transfer: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	// Lock both rows in id order so opposite transfers cannot deadlock.
	legs := []struct {
		id    uuid.UUID
		delta decimal.Decimal
	}{{from, req.Amount.Neg()}, {to, req.Amount}}
	if to.String() < from.String() {
		legs[0], legs[1] = legs[1], legs[0]
	}
	balances := make(map[uuid.UUID][2]decimal.Decimal, 2)
	for _, l := range legs {
		before, after, err := s.walletRepo.Adjust(ctx, tx, l.id, l.delta)
		if err != nil {
			txErr = fmt.Errorf("wallet_service.transfer: %w", err)
			return nil, txErr
		}
		balances[l.id] = [2]decimal.Decimal{before, after}
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("wallet_service.transfer: commit: %w", txErr)
	}

	sb, rb := balances[from], balances[to]
	res := &BalanceResult{
		UserID: from, Before: sb[0], After: sb[1],
		ReceiverID: &to, ReceiverBefore: &rb[0], ReceiverAfter: &rb[1],
	}
	desc := describe(domain.TxTransfer, req.Note)
	s.audit(ctx, res, &domain.Transaction{
		UserID: from, Type: domain.TxTransfer, Amount: req.Amount,
		BalanceBefore: sb[0], BalanceAfter: sb[1],
		SenderID: &from, ReceiverID: &to, Description: desc,
	})
	s.audit(ctx, res, &domain.Transaction{
		UserID: to, Type: domain.TxTransfer, Amount: req.Amount,
		BalanceBefore: rb[0], BalanceAfter: rb[1],
		SenderID: &from, ReceiverID: &to, Description: desc,
	})
	s.deps.logger().Info("balance transfer",
		zap.Stringer("actor", actor.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("amount", req.Amount.StringFixed(2)))
	return res, nil
}

// audit writes one ledger row outside the balance transaction.
func (s *WalletService) audit(ctx context.Context, res *BalanceResult, txn *domain.Transaction) {
	txn.ID = uuid.New()
	txn.CreatedAt = time.Now().UTC()
	if err := s.walletRepo.LogTransactionDirect(ctx, txn); err != nil {
		s.deps.logger().Warn("balance audit row not written",
			zap.Stringer("user_id", txn.UserID),
			zap.String("type", string(txn.Type)),
			zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("audit %s for %s not recorded", txn.Type, txn.UserID))
	}
}

func describe(t domain.TxType, note string) string {
	if note == "" {
		return string(t)
	}
	return string(t) + ": " + note
}
