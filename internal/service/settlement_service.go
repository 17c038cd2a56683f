package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/repository"
)

// SettlementResult is returned by announce_winner and cancel_match.
type SettlementResult struct {
	EventID        uuid.UUID          `json:"event_id"`
	EventKind      domain.EventKind   `json:"event_kind"`
	Status         domain.EventStatus `json:"status"`
	Winner         domain.Selection   `json:"winner,omitempty"`
	WinnerOdds     decimal.Decimal    `json:"winner_odds"`
	AlreadySettled bool               `json:"already_settled"`
	Settled        int                `json:"settled"`
	Won            int                `json:"won"`
	Lost           int                `json:"lost"`
	Refunded       int                `json:"refunded"`
	PayoutTotal    decimal.Decimal    `json:"payout_total"`
	RefundTotal    decimal.Decimal    `json:"refund_total"`
	Commission     decimal.Decimal    `json:"commission"`
	Retained       decimal.Decimal    `json:"retained"`
}

func resultOf(kind domain.EventKind, status domain.EventStatus, plan *domain.SettlementPlan, applied int) *SettlementResult {
	return &SettlementResult{
		EventID:     plan.EventID,
		EventKind:   kind,
		Status:      status,
		Winner:      plan.Winner,
		WinnerOdds:  plan.WinnerOdds,
		Settled:     applied,
		Won:         plan.Won,
		Lost:        plan.Lost,
		Refunded:    plan.Refunded,
		PayoutTotal: plan.PayoutTotal,
		RefundTotal: plan.RefundTotal,
		Commission:  plan.Commission,
		Retained:    plan.Retained(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// SettlementService
// ──────────────────────────────────────────────────────────────────────────────

// SettlementService finishes and cancels matches. Each run is one
// transaction under the match FOR UPDATE lock: read the frozen snapshot,
// plan every bet, apply guarded bet updates and wallet credits, book the
// house ledger and flip the match status.
type SettlementService struct {
	db         *sqlx.DB
	matchRepo  *repository.MatchRepository
	betRepo    *repository.BetRepository
	poolRepo   *repository.PoolRepository
	walletRepo *repository.WalletRepository
	pools      *PoolService
	cfg        *config.Config
	deps       Deps
}

// NewSettlementService builds a SettlementService.
func NewSettlementService(
	db *sqlx.DB,
	matchRepo *repository.MatchRepository,
	betRepo *repository.BetRepository,
	poolRepo *repository.PoolRepository,
	walletRepo *repository.WalletRepository,
	pools *PoolService,
	cfg *config.Config,
	deps Deps,
) *SettlementService {
	return &SettlementService{
		db:         db,
		matchRepo:  matchRepo,
		betRepo:    betRepo,
		poolRepo:   poolRepo,
		walletRepo: walletRepo,
		pools:      pools,
		cfg:        cfg,
		deps:       deps,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// AnnounceWinner
// ──────────────────────────────────────────────────────────────────────────────

// AnnounceWinner settles a closed or ongoing match. Re-announcing the same
// winner on a finished match is a no-op; a different winner is rejected.
func (s *SettlementService) AnnounceWinner(ctx context.Context, matchID uuid.UUID, winner domain.Selection) (*SettlementResult, error) {
	if !winner.IsSabong() {
		return nil, fmt.Errorf("%w: unknown winner %q", domain.ErrValidation, winner)
	}
	started := time.Now()
	log := s.deps.logger().With(zap.Stringer("match_id", matchID), zap.String("winner", string(winner)))

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	m, txErr := s.matchRepo.LockForUpdate(ctx, tx, matchID)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: %w", txErr)
	}
	if m.Status == domain.StatusFinished && m.Winner != nil && *m.Winner == winner {
		txErr = tx.Rollback()
		return &SettlementResult{
			EventID: matchID, EventKind: domain.EventKindMatch, Status: m.Status,
			Winner: winner, AlreadySettled: true,
		}, nil
	}
	if !m.Status.CanSettle() {
		txErr = fmt.Errorf("%w: match %d is %s", domain.ErrInvalidStateTransition, m.FightNumber, m.Status)
		return nil, txErr
	}

	snap, txErr := s.poolRepo.GetFrozen(ctx, tx, matchID)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: %w", txErr)
	}
	bets, txErr := s.betRepo.ListByMatch(ctx, tx, matchID)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: %w", txErr)
	}
	if txErr = s.checkLedger(snap, domain.PoolFromBets(matchID, bets), domain.EventKindMatch, log); txErr != nil {
		return nil, txErr
	}

	plan, txErr := domain.PlanMatchSettlement(snap, bets, winner)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: plan: %w", txErr)
	}
	label := fmt.Sprintf("fight %d %s", m.FightNumber, winner)
	applied, txErr := applyOutcomes(ctx, tx, s.walletRepo, s.betRepo.Settle, plan, label)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: %w", txErr)
	}
	if txErr = s.matchRepo.Finish(ctx, tx, matchID, winner); txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: %w", txErr)
	}
	if txErr = bookHouse(ctx, tx, s.walletRepo, s.cfg.Betting.HouseUserID, domain.EventKindMatch, plan, label); txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("settlement_service.AnnounceWinner: commit: %w", txErr)
	}

	res := resultOf(domain.EventKindMatch, domain.StatusFinished, plan, applied)
	s.deps.Metrics.Settled(string(domain.EventKindMatch), string(domain.StatusFinished), started)
	recordCredits(s.deps.Metrics, domain.EventKindMatch, plan)
	s.pools.Invalidate(ctx, matchID)
	log.Info("match settled",
		zap.Int("won", plan.Won), zap.Int("lost", plan.Lost), zap.Int("refunded", plan.Refunded),
		zap.String("odds", plan.WinnerOdds.String()),
		zap.String("payout_total", plan.PayoutTotal.StringFixed(2)),
		zap.String("commission", plan.Commission.StringFixed(2)),
		zap.String("retained", plan.Retained().StringFixed(2)))
	s.deps.emit(events.EventSettled, domain.EventKindMatch, matchID, res)
	return res, nil
}

// checkLedger verifies the frozen snapshot and reconciles it with the bets.
// A failure is fatal for the run and is logged with the offending selection.
func (s *SettlementService) checkLedger(snap, fromBets *domain.PoolSnapshot, kind domain.EventKind, log *zap.Logger) error {
	err := snap.Verify()
	if err == nil {
		err = snap.Reconcile(fromBets)
	}
	if err != nil {
		s.deps.Metrics.Inconsistent(string(kind))
		log.Error("ledger inconsistency, settlement aborted", zap.Error(err))
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CancelMatch
// ──────────────────────────────────────────────────────────────────────────────

// CancelMatch refunds every pending bet its stake and cancels the match.
// Cancelling a cancelled match returns zero refunds.
func (s *SettlementService) CancelMatch(ctx context.Context, matchID uuid.UUID) (*SettlementResult, error) {
	started := time.Now()

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	m, txErr := s.matchRepo.LockForUpdate(ctx, tx, matchID)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: %w", txErr)
	}
	if m.Status == domain.StatusCancelled {
		txErr = tx.Rollback()
		return &SettlementResult{
			EventID: matchID, EventKind: domain.EventKindMatch, Status: m.Status, AlreadySettled: true,
		}, nil
	}
	if txErr = domain.CheckTransition(m.Status, domain.StatusCancelled); txErr != nil {
		return nil, txErr
	}

	bets, txErr := s.betRepo.ListByMatch(ctx, tx, matchID)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: %w", txErr)
	}
	plan := domain.PlanRefunds(matchID, bets)
	label := fmt.Sprintf("fight %d cancelled", m.FightNumber)
	applied, txErr := applyOutcomes(ctx, tx, s.walletRepo, s.betRepo.Settle, plan, label)
	if txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: %w", txErr)
	}
	if txErr = s.matchRepo.UpdateStatus(ctx, tx, matchID, domain.StatusCancelled); txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: %w", txErr)
	}
	if txErr = bookHouse(ctx, tx, s.walletRepo, s.cfg.Betting.HouseUserID, domain.EventKindMatch, plan, label); txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("settlement_service.CancelMatch: commit: %w", txErr)
	}

	res := resultOf(domain.EventKindMatch, domain.StatusCancelled, plan, applied)
	s.deps.Metrics.Settled(string(domain.EventKindMatch), string(domain.StatusCancelled), started)
	recordCredits(s.deps.Metrics, domain.EventKindMatch, plan)
	s.pools.Invalidate(ctx, matchID)
	s.deps.logger().Info("match cancelled",
		zap.Stringer("match_id", matchID),
		zap.Int("refunded", plan.Refunded),
		zap.String("refund_total", plan.RefundTotal.StringFixed(2)))
	s.deps.emit(events.EventCancelled, domain.EventKindMatch, matchID, res)
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// House ledger
// ──────────────────────────────────────────────────────────────────────────────

// bookHouse writes the house_ledger row of the event and credits the house
// account, when one is configured, with the plasada and with whatever else the
// closed stakes left over. A negative remainder is recorded on the ledger row
// only; payouts are never blocked on the house balance.
func bookHouse(
	ctx context.Context,
	tx *sqlx.Tx,
	wallets *repository.WalletRepository,
	houseID uuid.UUID,
	kind domain.EventKind,
	plan *domain.SettlementPlan,
	label string,
) error {
	retained := plan.Retained()
	if err := wallets.InsertHouseEntry(ctx, tx, &domain.HouseLedgerEntry{
		ID:         uuid.New(),
		EventID:    plan.EventID,
		EventKind:  kind,
		GrossPool:  plan.GrossPool,
		Commission: plan.Commission,
		PaidOut:    plan.PayoutTotal,
		Refunded:   plan.RefundTotal,
		Retained:   retained,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	if houseID == uuid.Nil {
		return nil
	}

	ref := plan.EventID
	credits := []repository.Entry{
		{Amount: plan.Commission, Type: domain.TxCommission, Description: "plasada: " + label},
		{Amount: retained, Type: domain.TxRetained, Description: "retained: " + label},
	}
	for _, e := range credits {
		if !e.Amount.IsPositive() {
			continue
		}
		e.UserID = houseID
		e.RefID = &ref
		if _, err := wallets.Credit(ctx, tx, e); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return fmt.Errorf("house account %s: %w", houseID, err)
			}
			return err
		}
	}
	return nil
}
