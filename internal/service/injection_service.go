package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
)

// InjectionStats is the house liquidity view for the risk dashboard.
type InjectionStats struct {
	domain.InjectionStats
	HouseBalance decimal.Decimal `json:"house_balance"`
}

// InjectRequest seeds house liquidity on one side of a match.
type InjectRequest struct {
	MatchID    uuid.UUID
	Selection  domain.Selection
	Amount     decimal.Decimal
	InjectedBy uuid.UUID
	Reason     string
}

// ──────────────────────────────────────────────────────────────────────────────
// InjectionService
// ──────────────────────────────────────────────────────────────────────────────

// InjectionService places house-funded stakes tagged injection. They land in
// the injection bucket and the grand total only, debit the house account and
// leave an audit row in pool_injections.
type InjectionService struct {
	bets       *BetService
	poolRepo   *repository.PoolRepository
	walletRepo *repository.WalletRepository
	cfg        *config.Config
	deps       Deps
}

// NewInjectionService creates an InjectionService.
func NewInjectionService(
	bets *BetService,
	poolRepo *repository.PoolRepository,
	walletRepo *repository.WalletRepository,
	cfg *config.Config,
	deps Deps,
) *InjectionService {
	return &InjectionService{
		bets:       bets,
		poolRepo:   poolRepo,
		walletRepo: walletRepo,
		cfg:        cfg,
		deps:       deps,
	}
}

// Inject places the stake from the house account.
func (s *InjectionService) Inject(ctx context.Context, req InjectRequest) (*domain.Bet, error) {
	if req.InjectedBy == uuid.Nil {
		return nil, fmt.Errorf("%w: injecting admin is required", domain.ErrValidation)
	}
	reason := strings.TrimSpace(req.Reason)
	audit := func(ctx context.Context, tx *sqlx.Tx, bet *domain.Bet) error {
		return s.poolRepo.LogInjection(ctx, tx, &domain.InjectionLog{
			ID:         uuid.New(),
			EventID:    bet.MatchID,
			EventKind:  domain.EventKindMatch,
			Selection:  bet.Selection,
			Amount:     bet.Amount,
			BetID:      bet.ID,
			InjectedBy: req.InjectedBy,
			Reason:     reason,
			CreatedAt:  time.Now().UTC(),
		})
	}

	bet, err := s.bets.place(ctx, domain.PlaceBetRequest{
		UserID:    s.cfg.Betting.HouseUserID,
		MatchID:   req.MatchID,
		Selection: req.Selection,
		Amount:    req.Amount,
		Source:    domain.SourceInjection,
	}, audit)
	if err != nil {
		return nil, fmt.Errorf("injection_service.Inject: %w", err)
	}

	s.deps.logger().Info("pool injection",
		zap.Stringer("match_id", req.MatchID),
		zap.String("selection", string(req.Selection)),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Stringer("by", req.InjectedBy),
		zap.String("reason", reason))
	return bet, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Stats / audit
// ──────────────────────────────────────────────────────────────────────────────

// Stats returns injection totals and the current house balance.
func (s *InjectionService) Stats(ctx context.Context) (*InjectionStats, error) {
	st, err := s.poolRepo.InjectionStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("injection_service.Stats: %w", err)
	}
	bal, err := s.walletRepo.GetBalance(ctx, s.cfg.Betting.HouseUserID)
	if err != nil {
		return nil, fmt.Errorf("injection_service.Stats: house balance: %w", err)
	}
	return &InjectionStats{InjectionStats: *st, HouseBalance: bal}, nil
}

// List returns injection audit rows; eventID = uuid.Nil lists all events.
func (s *InjectionService) List(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]*domain.InjectionLog, error) {
	limit, offset = clampPage(limit, offset)
	logs, err := s.poolRepo.ListInjections(ctx, eventID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("injection_service.List: %w", err)
	}
	return logs, nil
}
