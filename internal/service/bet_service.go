package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// BetService
// ──────────────────────────────────────────────────────────────────────────────

// BetService places sabong bets of every source. The wallet debit, pool
// increment and bet row are one PostgreSQL transaction.
type BetService struct {
	db         *sqlx.DB
	betRepo    *repository.BetRepository
	matchRepo  *repository.MatchRepository
	poolRepo   *repository.PoolRepository
	walletRepo *repository.WalletRepository
	userRepo   *repository.UserRepository
	pools      *PoolService
	cfg        *config.Config
	deps       Deps
}

// NewBetService creates a BetService.
func NewBetService(
	db *sqlx.DB,
	betRepo *repository.BetRepository,
	matchRepo *repository.MatchRepository,
	poolRepo *repository.PoolRepository,
	walletRepo *repository.WalletRepository,
	userRepo *repository.UserRepository,
	pools *PoolService,
	cfg *config.Config,
	deps Deps,
) *BetService {
	return &BetService{
		db:         db,
		betRepo:    betRepo,
		matchRepo:  matchRepo,
		poolRepo:   poolRepo,
		walletRepo: walletRepo,
		userRepo:   userRepo,
		pools:      pools,
		cfg:        cfg,
		deps:       deps,
	}
}

func (s *BetService) minStake() decimal.Decimal {
	return decimal.NewFromFloat(s.cfg.Betting.MinStake)
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBet
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBet places a user bet.
func (s *BetService) PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (*domain.Bet, error) {
	req.Source = domain.SourceUser
	p, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.PlaceBet: %w", err)
	}
	if p.IsBanned {
		return nil, domain.ErrUserBanned
	}
	return s.place(ctx, req, nil)
}

// PlaceBotBet places a bet from a bot account. The stake is tagged bot so it
// can be isolated from user money in the pool.
func (s *BetService) PlaceBotBet(ctx context.Context, req domain.PlaceBetRequest) (*domain.Bet, error) {
	req.Source = domain.SourceBot
	p, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.PlaceBotBet: %w", err)
	}
	if !p.IsBot {
		return nil, fmt.Errorf("%w: %s is not a bot account", domain.ErrValidation, p.Username)
	}
	return s.place(ctx, req, nil)
}

// afterPlace runs inside the placement transaction once the bet row exists.
type afterPlace func(ctx context.Context, tx *sqlx.Tx, bet *domain.Bet) error

// place validates the request, then in one transaction: share-locks the
// match, debits the wallet, increments the pool bucket and inserts the bet.
// The match lock is taken before the wallet lock, the same order settlement
// uses.
func (s *BetService) place(ctx context.Context, req domain.PlaceBetRequest, after afterPlace) (*domain.Bet, error) {
	if err := req.Validate(s.minStake()); err != nil {
		return nil, err
	}

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("bet_service.place: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	m, txErr := s.matchRepo.LockForShare(ctx, tx, req.MatchID)
	if txErr != nil {
		return nil, fmt.Errorf("bet_service.place: %w", txErr)
	}
	now := time.Now().UTC()
	if !m.AcceptsBets() || m.LastCallExpired(s.cfg.Betting.LastCallWindow, now) {
		txErr = fmt.Errorf("%w: match %d is %s", domain.ErrInvalidStateTransition, m.FightNumber, m.Status)
		return nil, txErr
	}

	bet := &domain.Bet{
		ID:        uuid.New(),
		UserID:    req.UserID,
		MatchID:   req.MatchID,
		Selection: req.Selection,
		Amount:    req.Amount,
		Source:    req.Source,
		Status:    domain.BetStatusPending,
		PlacedAt:  now,
	}
	ref := bet.ID
	if _, txErr = s.walletRepo.Debit(ctx, tx, repository.Entry{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        domain.TxBet,
		RefID:       &ref,
		Description: fmt.Sprintf("bet: fight %d %s", m.FightNumber, req.Selection),
	}); txErr != nil {
		return nil, fmt.Errorf("bet_service.place: debit: %w", txErr)
	}
	if txErr = s.poolRepo.RecordStake(ctx, tx, req.MatchID, req.Selection, req.Amount, req.Source); txErr != nil {
		return nil, fmt.Errorf("bet_service.place: %w", txErr)
	}
	if txErr = s.betRepo.Create(ctx, tx, bet); txErr != nil {
		return nil, fmt.Errorf("bet_service.place: %w", txErr)
	}
	if after != nil {
		if txErr = after(ctx, tx, bet); txErr != nil {
			return nil, fmt.Errorf("bet_service.place: %w", txErr)
		}
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("bet_service.place: commit: %w", txErr)
	}

	s.deps.Metrics.BetPlaced(string(domain.EventKindMatch), string(bet.Source), bet.Amount.InexactFloat64())
	s.pools.Invalidate(ctx, bet.MatchID)
	go s.deps.emit(events.BetPlaced, domain.EventKindMatch, bet.MatchID, bet.ToResponse())
	return bet, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────────────────────────────────

// GetMyBets returns paginated bets for a user.
func (s *BetService) GetMyBets(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Bet, error) {
	limit, offset = clampPage(limit, offset)
	bets, err := s.betRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("bet_service.GetMyBets: %w", err)
	}
	return bets, nil
}

// GetBetByID returns a single bet only if it belongs to userID.
func (s *BetService) GetBetByID(ctx context.Context, betID uuid.UUID, userID uuid.UUID) (*domain.Bet, error) {
	bet, err := s.betRepo.GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.GetBetByID: %w", err)
	}
	if bet.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return bet, nil
}

// Exposure returns pending stake per match, selection and source.
func (s *BetService) Exposure(ctx context.Context) ([]repository.MatchExposure, error) {
	rows, err := s.betRepo.PendingExposure(ctx)
	if err != nil {
		return nil, fmt.Errorf("bet_service.Exposure: %w", err)
	}
	return rows, nil
}
