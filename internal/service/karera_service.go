package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
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

// ScratchResult is returned by ScratchHorse.
type ScratchResult struct {
	RaceID      uuid.UUID       `json:"race_id"`
	Horse       int             `json:"horse"`
	Already     bool            `json:"already_scratched"`
	Refunded    int             `json:"refunded"`
	RefundTotal decimal.Decimal `json:"refund_total"`
}

// ──────────────────────────────────────────────────────────────────────────────
// KareraService
// ──────────────────────────────────────────────────────────────────────────────

// KareraService runs horse races on the same pool and settlement primitives
// as matches. The race win pool lives in pool_buckets keyed by race id with
// the horse number as selection; exotic and multi-race bets pay declared odds.
type KareraService struct {
	db         *sqlx.DB
	kareraRepo *repository.KareraRepository
	poolRepo   *repository.PoolRepository
	walletRepo *repository.WalletRepository
	userRepo   *repository.UserRepository
	pools      *PoolService
	cfg        *config.Config
	deps       Deps
}

// NewKareraService creates a KareraService.
func NewKareraService(
	db *sqlx.DB,
	kareraRepo *repository.KareraRepository,
	poolRepo *repository.PoolRepository,
	walletRepo *repository.WalletRepository,
	userRepo *repository.UserRepository,
	pools *PoolService,
	cfg *config.Config,
	deps Deps,
) *KareraService {
	return &KareraService{
		db:         db,
		kareraRepo: kareraRepo,
		poolRepo:   poolRepo,
		walletRepo: walletRepo,
		userRepo:   userRepo,
		pools:      pools,
		cfg:        cfg,
		deps:       deps,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Races
// ──────────────────────────────────────────────────────────────────────────────

// CreateRace opens a race with its field of horses.
func (s *KareraService) CreateRace(ctx context.Context, name string, horses []domain.Horse) (*domain.Race, error) {
	if len(horses) < 2 {
		return nil, fmt.Errorf("%w: a race needs at least two horses", domain.ErrValidation)
	}
	seen := make(map[int]bool, len(horses))
	for _, h := range horses {
		if h.Number <= 0 || seen[h.Number] {
			return nil, fmt.Errorf("%w: horse numbers must be positive and distinct", domain.ErrValidation)
		}
		seen[h.Number] = true
	}
	n, err := s.kareraRepo.NextRaceNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("karera_service.CreateRace: %w", err)
	}
	now := time.Now().UTC()
	race := &domain.Race{
		ID:         uuid.New(),
		RaceNumber: n,
		Name:       strings.TrimSpace(name),
		Status:     domain.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.kareraRepo.CreateRace(ctx, race, horses); err != nil {
		return nil, fmt.Errorf("karera_service.CreateRace: %w", err)
	}
	s.deps.logger().Info("race created", zap.Stringer("race_id", race.ID), zap.Int("race", n), zap.Int("horses", len(horses)))
	s.deps.emit(events.EventStatus, domain.EventKindRace, race.ID, StatusChange{To: domain.StatusOpen})
	return race, nil
}

// AddHorse enters a late horse while the race is still open.
func (s *KareraService) AddHorse(ctx context.Context, raceID uuid.UUID, h domain.Horse) error {
	if h.Number <= 0 {
		return fmt.Errorf("%w: horse number must be positive", domain.ErrValidation)
	}
	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return fmt.Errorf("karera_service.AddHorse: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	race, txErr := s.kareraRepo.LockRaceForUpdate(ctx, tx, raceID)
	if txErr != nil {
		return fmt.Errorf("karera_service.AddHorse: %w", txErr)
	}
	if race.Status != domain.StatusOpen {
		txErr = fmt.Errorf("%w: race %d is %s", domain.ErrInvalidStateTransition, race.RaceNumber, race.Status)
		return txErr
	}
	h.RaceID = raceID
	if txErr = s.kareraRepo.AddHorse(ctx, tx, &h); txErr != nil {
		return txErr
	}
	if txErr = tx.Commit(); txErr != nil {
		return fmt.Errorf("karera_service.AddHorse: commit: %w", txErr)
	}
	s.pools.Invalidate(ctx, raceID)
	return nil
}

// GetRace returns a race with horses, win pool and odds.
func (s *KareraService) GetRace(ctx context.Context, id uuid.UUID) (*domain.RaceView, error) {
	return s.pools.RaceView(ctx, id)
}

// ListRaces returns races filtered by status ("" means all).
func (s *KareraService) ListRaces(ctx context.Context, status string, limit, offset int) ([]*domain.Race, error) {
	limit, offset = clampPage(limit, offset)
	var statuses []domain.EventStatus
	if status != "" {
		st := domain.EventStatus(status)
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
		}
		statuses = append(statuses, st)
	}
	races, err := s.kareraRepo.ListRaces(ctx, statuses, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("karera_service.ListRaces: %w", err)
	}
	return races, nil
}

// SetStatus moves a race to last_call, closed or ongoing. Closing freezes the
// win pool like a match close.
func (s *KareraService) SetStatus(ctx context.Context, raceID uuid.UUID, to domain.EventStatus) (*domain.Race, error) {
	switch to {
	case domain.StatusLastCall, domain.StatusClosed, domain.StatusOngoing:
	default:
		return nil, fmt.Errorf("%w: status %q cannot be set directly", domain.ErrValidation, to)
	}

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.SetStatus: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	race, txErr := s.kareraRepo.LockRaceForUpdate(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.SetStatus: %w", txErr)
	}
	from := race.Status
	if txErr = domain.CheckTransition(from, to); txErr != nil {
		return nil, txErr
	}
	if to == domain.StatusClosed {
		if txErr = s.freeze(ctx, tx, raceID); txErr != nil {
			return nil, txErr
		}
	}
	if txErr = s.kareraRepo.UpdateRaceStatus(ctx, tx, raceID, to); txErr != nil {
		return nil, fmt.Errorf("karera_service.SetStatus: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("karera_service.SetStatus: commit: %w", txErr)
	}

	race.Status = to
	s.pools.Invalidate(ctx, raceID)
	s.deps.emit(events.EventStatus, domain.EventKindRace, raceID, StatusChange{From: from, To: to})
	return race, nil
}

func (s *KareraService) freeze(ctx context.Context, tx *sqlx.Tx, raceID uuid.UUID) error {
	horses, err := s.kareraRepo.ListHorses(ctx, tx, raceID)
	if err != nil {
		return fmt.Errorf("karera_service.freeze: %w", err)
	}
	snap, err := s.pools.live(ctx, tx, raceID, domain.EventKindRace, domain.WinSelections(horses))
	if err != nil {
		return fmt.Errorf("karera_service.freeze: %w", err)
	}
	if err := snap.Verify(); err != nil {
		s.deps.Metrics.Inconsistent(string(domain.EventKindRace))
		s.deps.logger().Error("win pool inconsistent at close", zap.Stringer("race_id", raceID), zap.Error(err))
		return err
	}
	if err := s.poolRepo.Freeze(ctx, tx, domain.EventKindRace, snap); err != nil {
		return fmt.Errorf("karera_service.freeze: %w", err)
	}
	return nil
}

// refreeze rewrites the frozen win pool of a closed race from its live
// buckets. Rate, policy and draw multiplier stay as frozen at close.
func (s *KareraService) refreeze(ctx context.Context, tx *sqlx.Tx, raceID uuid.UUID) error {
	frozen, err := s.poolRepo.GetFrozen(ctx, tx, raceID)
	if err != nil {
		return fmt.Errorf("karera_service.refreeze: %w", err)
	}
	horses, err := s.kareraRepo.ListHorses(ctx, tx, raceID)
	if err != nil {
		return fmt.Errorf("karera_service.refreeze: %w", err)
	}
	snap, err := s.poolRepo.Snapshot(ctx, tx, raceID, domain.WinSelections(horses)...)
	if err != nil {
		return fmt.Errorf("karera_service.refreeze: %w", err)
	}
	snap.Rate, snap.Basis, snap.DrawMultiplier = frozen.Rate, frozen.Basis, frozen.DrawMultiplier
	if err := snap.Verify(); err != nil {
		s.deps.Metrics.Inconsistent(string(domain.EventKindRace))
		s.deps.logger().Error("win pool inconsistent after scratch", zap.Stringer("race_id", raceID), zap.Error(err))
		return err
	}
	if err := s.poolRepo.ReplaceFrozenBuckets(ctx, tx, snap); err != nil {
		return fmt.Errorf("karera_service.refreeze: %w", err)
	}
	return nil
}

// ExpireLastCall closes every race whose last-call window has elapsed.
func (s *KareraService) ExpireLastCall(ctx context.Context) (int, error) {
	races, err := s.kareraRepo.ListExpiredLastCall(ctx, time.Now().Add(-s.cfg.Betting.LastCallWindow))
	if err != nil {
		return 0, fmt.Errorf("karera_service.ExpireLastCall: %w", err)
	}
	closed := 0
	for _, r := range races {
		if _, err := s.SetStatus(ctx, r.ID, domain.StatusClosed); err != nil {
			s.deps.logger().Error("auto-close failed", zap.Stringer("race_id", r.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBet
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBet places a karera bet. Every race the bet touches is share-locked in
// id order and must be taking bets; every picked horse must be entered and
// not scratched. Win stakes also go into the race win pool.
func (s *KareraService) PlaceBet(ctx context.Context, req domain.PlaceKareraBetRequest) (*domain.KareraBet, error) {
	if req.Source == "" {
		req.Source = domain.SourceUser
	}
	if err := req.Validate(decimal.NewFromFloat(s.cfg.Betting.MinStake)); err != nil {
		return nil, err
	}
	p, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("karera_service.PlaceBet: %w", err)
	}
	if p.IsBanned {
		return nil, domain.ErrUserBanned
	}
	if req.Source == domain.SourceBot && !p.IsBot {
		return nil, fmt.Errorf("%w: %s is not a bot account", domain.ErrValidation, p.Username)
	}

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.PlaceBet: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, raceID := range legRaces(req.Legs) {
		race, err := s.kareraRepo.LockRaceForShare(ctx, tx, raceID)
		if err != nil {
			txErr = fmt.Errorf("karera_service.PlaceBet: %w", err)
			return nil, txErr
		}
		if !race.Status.AcceptsBets() || lastCallOver(race, s.cfg.Betting.LastCallWindow, now) {
			txErr = fmt.Errorf("%w: race %d is %s", domain.ErrInvalidStateTransition, race.RaceNumber, race.Status)
			return nil, txErr
		}
		horses, err := s.kareraRepo.ListHorses(ctx, tx, raceID)
		if err != nil {
			txErr = fmt.Errorf("karera_service.PlaceBet: %w", err)
			return nil, txErr
		}
		if txErr = checkPicks(req.Legs, raceID, horses); txErr != nil {
			return nil, txErr
		}
	}

	bet := &domain.KareraBet{
		ID:       uuid.New(),
		UserID:   req.UserID,
		BetType:  req.BetType,
		Amount:   req.Amount,
		Source:   req.Source,
		Status:   domain.BetStatusPending,
		PlacedAt: now,
		Legs:     append([]domain.KareraLeg(nil), req.Legs...),
	}
	ref := bet.ID
	if _, txErr = s.walletRepo.Debit(ctx, tx, repository.Entry{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        domain.TxBet,
		RefID:       &ref,
		Description: "karera bet: " + string(req.BetType),
	}); txErr != nil {
		return nil, fmt.Errorf("karera_service.PlaceBet: debit: %w", txErr)
	}
	if txErr = s.kareraRepo.CreateBet(ctx, tx, bet); txErr != nil {
		return nil, fmt.Errorf("karera_service.PlaceBet: %w", txErr)
	}
	if bet.BetType == domain.BetTypeWin {
		leg := bet.Legs[0]
		if txErr = s.poolRepo.RecordStake(ctx, tx, leg.RaceID, domain.HorseSelection(leg.Horse), bet.Amount, bet.Source); txErr != nil {
			return nil, fmt.Errorf("karera_service.PlaceBet: %w", txErr)
		}
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("karera_service.PlaceBet: commit: %w", txErr)
	}

	s.deps.Metrics.BetPlaced(string(domain.EventKindRace), string(bet.Source), bet.Amount.InexactFloat64())
	first := bet.Legs[0].RaceID
	if bet.BetType == domain.BetTypeWin {
		s.pools.Invalidate(ctx, first)
	}
	go s.deps.emit(events.BetPlaced, domain.EventKindRace, first, bet)
	return bet, nil
}

// legRaces returns the distinct races of legs in a stable lock order.
func legRaces(legs []domain.KareraLeg) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(legs))
	var out []uuid.UUID
	for _, l := range legs {
		if !seen[l.RaceID] {
			seen[l.RaceID] = true
			out = append(out, l.RaceID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func lastCallOver(r *domain.Race, window time.Duration, now time.Time) bool {
	return r.Status == domain.StatusLastCall && r.LastCallAt != nil && !now.Before(r.LastCallAt.Add(window))
}

// checkPicks requires every leg on raceID to pick an entered, running horse.
func checkPicks(legs []domain.KareraLeg, raceID uuid.UUID, horses []domain.Horse) error {
	entered := make(map[int]domain.Horse, len(horses))
	for _, h := range horses {
		entered[h.Number] = h
	}
	for _, l := range legs {
		if l.RaceID != raceID {
			continue
		}
		h, ok := entered[l.Horse]
		if !ok {
			return fmt.Errorf("%w: horse %d", domain.ErrHorseNotFound, l.Horse)
		}
		if h.Scratched {
			return fmt.Errorf("%w: horse %d is scratched", domain.ErrValidation, l.Horse)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Scratch
// ──────────────────────────────────────────────────────────────────────────────

// ScratchHorse withdraws a horse and refunds, right away, every pending bet
// with a leg on it. Win stakes on the horse leave the live pool. Once the race
// has closed the frozen win pool is rebuilt without them, keeping the rate
// frozen at close. A settled or cancelled race cannot be scratched.
func (s *KareraService) ScratchHorse(ctx context.Context, raceID uuid.UUID, horse int) (*ScratchResult, error) {
	started := time.Now()

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.ScratchHorse: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	race, txErr := s.kareraRepo.LockRaceForUpdate(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.ScratchHorse: %w", txErr)
	}
	if race.Status.IsTerminal() {
		txErr = fmt.Errorf("%w: race %d is %s", domain.ErrInvalidStateTransition, race.RaceNumber, race.Status)
		return nil, txErr
	}
	changed, txErr := s.kareraRepo.ScratchHorse(ctx, tx, raceID, horse)
	if txErr != nil {
		return nil, txErr
	}
	if !changed {
		txErr = tx.Rollback()
		return &ScratchResult{RaceID: raceID, Horse: horse, Already: true}, nil
	}

	bets, txErr := s.kareraRepo.ListBetsByRace(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.ScratchHorse: %w", txErr)
	}
	plan := domain.PlanScratch(raceID, horse, bets)
	for i := range bets {
		b := &bets[i]
		if b.BetType != domain.BetTypeWin || !b.IsPending() || !b.HasHorse(raceID, horse) {
			continue
		}
		if txErr = s.poolRepo.ReleaseStake(ctx, tx, raceID, domain.HorseSelection(horse), b.Amount, b.Source); txErr != nil {
			s.deps.Metrics.Inconsistent(string(domain.EventKindRace))
			return nil, fmt.Errorf("karera_service.ScratchHorse: %w", txErr)
		}
	}
	if !race.Status.AcceptsBets() {
		if txErr = s.refreeze(ctx, tx, raceID); txErr != nil {
			return nil, txErr
		}
	}
	if txErr = s.applyRacePlan(ctx, tx, plan, fmt.Sprintf("race %d horse %d scratched", race.RaceNumber, horse)); txErr != nil {
		return nil, fmt.Errorf("karera_service.ScratchHorse: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("karera_service.ScratchHorse: commit: %w", txErr)
	}

	res := &ScratchResult{RaceID: raceID, Horse: horse, Refunded: plan.Refunded, RefundTotal: plan.RefundTotal}
	s.deps.Metrics.Settled(string(domain.EventKindRace), "scratched", started)
	recordCredits(s.deps.Metrics, domain.EventKindRace, &plan.SettlementPlan)
	s.pools.Invalidate(ctx, raceID)
	s.deps.logger().Info("horse scratched",
		zap.Stringer("race_id", raceID), zap.Int("horse", horse),
		zap.Int("refunded", plan.Refunded), zap.String("refund_total", plan.RefundTotal.StringFixed(2)))
	s.deps.emit(events.HorseScratched, domain.EventKindRace, raceID, res)
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// AnnounceWinner / CancelRace
// ──────────────────────────────────────────────────────────────────────────────

// AnnounceWinner settles every leg on the race from the finish order. Win
// bets pay pari-mutuel odds from the frozen win pool unless odds["win"] is
// given; other types pay odds[type]. Re-announcing the same finish order on a
// finished race is a no-op.
func (s *KareraService) AnnounceWinner(ctx context.Context, raceID uuid.UUID, finish domain.FinishOrder, odds domain.OddsMap) (*SettlementResult, error) {
	started := time.Now()
	log := s.deps.logger().With(zap.Stringer("race_id", raceID), zap.Ints("finish", finish))

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	race, txErr := s.kareraRepo.LockRaceForUpdate(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	if race.Status == domain.StatusFinished && race.FinishOrder.Equal(finish) {
		txErr = tx.Rollback()
		return &SettlementResult{EventID: raceID, EventKind: domain.EventKindRace, Status: race.Status, AlreadySettled: true}, nil
	}
	if !race.Status.CanSettle() {
		txErr = fmt.Errorf("%w: race %d is %s", domain.ErrInvalidStateTransition, race.RaceNumber, race.Status)
		return nil, txErr
	}

	horses, txErr := s.kareraRepo.ListHorses(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	if txErr = domain.ValidateFinishOrder(finish, horses); txErr != nil {
		return nil, txErr
	}
	snap, txErr := s.poolRepo.GetFrozen(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	bets, txErr := s.kareraRepo.ListBetsByRace(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	txErr = snap.Verify()
	if txErr == nil {
		txErr = snap.Reconcile(domain.WinPoolFromBets(raceID, bets))
	}
	if txErr != nil {
		s.deps.Metrics.Inconsistent(string(domain.EventKindRace))
		log.Error("ledger inconsistency, settlement aborted", zap.Error(txErr))
		return nil, txErr
	}

	plan, txErr := domain.PlanRaceSettlement(raceID, snap, bets, finish, odds)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: plan: %w", txErr)
	}
	label := fmt.Sprintf("race %d", race.RaceNumber)
	if txErr = s.applyRacePlan(ctx, tx, plan, label); txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	if txErr = s.kareraRepo.FinishRace(ctx, tx, raceID, finish); txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	if txErr = bookHouse(ctx, tx, s.walletRepo, s.cfg.Betting.HouseUserID, domain.EventKindRace, &plan.SettlementPlan, label); txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("karera_service.AnnounceWinner: commit: %w", txErr)
	}

	res := resultOf(domain.EventKindRace, domain.StatusFinished, &plan.SettlementPlan, len(plan.Outcomes))
	s.deps.Metrics.Settled(string(domain.EventKindRace), string(domain.StatusFinished), started)
	recordCredits(s.deps.Metrics, domain.EventKindRace, &plan.SettlementPlan)
	s.pools.Invalidate(ctx, raceID)
	log.Info("race settled",
		zap.Int("won", plan.Won), zap.Int("lost", plan.Lost), zap.Int("legs", len(plan.Legs)),
		zap.String("payout_total", plan.PayoutTotal.StringFixed(2)))
	s.deps.emit(events.EventSettled, domain.EventKindRace, raceID, res)
	return res, nil
}

// CancelRace refunds every pending bet with a leg in the race and cancels it.
func (s *KareraService) CancelRace(ctx context.Context, raceID uuid.UUID) (*SettlementResult, error) {
	started := time.Now()

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	race, txErr := s.kareraRepo.LockRaceForUpdate(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: %w", txErr)
	}
	if race.Status == domain.StatusCancelled {
		txErr = tx.Rollback()
		return &SettlementResult{EventID: raceID, EventKind: domain.EventKindRace, Status: race.Status, AlreadySettled: true}, nil
	}
	if txErr = domain.CheckTransition(race.Status, domain.StatusCancelled); txErr != nil {
		return nil, txErr
	}

	bets, txErr := s.kareraRepo.ListBetsByRace(ctx, tx, raceID)
	if txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: %w", txErr)
	}
	plan := domain.PlanRaceRefunds(raceID, bets)
	label := fmt.Sprintf("race %d cancelled", race.RaceNumber)
	if txErr = s.applyRacePlan(ctx, tx, plan, label); txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: %w", txErr)
	}
	if txErr = s.kareraRepo.UpdateRaceStatus(ctx, tx, raceID, domain.StatusCancelled); txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: %w", txErr)
	}
	if txErr = bookHouse(ctx, tx, s.walletRepo, s.cfg.Betting.HouseUserID, domain.EventKindRace, &plan.SettlementPlan, label); txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("karera_service.CancelRace: commit: %w", txErr)
	}

	res := resultOf(domain.EventKindRace, domain.StatusCancelled, &plan.SettlementPlan, len(plan.Outcomes))
	s.deps.Metrics.Settled(string(domain.EventKindRace), string(domain.StatusCancelled), started)
	recordCredits(s.deps.Metrics, domain.EventKindRace, &plan.SettlementPlan)
	s.pools.Invalidate(ctx, raceID)
	s.deps.emit(events.EventCancelled, domain.EventKindRace, raceID, res)
	return res, nil
}

// applyRacePlan writes leg results, then the bet outcomes and credits.
func (s *KareraService) applyRacePlan(ctx context.Context, tx *sqlx.Tx, plan *domain.RacePlan, label string) error {
	for _, u := range plan.Legs {
		if err := s.kareraRepo.UpdateLeg(ctx, tx, u); err != nil {
			return err
		}
	}
	_, err := applyOutcomes(ctx, tx, s.walletRepo, s.kareraRepo.SettleBet, &plan.SettlementPlan, label)
	return err
}

// GetMyBets returns a user's karera bets with legs.
func (s *KareraService) GetMyBets(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.KareraBet, error) {
	limit, offset = clampPage(limit, offset)
	bets, err := s.kareraRepo.ListBetsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("karera_service.GetMyBets: %w", err)
	}
	return bets, nil
}
