package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/repository"
)

// MatchService handles the match lifecycle: creation, status changes, the
// pool freeze at close and the last-call expiry sweep.
type MatchService struct {
	db        *sqlx.DB
	matchRepo *repository.MatchRepository
	poolRepo  *repository.PoolRepository
	pools     *PoolService
	cfg       *config.Config
	deps      Deps
}

// NewMatchService creates a MatchService.
func NewMatchService(
	db *sqlx.DB,
	matchRepo *repository.MatchRepository,
	poolRepo *repository.PoolRepository,
	pools *PoolService,
	cfg *config.Config,
	deps Deps,
) *MatchService {
	return &MatchService{
		db:        db,
		matchRepo: matchRepo,
		poolRepo:  poolRepo,
		pools:     pools,
		cfg:       cfg,
		deps:      deps,
	}
}

// StatusChange is the payload of an event_status event.
type StatusChange struct {
	From domain.EventStatus `json:"from"`
	To   domain.EventStatus `json:"to"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Create / query
// ──────────────────────────────────────────────────────────────────────────────

// CreateMatch opens a new fight with the next fight number.
func (s *MatchService) CreateMatch(ctx context.Context, meron, wala string, createdBy uuid.UUID) (*domain.Match, error) {
	meron, wala = strings.TrimSpace(meron), strings.TrimSpace(wala)
	if meron == "" || wala == "" {
		return nil, fmt.Errorf("%w: meron and wala names are required", domain.ErrValidation)
	}
	n, err := s.matchRepo.NextFightNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("match_service.CreateMatch: %w", err)
	}
	now := time.Now().UTC()
	by := createdBy
	m := &domain.Match{
		ID:          uuid.New(),
		FightNumber: n,
		MeronName:   meron,
		WalaName:    wala,
		Status:      domain.StatusOpen,
		CreatedBy:   &by,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.matchRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("match_service.CreateMatch: %w", err)
	}
	s.deps.logger().Info("match created", zap.Stringer("match_id", m.ID), zap.Int("fight", n))
	s.deps.emit(events.EventStatus, domain.EventKindMatch, m.ID, StatusChange{To: domain.StatusOpen})
	return m, nil
}

// GetMatch returns a match with its pool and odds.
func (s *MatchService) GetMatch(ctx context.Context, id uuid.UUID) (*domain.MatchView, error) {
	return s.pools.MatchView(ctx, id)
}

// ListMatches returns matches filtered by status ("" means all).
func (s *MatchService) ListMatches(ctx context.Context, status string, limit, offset int) ([]*domain.Match, error) {
	limit, offset = clampPage(limit, offset)
	var statuses []domain.EventStatus
	if status != "" {
		for _, part := range strings.Split(status, ",") {
			st := domain.EventStatus(strings.TrimSpace(part))
			if !st.IsValid() {
				return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, st)
			}
			statuses = append(statuses, st)
		}
	}
	matches, err := s.matchRepo.List(ctx, statuses, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("match_service.ListMatches: %w", err)
	}
	return matches, nil
}

// StatusCounts returns how many matches sit in each status.
func (s *MatchService) StatusCounts(ctx context.Context) (map[domain.EventStatus]int, error) {
	counts, err := s.matchRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("match_service.StatusCounts: %w", err)
	}
	return counts, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Status changes
// ──────────────────────────────────────────────────────────────────────────────

// LastCall moves an open match into its last-call window.
func (s *MatchService) LastCall(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	return s.transition(ctx, id, domain.StatusLastCall)
}

// Close stops betting and freezes the pool snapshot with the current plasada
// rate, payout basis and draw multiplier.
func (s *MatchService) Close(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	return s.transition(ctx, id, domain.StatusClosed)
}

// Start marks a closed match as ongoing.
func (s *MatchService) Start(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	return s.transition(ctx, id, domain.StatusOngoing)
}

// SetStatus dispatches an admin status request. Finishing and cancelling go
// through SettlementService.
func (s *MatchService) SetStatus(ctx context.Context, id uuid.UUID, to domain.EventStatus) (*domain.Match, error) {
	switch to {
	case domain.StatusLastCall, domain.StatusClosed, domain.StatusOngoing:
		return s.transition(ctx, id, to)
	}
	return nil, fmt.Errorf("%w: status %q cannot be set directly", domain.ErrValidation, to)
}

func (s *MatchService) transition(ctx context.Context, id uuid.UUID, to domain.EventStatus) (*domain.Match, error) {
	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("match_service.transition: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	m, txErr := s.matchRepo.LockForUpdate(ctx, tx, id)
	if txErr != nil {
		return nil, fmt.Errorf("match_service.transition: %w", txErr)
	}
	from := m.Status
	if txErr = domain.CheckTransition(from, to); txErr != nil {
		return nil, txErr
	}

	if to == domain.StatusClosed {
		if txErr = s.freeze(ctx, tx, id); txErr != nil {
			return nil, txErr
		}
	}
	if txErr = s.matchRepo.UpdateStatus(ctx, tx, id, to); txErr != nil {
		return nil, fmt.Errorf("match_service.transition: %w", txErr)
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("match_service.transition: commit: %w", txErr)
	}

	m.Status = to
	s.pools.Invalidate(ctx, id)
	s.deps.logger().Info("match status changed",
		zap.Stringer("match_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	s.deps.emit(events.EventStatus, domain.EventKindMatch, id, StatusChange{From: from, To: to})
	return m, nil
}

// freeze copies the live pool into pool_snapshots inside the closing tx. The
// bucket rows are read under the match FOR UPDATE lock, so no stake can land
// between the read and the status change.
func (s *MatchService) freeze(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	snap, err := s.pools.live(ctx, tx, id, domain.EventKindMatch, domain.SabongSelections)
	if err != nil {
		return fmt.Errorf("match_service.freeze: %w", err)
	}
	if err := snap.Verify(); err != nil {
		s.deps.Metrics.Inconsistent(string(domain.EventKindMatch))
		s.deps.logger().Error("pool inconsistent at close", zap.Stringer("match_id", id), zap.Error(err))
		return err
	}
	if err := s.poolRepo.Freeze(ctx, tx, domain.EventKindMatch, snap); err != nil {
		return fmt.Errorf("match_service.freeze: %w", err)
	}
	return nil
}

// ExpireLastCall closes every match whose last-call window has elapsed. One
// failing match does not stop the others.
func (s *MatchService) ExpireLastCall(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.Betting.LastCallWindow)
	matches, err := s.matchRepo.ListExpiredLastCall(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("match_service.ExpireLastCall: %w", err)
	}
	closed := 0
	for _, m := range matches {
		if _, err := s.Close(ctx, m.ID); err != nil {
			s.deps.logger().Error("auto-close failed", zap.Stringer("match_id", m.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}
