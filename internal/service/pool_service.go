package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/cache"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
)

// PoolService answers get_pool_snapshot: the live pool while betting is open
// and the frozen snapshot once the event has closed.
type PoolService struct {
	poolRepo   *repository.PoolRepository
	matchRepo  *repository.MatchRepository
	kareraRepo *repository.KareraRepository
	settings   *SettingsService
	cache      *cache.PoolCache
	deps       Deps
}

// NewPoolService creates a PoolService. c may be nil.
func NewPoolService(
	poolRepo *repository.PoolRepository,
	matchRepo *repository.MatchRepository,
	kareraRepo *repository.KareraRepository,
	settings *SettingsService,
	c *cache.PoolCache,
	deps Deps,
) *PoolService {
	return &PoolService{
		poolRepo:   poolRepo,
		matchRepo:  matchRepo,
		kareraRepo: kareraRepo,
		settings:   settings,
		cache:      c,
		deps:       deps,
	}
}

// Snapshot returns the pool of a match by selection and source.
func (s *PoolService) Snapshot(ctx context.Context, matchID uuid.UUID) (*domain.PoolSnapshot, error) {
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("pool_service.Snapshot: %w", err)
	}
	return s.snapshot(ctx, matchID, m.Status, domain.EventKindMatch, domain.SabongSelections)
}

// MatchView returns a match with its pool and decimal/HK/Malay odds.
func (s *PoolService) MatchView(ctx context.Context, matchID uuid.UUID) (*domain.MatchView, error) {
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("pool_service.MatchView: %w", err)
	}
	return s.viewOf(ctx, m)
}

func (s *PoolService) viewOf(ctx context.Context, m *domain.Match) (*domain.MatchView, error) {
	snap, err := s.snapshot(ctx, m.ID, m.Status, domain.EventKindMatch, domain.SabongSelections)
	if err != nil {
		return nil, err
	}
	odds, err := snap.AllOdds()
	if err != nil {
		return nil, fmt.Errorf("pool_service.viewOf %s: %w", m.ID, err)
	}
	return &domain.MatchView{Match: m, Pool: snap, Odds: odds}, nil
}

// RaceView returns a race with its horses, win pool and win odds.
func (s *PoolService) RaceView(ctx context.Context, raceID uuid.UUID) (*domain.RaceView, error) {
	race, err := s.kareraRepo.GetRace(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("pool_service.RaceView: %w", err)
	}
	horses, err := s.kareraRepo.ListHorses(ctx, nil, raceID)
	if err != nil {
		return nil, fmt.Errorf("pool_service.RaceView: %w", err)
	}
	snap, err := s.snapshot(ctx, raceID, race.Status, domain.EventKindRace, domain.WinSelections(horses))
	if err != nil {
		return nil, err
	}
	odds, err := snap.AllOdds()
	if err != nil {
		return nil, fmt.Errorf("pool_service.RaceView %s: %w", raceID, err)
	}
	return &domain.RaceView{Race: race, Horses: horses, Pool: snap, Odds: odds}, nil
}

// LiveViews returns the view of every match still taking bets. Used by the
// odds broadcast loop.
func (s *PoolService) LiveViews(ctx context.Context) ([]*domain.MatchView, error) {
	matches, err := s.matchRepo.List(ctx, []domain.EventStatus{domain.StatusOpen, domain.StatusLastCall}, 100, 0)
	if err != nil {
		return nil, fmt.Errorf("pool_service.LiveViews: %w", err)
	}
	views := make([]*domain.MatchView, 0, len(matches))
	for _, m := range matches {
		v, err := s.viewOf(ctx, m)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Invalidate drops the cached live pool of an event.
func (s *PoolService) Invalidate(ctx context.Context, eventID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		s.deps.logger().Warn("pool cache invalidate", zap.Stringer("event_id", eventID), zap.Error(err))
	}
}

func (s *PoolService) snapshot(ctx context.Context, eventID uuid.UUID, status domain.EventStatus, kind domain.EventKind, sels []domain.Selection) (*domain.PoolSnapshot, error) {
	if !status.AcceptsBets() {
		frozen, err := s.poolRepo.GetFrozen(ctx, nil, eventID)
		if err == nil {
			return frozen, nil
		}
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			return nil, fmt.Errorf("pool_service.snapshot: %w", err)
		}
	}

	// The cache holds bucket totals only; rate and policy are stamped on every
	// read so a settings change shows up before the entry expires.
	if snap, ok, err := s.cache.Get(ctx, eventID); err != nil {
		s.deps.logger().Warn("pool cache get", zap.Stringer("event_id", eventID), zap.Error(err))
	} else if ok {
		if err := s.stamp(ctx, snap, kind); err != nil {
			return nil, err
		}
		return snap, nil
	}

	snap, err := s.live(ctx, nil, eventID, kind, sels)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		s.deps.logger().Warn("pool cache set", zap.Stringer("event_id", eventID), zap.Error(err))
	}
	return snap, nil
}

// live reads the current buckets and stamps them with the rate and policy a
// close right now would freeze. q may be a transaction.
func (s *PoolService) live(ctx context.Context, q sqlx.QueryerContext, eventID uuid.UUID, kind domain.EventKind, sels []domain.Selection) (*domain.PoolSnapshot, error) {
	snap, err := s.poolRepo.Snapshot(ctx, q, eventID, sels...)
	if err != nil {
		return nil, fmt.Errorf("pool_service.live: %w", err)
	}
	if err := s.stamp(ctx, snap, kind); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PoolService) stamp(ctx context.Context, snap *domain.PoolSnapshot, kind domain.EventKind) error {
	var err error
	if snap.Rate, err = s.settings.PlasadaRate(ctx); err != nil {
		return err
	}
	snap.Basis = s.settings.PayoutBasis()
	if kind == domain.EventKindMatch {
		if snap.DrawMultiplier, err = s.settings.DrawMultiplier(ctx); err != nil {
			return err
		}
	}
	return nil
}
