// Package scheduler runs the background loops of the betting floor:
//  1. lastCallLoop       – closes matches and races whose last-call window ran out.
//  2. oddsBroadcastLoop  – pushes live pools and odds to WS clients every tick.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Collaborators
// ──────────────────────────────────────────────────────────────────────────────

// WsHub is the broadcast operation the Scheduler needs from the WebSocket hub.
type WsHub interface {
	BroadcastOdds(views []*domain.MatchView)
}

// Expirer closes events whose last call elapsed. Implemented by MatchService
// and KareraService.
type Expirer interface {
	ExpireLastCall(ctx context.Context) (int, error)
}

// LiveViewer lists the matches currently taking bets with their odds.
type LiveViewer interface {
	LiveViews(ctx context.Context) ([]*domain.MatchView, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler owns the background goroutines. Call Start(ctx) once from main();
// cancel the context to shut it down.
type Scheduler struct {
	expirers []Expirer
	pools    LiveViewer
	hub      WsHub
	cfg      *config.Config
	logger   *zap.Logger

	expiryTick time.Duration
}

// NewScheduler creates a Scheduler. hub may be nil, which disables the odds
// broadcast.
func NewScheduler(pools LiveViewer, hub WsHub, cfg *config.Config, logger *zap.Logger, expirers ...Expirer) *Scheduler {
	return &Scheduler{
		expirers:   expirers,
		pools:      pools,
		hub:        hub,
		cfg:        cfg,
		logger:     logger.Named("scheduler"),
		expiryTick: time.Second,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.lastCallLoop(ctx)
	if s.hub != nil {
		go s.oddsBroadcastLoop(ctx)
	}
	s.logger.Info("scheduler started")
}

// ──────────────────────────────────────────────────────────────────────────────
// lastCallLoop
// ──────────────────────────────────────────────────────────────────────────────

// lastCallLoop auto-closes expired last calls, freezing their pools.
func (s *Scheduler) lastCallLoop(ctx context.Context) {
	ticker := time.NewTicker(s.expiryTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lastCallLoop: shutting down")
			return
		case <-ticker.C:
			s.expire(ctx)
		}
	}
}

// expire is one pass of lastCallLoop, extracted so the deferred recover
// keeps the loop alive after a panic.
func (s *Scheduler) expire(ctx context.Context) {
	defer s.recoverAndLog("lastCallLoop")
	for _, e := range s.expirers {
		n, err := e.ExpireLastCall(ctx)
		if err != nil {
			s.logger.Error("lastCallLoop: ExpireLastCall", zap.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Info("last call expired", zap.Int("closed", n))
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// oddsBroadcastLoop
// ──────────────────────────────────────────────────────────────────────────────

// oddsBroadcastLoop pushes the live pools of every open match each tick.
func (s *Scheduler) oddsBroadcastLoop(ctx context.Context) {
	tick := s.cfg.Betting.OddsBroadcastTick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("oddsBroadcastLoop: shutting down")
			return
		case <-ticker.C:
			s.broadcastOdds(ctx)
		}
	}
}

func (s *Scheduler) broadcastOdds(ctx context.Context) {
	defer s.recoverAndLog("oddsBroadcastLoop")
	views, err := s.pools.LiveViews(ctx)
	if err != nil {
		s.logger.Warn("oddsBroadcastLoop: LiveViews", zap.Error(err))
		return
	}
	if len(views) > 0 {
		s.hub.BroadcastOdds(views)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each pass to catch unexpected panics, log
// them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			zap.String("loop", loop), zap.Any("panic", r))
	}
}
