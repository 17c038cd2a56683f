package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/metrics"
	"github.com/tayaan/arena/internal/repository"
)

// publishTimeout bounds a post-commit publish. The request context may
// already be gone by then.
const publishTimeout = 5 * time.Second

// Deps bundles the collaborators every service shares.
type Deps struct {
	Log       *zap.Logger
	Metrics   *metrics.Collectors
	Publisher events.Publisher
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// emit publishes one domain event after commit. Failures are logged and
// counted, never returned: the money movement already happened.
func (d Deps) emit(t events.Type, kind domain.EventKind, id uuid.UUID, payload any) {
	if d.Publisher == nil {
		return
	}
	e, err := events.New(t, string(kind), id, payload)
	if err != nil {
		d.logger().Warn("build event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.Publisher.Publish(ctx, e); err != nil {
		d.Metrics.PublishFailed(string(t))
		d.logger().Warn("publish event",
			zap.String("type", string(t)),
			zap.Stringer("event_id", id),
			zap.Error(err))
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Actor / downline authorization
// ──────────────────────────────────────────────────────────────────────────────

// Actor is the authenticated caller of an admin operation.
type Actor struct {
	ID   uuid.UUID
	Role domain.UserRole
}

// manages returns nil when the actor may act on target: admins on anyone,
// everyone else only on strictly lower roles inside their own downline.
func (a Actor) manages(ctx context.Context, users *repository.UserRepository, target *domain.Profile) error {
	if a.Role.IsAdmin() {
		return nil
	}
	if !a.Role.CanAccessBackoffice() || !a.Role.Outranks(target.Role) {
		return domain.ErrForbidden
	}
	ok, err := users.IsInDownline(ctx, a.ID, target.ID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Applying settlement plans
// ──────────────────────────────────────────────────────────────────────────────

// settleFunc moves one bet out of pending; false means it already left.
type settleFunc func(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.BetStatus, payout decimal.Decimal) (bool, error)

// applyOutcomes writes every planned outcome inside tx and credits the owning
// wallets through the strict ledger. A bet that already left pending is
// skipped together with its credit. Returns the number of bets applied.
//
// Outcomes are applied in user then bet order so two settlements that credit
// the same wallets lock them in the same order.
func applyOutcomes(
	ctx context.Context,
	tx *sqlx.Tx,
	wallets *repository.WalletRepository,
	settle settleFunc,
	plan *domain.SettlementPlan,
	label string,
) (int, error) {
	ordered := append([]domain.BetOutcome(nil), plan.Outcomes...)
	sort.Slice(ordered, func(i, j int) bool {
		if c := bytes.Compare(ordered[i].UserID[:], ordered[j].UserID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(ordered[i].BetID[:], ordered[j].BetID[:]) < 0
	})

	applied := 0
	for _, o := range ordered {
		ok, err := settle(ctx, tx, o.BetID, o.Status, o.Payout)
		if err != nil {
			return applied, fmt.Errorf("settle bet %s: %w", o.BetID, err)
		}
		if !ok {
			continue
		}
		applied++
		if o.TxType == "" || !o.Credit.IsPositive() {
			continue
		}
		ref := o.BetID
		if _, err := wallets.Credit(ctx, tx, repository.Entry{
			UserID:      o.UserID,
			Amount:      o.Credit,
			Type:        o.TxType,
			RefID:       &ref,
			Description: fmt.Sprintf("%s: %s", o.TxType, label),
		}); err != nil {
			return applied, fmt.Errorf("credit bet %s: %w", o.BetID, err)
		}
	}
	return applied, nil
}

// recordCredits reports the credited volume of a committed plan.
func recordCredits(m *metrics.Collectors, kind domain.EventKind, plan *domain.SettlementPlan) {
	for _, o := range plan.Outcomes {
		if o.TxType != "" && o.Credit.IsPositive() {
			m.Credited(string(kind), string(o.TxType), o.Credit.InexactFloat64())
		}
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
