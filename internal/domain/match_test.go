package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
)

// ── Status machine ────────────────────────────────────────────────────────────

func TestEventStatus_Transitions(t *testing.T) {
	allowed := []struct{ from, to domain.EventStatus }{
		{domain.StatusOpen, domain.StatusLastCall},
		{domain.StatusOpen, domain.StatusClosed},
		{domain.StatusLastCall, domain.StatusClosed},
		{domain.StatusClosed, domain.StatusOngoing},
		{domain.StatusClosed, domain.StatusFinished},
		{domain.StatusOngoing, domain.StatusFinished},
		{domain.StatusOpen, domain.StatusCancelled},
		{domain.StatusOngoing, domain.StatusCancelled},
	}
	for _, tc := range allowed {
		if err := domain.CheckTransition(tc.from, tc.to); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", tc.from, tc.to, err)
		}
	}

	denied := []struct{ from, to domain.EventStatus }{
		{domain.StatusOpen, domain.StatusFinished},
		{domain.StatusClosed, domain.StatusOpen},
		{domain.StatusFinished, domain.StatusCancelled},
		{domain.StatusCancelled, domain.StatusCancelled},
		{domain.StatusFinished, domain.StatusFinished},
	}
	for _, tc := range denied {
		err := domain.CheckTransition(tc.from, tc.to)
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidStateTransition, got %v", tc.from, tc.to, err)
		}
	}
}

func TestEventStatus_AcceptsBets(t *testing.T) {
	for _, s := range []domain.EventStatus{domain.StatusOpen, domain.StatusLastCall} {
		if !s.AcceptsBets() {
			t.Errorf("%s should accept bets", s)
		}
	}
	for _, s := range []domain.EventStatus{domain.StatusClosed, domain.StatusOngoing, domain.StatusFinished, domain.StatusCancelled} {
		if s.AcceptsBets() {
			t.Errorf("%s should not accept bets", s)
		}
	}
}

func TestMatch_LastCallExpired(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-45 * time.Second)
	m := &domain.Match{Status: domain.StatusLastCall, LastCallAt: &started}

	if !m.LastCallExpired(30*time.Second, now) {
		t.Error("45s into a 30s window should be expired")
	}
	if m.LastCallExpired(time.Minute, now) {
		t.Error("45s into a 60s window should not be expired")
	}
	m.Status = domain.StatusOpen
	if m.LastCallExpired(30*time.Second, now) {
		t.Error("open match never expires")
	}
}

// ── Bet request validation ────────────────────────────────────────────────────

func TestPlaceBetRequest_Validate(t *testing.T) {
	minStake := decimal.NewFromInt(10)
	base := domain.PlaceBetRequest{
		UserID:    uuid.New(),
		MatchID:   uuid.New(),
		Selection: domain.SelectionMeron,
		Amount:    decimal.NewFromInt(100),
		Source:    domain.SourceUser,
	}
	if err := base.Validate(minStake); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	bad := base
	bad.Amount = decimal.Zero
	if !errors.Is(bad.Validate(minStake), domain.ErrValidation) {
		t.Error("zero stake should be a validation error")
	}

	bad = base
	bad.Amount = decimal.NewFromInt(5)
	if !errors.Is(bad.Validate(minStake), domain.ErrBetTooSmall) {
		t.Error("stake below minimum should be ErrBetTooSmall")
	}

	bad = base
	bad.Selection = "left"
	if !errors.Is(bad.Validate(minStake), domain.ErrValidation) {
		t.Error("unknown selection should be a validation error")
	}
}

// ── Roles ─────────────────────────────────────────────────────────────────────

func TestUserRole_Hierarchy(t *testing.T) {
	order := []domain.UserRole{domain.RoleUser, domain.RoleLoader, domain.RoleAgent, domain.RoleMasterAgent, domain.RoleAdmin}
	for i := 1; i < len(order); i++ {
		if !order[i].Outranks(order[i-1]) {
			t.Errorf("%s should outrank %s", order[i], order[i-1])
		}
		if order[i-1].Outranks(order[i]) {
			t.Errorf("%s should not outrank %s", order[i-1], order[i])
		}
	}
	if domain.RoleAgent.Outranks(domain.RoleAgent) {
		t.Error("a role never outranks itself")
	}
	if domain.RoleUser.CanAccessBackoffice() {
		t.Error("plain users have no back-office access")
	}
}
