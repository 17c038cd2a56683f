package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tayaan/arena/internal/cache"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
	"github.com/tayaan/arena/internal/service"
)

// These tests run against a real Postgres and are skipped unless
// TEST_DATABASE_DSN is set. Every test works on its own match and accounts so
// they can share one database.

type env struct {
	db         *sqlx.DB
	cfg        *config.Config
	users      *repository.UserRepository
	wallets    *repository.WalletRepository
	pools      *service.PoolService
	matches    *service.MatchService
	bets       *service.BetService
	settlement *service.SettlementService
	karera     *service.KareraService
	walletSvc  *service.WalletService
	house      *domain.Profile
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(60)

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	e := &env{db: db}
	e.users = repository.NewUserRepository(db)
	e.wallets = repository.NewWalletRepository(db)
	e.house = e.newUser(t, domain.RoleAdmin, decimal.NewFromInt(100000))

	e.cfg = &config.Config{Betting: config.BettingConfig{
		MinStake:       1,
		PlasadaRate:    0.04,
		DrawMultiplier: 8,
		PayoutBasis:    string(domain.BasisAllSources),
		LastCallWindow: 30 * time.Second,
		HouseUserID:    e.house.ID,
	}}
	deps := service.Deps{Log: zaptest.NewLogger(t)}

	poolRepo := repository.NewPoolRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	betRepo := repository.NewBetRepository(db)
	kareraRepo := repository.NewKareraRepository(db)
	settings := service.NewSettingsService(repository.NewSettingsRepository(db), nil, e.cfg, deps)

	e.pools = service.NewPoolService(poolRepo, matchRepo, kareraRepo, settings, nil, deps)
	e.matches = service.NewMatchService(db, matchRepo, poolRepo, e.pools, e.cfg, deps)
	e.bets = service.NewBetService(db, betRepo, matchRepo, poolRepo, e.wallets, e.users, e.pools, e.cfg, deps)
	e.settlement = service.NewSettlementService(db, matchRepo, betRepo, poolRepo, e.wallets, e.pools, e.cfg, deps)
	e.karera = service.NewKareraService(db, kareraRepo, poolRepo, e.wallets, e.users, e.pools, e.cfg, deps)
	e.walletSvc = service.NewWalletService(db, e.wallets, e.users, deps)
	return e
}

func (e *env) newUser(t *testing.T, role domain.UserRole, balance decimal.Decimal) *domain.Profile {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	p := &domain.Profile{
		ID:           uuid.New(),
		Username:     "t_" + uuid.NewString()[:12],
		PasswordHash: "x",
		Role:         role,
		Balance:      decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.users.Create(ctx, p))
	if balance.IsPositive() {
		tx, err := e.db.BeginTxx(ctx, nil)
		require.NoError(t, err)
		_, err = e.wallets.Credit(ctx, tx, repository.Entry{UserID: p.ID, Amount: balance, Type: domain.TxLoad})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		p.Balance = balance
	}
	return p
}

func (e *env) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := e.wallets.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (e *env) openMatch(t *testing.T) *domain.Match {
	t.Helper()
	m, err := e.matches.CreateMatch(context.Background(), "Red", "White", e.house.ID)
	require.NoError(t, err)
	return m
}

// ──────────────────────────────────────────────────────────────────────────────
// Bet placement under contention
// ──────────────────────────────────────────────────────────────────────────────

func TestConcurrentBets_PoolStaysAdditive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)

	const workers = 50
	stake := decimal.NewFromInt(10)
	players := make([]*domain.Profile, workers)
	for i := range players {
		players[i] = e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i, p := range players {
		sel := domain.SelectionMeron
		if i%2 == 1 {
			sel = domain.SelectionWala
		}
		wg.Add(1)
		go func(userID uuid.UUID, sel domain.Selection) {
			defer wg.Done()
			_, err := e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
				UserID: userID, MatchID: m.ID, Selection: sel, Amount: stake,
			})
			errs <- err
		}(p.ID, sel)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := e.pools.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	require.NoError(t, snap.Verify())
	assert.True(t, snap.Totals(domain.SelectionMeron).Total.Equal(decimal.NewFromInt(250)))
	assert.True(t, snap.Totals(domain.SelectionWala).Total.Equal(decimal.NewFromInt(250)))
	assert.True(t, snap.GrandTotal().Equal(decimal.NewFromInt(500)))

	for _, p := range players {
		assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(90)))
	}
}

func TestConcurrentBets_NoOverdraft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)
	p := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

	const workers = 20
	var ok, broke int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
				UserID: p.ID, MatchID: m.ID, Selection: domain.SelectionMeron, Amount: decimal.NewFromInt(10),
			})
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, domain.ErrInsufficientBalance):
				atomic.AddInt64(&broke, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok)
	assert.EqualValues(t, 10, broke)
	assert.True(t, e.balance(t, p.ID).IsZero())

	snap, err := e.pools.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, snap.Totals(domain.SelectionMeron).User.Equal(decimal.NewFromInt(100)))
}

func TestPlaceBet_RejectedAfterClose(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)
	p := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

	_, err := e.matches.Close(ctx, m.ID)
	require.NoError(t, err)

	_, err = e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
		UserID: p.ID, MatchID: m.ID, Selection: domain.SelectionMeron, Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(100)))
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

func TestAnnounceWinner_ConcurrentCallsSettleOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)
	meron := e.newUser(t, domain.RoleUser, decimal.NewFromInt(1000))
	wala := e.newUser(t, domain.RoleUser, decimal.NewFromInt(1000))

	win, err := e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
		UserID: meron.ID, MatchID: m.ID, Selection: domain.SelectionMeron, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
		UserID: wala.ID, MatchID: m.ID, Selection: domain.SelectionWala, Amount: decimal.NewFromInt(300),
	})
	require.NoError(t, err)
	_, err = e.matches.Close(ctx, m.ID)
	require.NoError(t, err)

	const callers = 8
	results := make(chan *service.SettlementResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.settlement.AnnounceWinner(ctx, m.ID, domain.SelectionMeron)
			if err != nil {
				t.Errorf("announce: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	fresh := 0
	for res := range results {
		if !res.AlreadySettled {
			fresh++
			assert.Equal(t, 1, res.Won)
			assert.Equal(t, 1, res.Lost)
		}
	}
	assert.Equal(t, 1, fresh)

	n, err := e.wallets.CountByRef(ctx, win.ID, domain.TxPayout)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// pool 400, net 384, meron odds 3.84
	assert.True(t, e.balance(t, meron.ID).Equal(decimal.RequireFromString("1284")), e.balance(t, meron.ID).String())
	assert.True(t, e.balance(t, wala.ID).Equal(decimal.NewFromInt(700)))

	_, err = e.settlement.AnnounceWinner(ctx, m.ID, domain.SelectionWala)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestAnnounceWinner_DrawRefundsSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)
	a := e.newUser(t, domain.RoleUser, decimal.NewFromInt(500))
	b := e.newUser(t, domain.RoleUser, decimal.NewFromInt(500))

	for _, req := range []domain.PlaceBetRequest{
		{UserID: a.ID, MatchID: m.ID, Selection: domain.SelectionMeron, Amount: decimal.NewFromInt(200)},
		{UserID: b.ID, MatchID: m.ID, Selection: domain.SelectionDraw, Amount: decimal.NewFromInt(10)},
	} {
		_, err := e.bets.PlaceBet(ctx, req)
		require.NoError(t, err)
	}
	_, err := e.matches.Close(ctx, m.ID)
	require.NoError(t, err)

	res, err := e.settlement.AnnounceWinner(ctx, m.ID, domain.SelectionDraw)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Won)
	assert.Equal(t, 1, res.Refunded)
	assert.True(t, res.Commission.IsZero())

	assert.True(t, e.balance(t, a.ID).Equal(decimal.NewFromInt(500)))
	assert.True(t, e.balance(t, b.ID).Equal(decimal.NewFromInt(570)))
	// the multiplier is paid above the draw stake; the house balance is untouched
	assert.Equal(t, "-70.00", res.Retained.StringFixed(2))
	assert.True(t, e.balance(t, e.house.ID).Equal(decimal.NewFromInt(100000)))
}

func TestAnnounceWinner_HouseKeepsUnbackedPool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)
	for i := 0; i < 2; i++ {
		p := e.newUser(t, domain.RoleUser, decimal.NewFromInt(500))
		_, err := e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
			UserID: p.ID, MatchID: m.ID, Selection: domain.SelectionWala, Amount: decimal.NewFromInt(500),
		})
		require.NoError(t, err)
	}
	_, err := e.matches.Close(ctx, m.ID)
	require.NoError(t, err)

	res, err := e.settlement.AnnounceWinner(ctx, m.ID, domain.SelectionMeron)
	require.NoError(t, err)
	assert.Equal(t, "40.00", res.Commission.StringFixed(2))
	assert.Equal(t, "960.00", res.Retained.StringFixed(2))

	assert.True(t, e.balance(t, e.house.ID).Equal(decimal.NewFromInt(101000)), e.balance(t, e.house.ID).String())
	n, err := e.wallets.CountByRef(ctx, m.ID, domain.TxRetained)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCancelMatch_RefundsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.openMatch(t)
	p := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

	_, err := e.bets.PlaceBet(ctx, domain.PlaceBetRequest{
		UserID: p.ID, MatchID: m.ID, Selection: domain.SelectionWala, Amount: decimal.NewFromInt(40),
	})
	require.NoError(t, err)

	res, err := e.settlement.CancelMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refunded)
	assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(100)))

	again, err := e.settlement.CancelMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Zero(t, again.Refunded)
	assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(100)))
}

// ──────────────────────────────────────────────────────────────────────────────
// Karera
// ──────────────────────────────────────────────────────────────────────────────

func TestScratchHorse_RefundsEveryBetOnIt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	race, err := e.karera.CreateRace(ctx, "R1", []domain.Horse{{Number: 1}, {Number: 2}, {Number: 3}})
	require.NoError(t, err)
	p := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

	_, err = e.karera.PlaceBet(ctx, domain.PlaceKareraBetRequest{
		UserID: p.ID, BetType: domain.BetTypeWin, Amount: decimal.NewFromInt(20),
		Legs: []domain.KareraLeg{{LegNo: 1, RaceID: race.ID, Horse: 1}},
	})
	require.NoError(t, err)
	_, err = e.karera.PlaceBet(ctx, domain.PlaceKareraBetRequest{
		UserID: p.ID, BetType: domain.BetTypeForecast, Amount: decimal.NewFromInt(10),
		Legs: []domain.KareraLeg{{LegNo: 1, RaceID: race.ID, Horse: 2}, {LegNo: 2, RaceID: race.ID, Horse: 1}},
	})
	require.NoError(t, err)
	assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(70)))

	res, err := e.karera.ScratchHorse(ctx, race.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Refunded)
	assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(100)))

	again, err := e.karera.ScratchHorse(ctx, race.ID, 1)
	require.NoError(t, err)
	assert.True(t, again.Already)

	view, err := e.karera.GetRace(ctx, race.ID)
	require.NoError(t, err)
	assert.True(t, view.Pool.GrandTotal().IsZero())

	_, err = e.karera.PlaceBet(ctx, domain.PlaceKareraBetRequest{
		UserID: p.ID, BetType: domain.BetTypeWin, Amount: decimal.NewFromInt(20),
		Legs: []domain.KareraLeg{{LegNo: 1, RaceID: race.ID, Horse: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestScratchHorse_AfterCloseRebuildsFrozenPool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	race, err := e.karera.CreateRace(ctx, "R3", []domain.Horse{{Number: 1}, {Number: 2}, {Number: 3}})
	require.NoError(t, err)
	a := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))
	b := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

	for _, req := range []domain.PlaceKareraBetRequest{
		{UserID: a.ID, BetType: domain.BetTypeWin, Amount: decimal.NewFromInt(50), Legs: []domain.KareraLeg{{LegNo: 1, RaceID: race.ID, Horse: 1}}},
		{UserID: b.ID, BetType: domain.BetTypeWin, Amount: decimal.NewFromInt(30), Legs: []domain.KareraLeg{{LegNo: 1, RaceID: race.ID, Horse: 2}}},
		{UserID: b.ID, BetType: domain.BetTypeWin, Amount: decimal.NewFromInt(20), Legs: []domain.KareraLeg{{LegNo: 1, RaceID: race.ID, Horse: 3}}},
	} {
		_, err := e.karera.PlaceBet(ctx, req)
		require.NoError(t, err)
	}
	_, err = e.karera.SetStatus(ctx, race.ID, domain.StatusClosed)
	require.NoError(t, err)

	res, err := e.karera.ScratchHorse(ctx, race.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refunded)
	assert.True(t, e.balance(t, a.ID).Equal(decimal.NewFromInt(100)))

	view, err := e.karera.GetRace(ctx, race.ID)
	require.NoError(t, err)
	assert.True(t, view.Pool.GrandTotal().Equal(decimal.NewFromInt(50)), view.Pool.GrandTotal().String())
	assert.NotNil(t, view.Pool.FrozenAt)

	// win pool 50, net 48, horse 2 odds 1.6
	settled, err := e.karera.AnnounceWinner(ctx, race.ID, domain.FinishOrder{2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, settled.Won)
	assert.Equal(t, 1, settled.Lost)
	assert.True(t, e.balance(t, b.ID).Equal(decimal.NewFromInt(98)), e.balance(t, b.ID).String())

	_, err = e.karera.ScratchHorse(ctx, race.ID, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestRaceSettlement_WinPoolAndExotic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	race, err := e.karera.CreateRace(ctx, "R2", []domain.Horse{{Number: 1}, {Number: 2}, {Number: 3}})
	require.NoError(t, err)
	a := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))
	b := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

	place := func(userID uuid.UUID, t2 domain.KareraBetType, amt int64, horses ...int) {
		legs := make([]domain.KareraLeg, len(horses))
		for i, h := range horses {
			legs[i] = domain.KareraLeg{LegNo: i + 1, RaceID: race.ID, Horse: h}
		}
		_, err := e.karera.PlaceBet(ctx, domain.PlaceKareraBetRequest{
			UserID: userID, BetType: t2, Amount: decimal.NewFromInt(amt), Legs: legs,
		})
		require.NoError(t, err)
	}
	place(a.ID, domain.BetTypeWin, 25, 2)
	place(b.ID, domain.BetTypeWin, 75, 3)
	place(a.ID, domain.BetTypeForecast, 10, 2, 1)

	_, err = e.karera.SetStatus(ctx, race.ID, domain.StatusClosed)
	require.NoError(t, err)

	_, err = e.karera.AnnounceWinner(ctx, race.ID, domain.FinishOrder{2, 1, 3}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation, "winning forecast without declared odds")

	res, err := e.karera.AnnounceWinner(ctx, race.ID, domain.FinishOrder{2, 1, 3},
		domain.OddsMap{domain.BetTypeForecast: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Won)
	assert.Equal(t, 1, res.Lost)

	// win pool 100, net 96, horse 2 odds 3.84 -> 96; forecast 10 x 5 = 50
	assert.True(t, e.balance(t, a.ID).Equal(decimal.NewFromInt(211)), e.balance(t, a.ID).String())
	assert.True(t, e.balance(t, b.ID).Equal(decimal.NewFromInt(25)))

	again, err := e.karera.AnnounceWinner(ctx, race.ID, domain.FinishOrder{2, 1, 3}, nil)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
}

func TestRaceSettlement_DailyDoubleLegsSettledConcurrently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	odds := domain.OddsMap{domain.BetTypeDailyDouble: decimal.NewFromInt(4)}

	for round := 0; round < 5; round++ {
		first, err := e.karera.CreateRace(ctx, "DD1", []domain.Horse{{Number: 1}, {Number: 2}})
		require.NoError(t, err)
		second, err := e.karera.CreateRace(ctx, "DD2", []domain.Horse{{Number: 1}, {Number: 2}})
		require.NoError(t, err)
		p := e.newUser(t, domain.RoleUser, decimal.NewFromInt(100))

		bet, err := e.karera.PlaceBet(ctx, domain.PlaceKareraBetRequest{
			UserID: p.ID, BetType: domain.BetTypeDailyDouble, Amount: decimal.NewFromInt(10),
			Legs: []domain.KareraLeg{
				{LegNo: 1, RaceID: first.ID, Horse: 1},
				{LegNo: 2, RaceID: second.ID, Horse: 2},
			},
		})
		require.NoError(t, err)
		for _, id := range []uuid.UUID{first.ID, second.ID} {
			_, err = e.karera.SetStatus(ctx, id, domain.StatusClosed)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for _, r := range []struct {
			id     uuid.UUID
			finish domain.FinishOrder
		}{
			{first.ID, domain.FinishOrder{1, 2}},
			{second.ID, domain.FinishOrder{2, 1}},
		} {
			wg.Add(1)
			go func(id uuid.UUID, finish domain.FinishOrder) {
				defer wg.Done()
				if _, err := e.karera.AnnounceWinner(ctx, id, finish, odds); err != nil {
					t.Errorf("announce race %s: %v", id, err)
				}
			}(r.id, r.finish)
		}
		wg.Wait()

		mine, err := e.karera.GetMyBets(ctx, p.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, bet.ID, mine[0].ID)
		assert.Equal(t, domain.BetStatusWon, mine[0].Status, "round %d", round)

		n, err := e.wallets.CountByRef(ctx, bet.ID, domain.TxPayout)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.True(t, e.balance(t, p.ID).Equal(decimal.NewFromInt(130)), e.balance(t, p.ID).String())
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin balance
// ──────────────────────────────────────────────────────────────────────────────

func TestAdminBalance_TransferToDownline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agent := e.newUser(t, domain.RoleAgent, decimal.NewFromInt(500))

	now := time.Now().UTC()
	player := &domain.Profile{
		ID: uuid.New(), Username: "t_" + uuid.NewString()[:12], PasswordHash: "x",
		Role: domain.RoleUser, ReferrerID: &agent.ID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.users.Create(ctx, player))
	stranger := e.newUser(t, domain.RoleUser, decimal.Zero)

	actor := service.Actor{ID: agent.ID, Role: agent.Role}
	res, err := e.walletSvc.AdminBalance(ctx, actor, service.BalanceRequest{
		Action: service.BalanceTransfer, UserID: agent.ID, ReceiverID: &player.ID, Amount: decimal.NewFromInt(120),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.After.Equal(decimal.NewFromInt(380)))
	assert.True(t, e.balance(t, player.ID).Equal(decimal.NewFromInt(120)))

	_, err = e.walletSvc.AdminBalance(ctx, actor, service.BalanceRequest{
		Action: service.BalanceTransfer, UserID: agent.ID, ReceiverID: &stranger.ID, Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.walletSvc.AdminBalance(ctx, actor, service.BalanceRequest{
		Action: service.BalanceAdd, UserID: player.ID, Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.walletSvc.AdminBalance(ctx, actor, service.BalanceRequest{
		Action: service.BalanceTransfer, UserID: agent.ID, ReceiverID: &player.ID, Amount: decimal.NewFromInt(1000),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, e.balance(t, agent.ID).Equal(decimal.NewFromInt(380)))
}

func TestAdminBalance_AuditFailureKeepsBalanceChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	player := e.newUser(t, domain.RoleUser, decimal.Zero)

	// Ledger inserts for player fail; the balance update itself is untouched.
	_, err := e.db.Exec(fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION reject_audit_rows() RETURNS trigger AS $$
		BEGIN
			IF NEW.user_id = '%s' THEN
				RAISE EXCEPTION 'ledger insert rejected';
			END IF;
			RETURN NEW;
		END $$ LANGUAGE plpgsql;
		DROP TRIGGER IF EXISTS reject_audit_rows ON transactions;
		CREATE TRIGGER reject_audit_rows BEFORE INSERT ON transactions
			FOR EACH ROW EXECUTE FUNCTION reject_audit_rows();`, player.ID))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = e.db.Exec(`DROP TRIGGER IF EXISTS reject_audit_rows ON transactions`)
	})

	admin := service.Actor{ID: e.house.ID, Role: domain.RoleAdmin}
	res, err := e.walletSvc.AdminBalance(ctx, admin, service.BalanceRequest{
		Action: service.BalanceAdd, UserID: player.ID, Amount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
	assert.True(t, res.After.Equal(decimal.NewFromInt(50)))

	res, err = e.walletSvc.AdminBalance(ctx, admin, service.BalanceRequest{
		Action: service.BalanceTransfer, UserID: e.house.ID, ReceiverID: &player.ID, Amount: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1, "only the receiver row is rejected")
	assert.Contains(t, res.Warnings[0], player.ID.String())

	assert.True(t, e.balance(t, player.ID).Equal(decimal.NewFromInt(70)))
	assert.True(t, e.balance(t, e.house.ID).Equal(decimal.NewFromInt(99980)))
	rows, err := e.wallets.ListTransactions(ctx, player.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// ──────────────────────────────────────────────────────────────────────────────
// Settings
// ──────────────────────────────────────────────────────────────────────────────

// Needs TEST_REDIS_ADDR as well so the live pool is served from cache.
func TestSetPlasadaRate_ReachesCachedLivePool(t *testing.T) {
	e := newEnv(t)
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := cache.Connect(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	deps := service.Deps{Log: zaptest.NewLogger(t)}
	settingsCache := cache.NewSettingsCache(r, time.Minute)
	settings := service.NewSettingsService(repository.NewSettingsRepository(e.db), settingsCache, e.cfg, deps)
	pools := service.NewPoolService(
		repository.NewPoolRepository(e.db), repository.NewMatchRepository(e.db), repository.NewKareraRepository(e.db),
		settings, cache.NewPoolCache(r, time.Minute), deps,
	)
	t.Cleanup(func() {
		_, _ = e.db.Exec(`DELETE FROM app_settings WHERE key = $1`, domain.SettingPlasadaRate)
		_ = settingsCache.Invalidate(context.Background(), domain.SettingPlasadaRate)
	})

	require.NoError(t, settings.Set(ctx, domain.SettingPlasadaRate, "0.04", e.house.ID))
	m := e.openMatch(t)
	for _, req := range []domain.PlaceBetRequest{
		{UserID: e.newUser(t, domain.RoleUser, decimal.NewFromInt(100)).ID, MatchID: m.ID, Selection: domain.SelectionMeron, Amount: decimal.NewFromInt(60)},
		{UserID: e.newUser(t, domain.RoleUser, decimal.NewFromInt(100)).ID, MatchID: m.ID, Selection: domain.SelectionWala, Amount: decimal.NewFromInt(40)},
	} {
		_, err := e.bets.PlaceBet(ctx, req)
		require.NoError(t, err)
	}

	view, err := pools.MatchView(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, view.Pool.Rate.Equal(decimal.RequireFromString("0.04")))

	require.NoError(t, settings.Set(ctx, domain.SettingPlasadaRate, "0.10", e.house.ID))

	view, err = pools.MatchView(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, view.Pool.Rate.Equal(decimal.RequireFromString("0.10")), view.Pool.Rate.String())
	odds, err := view.Pool.OddsFor(domain.SelectionMeron)
	require.NoError(t, err)
	// 100 × 0.90 / 60
	assert.True(t, odds.Equal(decimal.RequireFromString("1.5")), odds.String())
}
