package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
)

// KareraRepository handles races, horses and karera bets with their legs.
type KareraRepository struct {
	db *sqlx.DB
}

// NewKareraRepository creates a new KareraRepository.
func NewKareraRepository(db *sqlx.DB) *KareraRepository {
	return &KareraRepository{db: db}
}

// ──────────────────────────────────────────────────────────────────────────────
// Races
// ──────────────────────────────────────────────────────────────────────────────

// CreateRace inserts a race and its horses in one transaction.
func (r *KareraRepository) CreateRace(ctx context.Context, race *domain.Race, horses []domain.Horse) (txErr error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("karera_repo.CreateRace begin: %w", err)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO karera_races (id, race_number, name, status, created_at, updated_at)
		VALUES (:id, :race_number, :name, :status, :created_at, :updated_at)`, race)
	if err != nil {
		return fmt.Errorf("karera_repo.CreateRace: %w", err)
	}
	for i := range horses {
		horses[i].RaceID = race.ID
		if err := r.addHorse(ctx, tx, &horses[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("karera_repo.CreateRace commit: %w", err)
	}
	return nil
}

// AddHorse enters one more horse into a race.
func (r *KareraRepository) AddHorse(ctx context.Context, tx *sqlx.Tx, h *domain.Horse) error {
	return r.addHorse(ctx, tx, h)
}

func (r *KareraRepository) addHorse(ctx context.Context, tx *sqlx.Tx, h *domain.Horse) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO karera_horses (race_id, number, name)
		VALUES (:race_id, :number, :name)`, h)
	if err != nil {
		if isPgUniqueViolation(err, "karera_horses_pkey") {
			return fmt.Errorf("%w: horse %d already entered", domain.ErrValidation, h.Number)
		}
		return fmt.Errorf("karera_repo.AddHorse: %w", err)
	}
	return nil
}

// NextRaceNumber returns one past the highest race number so far.
func (r *KareraRepository) NextRaceNumber(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COALESCE(MAX(race_number), 0) + 1 FROM karera_races`); err != nil {
		return 0, fmt.Errorf("karera_repo.NextRaceNumber: %w", err)
	}
	return n, nil
}

// GetRace fetches a race by id.
func (r *KareraRepository) GetRace(ctx context.Context, id uuid.UUID) (*domain.Race, error) {
	var race domain.Race
	err := r.db.GetContext(ctx, &race, `SELECT * FROM karera_races WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRaceNotFound
		}
		return nil, fmt.Errorf("karera_repo.GetRace: %w", err)
	}
	return &race, nil
}

// LockRaceForShare reads the race with FOR SHARE (bet placement).
func (r *KareraRepository) LockRaceForShare(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Race, error) {
	return r.lockRace(ctx, tx, id, "FOR SHARE")
}

// LockRaceForUpdate reads the race with FOR UPDATE (status change, scratch,
// settlement).
func (r *KareraRepository) LockRaceForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Race, error) {
	return r.lockRace(ctx, tx, id, "FOR UPDATE")
}

func (r *KareraRepository) lockRace(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, mode string) (*domain.Race, error) {
	var race domain.Race
	err := tx.GetContext(ctx, &race, `SELECT * FROM karera_races WHERE id = $1 `+mode, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRaceNotFound
		}
		return nil, fmt.Errorf("karera_repo.lockRace: %w", err)
	}
	return &race, nil
}

// ListRaces returns races filtered by status, newest first.
func (r *KareraRepository) ListRaces(ctx context.Context, statuses []domain.EventStatus, limit, offset int) ([]*domain.Race, error) {
	var races []*domain.Race
	var err error
	if len(statuses) > 0 {
		err = r.db.SelectContext(ctx, &races, `
			SELECT * FROM karera_races WHERE status = ANY($1)
			ORDER BY race_number DESC LIMIT $2 OFFSET $3`,
			pq.Array(statusStrings(statuses)), limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &races, `
			SELECT * FROM karera_races ORDER BY race_number DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("karera_repo.ListRaces: %w", err)
	}
	return races, nil
}

// ListExpiredLastCall returns races whose last-call began at or before cutoff.
func (r *KareraRepository) ListExpiredLastCall(ctx context.Context, cutoff time.Time) ([]*domain.Race, error) {
	var races []*domain.Race
	err := r.db.SelectContext(ctx, &races, `
		SELECT * FROM karera_races
		WHERE status = 'last_call' AND last_call_at <= $1
		ORDER BY last_call_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("karera_repo.ListExpiredLastCall: %w", err)
	}
	return races, nil
}

// UpdateRaceStatus moves a locked race to status.
func (r *KareraRepository) UpdateRaceStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.EventStatus) error {
	query := `UPDATE karera_races SET status = $1, updated_at = now()`
	switch status {
	case domain.StatusLastCall:
		query += `, last_call_at = now()`
	case domain.StatusClosed:
		query += `, closed_at = now()`
	case domain.StatusFinished, domain.StatusCancelled:
		query += `, finished_at = now()`
	}
	query += ` WHERE id = $2`
	res, err := tx.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("karera_repo.UpdateRaceStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRaceNotFound
	}
	return nil
}

// FinishRace stores the finish order and moves the race to finished.
func (r *KareraRepository) FinishRace(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, finish domain.FinishOrder) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE karera_races
		SET status = 'finished', finish_order = $1::jsonb, finished_at = now(), updated_at = now()
		WHERE id = $2 AND status IN ('closed', 'ongoing')`,
		finish, id)
	if err != nil {
		return fmt.Errorf("karera_repo.FinishRace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: race %s is not closed or ongoing", domain.ErrInvalidStateTransition, id)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Horses
// ──────────────────────────────────────────────────────────────────────────────

// ListHorses returns the horses of a race by number. q may be a transaction.
func (r *KareraRepository) ListHorses(ctx context.Context, q sqlx.QueryerContext, raceID uuid.UUID) ([]domain.Horse, error) {
	if q == nil {
		q = r.db
	}
	var horses []domain.Horse
	if err := sqlx.SelectContext(ctx, q, &horses,
		`SELECT * FROM karera_horses WHERE race_id = $1 ORDER BY number`, raceID); err != nil {
		return nil, fmt.Errorf("karera_repo.ListHorses: %w", err)
	}
	return horses, nil
}

// ScratchHorse marks a horse as withdrawn. It reports false when the horse
// was already scratched.
func (r *KareraRepository) ScratchHorse(ctx context.Context, tx *sqlx.Tx, raceID uuid.UUID, number int) (bool, error) {
	var scratched bool
	err := tx.GetContext(ctx, &scratched,
		`SELECT scratched FROM karera_horses WHERE race_id = $1 AND number = $2 FOR UPDATE`, raceID, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: horse %d", domain.ErrHorseNotFound, number)
		}
		return false, fmt.Errorf("karera_repo.ScratchHorse lock: %w", err)
	}
	if scratched {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE karera_horses SET scratched = TRUE, scratched_at = now()
		WHERE race_id = $1 AND number = $2`, raceID, number); err != nil {
		return false, fmt.Errorf("karera_repo.ScratchHorse: %w", err)
	}
	return true, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Bets
// ──────────────────────────────────────────────────────────────────────────────

// CreateBet inserts a karera bet and all of its legs.
func (r *KareraRepository) CreateBet(ctx context.Context, tx *sqlx.Tx, b *domain.KareraBet) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO karera_bets (id, user_id, bet_type, amount, source, status, placed_at)
		VALUES (:id, :user_id, :bet_type, :amount, :source, :status, :placed_at)`, b)
	if err != nil {
		return fmt.Errorf("karera_repo.CreateBet: %w", err)
	}
	for i := range b.Legs {
		b.Legs[i].BetID = b.ID
		if b.Legs[i].Result == "" {
			b.Legs[i].Result = domain.LegPending
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO karera_bet_legs (bet_id, leg_no, race_id, horse, result)
			VALUES (:bet_id, :leg_no, :race_id, :horse, :result)`, b.Legs[i]); err != nil {
			return fmt.Errorf("karera_repo.CreateBet leg %d: %w", b.Legs[i].LegNo, err)
		}
	}
	return nil
}

// ListBetsByRace locks every bet with at least one leg in raceID and loads
// all of its legs so multi-race bets can be resolved. Rows are locked in id
// order; a settlement of another race sharing a bet waits here and then reads
// the legs that settlement committed.
func (r *KareraRepository) ListBetsByRace(ctx context.Context, tx *sqlx.Tx, raceID uuid.UUID) ([]domain.KareraBet, error) {
	var bets []domain.KareraBet
	if err := tx.SelectContext(ctx, &bets, `
		SELECT * FROM karera_bets
		WHERE id IN (SELECT bet_id FROM karera_bet_legs WHERE race_id = $1)
		ORDER BY id ASC
		FOR UPDATE`, raceID); err != nil {
		return nil, fmt.Errorf("karera_repo.ListBetsByRace: %w", err)
	}
	if err := r.loadLegs(ctx, tx, bets); err != nil {
		return nil, err
	}
	return bets, nil
}

// ListBetsByUser returns a user's karera bets with legs, newest first.
func (r *KareraRepository) ListBetsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.KareraBet, error) {
	var bets []domain.KareraBet
	if err := r.db.SelectContext(ctx, &bets, `
		SELECT * FROM karera_bets WHERE user_id = $1
		ORDER BY placed_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("karera_repo.ListBetsByUser: %w", err)
	}
	if err := r.loadLegs(ctx, r.db, bets); err != nil {
		return nil, err
	}
	return bets, nil
}

func (r *KareraRepository) loadLegs(ctx context.Context, q sqlx.QueryerContext, bets []domain.KareraBet) error {
	if len(bets) == 0 {
		return nil
	}
	ids := make([]string, len(bets))
	index := make(map[uuid.UUID]int, len(bets))
	for i, b := range bets {
		ids[i] = b.ID.String()
		index[b.ID] = i
	}
	var legs []domain.KareraLeg
	if err := sqlx.SelectContext(ctx, q, &legs, `
		SELECT * FROM karera_bet_legs
		WHERE bet_id = ANY($1::uuid[])
		ORDER BY bet_id, leg_no`, pq.Array(ids)); err != nil {
		return fmt.Errorf("karera_repo.loadLegs: %w", err)
	}
	for _, l := range legs {
		i := index[l.BetID]
		bets[i].Legs = append(bets[i].Legs, l)
	}
	return nil
}

// UpdateLeg sets the result of one pending leg.
func (r *KareraRepository) UpdateLeg(ctx context.Context, tx *sqlx.Tx, u domain.LegUpdate) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE karera_bet_legs SET result = $1
		WHERE bet_id = $2 AND leg_no = $3 AND result = 'pending'`,
		string(u.Result), u.BetID, u.LegNo); err != nil {
		return fmt.Errorf("karera_repo.UpdateLeg: %w", err)
	}
	return nil
}

// SettleBet moves a pending karera bet to its final status. It reports false
// when the bet already left pending.
func (r *KareraRepository) SettleBet(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.BetStatus, payout decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE karera_bets
		SET status = $1, payout = $2, settled_at = now()
		WHERE id = $3 AND status = 'pending'`,
		string(status), payout, id)
	if err != nil {
		return false, fmt.Errorf("karera_repo.SettleBet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("karera_repo.SettleBet rows: %w", err)
	}
	return n == 1, nil
}
