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

	"github.com/tayaan/arena/internal/domain"
)

// MatchRepository handles all database operations for sabong matches.
type MatchRepository struct {
	db *sqlx.DB
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create inserts a new match row.
func (r *MatchRepository) Create(ctx context.Context, m *domain.Match) error {
	query := `
		INSERT INTO matches
			(id, fight_number, meron_name, wala_name, status, created_by, created_at, updated_at)
		VALUES
			(:id, :fight_number, :meron_name, :wala_name, :status, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("match_repo.Create: %w", err)
	}
	return nil
}

// NextFightNumber returns one past the highest fight number so far.
func (r *MatchRepository) NextFightNumber(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COALESCE(MAX(fight_number), 0) + 1 FROM matches`); err != nil {
		return 0, fmt.Errorf("match_repo.NextFightNumber: %w", err)
	}
	return n, nil
}

// GetByID fetches a match by its primary key.
func (r *MatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	var m domain.Match
	err := r.db.GetContext(ctx, &m, `SELECT * FROM matches WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("match_repo.GetByID: %w", err)
	}
	return &m, nil
}

// LockForShare reads the match with FOR SHARE. Bet placement holds this lock
// so close cannot slip in between the status check and the pool increment.
func (r *MatchRepository) LockForShare(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Match, error) {
	return r.lock(ctx, tx, id, "FOR SHARE")
}

// LockForUpdate reads the match with FOR UPDATE. Status changes and settlement
// hold this lock for the whole transaction.
func (r *MatchRepository) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Match, error) {
	return r.lock(ctx, tx, id, "FOR UPDATE")
}

func (r *MatchRepository) lock(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, mode string) (*domain.Match, error) {
	var m domain.Match
	err := tx.GetContext(ctx, &m, `SELECT * FROM matches WHERE id = $1 `+mode, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("match_repo.lock: %w", err)
	}
	return &m, nil
}

// List returns matches filtered by status, newest fight first. An empty
// statuses slice means all statuses.
func (r *MatchRepository) List(ctx context.Context, statuses []domain.EventStatus, limit, offset int) ([]*domain.Match, error) {
	var matches []*domain.Match
	var err error
	if len(statuses) > 0 {
		err = r.db.SelectContext(ctx, &matches, `
			SELECT * FROM matches WHERE status = ANY($1)
			ORDER BY fight_number DESC LIMIT $2 OFFSET $3`,
			pq.Array(statusStrings(statuses)), limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &matches, `
			SELECT * FROM matches ORDER BY fight_number DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("match_repo.List: %w", err)
	}
	return matches, nil
}

// CountByStatus returns the number of matches in each status.
func (r *MatchRepository) CountByStatus(ctx context.Context) (map[domain.EventStatus]int, error) {
	var rows []struct {
		Status domain.EventStatus `db:"status"`
		Count  int                `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM matches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("match_repo.CountByStatus: %w", err)
	}
	out := make(map[domain.EventStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// ListExpiredLastCall returns matches whose last-call began at or before cutoff.
func (r *MatchRepository) ListExpiredLastCall(ctx context.Context, cutoff time.Time) ([]*domain.Match, error) {
	var matches []*domain.Match
	err := r.db.SelectContext(ctx, &matches, `
		SELECT * FROM matches
		WHERE status = 'last_call' AND last_call_at <= $1
		ORDER BY last_call_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("match_repo.ListExpiredLastCall: %w", err)
	}
	return matches, nil
}

// UpdateStatus moves a locked match to status, stamping the matching
// timestamp column.
func (r *MatchRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.EventStatus) error {
	query := `UPDATE matches SET status = $1, updated_at = now()`
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
		return fmt.Errorf("match_repo.UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// Finish records the winner and moves the match to finished.
func (r *MatchRepository) Finish(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, winner domain.Selection) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE matches
		SET status = 'finished', winner = $1, finished_at = now(), updated_at = now()
		WHERE id = $2 AND status IN ('closed', 'ongoing')`,
		string(winner), id)
	if err != nil {
		return fmt.Errorf("match_repo.Finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: match %s is not closed or ongoing", domain.ErrInvalidStateTransition, id)
	}
	return nil
}

func statusStrings(statuses []domain.EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
