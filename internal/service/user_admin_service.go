package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
)

// Update actions accepted by UpdateUser.
const (
	UserBan      = "ban"
	UserUnban    = "unban"
	UserRole     = "role"
	UserPassword = "password"
)

// CreateUserRequest is the body of an admin account creation. ReferrerID
// defaults to the caller, which places the account in the caller's downline.
type CreateUserRequest struct {
	Username   string          `json:"username"    binding:"required,min=3,max=50"`
	Password   string          `json:"password"    binding:"required,min=8"`
	Role       domain.UserRole `json:"role"        binding:"required"`
	ReferrerID *uuid.UUID      `json:"referrer_id"`
	IsBot      bool            `json:"is_bot"`
}

// UpdateUserRequest is the body of an admin account update.
type UpdateUserRequest struct {
	UserID   uuid.UUID       `json:"user_id"  binding:"required"`
	Action   string          `json:"action"   binding:"required,oneof=ban unban role password"`
	Role     domain.UserRole `json:"role"`
	Password string          `json:"password"`
}

// UserPage is one page of profiles.
type UserPage struct {
	Users []domain.PublicProfile `json:"users"`
	Total int                    `json:"total"`
}

// ──────────────────────────────────────────────────────────────────────────────
// UserAdminService
// ──────────────────────────────────────────────────────────────────────────────

// UserAdminService creates and manages accounts along the agent hierarchy.
type UserAdminService struct {
	userRepo *repository.UserRepository
	deps     Deps
}

// NewUserAdminService creates a UserAdminService.
func NewUserAdminService(userRepo *repository.UserRepository, deps Deps) *UserAdminService {
	return &UserAdminService{userRepo: userRepo, deps: deps}
}

// CreateUser creates an account of a role strictly below the caller's. Only
// admins may create bot accounts or attach the account to someone else.
func (s *UserAdminService) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*domain.Profile, error) {
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: username needs 3+ and password 8+ characters", domain.ErrValidation)
	}
	if !req.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, req.Role)
	}
	if !actor.Role.IsAdmin() {
		if !actor.Role.CanAccessBackoffice() || !actor.Role.Outranks(req.Role) || req.IsBot {
			return nil, domain.ErrForbidden
		}
		if req.ReferrerID != nil && *req.ReferrerID != actor.ID {
			return nil, domain.ErrForbidden
		}
	}
	referrer := actor.ID
	if req.ReferrerID != nil {
		referrer = *req.ReferrerID
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("user_admin_service.CreateUser: %w", err)
	}
	now := time.Now().UTC()
	p := &domain.Profile{
		ID:           uuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Balance:      decimal.Zero,
		ReferrerID:   &referrer,
		IsBot:        req.IsBot,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.deps.logger().Info("user created",
		zap.Stringer("actor", actor.ID),
		zap.Stringer("user_id", p.ID),
		zap.String("role", string(p.Role)))
	return p, nil
}

// UpdateUser bans, unbans, changes the role of, or resets the password of an
// account the caller manages. A new role must also sit below the caller's.
func (s *UserAdminService) UpdateUser(ctx context.Context, actor Actor, req UpdateUserRequest) (*domain.Profile, error) {
	if req.UserID == actor.ID {
		return nil, fmt.Errorf("%w: cannot update your own account", domain.ErrForbidden)
	}
	target, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := actor.manages(ctx, s.userRepo, target); err != nil {
		return nil, err
	}

	switch req.Action {
	case UserBan, UserUnban:
		banned := req.Action == UserBan
		if err := s.userRepo.SetBanned(ctx, target.ID, banned); err != nil {
			return nil, err
		}
		target.IsBanned = banned
	case UserRole:
		if !req.Role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, req.Role)
		}
		if !actor.Role.IsAdmin() && !actor.Role.Outranks(req.Role) {
			return nil, domain.ErrForbidden
		}
		if err := s.userRepo.UpdateRole(ctx, target.ID, req.Role); err != nil {
			return nil, err
		}
		target.Role = req.Role
	case UserPassword:
		if len(req.Password) < 8 {
			return nil, fmt.Errorf("%w: password needs 8+ characters", domain.ErrValidation)
		}
		hash, err := HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("user_admin_service.UpdateUser: %w", err)
		}
		if err := s.userRepo.UpdatePassword(ctx, target.ID, hash); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, req.Action)
	}

	s.deps.logger().Info("user updated",
		zap.Stringer("actor", actor.ID),
		zap.Stringer("user_id", target.ID),
		zap.String("action", req.Action))
	return target, nil
}

// ListUsers returns every account for admins and the caller's downline for
// everyone else.
func (s *UserAdminService) ListUsers(ctx context.Context, actor Actor, limit, offset int) (*UserPage, error) {
	limit, offset = clampPage(limit, offset)
	var (
		users []*domain.Profile
		total int
		err   error
	)
	if actor.Role.IsAdmin() {
		users, total, err = s.userRepo.List(ctx, limit, offset)
	} else {
		users, err = s.userRepo.ListDownline(ctx, actor.ID, limit, offset)
		total = len(users)
	}
	if err != nil {
		return nil, fmt.Errorf("user_admin_service.ListUsers: %w", err)
	}
	page := &UserPage{Users: make([]domain.PublicProfile, 0, len(users)), Total: total}
	for _, u := range users {
		page.Users = append(page.Users, u.ToPublicProfile())
	}
	return page, nil
}

// GetUser returns one account the actor may manage.
func (s *UserAdminService) GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*domain.PublicProfile, error) {
	target, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user_admin_service.GetUser: %w", err)
	}
	if err := actor.manages(ctx, s.userRepo, target); err != nil {
		return nil, err
	}
	p := target.ToPublicProfile()
	return &p, nil
}

// ListBots returns the unbanned bot accounts operators can place bot bets for.
func (s *UserAdminService) ListBots(ctx context.Context, actor Actor) ([]domain.PublicProfile, error) {
	if !actor.Role.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	bots, err := s.userRepo.ListBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("user_admin_service.ListBots: %w", err)
	}
	out := make([]domain.PublicProfile, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.ToPublicProfile())
	}
	return out, nil
}
