package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
)

const bcryptCost = 12

// ──────────────────────────────────────────────────────────────────────────────
// Payloads
// ──────────────────────────────────────────────────────────────────────────────

// RegisterRequest contains the fields required to sign up as a bettor.
// Referrer is the optional username of the upline agent.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8"`
	Referrer string `json:"referrer"`
}

// AuthResponse is returned on successful registration or login.
type AuthResponse struct {
	User         domain.PublicProfile `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

// TokenPair is a freshly signed access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims is the payload of both token kinds; Subject is the profile id.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      domain.UserRole `json:"role"`
	TokenType string          `json:"type"` // "access" or "refresh"
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService owns credentials and token issuance.
type AuthService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{userRepo: userRepo, cfg: cfg}
}

// HashPassword returns the bcrypt hash of a plain-text password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates a bettor account with a zero balance. Balance only arrives
// through a load by an admin or an upline transfer.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: %w", err)
	}

	now := time.Now().UTC()
	p := &domain.Profile{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Balance:      decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ref := strings.TrimSpace(req.Referrer); ref != "" {
		upline, err := s.userRepo.GetByUsername(ctx, ref)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: unknown referrer %q", domain.ErrValidation, ref)
			}
			return nil, fmt.Errorf("auth_service.Register: %w", err)
		}
		p.ReferrerID = &upline.ID
	}

	if err := s.userRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.respond(p)
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

// Login checks the bcrypt hash and issues a new pair. Banned accounts are
// refused after the password check.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	p, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		// Unknown usernames look like wrong passwords.
		return nil, domain.ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if p.IsBanned {
		return nil, domain.ErrUserBanned
	}
	return s.respond(p)
}

func (s *AuthService) respond(p *domain.Profile) (*AuthResponse, error) {
	pair, err := s.generateTokenPair(p.ID, p.Role)
	if err != nil {
		return nil, fmt.Errorf("auth_service: tokens: %w", err)
	}
	return &AuthResponse{
		User:         p.ToPublicProfile(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Profile returns the caller's public profile.
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*domain.PublicProfile, error) {
	p, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pub := p.ToPublicProfile()
	return &pub, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RefreshToken
// ──────────────────────────────────────────────────────────────────────────────

// RefreshToken validates a refresh token and issues a new token pair. The
// role is re-read so a demotion or ban takes effect on the next refresh.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.parseToken(refreshToken, s.cfg.JWT.RefreshSecret)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}
	if claims.TokenType != "refresh" {
		return "", "", domain.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}

	p, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", domain.ErrUserNotFound
	}
	if p.IsBanned {
		return "", "", domain.ErrUserBanned
	}

	pair, err := s.generateTokenPair(p.ID, p.Role)
	if err != nil {
		return "", "", fmt.Errorf("auth_service.RefreshToken: %w", err)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// generateTokenPair signs each kind with its own secret and TTL.
func (s *AuthService) generateTokenPair(userID uuid.UUID, role domain.UserRole) (TokenPair, error) {
	now := time.Now().UTC()

	access, err := sign(AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTTL)),
		},
		Role:      role,
		TokenType: "access",
	}, s.cfg.JWT.AccessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := sign(AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.RefreshTTL)),
		},
		TokenType: "refresh",
	}, s.cfg.JWT.RefreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func sign(c AppClaims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// parseToken accepts HMAC-signed, unexpired tokens. Callers check TokenType.
func (s *AuthService) parseToken(tokenString, secret string) (*AppClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ParseAccessToken verifies a bearer token for middleware.JWTMiddleware.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	claims, err := s.parseToken(tokenString, s.cfg.JWT.AccessSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
