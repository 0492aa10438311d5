package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthConfig tunes token issuance and privilege checks
type AuthConfig struct {
	// AdminRoleID is the least privileged role still considered admin.
	// Lower role ids carry more privilege.
	AdminRoleID int64
	TokenTTL    time.Duration
	BcryptCost  int
}

// AuthService registers users and issues and resolves bearer tokens
type AuthService struct {
	store  store.Gateway
	cfg    AuthConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(gw store.Gateway, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		store:  gw,
		cfg:    cfg,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// RegisterRequest represents a request to register a user
type RegisterRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	Role     *int64 `form:"role" json:"role"`
}

// TokenResponse is an issued bearer token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func isAdmin(user *models.User, adminRoleID int64) bool {
	return user != nil && user.RoleID <= adminRoleID
}

// IsAdmin reports whether the user holds an admin role
func (s *AuthService) IsAdmin(user *models.User) bool {
	return isAdmin(user, s.cfg.AdminRoleID)
}

// Register creates a user. Without a role the least privileged one is used;
// choosing a role requires a caller at least as privileged as that role.
func (s *AuthService) Register(ctx context.Context, caller *models.User, req RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, invalid("Usuário e/ou senha em branco")
	}

	repo := s.store.Repo()
	if _, err := repo.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, invalid("Usuário já existe")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	lowest, err := repo.LowestRoleID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default role: %w", err)
	}
	role := lowest
	if req.Role != nil && *req.Role != 0 {
		if caller == nil {
			return nil, forbidden("Precisa estar logado para definir permissão")
		}
		if *req.Role < 1 || *req.Role > lowest {
			return nil, invalid("Permissão fornecida não existe")
		}
		if *req.Role < caller.RoleID {
			return nil, forbidden("Sem autorização para criar usuário com as permissões fornecidas")
		}
		role = *req.Role
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: req.Username, PasswordHash: string(hash), RoleID: role}
	if err := repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("Usuário já existe")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.Int64("role_id", role))
	return user, nil
}

// Login checks the credentials and issues a new token
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.store.Repo().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.LoginAttemptsTotal.WithLabelValues("unknown_user").Inc()
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		util.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
		return nil, ErrBadCredentials
	}

	util.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return s.issue(ctx, user)
}

// Refresh issues a fresh token for an already authenticated user
func (s *AuthService) Refresh(ctx context.Context, user *models.User) (*TokenResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Refresh")
	defer span.End()

	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*TokenResponse, error) {
	token := models.Token{
		UserID:   user.ID,
		Token:    strings.ReplaceAll(uuid.New().String(), "-", ""),
		ExpireAt: s.now().Add(s.cfg.TokenTTL).UTC(),
	}
	if err := s.store.Repo().SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return &TokenResponse{AccessToken: token.Token, TokenType: "bearer", ExpiresAt: token.ExpireAt}, nil
}

// Authenticate resolves a bearer token to an active user
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Repo().GetUserByToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	if user.Disabled {
		return nil, ErrInactiveUser
	}
	return user, nil
}
