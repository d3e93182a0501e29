package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reloveapp/relove-server/internal/auth"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	domainerrors "github.com/reloveapp/relove-server/internal/errors"
	"github.com/reloveapp/relove-server/internal/id"
	"github.com/reloveapp/relove-server/internal/store"
)

// IdentityService issues holder identities. Every reservation and presence
// call needs one: either an authenticated user ID or an anonymous shopper
// session token, so unauthenticated browsers can still bag items and count
// as viewers.
type IdentityService struct {
	store  *store.Store
	tokens *auth.TokenService
	clock  clock.Clock
	logger *slog.Logger
}

// NewIdentityService creates an identity service.
func NewIdentityService(st *store.Store, tokens *auth.TokenService, clk clock.Clock, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		store:  st,
		tokens: tokens,
		clock:  clk,
		logger: logger,
	}
}

// StartShopperSession creates an anonymous shopper session and its token.
// The session ID doubles as holder ID for bags, reservations and viewer
// rows until the shopper logs in.
func (s *IdentityService) StartShopperSession(ctx context.Context) (*domain.ShopperSession, string, error) {
	sessionID, err := id.Generate("shop")
	if err != nil {
		return nil, "", fmt.Errorf("generate session ID: %w", err)
	}

	session := &domain.ShopperSession{
		ID:        sessionID,
		CreatedAt: s.clock.Now().Unix(),
	}
	if err := s.store.Sessions.Create(ctx, session.ID, session); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokens.GenerateAccessToken("", "", sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return session, token, nil
}

// Register creates a user account. The shopper session carries over so the
// anonymous bag survives signup; from here on the user ID is the holder ID.
func (s *IdentityService) Register(ctx context.Context, email, password, displayName, shopperID string) (*domain.User, string, error) {
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", domainerrors.Validation("invalid password")
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, "", fmt.Errorf("generate user ID: %w", err)
	}

	user := &domain.User{
		ID:           userID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}
	user.InitTimestamps(s.clock.Now())

	if err := s.store.Users.Create(ctx, user.ID, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, "", domainerrors.AlreadyExists("an account with this email already exists")
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email, shopperID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	s.linkSession(ctx, shopperID, user.ID)
	s.logger.Info("user registered", "user_id", user.ID)

	return user, token, nil
}

// Login verifies credentials and issues a fresh token. The shopper session
// carries over, same as registration.
func (s *IdentityService) Login(ctx context.Context, email, password, shopperID string) (*domain.User, string, error) {
	user, err := s.store.Users.GetByUniqueIndex(ctx, "email", email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, "", domainerrors.InvalidCredentials("invalid email or password")
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email, shopperID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	s.linkSession(ctx, shopperID, user.ID)

	return user, token, nil
}

// Verify parses and validates an access token.
func (s *IdentityService) Verify(token string) (*auth.AccessClaims, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, domainerrors.Unauthorized("invalid or expired token")
	}
	return claims, nil
}

// GetUser returns a user by ID.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

// linkSession attaches an anonymous session to a user so the pre-login bag
// can be migrated. Failure is harmless: the shopper just starts fresh.
func (s *IdentityService) linkSession(ctx context.Context, shopperID, userID string) {
	if shopperID == "" {
		return
	}
	session, err := s.store.Sessions.Get(ctx, shopperID)
	if err != nil {
		return
	}
	session.UserID = userID
	if err := s.store.Sessions.Put(ctx, session.ID, session); err != nil {
		s.logger.Warn("failed to link shopper session", "session_id", shopperID, "error", err)
	}
}
