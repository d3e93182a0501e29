package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reloveapp/relove-server/internal/domain"
	domainerrors "github.com/reloveapp/relove-server/internal/errors"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/session",
		Summary:     "Start anonymous shopper session",
		Description: "Creates an anonymous shopper session. The returned token identifies the browser for bags, reservations and viewer counts until the shopper registers or the token expires.",
		Tags:        []string{"Authentication"},
	}, s.handleStartSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register new account",
		Description: "Creates an account. When called with a shopper session token, the session's bags and reservations carry over to the account.",
		Tags:        []string{"Authentication"},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Log in",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "current-user",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Current user",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Authentication"},
	}, s.handleCurrentUser)
}

// === DTOs ===

// SessionResponse describes a freshly started shopper session.
type SessionResponse struct {
	SessionID string `json:"session_id" doc:"Anonymous shopper session ID"`
	Token     string `json:"token" doc:"PASETO access token for this session"`
	TokenType string `json:"token_type" doc:"Token type (Bearer)"`
}

// SessionOutput wraps the session response for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// SessionInput carries forwarding headers for rate limiting.
type SessionInput struct {
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254" doc:"Email address"`
	Password    string `json:"password" validate:"required,min=8,max=1024" doc:"Password"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=100" doc:"Public display name"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body          RegisterRequest
	Authorization string `header:"Authorization" doc:"Optional shopper session token to adopt"`
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" doc:"Email address"`
	Password string `json:"password" validate:"required,max=1024" doc:"Password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body          LoginRequest
	Authorization string `header:"Authorization" doc:"Optional shopper session token to adopt"`
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// UserResponse describes a registered account.
type UserResponse struct {
	ID          string    `json:"id" doc:"User ID"`
	Email       string    `json:"email" doc:"Email address"`
	DisplayName string    `json:"display_name" doc:"Display name"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation timestamp"`
}

// AuthResponse carries a token plus the account it belongs to.
type AuthResponse struct {
	Token     string       `json:"token" doc:"PASETO access token"`
	TokenType string       `json:"token_type" doc:"Token type (Bearer)"`
	User      UserResponse `json:"user" doc:"Authenticated user"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// UserOutput wraps a user response for Huma.
type UserOutput struct {
	Body UserResponse
}

// === Handlers ===

func (s *Server) handleStartSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	if !s.authRateLimiter.Allow(extractIP(input.XForwardedFor, input.XRealIP)) {
		return nil, huma.Error429TooManyRequests("Too many requests")
	}

	session, token, err := s.services.Identity.StartShopperSession(ctx)
	if err != nil {
		return nil, err
	}

	return &SessionOutput{Body: SessionResponse{
		SessionID: session.ID,
		Token:     token,
		TokenType: "Bearer",
	}}, nil
}

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*AuthOutput, error) {
	if !s.authRateLimiter.Allow(extractIP(input.XForwardedFor, input.XRealIP)) {
		return nil, huma.Error429TooManyRequests("Too many requests")
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	user, token, err := s.services.Identity.Register(ctx,
		input.Body.Email, input.Body.Password, input.Body.DisplayName, s.shopperID(input.Authorization))
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(user, token)}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	if !s.authRateLimiter.Allow(extractIP(input.XForwardedFor, input.XRealIP)) {
		return nil, huma.Error429TooManyRequests("Too many requests")
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	user, token, err := s.services.Identity.Login(ctx,
		input.Body.Email, input.Body.Password, s.shopperID(input.Authorization))
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(user, token)}, nil
}

func (s *Server) handleCurrentUser(ctx context.Context, _ *struct{}) (*UserOutput, error) {
	claims, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Identity.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, domainerrors.NotFound("account not found")
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

// shopperID extracts the shopper session identity from an optional token so
// registration and login can adopt an anonymous session's bags.
func (s *Server) shopperID(authHeader string) string {
	token := bearerToken(authHeader)
	if token == "" {
		return ""
	}
	claims, err := s.services.Identity.Verify(token)
	if err != nil || !claims.Anonymous() {
		return ""
	}
	return claims.ShopperID
}

func mapUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
	}
}

func mapAuthResponse(user *domain.User, token string) AuthResponse {
	return AuthResponse{
		Token:     token,
		TokenType: "Bearer",
		User:      mapUserResponse(user),
	}
}
