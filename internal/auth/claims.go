package auth

import (
	"context"
	"time"
)

// AccessClaims represents the claims stored in a PASETO access token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type AccessClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ShopperID string `json:"shopper_id"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Anonymous reports whether the token belongs to a shopper who never
// registered. Anonymous shoppers can still reserve, bag and check out;
// the shopper ID is their only identity.
func (c *AccessClaims) Anonymous() bool {
	return c.UserID == ""
}

// HolderID returns the identity used for reservations, bag presence and
// viewer counts. The shopper session ID wins when present: it predates a
// login, so bags and holds made before registering stay reachable after.
// Tokens issued without a session fall back to the user ID.
func (c *AccessClaims) HolderID() string {
	if c.ShopperID != "" {
		return c.ShopperID
	}
	return c.UserID
}

// claimsKey is the context key carrying verified access claims.
type claimsKey struct{}

// WithClaims returns a context carrying the verified claims of a request.
func WithClaims(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the verified claims attached by the auth
// middleware, or nil for an unauthenticated request.
func ClaimsFromContext(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(claimsKey{}).(*AccessClaims)
	return claims
}
