package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reloveapp/relove-server/internal/auth"
)

// requireClaims returns the verified claims of the request, anonymous
// shoppers included.
func requireClaims(ctx context.Context) (*auth.AccessClaims, error) {
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("Authentication required")
	}
	return claims, nil
}

// requireUser returns the claims of a registered user; anonymous shopper
// sessions are rejected.
func requireUser(ctx context.Context) (*auth.AccessClaims, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	if claims.Anonymous() {
		return nil, huma.Error403Forbidden("A registered account is required")
	}
	return claims, nil
}

// extractIP picks the client IP out of forwarding headers.
func extractIP(forwardedFor, realIP string) string {
	if forwardedFor != "" {
		for i := 0; i < len(forwardedFor); i++ {
			if forwardedFor[i] == ',' {
				return forwardedFor[:i]
			}
		}
		return forwardedFor
	}
	return realIP
}
