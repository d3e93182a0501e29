// Package payment is the boundary to the external payment provider. The
// availability subsystem only hands off the final product list before the
// redirect and is re-entered when control returns, success or failure.
package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/reloveapp/relove-server/internal/domain"
)

// Gateway creates a redirect for a pending payment. Implementations talk to
// the real provider; tests use the in-memory fake.
type Gateway interface {
	// CreateRedirect registers the pending payment with the provider and
	// returns the URL the buyer is sent to.
	CreateRedirect(ctx context.Context, pending *domain.PendingPayment) (string, error)
}

// NewReference generates an opaque payment reference shared with the
// provider and used to correlate the return path.
func NewReference() string {
	return uuid.NewString()
}

// FakeGateway is an in-memory Gateway for tests and local development.
type FakeGateway struct {
	mu        sync.Mutex
	redirects []*domain.PendingPayment

	// FailNext causes the next CreateRedirect to fail, for testing the
	// suppressed-release path staying un-suppressed.
	FailNext bool
}

// NewFakeGateway creates a fake gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// CreateRedirect records the pending payment and returns a fake URL.
func (g *FakeGateway) CreateRedirect(_ context.Context, pending *domain.PendingPayment) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailNext {
		g.FailNext = false
		return "", fmt.Errorf("payment provider unavailable")
	}

	g.redirects = append(g.redirects, pending)
	return "https://pay.example.com/redirect/" + pending.Reference, nil
}

// Redirects returns every pending payment handed off so far.
func (g *FakeGateway) Redirects() []*domain.PendingPayment {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*domain.PendingPayment, len(g.redirects))
	copy(out, g.redirects)
	return out
}
