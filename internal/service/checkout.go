package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	domainerrors "github.com/reloveapp/relove-server/internal/errors"
	"github.com/reloveapp/relove-server/internal/payment"
	"github.com/reloveapp/relove-server/internal/store"
)

// DefaultWarningGrace is how long the expiry prompt stays up before the
// hold is auto-released.
const DefaultWarningGrace = 30 * time.Second

// DefaultMaxCheckoutItems caps the products in one checkout session.
const DefaultMaxCheckoutItems = 50

// CheckoutState is the lifecycle state of one checkout session.
type CheckoutState string

// Checkout states. A session moves Idle → Reserving → Active, drops to
// Warning when the countdown runs out, and returns to Active on renewal or
// to Idle on release.
const (
	CheckoutIdle      CheckoutState = "idle"
	CheckoutReserving CheckoutState = "reserving"
	CheckoutActive    CheckoutState = "active"
	CheckoutWarning   CheckoutState = "warning"
)

// CheckoutManager creates and tracks per-holder checkout sessions and owns
// the payment return path, which may arrive on a connection with no live
// session.
type CheckoutManager struct {
	reservations *ReservationService
	presence     *PresenceService
	catalog      *CatalogService
	store        *store.Store
	gateway      payment.Gateway
	clock        clock.Clock
	logger       *slog.Logger

	tunablesMu   sync.RWMutex
	warningGrace time.Duration
	maxItems     int

	mu       sync.Mutex
	sessions map[string]*Checkout
}

// WarningGrace returns how long the expiry warning waits before release.
func (m *CheckoutManager) WarningGrace() time.Duration {
	m.tunablesMu.RLock()
	defer m.tunablesMu.RUnlock()
	return m.warningGrace
}

// SetWarningGrace replaces the grace period at runtime. Sessions pick it up
// the next time their countdown expires.
func (m *CheckoutManager) SetWarningGrace(d time.Duration) {
	if d <= 0 {
		return
	}
	m.tunablesMu.Lock()
	m.warningGrace = d
	m.tunablesMu.Unlock()
}

// MaxItems returns the cap on products in one checkout.
func (m *CheckoutManager) MaxItems() int {
	m.tunablesMu.RLock()
	defer m.tunablesMu.RUnlock()
	return m.maxItems
}

// SetMaxItems replaces the per-checkout product cap at runtime.
func (m *CheckoutManager) SetMaxItems(n int) {
	if n <= 0 {
		return
	}
	m.tunablesMu.Lock()
	m.maxItems = n
	m.tunablesMu.Unlock()
}

// CheckoutOption customizes a CheckoutManager.
type CheckoutOption func(*CheckoutManager)

// WithWarningGrace overrides the auto-release grace period.
func WithWarningGrace(d time.Duration) CheckoutOption {
	return func(m *CheckoutManager) {
		if d > 0 {
			m.warningGrace = d
		}
	}
}

// NewCheckoutManager creates a checkout manager.
func NewCheckoutManager(reservations *ReservationService, presence *PresenceService, catalog *CatalogService, st *store.Store, gateway payment.Gateway, clk clock.Clock, logger *slog.Logger, opts ...CheckoutOption) *CheckoutManager {
	m := &CheckoutManager{
		reservations: reservations,
		presence:     presence,
		catalog:      catalog,
		store:        st,
		gateway:      gateway,
		clock:        clk,
		logger:       logger,
		warningGrace: DefaultWarningGrace,
		maxItems:     DefaultMaxCheckoutItems,
		sessions:     make(map[string]*Checkout),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a checkout session for the holder. Bag presence for the
// purchasable items is converted into reservations; items already locked by
// someone else are skipped and reported back. A holder has at most one live
// session; beginning again leaves the previous one first.
func (m *CheckoutManager) Begin(ctx context.Context, holderID string, productIDs []string) (*Checkout, error) {
	if holderID == "" || len(productIDs) == 0 {
		return nil, domainerrors.Validation("holder and products are required")
	}
	if max := m.MaxItems(); len(productIDs) > max {
		return nil, domainerrors.Validation(fmt.Sprintf("a checkout is limited to %d items", max))
	}

	if existing := m.Session(holderID); existing != nil {
		if err := existing.Leave(ctx); err != nil {
			return nil, err
		}
	}

	c := &Checkout{
		manager:  m,
		holderID: holderID,
		state:    CheckoutReserving,
		renewCh:  make(chan struct{}, 1),
	}

	// Only items not hard-locked by someone else are purchasable.
	locked, err := m.reservations.LockedByOthers(ctx, holderID, productIDs)
	if err != nil {
		return nil, err
	}
	purchasable := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		if _, isLocked := locked[productID]; !isLocked {
			purchasable = append(purchasable, productID)
		}
	}
	if len(purchasable) == 0 {
		return nil, domainerrors.ReservedByOther("all items are locked by other shoppers")
	}

	// Presence converts into reservation intent.
	m.presence.ClearPresentBatch(ctx, holderID, purchasable)

	outcome, err := m.reservations.Reserve(ctx, holderID, purchasable)
	if err != nil {
		return nil, err
	}
	if len(outcome.Reserved) == 0 {
		// Everything purchasable got snatched between the check and the
		// write. Restore the bag and surface the conflict.
		for _, productID := range purchasable {
			if err := m.presence.SetPresent(ctx, productID, holderID); err != nil {
				m.logger.Warn("failed to restore presence", "product_id", productID, "error", err)
			}
		}
		return nil, domainerrors.ReservedByOther("someone else just reserved these items")
	}

	c.mu.Lock()
	c.state = CheckoutActive
	c.products = outcome.Reserved
	c.conflicts = outcome.Conflicts
	c.deadline = outcome.ExpiresAt
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx)

	m.mu.Lock()
	m.sessions[holderID] = c
	m.mu.Unlock()

	m.logger.Info("checkout started",
		"holder_id", holderID,
		"reserved", len(outcome.Reserved),
		"conflicts", len(outcome.Conflicts),
	)

	return c, nil
}

// Session returns the holder's live checkout session, or nil.
func (m *CheckoutManager) Session(holderID string) *Checkout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[holderID]
}

func (m *CheckoutManager) dropSession(c *Checkout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[c.holderID] == c {
		delete(m.sessions, c.holderID)
	}
}

// CompletePayment is the re-entry point when control returns from the
// payment provider. On success the items are marked sold and the holds are
// consumed; on failure the holds are released and the items restored to the
// holder's bag. Either way the pending payment record is cleared.
func (m *CheckoutManager) CompletePayment(ctx context.Context, reference string, success bool) error {
	pending, err := m.store.Payments.Get(ctx, reference)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeNotFound, "pending payment not found")
	}

	if success {
		for _, productID := range pending.ProductIDs {
			if err := m.catalog.MarkSold(ctx, productID); err != nil {
				m.logger.Error("failed to mark product sold", "product_id", productID, "reference", reference, "error", err)
			}
		}
		if _, err := m.reservations.Release(ctx, pending.HolderID, pending.ProductIDs); err != nil {
			return err
		}
	} else {
		if _, err := m.reservations.Release(ctx, pending.HolderID, pending.ProductIDs); err != nil {
			return err
		}
		for _, productID := range pending.ProductIDs {
			if err := m.presence.SetPresent(ctx, productID, pending.HolderID); err != nil {
				m.logger.Warn("failed to restore presence", "product_id", productID, "error", err)
			}
		}
	}

	if err := m.store.Payments.Delete(ctx, reference); err != nil {
		m.logger.Warn("failed to clear pending payment", "reference", reference, "error", err)
	}

	// A session that redirected is finished either way.
	if c := m.Session(pending.HolderID); c != nil && c.Redirected() {
		c.stop()
		m.dropSession(c)
	}

	m.logger.Info("payment completed", "reference", reference, "success", success, "products", len(pending.ProductIDs))
	return nil
}

// Checkout is one holder's checkout session: it drives the reservation
// heartbeat, the displayed countdown, the expiry warning and the
// auto-release.
type Checkout struct {
	manager  *CheckoutManager
	holderID string

	mu         sync.Mutex
	state      CheckoutState
	products   []string
	conflicts  []string
	deadline   time.Time
	redirected bool
	cancel     context.CancelFunc
	done       chan struct{}

	renewCh chan struct{}
}

// State returns the session's current state.
func (c *Checkout) State() CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Products returns the product IDs held by this session.
func (c *Checkout) Products() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.products))
	copy(out, c.products)
	return out
}

// Conflicts returns the items that could not be reserved at session start.
func (c *Checkout) Conflicts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.conflicts))
	copy(out, c.conflicts)
	return out
}

// Remaining returns the displayed countdown. It resets to the full TTL on
// every successful extend without waiting for store confirmation.
func (c *Checkout) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.deadline.Sub(c.manager.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Redirected reports whether the session handed off to the payment provider.
func (c *Checkout) Redirected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirected
}

// Done closes when the session's timer loop has exited. Used by tests.
func (c *Checkout) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// run owns every timer of the session: the heartbeat ticker, the countdown
// and the warning grace. All of them die with a single context cancel.
func (c *Checkout) run(ctx context.Context) {
	defer close(c.done)

	heartbeat := time.NewTicker(c.manager.reservations.HeartbeatInterval())
	defer heartbeat.Stop()

	countdown := time.NewTimer(c.Remaining())
	defer countdown.Stop()

	var grace *time.Timer
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()
	graceCh := func() <-chan time.Time {
		if grace == nil {
			return nil
		}
		return grace.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			if c.State() != CheckoutActive {
				continue
			}
			if c.beat(ctx) {
				resetTimer(countdown, c.Remaining())
			}

		case <-c.renewCh:
			// Explicit "yes, keep going" from the warning prompt.
			if c.beat(ctx) {
				c.mu.Lock()
				c.state = CheckoutActive
				c.mu.Unlock()
				if grace != nil {
					grace.Stop()
					grace = nil
				}
				resetTimer(countdown, c.Remaining())
			}

		case <-countdown.C:
			if c.Redirected() {
				// Mid-payment-redirect the hold must survive; the
				// provider flow owns the outcome now.
				continue
			}
			c.mu.Lock()
			c.state = CheckoutWarning
			c.mu.Unlock()
			grace = time.NewTimer(c.manager.WarningGrace())

		case <-graceCh():
			// Grace expired without an answer: release and go home.
			if err := c.Leave(context.Background()); err != nil {
				c.manager.logger.Warn("auto-release failed", "holder_id", c.holderID, "error", err)
			}
			return
		}
	}
}

// beat extends every held product. A partial renewal still counts: the
// deadline follows the products that are still ours, and ones we lost stay
// listed so the next beat can retry (the store may have hiccuped).
func (c *Checkout) beat(ctx context.Context) bool {
	products := c.Products()
	renewed, expiresAt, err := c.manager.reservations.Extend(ctx, c.holderID, products)
	if err != nil {
		return false
	}
	if len(renewed) == 0 {
		return false
	}

	c.mu.Lock()
	c.deadline = expiresAt
	c.mu.Unlock()
	return true
}

// KeepGoing answers the expiry warning with "yes, keep my items". The
// renewal happens on the timer goroutine so state and timers move together.
func (c *Checkout) KeepGoing() {
	select {
	case c.renewCh <- struct{}{}:
	default:
	}
}

// Leave ends the session and releases every hold, restoring the items to
// bag presence. It is wired to the explicit cancel button, component
// teardown and the page-hide signal, any of which may fire without the
// others, so it is idempotent. A session that redirected to the payment
// provider keeps its holds; the return path decides their fate.
func (c *Checkout) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state == CheckoutIdle || c.redirected {
		c.mu.Unlock()
		return nil
	}
	c.state = CheckoutIdle
	products := c.products
	c.products = nil
	c.mu.Unlock()

	c.stop()
	c.manager.dropSession(c)

	// The session is already gone, so nothing would retry a half-done
	// release. Finish it even if the caller's request was aborted.
	ctx = context.WithoutCancel(ctx)

	released, err := c.manager.reservations.Release(ctx, c.holderID, products)
	if err != nil {
		return err
	}
	for _, productID := range released {
		if err := c.manager.presence.SetPresent(ctx, productID, c.holderID); err != nil {
			c.manager.logger.Warn("failed to restore presence", "product_id", productID, "error", err)
		}
	}

	c.manager.logger.Info("checkout left", "holder_id", c.holderID, "released", len(released))
	return nil
}

// BeginPaymentRedirect hands the held product list off to the payment
// provider and suppresses release-on-leave: the reservation must survive the
// external flow. Returns the redirect URL and the payment reference.
func (c *Checkout) BeginPaymentRedirect(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	if c.state != CheckoutActive && c.state != CheckoutWarning {
		state := c.state
		c.mu.Unlock()
		return "", "", domainerrors.Validationf("cannot redirect from state %q", state)
	}
	products := make([]string, len(c.products))
	copy(products, c.products)
	c.mu.Unlock()

	pending := &domain.PendingPayment{
		HolderID:   c.holderID,
		Reference:  payment.NewReference(),
		ProductIDs: products,
		CreatedAt:  c.manager.clock.Now(),
	}

	// Persist before redirecting so the return path can find the list
	// even if this process restarts while the buyer is at the provider.
	if err := c.manager.store.Payments.Create(ctx, pending.Reference, pending); err != nil {
		return "", "", err
	}

	url, err := c.manager.gateway.CreateRedirect(ctx, pending)
	if err != nil {
		if deleteErr := c.manager.store.Payments.Delete(ctx, pending.Reference); deleteErr != nil {
			c.manager.logger.Warn("failed to clear pending payment", "reference", pending.Reference, "error", deleteErr)
		}
		return "", "", domainerrors.Wrap(err, domainerrors.CodeInternal, "payment handoff failed")
	}

	c.mu.Lock()
	c.redirected = true
	c.mu.Unlock()

	return url, pending.Reference, nil
}

// stop cancels the timer loop without touching reservations.
func (c *Checkout) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// resetTimer safely re-arms a timer whose previous period may or may not
// have fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
