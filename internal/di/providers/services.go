package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/reloveapp/relove-server/internal/auth"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/config"
	"github.com/reloveapp/relove-server/internal/logger"
	"github.com/reloveapp/relove-server/internal/payment"
	"github.com/reloveapp/relove-server/internal/service"
)

// ProvideIdentityService provides account and shopper session management.
func ProvideIdentityService(i do.Injector) (*service.IdentityService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewIdentityService(storeHandle.Store, tokens, clk, log.Logger), nil
}

// ProvideCatalogService provides the garment listing catalog.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCatalogService(storeHandle.Store, indexHandle.Index, clk, log.Logger), nil
}

// ProvideReservationService provides the reservation lock service.
func ProvideReservationService(i do.Injector) (*service.ReservationService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*BusHandle](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReservationService(storeHandle.Store, busHandle.Bus, clk, log.Logger,
		service.WithTTL(cfg.Availability.ReservationTTL),
		service.WithHeartbeatInterval(cfg.Availability.HeartbeatInterval),
	), nil
}

// ProvidePresenceService provides the bag presence service.
func ProvidePresenceService(i do.Injector) (*service.PresenceService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*BusHandle](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewPresenceService(storeHandle.Store, busHandle.Bus, clk, log.Logger), nil
}

// ProvideViewerService provides the live viewer counter.
func ProvideViewerService(i do.Injector) (*service.ViewerService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*BusHandle](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewViewerService(storeHandle.Store, busHandle.Bus, clk, log.Logger), nil
}

// ProvidePaymentGateway provides the payment provider boundary. The fake
// gateway stands in until a real provider integration lands.
func ProvidePaymentGateway(i do.Injector) (payment.Gateway, error) {
	return payment.NewFakeGateway(), nil
}

// ProvideCheckoutManager provides the checkout session manager.
func ProvideCheckoutManager(i do.Injector) (*service.CheckoutManager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	reservations := do.MustInvoke[*service.ReservationService](i)
	presence := do.MustInvoke[*service.PresenceService](i)
	catalog := do.MustInvoke[*service.CatalogService](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gateway := do.MustInvoke[payment.Gateway](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	m := service.NewCheckoutManager(reservations, presence, catalog, storeHandle.Store, gateway, clk, log.Logger,
		service.WithWarningGrace(cfg.Availability.WarningGrace),
	)
	m.SetMaxItems(cfg.Availability.MaxCheckoutItems)
	return m, nil
}

// TriggerCatalogReindexIfNeeded rebuilds the search index when it is empty
// but listings exist. Should be called after all services are wired.
func TriggerCatalogReindexIfNeeded(i do.Injector) {
	catalog := do.MustInvoke[*service.CatalogService](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := catalog.IndexedCount()
	if docCount > 0 {
		return
	}

	ctx := context.Background()
	var productCount int
	for _, err := range storeHandle.Products.List(ctx) {
		if err != nil {
			return
		}
		productCount++
	}
	if productCount == 0 {
		return
	}

	log.Info("Search index is empty but listings exist, triggering initial reindex",
		"product_count", productCount,
	)

	go func() {
		if err := catalog.Reindex(context.Background()); err != nil {
			log.Error("Initial catalog reindex failed", "error", err)
		} else {
			count, _ := catalog.IndexedCount()
			log.Info("Initial catalog reindex completed", "documents", count)
		}
	}()
}
