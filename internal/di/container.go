// Package di provides dependency injection configuration for the Relove server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/reloveapp/relove-server/internal/auth"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/config"
	"github.com/reloveapp/relove-server/internal/di/providers"
	"github.com/reloveapp/relove-server/internal/logger"
	"github.com/reloveapp/relove-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideClock)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideBus)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideIdentityService)
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideReservationService)
	do.Provide(injector, providers.ProvidePresenceService)
	do.Provide(injector, providers.ProvideViewerService)
	do.Provide(injector, providers.ProvidePaymentGateway)
	do.Provide(injector, providers.ProvideCheckoutManager)

	// Server
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideConfigReloader)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[clock.Clock](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.BusHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.IdentityService](injector)
	_ = do.MustInvoke[*service.CatalogService](injector)
	_ = do.MustInvoke[*service.ReservationService](injector)
	_ = do.MustInvoke[*service.PresenceService](injector)
	_ = do.MustInvoke[*service.ViewerService](injector)
	_ = do.MustInvoke[*service.CheckoutManager](injector)

	// Server
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.ReloaderHandle](injector)

	// Rebuild the catalog index if the store has listings it is missing
	providers.TriggerCatalogReindexIfNeeded(injector)

	return nil
}
