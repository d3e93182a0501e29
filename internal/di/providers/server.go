package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/reloveapp/relove-server/internal/api"
	"github.com/reloveapp/relove-server/internal/config"
	"github.com/reloveapp/relove-server/internal/logger"
	"github.com/reloveapp/relove-server/internal/service"
	"github.com/reloveapp/relove-server/internal/sse"
)

// SSEManagerHandle wraps the SSE manager for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the availability stream manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	reservations := do.MustInvoke[*service.ReservationService](i)
	presence := do.MustInvoke[*service.PresenceService](i)
	viewers := do.MustInvoke[*service.ViewerService](i)
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(reservations, presence, viewers, log.Logger)

	log.Info("SSE manager ready")

	return &SSEManagerHandle{Manager: manager}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := api.Services{
		Identity:     do.MustInvoke[*service.IdentityService](i),
		Catalog:      do.MustInvoke[*service.CatalogService](i),
		Reservations: do.MustInvoke[*service.ReservationService](i),
		Presence:     do.MustInvoke[*service.PresenceService](i),
		Viewers:      do.MustInvoke[*service.ViewerService](i),
		Checkout:     do.MustInvoke[*service.CheckoutManager](i),
	}

	handler := api.NewServer(storeHandle.Store, services, sseHandle.Manager, log.Logger,
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
