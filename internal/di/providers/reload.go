package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/reloveapp/relove-server/internal/config"
	"github.com/reloveapp/relove-server/internal/logger"
	"github.com/reloveapp/relove-server/internal/service"
)

// ReloaderHandle wraps the config reloader with its watch context.
type ReloaderHandle struct {
	*config.Reloader
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ReloaderHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideConfigReloader watches the .env file and applies availability
// tunable changes to the running services.
func ProvideConfigReloader(i do.Injector) (*ReloaderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	reservations := do.MustInvoke[*service.ReservationService](i)
	checkout := do.MustInvoke[*service.CheckoutManager](i)
	log := do.MustInvoke[*logger.Logger](i)

	reloader, err := config.NewReloader(cfg.EnvFile, cfg.Availability, log.Logger, func(next config.AvailabilityConfig) {
		reservations.Retune(next.ReservationTTL, next.HeartbeatInterval)
		checkout.SetWarningGrace(next.WarningGrace)
		checkout.SetMaxItems(next.MaxCheckoutItems)
	})
	if err != nil {
		// A missing or unwatchable .env file is not fatal; the server
		// just runs without hot reload.
		log.Warn("Config hot reload disabled", "env_file", cfg.EnvFile, "error", err)
		return &ReloaderHandle{cancel: func() {}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go reloader.Run(ctx)

	log.Info("Config hot reload armed", "env_file", cfg.EnvFile)

	return &ReloaderHandle{Reloader: reloader, cancel: cancel}, nil
}
