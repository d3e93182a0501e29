package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/config"
	"github.com/reloveapp/relove-server/internal/logger"
	"github.com/reloveapp/relove-server/internal/store"
)

// ProvideClock provides the system clock. Everything that judges
// reservation liveness goes through this.
func ProvideClock(i do.Injector) (clock.Clock, error) {
	return clock.NewSystem(), nil
}

// BusHandle wraps the event bus with its delivery context.
type BusHandle struct {
	*bus.Bus
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable. Drain first so queued availability
// events reach any streams still tearing down, then stop the loop.
func (h *BusHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Bus.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideBus provides the in-process availability event bus.
func ProvideBus(i do.Injector) (*BusHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	b := bus.New(log.Logger)

	// Start delivery in background
	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)

	log.Info("Event bus started")

	return &BusHandle{Bus: b, cancel: cancel}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	busHandle := do.MustInvoke[*BusHandle](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "db")
	db, err := store.New(dbPath, log.Logger, busHandle.Bus)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
