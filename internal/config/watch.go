package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// Reloader watches the .env file and re-reads the availability tunables
// when it changes. Only the tunables reload; everything else in the config
// stays fixed until restart.
type Reloader struct {
	path     string
	logger   *slog.Logger
	onChange func(AvailabilityConfig)

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	current AvailabilityConfig
	timer   *time.Timer
}

// NewReloader creates a reloader for the given .env file. onChange is
// called with the new tunables after every accepted reload.
func NewReloader(envFile string, initial AvailabilityConfig, logger *slog.Logger, onChange func(AvailabilityConfig)) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: editors and mv replace the inode
	// and a file watch would go stale after the first save.
	path := filepath.Clean(envFile)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Reloader{
		path:     path,
		logger:   logger,
		onChange: onChange,
		watcher:  watcher,
		current:  initial,
	}, nil
}

// Run processes file events until the context is cancelled.
func (r *Reloader) Run(ctx context.Context) {
	defer r.watcher.Close() //nolint:errcheck // shutdown path

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.scheduleReload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("config watch error", "error", err)
		}
	}
}

// Current returns the tunables as of the last accepted reload.
func (r *Reloader) Current() AvailabilityConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Reloader) scheduleReload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(reloadDebounce, r.reload)
}

func (r *Reloader) reload() {
	next, err := r.readTunables()
	if err != nil {
		r.logger.Warn("config reload skipped", "path", r.path, "error", err)
		return
	}

	r.mu.Lock()
	changed := next != r.current
	if changed {
		r.current = next
	}
	r.mu.Unlock()

	if !changed {
		return
	}

	r.logger.Info("availability tunables reloaded",
		"reservation_ttl", next.ReservationTTL,
		"heartbeat_interval", next.HeartbeatInterval,
		"warning_grace", next.WarningGrace)
	r.onChange(next)
}

// readTunables re-reads the .env file and parses the availability section,
// falling back to the running values for keys the file omits. Invalid
// values reject the whole reload.
func (r *Reloader) readTunables() (AvailabilityConfig, error) {
	r.mu.Lock()
	next := r.current
	r.mu.Unlock()

	values, err := parseEnvFile(r.path)
	if err != nil {
		return next, err
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&next.ReservationTTL, "RESERVATION_TTL"},
		{&next.HeartbeatInterval, "HEARTBEAT_INTERVAL"},
		{&next.WarningGrace, "WARNING_GRACE"},
	}
	for _, d := range durations {
		raw, ok := values[d.key]
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return next, fmt.Errorf("invalid %s %q: %w", d.key, raw, err)
		}
		*d.dst = parsed
	}

	if raw, ok := values["MAX_CHECKOUT_ITEMS"]; ok {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return next, fmt.Errorf("invalid MAX_CHECKOUT_ITEMS %q: %w", raw, err)
		}
		next.MaxCheckoutItems = n
	}

	if err := next.Validate(); err != nil {
		return next, err
	}
	return next, nil
}
