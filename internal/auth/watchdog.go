package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilotdata/pilotcli/internal/identity"
)

// DefaultWatchdogInterval is how often the watchdog wakes.
const DefaultWatchdogInterval = 2 * time.Second

// Watchdog forces a token refresh whenever refreshEvery has elapsed since
// the last one, so transfers that outlive a token never see it expire. It
// also adopts tokens another pilotcli process wrote to the credential file.
type Watchdog struct {
	mgr          *Manager
	store        *identity.Store
	interval     time.Duration
	refreshEvery time.Duration
	logger       *slog.Logger
}

// NewWatchdog returns a watchdog for mgr. refreshEvery is normally the warn
// window. A nil store disables file watching.
func NewWatchdog(mgr *Manager, store *identity.Store, interval, refreshEvery time.Duration, logger *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}

	return &Watchdog{
		mgr:          mgr,
		store:        store,
		interval:     interval,
		refreshEvery: refreshEvery,
		logger:       logger,
	}
}

// Run blocks until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if w.store != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := w.store.Watch(ctx, w.mgr.Adopt); err != nil {
				w.logger.Warn("credential file watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	defer wg.Wait()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	if w.mgr.SinceRefresh() < w.refreshEvery {
		return
	}

	if _, err := w.mgr.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}

		w.logger.Warn("background token refresh failed", slog.String("error", err.Error()))

		return
	}

	w.logger.Debug("background token refresh")
}
