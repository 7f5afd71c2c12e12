package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

// Reporter drives best-effort periodic position upload. A failed tick logs
// and continues; credential expiry escalates through onExpired.
type Reporter struct {
	locator  core.Locator
	registry core.SessionRegistry
	interval time.Duration

	onReport  func(domain.Location) // invoked after each successful upload
	onExpired func()

	mu       sync.Mutex
	inFlight bool
	last     domain.Location
	hasLast  bool
	cancel   context.CancelFunc
}

func NewReporter(locator core.Locator, registry core.SessionRegistry, interval time.Duration) *Reporter {
	return &Reporter{locator: locator, registry: registry, interval: interval}
}

// OnReport registers the observer for successful uploads.
func (r *Reporter) OnReport(fn func(domain.Location)) { r.onReport = fn }

// OnCredentialExpired registers the forced-logout hook.
func (r *Reporter) OnCredentialExpired(fn func()) { r.onExpired = fn }

// Begin starts the reporting cycle. If a cycle is already running it is
// cancelled first; at most one cycle exists per reporter.
func (r *Reporter) Begin(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(ctx)
	log.Info().Str("module", "app.reporter").Dur("interval", r.interval).Msg("reporting cycle started")
}

// Stop guarantees no further tick is scheduled. An upload already in flight
// is allowed to complete.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
		log.Info().Str("module", "app.reporter").Msg("reporting cycle stopped")
	}
}

// LastReported returns the last successfully uploaded location.
func (r *Reporter) LastReported() (domain.Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

func (r *Reporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick skips itself when the previous upload has not resolved: at most one
// in-flight upload, never a queue.
func (r *Reporter) tick(ctx context.Context) {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		log.Debug().Str("module", "app.reporter").Msg("previous upload in flight, tick skipped")
		return
	}
	r.inFlight = true
	r.mu.Unlock()

	// The upload is detached from the cycle context: cancelling the cycle
	// stops scheduling, it does not abort an upload already in flight.
	upload := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			r.mu.Lock()
			r.inFlight = false
			r.mu.Unlock()
		}()
		r.report(upload)
	}()
}

func (r *Reporter) report(ctx context.Context) {
	loc, err := r.locator.Current(ctx)
	if err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			log.Warn().Str("module", "app.reporter").Msg("position permission denied, will retry next tick")
		} else {
			log.Warn().Err(err).Str("module", "app.reporter").Msg("position acquisition failed")
		}
		return
	}

	if err := r.registry.Update(ctx, loc); err != nil {
		if errors.Is(err, core.ErrCredentialExpired) {
			log.Error().Str("module", "app.reporter").Msg("credential expired during upload")
			if r.onExpired != nil {
				r.onExpired()
			}
			return
		}
		log.Warn().Err(err).Str("module", "app.reporter").Msg("location upload failed")
		return
	}

	r.mu.Lock()
	r.last = loc
	r.hasLast = true
	r.mu.Unlock()

	if r.onReport != nil {
		r.onReport(loc)
	}
}
