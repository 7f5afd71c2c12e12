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

// Roster gives a responder a near-real-time view of active sessions. Each
// poll replaces the whole list; the caller's selection survives as long as
// the selected session is still listed, otherwise it falls back to the
// first item or to none.
type Roster struct {
	registry core.SessionRegistry
	interval time.Duration

	onExpired func()

	mu       sync.Mutex
	items    []core.SessionSummary
	selected domain.SessionID
	cancel   context.CancelFunc
}

func NewRoster(registry core.SessionRegistry, interval time.Duration) *Roster {
	return &Roster{registry: registry, interval: interval}
}

// OnCredentialExpired registers the forced-logout hook.
func (r *Roster) OnCredentialExpired(fn func()) { r.onExpired = fn }

// Begin starts polling. The first refresh happens immediately.
func (r *Roster) Begin(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		r.Refresh(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Refresh(ctx)
			}
		}
	}()
}

// Stop halts polling. The current list stays readable.
func (r *Roster) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Refresh fetches the active list once and reconciles the selection.
func (r *Roster) Refresh(ctx context.Context) {
	items, err := r.registry.ListActive(ctx)
	if err != nil {
		if errors.Is(err, core.ErrCredentialExpired) {
			log.Error().Str("module", "app.roster").Msg("credential expired during poll")
			if r.onExpired != nil {
				r.onExpired()
			}
			return
		}
		// Next natural cycle retries; the stale list remains on display.
		log.Warn().Err(err).Str("module", "app.roster").Msg("active list poll failed")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
	if len(items) == 0 {
		r.selected = ""
		return
	}
	for _, it := range items {
		if it.ID == r.selected {
			return
		}
	}
	r.selected = items[0].ID
}

// Select pins the responder's current choice by identity.
func (r *Roster) Select(id domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			r.selected = id
			return true
		}
	}
	return false
}

// Selected returns the pinned session, ok=false when none.
func (r *Roster) Selected() (core.SessionSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == r.selected {
			return it, true
		}
	}
	return core.SessionSummary{}, false
}

// Items returns the last polled list.
func (r *Roster) Items() []core.SessionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.SessionSummary, len(r.items))
	copy(out, r.items)
	return out
}
