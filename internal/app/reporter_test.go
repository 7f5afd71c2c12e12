package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

const tickInterval = 10 * time.Millisecond

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestReporterUploadsOnTick(t *testing.T) {
	reg := &fakeRegistry{}
	loc := &fakeLocator{loc: domain.Location{Latitude: 10, Longitude: 20}}
	r := NewReporter(loc, reg, tickInterval)

	r.Begin(context.Background())
	defer r.Stop()

	waitFor(t, func() bool { return reg.updates() >= 2 }, "two uploads")

	last, ok := r.LastReported()
	require.True(t, ok)
	assert.Equal(t, domain.Location{Latitude: 10, Longitude: 20}, last)
}

func TestOverlappingTickIsSkippedNotQueued(t *testing.T) {
	gate := make(chan struct{})
	reg := &fakeRegistry{updateGate: gate}
	loc := &fakeLocator{}
	r := NewReporter(loc, reg, tickInterval)

	r.Begin(context.Background())
	defer r.Stop()

	waitFor(t, func() bool { return reg.updates() == 1 }, "first upload started")

	// Several intervals pass while the first upload hangs; every one of
	// those ticks must be skipped, not queued.
	time.Sleep(5 * tickInterval)
	assert.Equal(t, 1, reg.updates())

	close(gate)
	waitFor(t, func() bool { return reg.updates() >= 2 }, "next tick uploads after resolve")
}

func TestStopSchedulesNoFurtherTicks(t *testing.T) {
	gate := make(chan struct{})
	reg := &fakeRegistry{updateGate: gate}
	loc := &fakeLocator{}
	r := NewReporter(loc, reg, tickInterval)

	r.Begin(context.Background())
	waitFor(t, func() bool { return reg.updates() == 1 }, "upload in flight")

	r.Stop()
	close(gate) // the in-flight upload completes

	time.Sleep(5 * tickInterval)
	assert.Equal(t, 1, reg.updates(), "no tick may fire after Stop")
}

func TestFailedTickNeverStopsTheCycle(t *testing.T) {
	reg := &fakeRegistry{}
	loc := &fakeLocator{errs: []error{core.ErrPermissionDenied, errors.New("gps timeout")}}
	r := NewReporter(loc, reg, tickInterval)

	r.Begin(context.Background())
	defer r.Stop()

	// Two failing acquisitions, then uploads resume.
	waitFor(t, func() bool { return reg.updates() >= 1 }, "cycle survives failures")
}

func TestTransientUploadFailureContinues(t *testing.T) {
	reg := &fakeRegistry{updateErr: &core.TransientError{Op: "update", Err: errors.New("503")}}
	loc := &fakeLocator{}
	r := NewReporter(loc, reg, tickInterval)

	r.Begin(context.Background())
	defer r.Stop()

	waitFor(t, func() bool { return reg.updates() >= 3 }, "keeps attempting")
	_, ok := r.LastReported()
	assert.False(t, ok, "failed uploads must not record a last location")
}

func TestCredentialExpiryEscalates(t *testing.T) {
	reg := &fakeRegistry{updateErr: core.ErrCredentialExpired}
	loc := &fakeLocator{}
	r := NewReporter(loc, reg, tickInterval)

	expired := make(chan struct{}, 1)
	r.OnCredentialExpired(func() {
		select {
		case expired <- struct{}{}:
		default:
		}
	})

	r.Begin(context.Background())
	defer r.Stop()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expired credential never escalated")
	}
}
