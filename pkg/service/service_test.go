package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/previewkit/previewkit/pkg/config"
)

// fakeProbe fails until readyAfter checks have been made.
type fakeProbe struct {
	readyAfter int
	checks     int
}

func (p *fakeProbe) Check(_ context.Context) error {
	p.checks++
	if p.checks > p.readyAfter {
		return nil
	}
	return errors.New("not ready")
}

func testSpec(timeout, interval time.Duration) config.ServiceSpec {
	return config.ServiceSpec{
		Name:           "fakedb",
		Start:          []string{"/bin/sh", "-c", "exit 0"},
		Stop:           []string{"/bin/sh", "-c", "exit 0"},
		Probe:          config.ProbeSpec{Kind: "tcp", Target: "localhost:1"},
		StartupTimeout: config.Duration(timeout),
		PollInterval:   config.Duration(interval),
	}
}

func newTestManager(probe Probe) *Manager {
	m := NewManager(zerolog.Nop())
	m.probeFor = func(config.ProbeSpec) (Probe, error) { return probe, nil }
	return m
}

func TestStartBecomesReady(t *testing.T) {
	probe := &fakeProbe{readyAfter: 0}
	m := newTestManager(probe)

	h, err := m.Start(context.Background(), testSpec(time.Second, time.Millisecond))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.State() != StateReady {
		t.Errorf("state = %s, want %s", h.State(), StateReady)
	}
}

func TestStartPollsUntilReady(t *testing.T) {
	// A service that reports not-ready for N polls must be probed
	// exactly N+1 times before the manager proceeds.
	const n = 4
	probe := &fakeProbe{readyAfter: n}
	m := newTestManager(probe)

	h, err := m.Start(context.Background(), testSpec(5*time.Second, time.Millisecond))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.State() != StateReady {
		t.Fatalf("state = %s, want %s", h.State(), StateReady)
	}
	if probe.checks != n+1 {
		t.Errorf("probe attempts = %d, want %d", probe.checks, n+1)
	}
}

func TestStartTimesOut(t *testing.T) {
	probe := &fakeProbe{readyAfter: 1 << 30} // never ready
	m := newTestManager(probe)

	timeout := 50 * time.Millisecond
	interval := 10 * time.Millisecond
	started := time.Now()

	_, err := m.Start(context.Background(), testSpec(timeout, interval))
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("expected ErrStartTimeout, got %v", err)
	}
	// Bounded poll: failure no later than timeout + one interval,
	// with a little scheduling slack.
	if elapsed := time.Since(started); elapsed > timeout+interval+100*time.Millisecond {
		t.Errorf("Start() took %v, want <= %v", elapsed, timeout+interval)
	}
}

func TestStartLaunchFailure(t *testing.T) {
	probe := &fakeProbe{readyAfter: 1 << 30} // not running, never ready
	m := newTestManager(probe)

	spec := testSpec(time.Second, time.Millisecond)
	spec.Start = []string{"/bin/sh", "-c", "echo boom >&2; exit 3"}

	_, err := m.Start(context.Background(), spec)
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("expected ErrLaunchFailed, got %v", err)
	}
	// Only the pre-launch check ran; a failed launch is never polled.
	if probe.checks != 1 {
		t.Errorf("probe ran %d times, want 1", probe.checks)
	}
}

func TestStartTimeoutStopsLaunchedService(t *testing.T) {
	// The launch succeeds but the service never answers its probe. The
	// caller gets no handle back, so the manager itself must stop what
	// it launched: no running service may leak out of a failed Start.
	probe := &fakeProbe{readyAfter: 1 << 30}
	m := newTestManager(probe)

	marker := filepath.Join(t.TempDir(), "stopped")
	spec := testSpec(30*time.Millisecond, 5*time.Millisecond)
	spec.Stop = []string{"/bin/sh", "-c", "touch " + marker}

	h, err := m.Start(context.Background(), spec)
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("expected ErrStartTimeout, got %v", err)
	}
	if h != nil {
		t.Fatalf("expected nil handle, got %+v", h)
	}
	if _, statErr := os.Stat(marker); statErr != nil {
		t.Error("stop command did not run after the failed start")
	}
}

// blockedProbe hangs until its context expires, like a wedged dial.
type blockedProbe struct{}

func (p *blockedProbe) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStartTimeoutBoundHoldsWithWedgedProbe(t *testing.T) {
	// A single probe attempt that never returns on its own must still be
	// cut off at the poll deadline, keeping the documented bound of
	// startup timeout plus one poll interval.
	m := newTestManager(&blockedProbe{})

	timeout := 50 * time.Millisecond
	interval := 10 * time.Millisecond
	started := time.Now()

	_, err := m.Start(context.Background(), testSpec(timeout, interval))
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("expected ErrStartTimeout, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > timeout+interval+100*time.Millisecond {
		t.Errorf("Start() took %v, want <= %v", elapsed, timeout+interval)
	}
}

func TestStartCancelled(t *testing.T) {
	probe := &fakeProbe{readyAfter: 1 << 30}
	m := newTestManager(probe)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := m.Start(ctx, testSpec(10*time.Second, 50*time.Millisecond))
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("expected ErrStartTimeout on cancellation, got %v", err)
	}
}

func TestStopIsIdempotentOnStoppedHandle(t *testing.T) {
	m := newTestManager(&fakeProbe{})

	if err := m.Stop(context.Background(), nil); err != nil {
		t.Errorf("Stop(nil) error = %v", err)
	}

	h := &Handle{state: StateStopped}
	if err := m.Stop(context.Background(), h); err != nil {
		t.Errorf("Stop(stopped) error = %v", err)
	}
}

func TestStopReportsCommandFailure(t *testing.T) {
	probe := &fakeProbe{readyAfter: 0}
	m := newTestManager(probe)

	spec := testSpec(time.Second, time.Millisecond)
	spec.Stop = []string{"/bin/sh", "-c", "exit 1"}

	h, err := m.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(context.Background(), h); err == nil {
		t.Error("expected error from failing stop command")
	}
}
