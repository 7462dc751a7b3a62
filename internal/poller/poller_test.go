package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/linkshelf/linkshelf/internal/logging"
)

func TestTickGatingOnProbe(t *testing.T) {
	probe := &scriptedProbe{answers: []bool{false, false, false, true, false}}
	refresher := &countingRefresher{}
	p := newTestPoller(t, probe, refresher, time.Hour)

	for i := 0; i < 3; i++ {
		if got := p.Tick(context.Background()); got != OutcomeUnchanged {
			t.Fatalf("tick %d: expected unchanged, got %s", i, got)
		}
	}
	if refresher.calls.Load() != 0 {
		t.Fatalf("no refresh expected while probe reports false")
	}

	if got := p.Tick(context.Background()); got != OutcomeRefreshed {
		t.Fatalf("expected refreshed, got %s", got)
	}
	if got := p.Tick(context.Background()); got != OutcomeUnchanged {
		t.Fatalf("expected unchanged after refresh, got %s", got)
	}
	if calls := refresher.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly one refresh sequence, got %d", calls)
	}

	stats := p.Stats()
	if stats.Ticks != 5 || stats.Refreshes != 1 || stats.Failures != 0 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if p.State() != StateIdle {
		t.Fatalf("poller should return to idle, got %s", p.State())
	}
}

func TestTickErrorsAreAbsorbed(t *testing.T) {
	probe := &scriptedProbe{answers: []bool{true, true, true}, errs: []error{errors.New("probe down"), nil, nil}}
	refresher := &countingRefresher{failFirst: true}
	p := newTestPoller(t, probe, refresher, time.Hour)

	if got := p.Tick(context.Background()); got != OutcomeFailed {
		t.Fatalf("probe error should fail the tick, got %s", got)
	}
	if got := p.Tick(context.Background()); got != OutcomeFailed {
		t.Fatalf("refresh error should fail the tick, got %s", got)
	}
	if got := p.Tick(context.Background()); got != OutcomeRefreshed {
		t.Fatalf("poller must keep going after errors, got %s", got)
	}
	if p.Stats().Failures != 2 {
		t.Fatalf("expected 2 failures, got %+v", p.Stats())
	}
}

func TestOverlappingTickIsDropped(t *testing.T) {
	probe := &scriptedProbe{answers: []bool{true, true}}
	refresher := &blockingRefresher{entered: make(chan struct{}), release: make(chan struct{})}
	p := newTestPoller(t, probe, refresher, time.Hour)

	first := make(chan Outcome, 1)
	go func() { first <- p.Tick(context.Background()) }()
	<-refresher.entered

	if p.State() != StateRefreshing {
		t.Fatalf("expected refreshing state, got %s", p.State())
	}
	if got := p.Tick(context.Background()); got != OutcomeSkipped {
		t.Fatalf("overlapping tick must be dropped, got %s", got)
	}
	if probe.calls() != 1 {
		t.Fatalf("skipped tick must not probe the backend, got %d probes", probe.calls())
	}

	close(refresher.release)
	if got := <-first; got != OutcomeRefreshed {
		t.Fatalf("first tick should complete, got %s", got)
	}
	if p.Stats().Skipped != 1 {
		t.Fatalf("expected one skipped tick, got %+v", p.Stats())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	probe := &scriptedProbe{}
	p := newTestPoller(t, probe, &countingRefresher{}, 5*time.Millisecond)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start should fail, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for probe.calls() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("poller did not tick, probes=%d", probe.calls())
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Stop()
	if p.Running() {
		t.Fatalf("poller should not be running after Stop")
	}
	stopped := probe.calls()
	time.Sleep(30 * time.Millisecond)
	if probe.calls() != stopped {
		t.Fatalf("no ticks expected after Stop")
	}
	p.Stop()
}

func TestContextCancelReleasesPoller(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPoller(t, &scriptedProbe{}, &countingRefresher{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("poller should stop running once its context is cancelled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("restart after context cancel should succeed, got %v", err)
	}
	if !p.Running() {
		t.Fatalf("poller should be running after restart")
	}
	p.Stop()
	if p.Running() {
		t.Fatalf("poller should not be running after Stop")
	}
}

func TestStopWaitsForInFlightTickWithoutCancelling(t *testing.T) {
	defer goleak.VerifyNone(t)

	probe := &scriptedProbe{answers: []bool{true}}
	refresher := &blockingRefresher{entered: make(chan struct{}), release: make(chan struct{})}
	p := newTestPoller(t, probe, refresher, 5*time.Millisecond)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	<-refresher.entered

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Stop returned while a refresh was still in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(refresher.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return after the in-flight tick finished")
	}
	if refresher.ctxErr != nil {
		t.Fatalf("in-flight refresh must not be cancelled, got %v", refresher.ctxErr)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Refresher: &countingRefresher{}}); err == nil {
		t.Fatalf("missing prober should fail")
	}
	if _, err := New(Options{Prober: &scriptedProbe{}}); err == nil {
		t.Fatalf("missing refresher should fail")
	}
	p, err := New(Options{Prober: &scriptedProbe{}, Refresher: &countingRefresher{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.interval != DefaultInterval {
		t.Fatalf("expected default interval, got %s", p.interval)
	}
}

func newTestPoller(t *testing.T, probe Prober, refresher Refresher, interval time.Duration) *Poller {
	t.Helper()
	p, err := New(Options{Prober: probe, Refresher: refresher, Interval: interval, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new poller error: %v", err)
	}
	return p
}

// scriptedProbe 依次返回 answers/errs，用尽后一直返回 false。
type scriptedProbe struct {
	mu      sync.Mutex
	answers []bool
	errs    []error
	n       int
}

func (s *scriptedProbe) CheckRefreshNeeded(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.n
	s.n++
	if i < len(s.errs) && s.errs[i] != nil {
		return false, s.errs[i]
	}
	if i < len(s.answers) {
		return s.answers[i], nil
	}
	return false, nil
}

func (s *scriptedProbe) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

type countingRefresher struct {
	calls     atomic.Int32
	failFirst bool
}

func (c *countingRefresher) RefreshAll(context.Context) error {
	n := c.calls.Add(1)
	if c.failFirst && n == 1 {
		return errors.New("refresh failed")
	}
	return nil
}

type blockingRefresher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  error
}

func (b *blockingRefresher) RefreshAll(ctx context.Context) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.ctxErr = ctx.Err()
	return nil
}
