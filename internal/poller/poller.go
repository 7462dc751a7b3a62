// Package poller drives the periodic change probe that keeps the article
// cache coherent with out-of-band backend mutations.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/logging"
)

// DefaultInterval is the probe period used when Options.Interval is unset.
const DefaultInterval = 500 * time.Millisecond

// ErrAlreadyRunning is returned by Start on a running poller.
var ErrAlreadyRunning = errors.New("poller already running")

// Prober asks the backend whether anything changed since the last probe.
type Prober interface {
	CheckRefreshNeeded(ctx context.Context) (bool, error)
}

// Refresher runs the full refresh sequence: articles, then both popularity aggregates.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// State 是轮询器的状态机：Idle → Checking → (Idle | Refreshing → Idle)。
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateRefreshing:
		return "refreshing"
	default:
		return "idle"
	}
}

// Outcome 描述单次 tick 的结果。
type Outcome int

const (
	// OutcomeSkipped: 上一个 tick 仍在进行，本次被丢弃。
	OutcomeSkipped Outcome = iota
	// OutcomeUnchanged: 后端报告无需刷新。
	OutcomeUnchanged
	// OutcomeRefreshed: 完成了一次完整的刷新序列。
	OutcomeRefreshed
	// OutcomeFailed: 探测或刷新失败，错误已记录。
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRefreshed:
		return "refreshed"
	default:
		return "failed"
	}
}

// Stats are cumulative counters since construction.
type Stats struct {
	Ticks     uint64
	Skipped   uint64
	Refreshes uint64
	Failures  uint64
}

// Options 汇总 Poller 的依赖。
type Options struct {
	Prober    Prober
	Refresher Refresher
	Interval  time.Duration
	Logger    *logrus.Logger
}

// Poller 以固定周期探测后端变更。上一次 tick 未结束时新的 tick 直接丢弃，
// 因此任意时刻最多只有一个刷新序列在写缓存。
type Poller struct {
	prober    Prober
	refresher Refresher
	interval  time.Duration
	logger    *logrus.Logger

	inFlight atomic.Bool
	state    atomic.Int32

	ticks     atomic.Uint64
	skipped   atomic.Uint64
	refreshes atomic.Uint64
	failures  atomic.Uint64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running sync.WaitGroup
}

// New validates options and returns an idle poller.
func New(opts Options) (*Poller, error) {
	if opts.Prober == nil {
		return nil, errors.New("prober is required")
	}
	if opts.Refresher == nil {
		return nil, errors.New("refresher is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{
		prober:    opts.Prober,
		refresher: opts.Refresher,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Start 启动调度循环。ctx 会传递给每次 tick 的 Gateway 调用；
// ctx 结束或调用 Stop 都会停止后续 tick。
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return ErrAlreadyRunning
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop = stop
	p.done = done

	go p.loop(ctx, stop, done)

	p.logger.WithFields(logrus.Fields{
		"action":      "poll",
		"interval_ms": p.interval.Milliseconds(),
	}).Info("poller_started")
	return nil
}

// Stop 只取消后续 tick：等待调度循环退出，并等待正在进行的 tick 自然结束，
// 不会取消其中的 Gateway 调用。对未启动的 Poller 调用是安全的。
func (p *Poller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		p.running.Wait()
		return
	}
	close(stop)
	<-done
	p.running.Wait()

	p.logger.WithFields(logrus.Fields{"action": "poll"}).Info("poller_stopped")
}

// Running reports whether the scheduling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// State returns the current state machine position.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:     p.ticks.Load(),
		Skipped:   p.skipped.Load(),
		Refreshes: p.refreshes.Load(),
		Failures:  p.failures.Load(),
	}
}

// Tick 同步执行一次受保护的 tick；若上一个 tick 尚未结束则返回 OutcomeSkipped。
func (p *Poller) Tick(ctx context.Context) Outcome {
	tick := p.ticks.Add(1)
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.WithFields(logging.PollFields(tick, p.State().String())).Debug("tick_skipped")
		return OutcomeSkipped
	}
	defer p.inFlight.Store(false)
	defer p.state.Store(int32(StateIdle))

	p.state.Store(int32(StateChecking))
	needed, err := p.prober.CheckRefreshNeeded(ctx)
	if err != nil {
		p.failures.Add(1)
		p.logger.WithError(err).WithFields(logging.PollFields(tick, StateChecking.String())).Warn("probe_failed")
		return OutcomeFailed
	}
	if !needed {
		return OutcomeUnchanged
	}

	p.state.Store(int32(StateRefreshing))
	if err := p.refresher.RefreshAll(ctx); err != nil {
		p.failures.Add(1)
		p.logger.WithError(err).WithFields(logging.PollFields(tick, StateRefreshing.String())).Warn("refresh_failed")
		return OutcomeFailed
	}

	p.refreshes.Add(1)
	p.logger.WithFields(logging.PollFields(tick, StateRefreshing.String())).Info("refresh_complete")
	return OutcomeRefreshed
}

func (p *Poller) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	// ctx 结束时循环自行退出，需要释放句柄，以便 Running 返回 false 且可以再次 Start。
	defer func() {
		p.mu.Lock()
		if p.stop == stop {
			p.stop, p.done = nil, nil
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// tick 在独立 goroutine 中运行，循环本身不会被慢调用阻塞；
			// 重叠的 tick 由 inFlight 标记丢弃。
			p.running.Add(1)
			go func() {
				defer p.running.Done()
				p.Tick(ctx)
			}()
		}
	}
}
