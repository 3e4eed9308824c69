// Package poller keeps a view live by re-fetching on a fixed interval while
// the observed run is active.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lei/runwatch/pkg/logger"
)

const (
	// DetailInterval refreshes a single run's view
	DetailInterval = 5 * time.Second
	// ListInterval refreshes the run list
	ListInterval = 10 * time.Second
)

// State of the polling loop
type State string

const (
	StatePolling State = "POLLING"
	StateIdle    State = "IDLE"
)

// FetchFunc loads one fresh value from the backend
type FetchFunc[T any] func(ctx context.Context) (T, error)

// ActiveFunc decides whether polling continues after a successful fetch
type ActiveFunc[T any] func(T) bool

// Result is delivered for every fetch that is not stale
type Result[T any] struct {
	Seq   uint64
	Value T
	Err   error
	State State
	At    time.Time
}

// Ticker is the timer source driving refreshes
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.Ticker
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Config for a Controller
type Config[T any] struct {
	Interval time.Duration
	Fetch    FetchFunc[T]
	// Active nil means poll until stopped
	Active ActiveFunc[T]
	// OnResult receives results in issue order; it may call back into the
	// controller.
	OnResult  func(Result[T])
	NewTicker func(time.Duration) Ticker
	Logger    *logger.Logger
	Name      string
}

// Controller runs the POLLING/IDLE state machine. A timer tick issues a fetch
// even while an earlier one is in flight; every fetch carries a sequence
// number and responses older than the latest applied one are discarded.
type Controller[T any] struct {
	cfg Config[T]

	mu         sync.Mutex
	state      State
	generation uint64
	session    string
	stopLoop   context.CancelFunc
	applied    uint64

	deliverMu     sync.Mutex
	lastDelivered uint64

	issued atomic.Uint64
	latest atomic.Pointer[Result[T]]
}

// New creates an idle controller
func New[T any](cfg Config[T]) *Controller[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = DetailInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "poller"
	}
	return &Controller[T]{cfg: cfg, state: StateIdle}
}

// State returns the current state
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latest returns the most recently applied result, or nil before the first
func (c *Controller[T]) Latest() *Result[T] {
	return c.latest.Load()
}

// Start enters POLLING, fetches immediately and then on every tick. Calling
// Start while already polling does nothing. Cancelling ctx behaves like Stop.
func (c *Controller[T]) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StatePolling {
		return
	}
	c.state = StatePolling
	c.generation++
	c.session = uuid.NewString()

	loopCtx, cancel := context.WithCancel(ctx)
	c.stopLoop = cancel
	ticker := c.cfg.NewTicker(c.cfg.Interval)

	c.cfg.Logger.Debug("poller: started",
		"name", c.cfg.Name,
		"session", c.session,
		"interval", c.cfg.Interval.String())

	gen := c.generation
	go c.loop(loopCtx, ctx, ticker, gen)
	c.issueLocked(ctx, gen)
}

// Resume re-enters POLLING after a user action such as a stage retry
func (c *Controller[T]) Resume(ctx context.Context) {
	c.Start(ctx)
}

// Stop cancels the timer and discards results of fetches still in flight.
// In-flight requests themselves are not aborted.
func (c *Controller[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.toIdleLocked("stopped")
}

// Refresh issues one fetch outside the timer, e.g. on manual reload
func (c *Controller[T]) Refresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issueLocked(ctx, c.generation)
}

func (c *Controller[T]) loop(loopCtx, fetchCtx context.Context, ticker Ticker, gen uint64) {
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			if fetchCtx.Err() != nil {
				c.mu.Lock()
				if c.generation == gen {
					c.generation++
					c.toIdleLocked("context done")
				}
				c.mu.Unlock()
			}
			return
		case <-ticker.C():
			c.mu.Lock()
			if c.generation != gen || c.state != StatePolling {
				c.mu.Unlock()
				return
			}
			c.issueLocked(fetchCtx, gen)
			c.mu.Unlock()
		}
	}
}

func (c *Controller[T]) issueLocked(ctx context.Context, gen uint64) {
	seq := c.issued.Add(1)
	go func() {
		value, err := c.cfg.Fetch(ctx)
		c.resolve(gen, seq, value, err)
	}()
}

func (c *Controller[T]) resolve(gen, seq uint64, value T, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.cfg.Logger.Debug("poller: discarding result after stop", "name", c.cfg.Name, "seq", seq)
		return
	}
	if applied := c.applied; seq <= applied {
		c.mu.Unlock()
		c.cfg.Logger.Debug("poller: discarding stale result", "name", c.cfg.Name, "seq", seq, "applied", applied)
		return
	}
	c.applied = seq

	if c.state == StatePolling {
		switch {
		case err != nil:
			c.cfg.Logger.Warn("poller: fetch failed, polling stopped", "name", c.cfg.Name, "seq", seq, "error", err)
			c.toIdleLocked("fetch failed")
		case c.cfg.Active != nil && !c.cfg.Active(value):
			c.toIdleLocked("run no longer active")
		}
	}

	res := &Result[T]{Seq: seq, Value: value, Err: err, State: c.state, At: time.Now()}
	c.mu.Unlock()

	c.deliver(res)
}

// deliver hands results to OnResult without holding mu, so the callback may
// call Resume or Stop. The order check prevents a slower goroutine from
// delivering an older result after a newer one.
func (c *Controller[T]) deliver(res *Result[T]) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if res.Seq <= c.lastDelivered {
		return
	}
	c.lastDelivered = res.Seq
	c.latest.Store(res)
	if c.cfg.OnResult != nil {
		c.cfg.OnResult(*res)
	}
}

func (c *Controller[T]) toIdleLocked(reason string) {
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
	if c.state != StateIdle {
		c.cfg.Logger.Debug("poller: idle", "name", c.cfg.Name, "session", c.session, "reason", reason)
	}
	c.state = StateIdle
}
