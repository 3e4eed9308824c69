package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type tickerFactory struct {
	mu        sync.Mutex
	tickers   []*fakeTicker
	intervals []time.Duration
}

func (tf *tickerFactory) New(d time.Duration) Ticker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	tf.tickers = append(tf.tickers, t)
	tf.intervals = append(tf.intervals, d)
	return t
}

func (tf *tickerFactory) last() *fakeTicker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.tickers[len(tf.tickers)-1]
}

func waitResult(t *testing.T, ch <-chan Result[string]) Result[string] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result[string]{}
	}
}

func expectNoResult(t *testing.T, ch <-chan Result[string]) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected result: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestController(statuses []string, errAt int) (*Controller[string], *tickerFactory, chan Result[string], *atomic.Int32) {
	tf := &tickerFactory{}
	results := make(chan Result[string], 10)
	var calls atomic.Int32

	c := New(Config[string]{
		Interval: DetailInterval,
		Fetch: func(ctx context.Context) (string, error) {
			n := int(calls.Add(1))
			if n == errAt {
				return "", errors.New("backend down")
			}
			if n > len(statuses) {
				return statuses[len(statuses)-1], nil
			}
			return statuses[n-1], nil
		},
		Active:    func(s string) bool { return s == "RUNNING" || s == "STARTED" },
		OnResult:  func(r Result[string]) { results <- r },
		NewTicker: tf.New,
	})
	return c, tf, results, &calls
}

func TestController_StopsAfterTerminalStatus(t *testing.T) {
	c, tf, results, calls := newTestController([]string{"COMPLETED"}, 0)

	c.Start(context.Background())
	r := waitResult(t, results)

	if r.Value != "COMPLETED" || r.State != StateIdle {
		t.Fatalf("result = %+v, want COMPLETED/IDLE", r)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %s, want IDLE", c.State())
	}

	// A tick after going idle must not trigger another fetch
	tf.last().ch <- time.Now()
	expectNoResult(t, results)
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestController_RunningSchedulesOneMoreFetch(t *testing.T) {
	c, tf, results, calls := newTestController([]string{"RUNNING", "COMPLETED"}, 0)

	c.Start(context.Background())
	r := waitResult(t, results)
	if r.Value != "RUNNING" || r.State != StatePolling {
		t.Fatalf("first result = %+v, want RUNNING/POLLING", r)
	}
	if tf.intervals[0] != DetailInterval {
		t.Errorf("interval = %s, want %s", tf.intervals[0], DetailInterval)
	}

	// Nothing is fetched until the timer fires
	expectNoResult(t, results)
	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls before tick = %d, want 1", got)
	}

	tf.last().ch <- time.Now()
	r = waitResult(t, results)
	if r.Value != "COMPLETED" || r.State != StateIdle {
		t.Fatalf("second result = %+v, want COMPLETED/IDLE", r)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}

	deadline := time.Now().Add(time.Second)
	for !tf.last().stopped.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !tf.last().stopped.Load() {
		t.Error("ticker was not stopped after going idle")
	}
}

func TestController_FailureGoesIdleWithoutRetry(t *testing.T) {
	c, tf, results, calls := newTestController([]string{"RUNNING"}, 1)

	c.Start(context.Background())
	r := waitResult(t, results)
	if r.Err == nil || r.State != StateIdle {
		t.Fatalf("result = %+v, want error and IDLE", r)
	}

	tf.last().ch <- time.Now()
	expectNoResult(t, results)
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestController_ResumeAfterIdle(t *testing.T) {
	c, _, results, _ := newTestController([]string{"COMPLETED", "RUNNING"}, 0)

	c.Start(context.Background())
	waitResult(t, results)

	c.Resume(context.Background())
	r := waitResult(t, results)
	if r.Value != "RUNNING" || r.State != StatePolling {
		t.Fatalf("result after resume = %+v, want RUNNING/POLLING", r)
	}
	if c.Latest() == nil || c.Latest().Value != "RUNNING" {
		t.Errorf("Latest() = %+v", c.Latest())
	}
	c.Stop()
	if c.State() != StateIdle {
		t.Errorf("State() after Stop = %s", c.State())
	}
}

func TestController_DiscardsStaleResponses(t *testing.T) {
	tf := &tickerFactory{}
	results := make(chan Result[string], 10)
	release := make(chan struct{})
	var calls atomic.Int32

	c := New(Config[string]{
		Fetch: func(ctx context.Context) (string, error) {
			if calls.Add(1) == 1 {
				<-release // first fetch resolves last
				return "old", nil
			}
			return "new", nil
		},
		Active:    func(string) bool { return true },
		OnResult:  func(r Result[string]) { results <- r },
		NewTicker: tf.New,
	})

	c.Start(context.Background())
	tf.last().ch <- time.Now()

	r := waitResult(t, results)
	if r.Value != "new" || r.Seq != 2 {
		t.Fatalf("result = %+v, want seq 2 'new'", r)
	}

	close(release)
	expectNoResult(t, results)
	if c.Latest().Value != "new" {
		t.Errorf("Latest() = %q, stale response overwrote a newer one", c.Latest().Value)
	}
	c.Stop()
}

func TestController_StopDiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	results := make(chan Result[string], 1)
	tf := &tickerFactory{}

	c := New(Config[string]{
		Fetch: func(ctx context.Context) (string, error) {
			<-release
			return "RUNNING", nil
		},
		OnResult:  func(r Result[string]) { results <- r },
		NewTicker: tf.New,
	})

	c.Start(context.Background())
	c.Stop()
	close(release)
	expectNoResult(t, results)
}
