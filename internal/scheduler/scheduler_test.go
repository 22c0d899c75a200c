package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/probe"
	"github.com/hamed0406/pingbase/internal/repo/memory"
	"github.com/hamed0406/pingbase/internal/repo/repotest"
)

// --- fakes ---

type countingProber struct {
	mu    sync.Mutex
	calls map[domain.MonitorID]int
	delay time.Duration
	panic domain.MonitorID
}

func (p *countingProber) Probe(ctx context.Context, m *domain.Monitor) probe.Outcome {
	if m.ID == p.panic {
		panic("prober blew up")
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[domain.MonitorID]int{}
	}
	p.calls[m.ID]++
	p.mu.Unlock()
	return probe.Outcome{Status: domain.StatusUp, StatusCode: 200}
}

func (p *countingProber) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *countingProber) count(id domain.MonitorID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

type countingRecorder struct {
	n   atomic.Int32
	err error
}

func (r *countingRecorder) Record(ctx context.Context, m *domain.Monitor, out probe.Outcome) error {
	r.n.Add(1)
	return r.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// jumpingClock moves an hour forward on every read, so every monitor is
// always due.
type jumpingClock struct{ n atomic.Int64 }

func (c *jumpingClock) Now() time.Time {
	return time.Now().Add(time.Duration(c.n.Add(1)) * time.Hour)
}

func seed(t *testing.T, n int, interval int) *memory.Store {
	t.Helper()
	st := memory.New()
	for i := 0; i < n; i++ {
		m := repotest.NewMonitor(fmt.Sprintf("m%02d", i))
		m.CheckIntervalS = interval
		if err := st.AddMonitor(context.Background(), m); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- tests ---

func TestRunOnce_RespectsInterval(t *testing.T) {
	st := seed(t, 1, 60)
	p := &countingProber{}
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(zap.NewNop(), st, p, &countingRecorder{}, Config{})
	s.SetClock(clk.Now)
	ctx := context.Background()

	s.RunOnce(ctx)
	if p.total() != 1 {
		t.Fatalf("first tick must probe immediately, got %d", p.total())
	}
	for _, step := range []time.Duration{10 * time.Second, 20 * time.Second, 29 * time.Second} {
		clk.Advance(step)
		s.RunOnce(ctx)
	}
	if p.total() != 1 {
		t.Fatalf("re-probed before interval elapsed: %d", p.total())
	}
	clk.Advance(time.Second) // exactly 60s later
	s.RunOnce(ctx)
	if p.total() != 2 {
		t.Fatalf("want second probe at T+interval, got %d", p.total())
	}
}

func TestRunOnce_PicksUpNewMonitor(t *testing.T) {
	st := seed(t, 1, 60)
	p := &countingProber{}
	clk := &fakeClock{now: time.Now()}
	s := New(zap.NewNop(), st, p, &countingRecorder{}, Config{})
	s.SetClock(clk.Now)
	ctx := context.Background()

	s.RunOnce(ctx)
	fresh := repotest.NewMonitor("fresh")
	_ = st.AddMonitor(ctx, fresh)
	clk.Advance(10 * time.Second)
	s.RunOnce(ctx)
	if p.count(fresh.ID) != 1 {
		t.Fatalf("new monitor not picked up on next tick")
	}
}

func TestRunOnce_SkipsDeactivated(t *testing.T) {
	st := seed(t, 2, 30)
	ctx := context.Background()
	mons, _ := st.ListActiveMonitors(ctx)
	off := mons[0].ID
	if err := st.SetActive(ctx, off, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	p := &countingProber{}
	s := New(zap.NewNop(), st, p, &countingRecorder{}, Config{})
	s.SetClock((&jumpingClock{}).Now)
	for i := 0; i < 3; i++ {
		s.RunOnce(ctx)
	}
	if p.count(off) != 0 {
		t.Fatalf("inactive monitor probed %d times", p.count(off))
	}
	if p.count(mons[1].ID) != 3 {
		t.Fatalf("active monitor probed %d times", p.count(mons[1].ID))
	}
}

type gateProber struct {
	arrived chan domain.MonitorID
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (g *gateProber) Probe(ctx context.Context, m *domain.Monitor) probe.Outcome {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.arrived <- m.ID
	<-g.release
	g.active.Add(-1)
	if ctx.Err() != nil {
		return probe.Outcome{Status: domain.StatusDown, Error: "cancelled"}
	}
	return probe.Outcome{Status: domain.StatusUp, StatusCode: 200}
}

func TestRunOnce_BatchesRunSequentially(t *testing.T) {
	st := seed(t, 25, 60)
	g := &gateProber{arrived: make(chan domain.MonitorID, 64), release: make(chan struct{})}
	rec := &countingRecorder{}
	s := New(zap.NewNop(), st, g, rec, Config{BatchSize: 10})

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()

	for i, size := range []int{10, 10, 5} {
		for j := 0; j < size; j++ {
			select {
			case <-g.arrived:
			case <-time.After(3 * time.Second):
				t.Fatalf("batch %d: only %d of %d probes started", i, j, size)
			}
		}
		select {
		case id := <-g.arrived:
			t.Fatalf("batch %d: probe %s started before the batch settled", i, id)
		case <-time.After(50 * time.Millisecond):
		}
		if got := g.active.Load(); int(got) != size {
			t.Fatalf("batch %d: %d probes running concurrently, want %d", i, got, size)
		}
		for j := 0; j < size; j++ {
			g.release <- struct{}{}
		}
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("tick did not finish")
	}
	if g.peak.Load() != 10 {
		t.Fatalf("peak concurrency %d, want 10", g.peak.Load())
	}
	if rec.n.Load() != 25 {
		t.Fatalf("recorded %d outcomes, want 25", rec.n.Load())
	}
}

type overlapProber struct {
	mu      sync.Mutex
	running map[domain.MonitorID]bool
	clash   atomic.Bool
	calls   atomic.Int32
}

func (o *overlapProber) Probe(ctx context.Context, m *domain.Monitor) probe.Outcome {
	o.mu.Lock()
	if o.running[m.ID] {
		o.clash.Store(true)
	}
	o.running[m.ID] = true
	o.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	o.calls.Add(1)

	o.mu.Lock()
	o.running[m.ID] = false
	o.mu.Unlock()
	return probe.Outcome{Status: domain.StatusUp}
}

func TestOverlappingTicks_NeverProbeSameMonitorTwice(t *testing.T) {
	st := seed(t, 5, 30)
	o := &overlapProber{running: map[domain.MonitorID]bool{}}
	s := New(zap.NewNop(), st, o, &countingRecorder{}, Config{BatchSize: 2})
	s.SetClock((&jumpingClock{}).Now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	if o.clash.Load() {
		t.Fatalf("a monitor was probed concurrently by overlapping ticks")
	}
	if o.calls.Load() < 5 {
		t.Fatalf("every monitor should be probed at least once, got %d", o.calls.Load())
	}
	if s.Stats().InFlight != 0 {
		t.Fatalf("in-flight set not drained: %d", s.Stats().InFlight)
	}
}

func TestRunOnce_PanicAndErrorsAreIsolated(t *testing.T) {
	st := seed(t, 4, 60)
	ctx := context.Background()
	mons, _ := st.ListActiveMonitors(ctx)

	p := &countingProber{panic: mons[1].ID}
	rec := &countingRecorder{err: errors.New("database is locked")}
	s := New(zap.NewNop(), st, p, rec, Config{})
	s.SetClock((&jumpingClock{}).Now)

	s.RunOnce(ctx)

	if p.total() != 3 {
		t.Fatalf("other checks in the batch must complete, got %d", p.total())
	}
	if rec.n.Load() != 3 {
		t.Fatalf("recorder calls %d", rec.n.Load())
	}
	if s.Stats().InFlight != 0 {
		t.Fatalf("panicking check must release its slot")
	}

	// the next tick still runs
	s.RunOnce(ctx)
	if p.total() != 6 {
		t.Fatalf("second tick: %d probes", p.total())
	}
}

type failingLister struct{ calls atomic.Int32 }

func (f *failingLister) ListActiveMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestLoop_SurvivesListErrors(t *testing.T) {
	fl := &failingLister{}
	s := New(zap.NewNop(), fl, &countingProber{}, &countingRecorder{}, Config{Tick: 5 * time.Millisecond})
	s.Start(context.Background())
	waitFor(t, "several ticks", func() bool { return fl.calls.Load() >= 3 })
	s.Stop()
}

func TestStartStop_Idempotent(t *testing.T) {
	st := seed(t, 1, 60)
	p := &countingProber{}
	s := New(zap.NewNop(), st, p, &countingRecorder{}, Config{Tick: time.Hour})

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	waitFor(t, "immediate tick", func() bool { return p.total() == 1 })
	time.Sleep(30 * time.Millisecond)
	if p.total() != 1 {
		t.Fatalf("second Start must not launch another loop, probes=%d", p.total())
	}
	if !s.Running() {
		t.Fatalf("should be running")
	}

	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatalf("should be stopped")
	}

	// restart after stop works
	s.SetClock((&jumpingClock{}).Now)
	s.Start(ctx)
	waitFor(t, "tick after restart", func() bool { return p.total() == 2 })
	s.Stop()
}

func TestStop_NoTicksAfterStop(t *testing.T) {
	st := seed(t, 3, 30)
	p := &countingProber{}
	s := New(zap.NewNop(), st, p, &countingRecorder{}, Config{Tick: 10 * time.Millisecond})
	s.SetClock((&jumpingClock{}).Now)

	s.Start(context.Background())
	waitFor(t, "a few ticks", func() bool { return s.Stats().Ticks >= 3 })
	s.Stop()

	ticks, probes := s.Stats().Ticks, p.total()
	time.Sleep(60 * time.Millisecond)
	if s.Stats().Ticks != ticks || p.total() != probes {
		t.Fatalf("work continued after Stop: ticks %d->%d probes %d->%d", ticks, s.Stats().Ticks, probes, p.total())
	}
}

func TestStop_LetsInFlightCheckFinish(t *testing.T) {
	st := seed(t, 3, 60)
	g := &gateProber{arrived: make(chan domain.MonitorID, 8), release: make(chan struct{})}
	rec := &countingRecorder{}
	// batch size 1: the first check is in flight, the other two are pending batches
	s := New(zap.NewNop(), st, g, rec, Config{Tick: time.Hour, BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	<-g.arrived

	stopped := make(chan struct{})
	go func() {
		cancel()
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("Stop returned while a check was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	g.release <- struct{}{}
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("Stop did not return")
	}
	if rec.n.Load() != 1 {
		t.Fatalf("in-flight check should be recorded and pending batches skipped, recorded=%d", rec.n.Load())
	}
	if s.Stats().InFlight != 0 {
		t.Fatalf("skipped batches must release their claims")
	}
}

func TestSkipOverlap_DropsBusyTicks(t *testing.T) {
	st := seed(t, 1, 30)
	g := &gateProber{arrived: make(chan domain.MonitorID, 1024), release: make(chan struct{})}
	s := New(zap.NewNop(), st, g, &countingRecorder{}, Config{Tick: 5 * time.Millisecond, SkipOverlap: true})
	s.SetClock((&jumpingClock{}).Now)

	s.Start(context.Background())
	<-g.arrived
	waitFor(t, "skipped ticks", func() bool { return s.Stats().SkippedTick >= 2 })
	if s.Stats().Ticks != 1 {
		t.Fatalf("no tick should start while the first is busy, ticks=%d", s.Stats().Ticks)
	}
	close(g.release)
	s.Stop()
}
