package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/probe"
)

const (
	DefaultTick      = 10 * time.Second
	DefaultBatchSize = 10
)

type MonitorLister interface {
	ListActiveMonitors(ctx context.Context) ([]*domain.Monitor, error)
}

type Recorder interface {
	Record(ctx context.Context, m *domain.Monitor, out probe.Outcome) error
}

type Config struct {
	Tick      time.Duration
	BatchSize int
	// SkipOverlap drops a tick while the previous one is still running.
	SkipOverlap bool
}

// Stats is a point-in-time view of the scheduler bookkeeping.
type Stats struct {
	Running     bool       `json:"running"`
	Ticks       int64      `json:"ticks"`
	SkippedTick int64      `json:"skipped_ticks"`
	Tracked     int        `json:"tracked_monitors"`
	InFlight    int        `json:"in_flight"`
	LastTickAt  *time.Time `json:"last_tick_at,omitempty"`
	LastTickDue int        `json:"last_tick_due"`
}

type Scheduler struct {
	log      *zap.Logger
	monitors MonitorLister
	prober   probe.Prober
	recorder Recorder
	cfg      Config
	now      func() time.Time

	mu        sync.Mutex
	lastCheck map[domain.MonitorID]time.Time
	inFlight  map[domain.MonitorID]struct{}
	lastTick  time.Time
	lastDue   int
	running   bool
	stop      chan struct{}
	loopDone  chan struct{}

	ticks    sync.WaitGroup
	busy     atomic.Bool
	tickN    atomic.Int64
	skippedN atomic.Int64
}

func New(
	logger *zap.Logger,
	monitors MonitorLister,
	prober probe.Prober,
	recorder Recorder,
	cfg Config,
) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		log:       logger,
		monitors:  monitors,
		prober:    prober,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
		lastCheck: make(map[domain.MonitorID]time.Time),
		inFlight:  make(map[domain.MonitorID]struct{}),
	}
}

// SetClock replaces the time source. Call before Start.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start launches the tick loop with an immediate first pass. A second call
// while running is a no-op. The loop ends on Stop or when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Debug("scheduler_already_running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(ctx, s.stop, s.loopDone)
	s.log.Info("scheduler_started",
		zap.Duration("tick", s.cfg.Tick),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Bool("skip_overlap", s.cfg.SkipOverlap),
	)
}

// Stop cancels the timer and waits for in-flight batches to finish.
// Batches of a tick that have not started yet are skipped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	done := s.loopDone
	s.mu.Unlock()

	<-done
	s.ticks.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info("scheduler_stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()

	s.fire(ctx, stop)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			s.fire(ctx, stop)
		}
	}
}

// fire starts one tick without waiting for it, so ticks may overlap unless
// SkipOverlap is set.
func (s *Scheduler) fire(ctx context.Context, stop <-chan struct{}) {
	if s.cfg.SkipOverlap && !s.busy.CompareAndSwap(false, true) {
		s.skippedN.Add(1)
		s.log.Warn("scheduler_tick_skipped", zap.String("reason", "previous tick still running"))
		return
	}
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		if s.cfg.SkipOverlap {
			defer s.busy.Store(false)
		}
		s.runTick(ctx, stop)
	}()
}

// RunOnce runs a single tick synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runTick(ctx, nil)
}

func (s *Scheduler) runTick(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		// the timer must survive any bad cycle
		if r := recover(); r != nil {
			s.log.Error("scheduler_tick_panic", zap.Any("panic", r))
		}
	}()
	n := s.tickN.Add(1)

	mons, err := s.monitors.ListActiveMonitors(ctx)
	if err != nil {
		s.log.Error("scheduler_list_error", zap.Int64("tick", n), zap.Error(err))
		return
	}
	due := s.claimDue(mons)
	s.log.Debug("scheduler_tick",
		zap.Int64("tick", n),
		zap.Int("active", len(mons)),
		zap.Int("due", len(due)),
	)

	for start := 0; start < len(due); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(due) {
			end = len(due)
		}
		if stopped(stop) {
			s.log.Info("scheduler_batches_skipped", zap.Int64("tick", n), zap.Int("monitors", len(due)-start))
			for _, m := range due[start:] {
				s.release(m.ID)
			}
			return
		}
		s.runBatch(ctx, due[start:end])
	}
}

// claimDue selects monitors whose interval has elapsed and marks them in
// flight in the same critical section, so a monitor is never probed by two
// checks at once even when ticks overlap.
func (s *Scheduler) claimDue(mons []*domain.Monitor) []*domain.Monitor {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[domain.MonitorID]struct{}, len(mons))
	due := make([]*domain.Monitor, 0, len(mons))
	for _, m := range mons {
		active[m.ID] = struct{}{}
		if _, busy := s.inFlight[m.ID]; busy {
			continue
		}
		last, seen := s.lastCheck[m.ID]
		if seen && now.Sub(last) < m.CheckInterval() {
			continue
		}
		s.inFlight[m.ID] = struct{}{}
		due = append(due, m)
	}
	// forget monitors that were deleted or deactivated
	for id := range s.lastCheck {
		if _, ok := active[id]; !ok {
			if _, busy := s.inFlight[id]; !busy {
				delete(s.lastCheck, id)
			}
		}
	}
	s.lastTick = now
	s.lastDue = len(due)
	return due
}

func (s *Scheduler) runBatch(ctx context.Context, batch []*domain.Monitor) {
	var wg conc.WaitGroup
	for _, m := range batch {
		m := m
		wg.Go(func() {
			defer s.release(m.ID)
			s.check(ctx, m)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		s.log.Error("scheduler_check_panic", zap.String("panic", r.String()))
	}
}

func (s *Scheduler) check(ctx context.Context, m *domain.Monitor) {
	// stop must not cancel a started probe; its own timeout bounds it
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	s.lastCheck[m.ID] = s.now()
	s.mu.Unlock()

	out := s.prober.Probe(ctx, m)
	if err := s.recorder.Record(ctx, m, out); err != nil {
		s.log.Error("scheduler_record_error",
			zap.String("monitor_id", string(m.ID)),
			zap.String("url", m.URL),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) release(id domain.MonitorID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Running:     s.running,
		Ticks:       s.tickN.Load(),
		SkippedTick: s.skippedN.Load(),
		Tracked:     len(s.lastCheck),
		InFlight:    len(s.inFlight),
		LastTickDue: s.lastDue,
	}
	if !s.lastTick.IsZero() {
		at := s.lastTick
		st.LastTickAt = &at
	}
	return st
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
