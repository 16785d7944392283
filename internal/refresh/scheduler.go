// Package refresh owns the reporting engine's state and keeps it current.
//
// The Scheduler drains the complaint collection and the user statistics on
// start, on a fixed interval and on demand, applies both results together,
// and derives the analytics view from them. At most one cycle is ever in
// flight: triggers arriving during a cycle are dropped, never queued.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cmonreports/internal/analytics"
	"cmonreports/internal/complaint"
	"cmonreports/internal/logging"
	"cmonreports/internal/metrics"
	"cmonreports/internal/summary"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Collector drains the complaint collection.
type Collector interface {
	CollectAll(ctx context.Context, pageSize, maxPages int) (complaint.Dataset, error)
}

// SummaryFetcher fetches the aggregate user statistics.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context) (summary.Stats, error)
}

// State is the scheduler's cycle state.
type State int32

const (
	Idle       State = iota
	Loading          // Blocking cycle: initial load or manual refetch
	Refreshing       // Background cycle; the current view stays visible
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Mode says what triggered a cycle.
type Mode int

const (
	ModeInitial Mode = iota
	ModeManual
	ModeBackground
)

func (m Mode) String() string {
	switch m {
	case ModeInitial:
		return "initial"
	case ModeManual:
		return "manual"
	default:
		return "background"
	}
}

func (m Mode) state() State {
	if m == ModeBackground {
		return Refreshing
	}
	return Loading
}

// Options configures a Scheduler.
type Options struct {
	WindowDays int
	PageSize   int
	MaxPages   int
	Interval   time.Duration
	Now        func() time.Time // Defaults to time.Now
}

// Totals are the headline counts of the consumer view.
type Totals struct {
	TotalComplaints int `json:"totalComplaints"`
	TotalUsers      int `json:"totalUsers"`
}

// Snapshot is the view model exposed to presentation consumers.
//
// Complaints shares its backing array with the scheduler; records are never
// modified after decode, so readers must not modify them either.
type Snapshot struct {
	Loading     bool               `json:"loading"`
	Refreshing  bool               `json:"refreshing"`
	Error       *string            `json:"error"`
	Complaints  []complaint.Record `json:"complaints"`
	Totals      Totals             `json:"totals"`
	UserStats   *summary.Stats     `json:"userStats"`
	Analytics   analytics.View     `json:"analytics"`
	Truncated   bool               `json:"truncated"`
	LastUpdated *time.Time         `json:"lastUpdated"`
}

// Scheduler runs refresh cycles and holds their results.
type Scheduler struct {
	collector Collector
	stats     SummaryFetcher
	opts      Options
	log       zerolog.Logger

	// Cycle admission and liveness
	state      atomic.Int32
	generation atomic.Uint64
	stopped    atomic.Bool

	// Lifecycle
	lifeMu  sync.Mutex
	running bool
	lifeCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Applied state, guarded by mu
	mu                  sync.RWMutex
	dataset             complaint.Dataset
	userStats           *summary.Stats
	hasData             bool
	windowDays          int
	view                analytics.View
	errMsg              *string
	lastUpdated         time.Time
	consecutiveFailures int

	listenMu  sync.Mutex
	onApplied []func(Snapshot)
	onFailure []func(err error, consecutive int)
}

// NewScheduler creates a scheduler. Nothing runs until Start.
func NewScheduler(collector Collector, stats SummaryFetcher, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WindowDays < 1 {
		opts.WindowDays = 30
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}

	s := &Scheduler{
		collector:  collector,
		stats:      stats,
		opts:       opts,
		log:        logging.Component("refresh"),
		windowDays: opts.WindowDays,
		dataset:    complaint.Dataset{Records: []complaint.Record{}},
		lifeCtx:    context.Background(),
	}
	s.view = analytics.Compute(nil, s.windowDays, opts.Now())
	return s
}

// OnApplied registers fn to be called with the new snapshot after every
// successful cycle.
func (s *Scheduler) OnApplied(fn func(Snapshot)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.onApplied = append(s.onApplied, fn)
}

// OnFailure registers fn to be called after every failed cycle with the
// error and the number of consecutive failed cycles.
func (s *Scheduler) OnFailure(fn func(err error, consecutive int)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.onFailure = append(s.onFailure, fn)
}

// Start runs the initial load, blocking until it completes, then arms the
// background ticker.
//
// The returned error is the initial load's error, already recorded in the
// snapshot; the ticker is armed either way.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.running {
		s.lifeMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Lock()
	s.stopped.Store(false)
	s.generation.Add(1)
	s.mu.Unlock()
	s.lifeCtx, s.cancel = context.WithCancel(ctx)
	lifeCtx := s.lifeCtx
	s.lifeMu.Unlock()

	s.log.Info().Dur("interval", s.opts.Interval).Int("window_days", s.WindowDays()).Msg("🔄 Starting refresh scheduler")

	_, err := s.run(lifeCtx, ModeInitial)

	s.wg.Add(1)
	go s.loop(lifeCtx)

	return err
}

// Serve runs the scheduler until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.log.Warn().Err(err).Msg("⚠️  Initial load failed, will retry on next tick")
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop cancels the ticker and any in-flight cycle. Results of a cycle that
// completes after Stop are discarded.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	if !s.running {
		s.lifeMu.Unlock()
		return
	}
	s.running = false
	// Under mu so a cycle cannot commit between this and its liveness check.
	s.mu.Lock()
	s.stopped.Store(true)
	s.generation.Add(1)
	s.mu.Unlock()
	s.cancel()
	s.lifeMu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("🛑 Refresh scheduler stopped")
}

// Refetch runs a manual, blocking cycle.
//
// Returns false when the trigger was dropped because a cycle was already in
// flight or the scheduler is stopped.
func (s *Scheduler) Refetch(ctx context.Context) bool {
	admitted, _ := s.run(ctx, ModeManual)
	return admitted
}

// State returns the current cycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// WindowDays returns the analytics window in days.
func (s *Scheduler) WindowDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windowDays
}

// SetWindowDays changes the analytics window and recomputes the view from
// the held dataset. No request is made.
func (s *Scheduler) SetWindowDays(days int) error {
	if days < 1 {
		return fmt.Errorf("window must be at least 1 day, got %d", days)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowDays = days
	s.view = analytics.Compute(s.dataset.Records, days, s.opts.Now())
	return nil
}

// Snapshot returns the current consumer view model.
func (s *Scheduler) Snapshot() Snapshot {
	state := s.State()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(state)
}

// SnapshotFor returns the current view model with the analytics computed
// for another window. Records and analytics come from the same dataset.
func (s *Scheduler) SnapshotFor(days int) Snapshot {
	state := s.State()

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshotLocked(state)
	if days != s.windowDays {
		snap.Analytics = analytics.Compute(s.dataset.Records, days, s.opts.Now())
	}
	return snap
}

func (s *Scheduler) snapshotLocked(state State) Snapshot {
	snap := Snapshot{
		Loading:    state == Loading,
		Refreshing: state == Refreshing,
		Error:      s.errMsg,
		Complaints: s.dataset.Records,
		Totals:     Totals{TotalComplaints: s.dataset.ReportedTotal},
		Analytics:  s.view,
		Truncated:  s.dataset.Truncated,
	}
	if s.userStats != nil {
		stats := *s.userStats
		snap.UserStats = &stats
		snap.Totals.TotalUsers = stats.TotalUsers
	}
	if !s.lastUpdated.IsZero() {
		t := s.lastUpdated
		snap.LastUpdated = &t
	}
	return snap
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, ModeBackground)
		}
	}
}

// run executes one cycle if none is in flight.
//
// Flow:
//  1. Admit the cycle by moving Idle to Loading/Refreshing, or drop it
//  2. Fetch the collection and the stats concurrently
//  3. Under one lock, discard the results if the scheduler stopped meanwhile,
//     otherwise apply both results or the failure policy
//  4. Notify listeners and return to Idle
func (s *Scheduler) run(ctx context.Context, mode Mode) (bool, error) {
	if s.stopped.Load() {
		return false, nil
	}
	if !s.state.CompareAndSwap(int32(Idle), int32(mode.state())) {
		metrics.RefreshTriggersDropped.WithLabelValues(mode.String()).Inc()
		s.log.Debug().Str("mode", mode.String()).Str("state", s.State().String()).Msg("⏭️  Cycle in flight, trigger dropped")
		return false, nil
	}
	defer s.state.Store(int32(Idle))

	gen := s.generation.Load()
	start := time.Now()

	// The cycle ends when either the caller or the scheduler's lifetime does.
	s.lifeMu.Lock()
	lifeCtx := s.lifeCtx
	s.lifeMu.Unlock()
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(lifeCtx, cancel)
	defer stopAfter()

	var (
		dataset complaint.Dataset
		stats   summary.Stats
	)
	g, gctx := errgroup.WithContext(cycleCtx)
	g.Go(func() error {
		var err error
		dataset, err = s.collector.CollectAll(gctx, s.opts.PageSize, s.opts.MaxPages)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.stats.FetchSummary(gctx)
		return err
	})
	err := g.Wait()

	metrics.RefreshDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		s.fail(mode, gen, err)
		return true, err
	}
	s.apply(mode, gen, dataset, stats)
	return true, nil
}

// liveLocked reports whether a cycle started in generation gen may still
// commit. The caller holds mu.
func (s *Scheduler) liveLocked(mode Mode, gen uint64) bool {
	if s.stopped.Load() || s.generation.Load() != gen {
		metrics.RefreshCycles.WithLabelValues(mode.String(), "discarded").Inc()
		s.log.Debug().Str("mode", mode.String()).Msg("Discarding results of a stale cycle")
		return false
	}
	return true
}

func (s *Scheduler) apply(mode Mode, gen uint64, dataset complaint.Dataset, stats summary.Stats) {
	s.mu.Lock()
	if !s.liveLocked(mode, gen) {
		s.mu.Unlock()
		return
	}
	s.dataset = dataset
	s.userStats = &stats
	s.hasData = true
	s.errMsg = nil
	s.consecutiveFailures = 0
	s.lastUpdated = s.opts.Now()
	s.view = analytics.Compute(dataset.Records, s.windowDays, s.lastUpdated)
	snap := s.snapshotLocked(Idle)
	s.mu.Unlock()

	metrics.RefreshCycles.WithLabelValues(mode.String(), "success").Inc()
	s.log.Info().
		Str("mode", mode.String()).
		Int("records", len(dataset.Records)).
		Int("reported_total", dataset.ReportedTotal).
		Bool("truncated", dataset.Truncated).
		Int("users", stats.TotalUsers).
		Msg("✅ Refresh cycle applied")

	s.listenMu.Lock()
	listeners := append([]func(Snapshot){}, s.onApplied...)
	s.listenMu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// fail applies the failure policy. A blocking cycle with nothing to fall
// back on blanks the view; otherwise the held data stays and only the error
// changes.
func (s *Scheduler) fail(mode Mode, gen uint64, err error) {
	msg := err.Error()

	s.mu.Lock()
	if !s.liveLocked(mode, gen) {
		s.mu.Unlock()
		return
	}
	reset := mode == ModeInitial || (mode == ModeManual && !s.hasData)
	if reset {
		s.dataset = complaint.Dataset{Records: []complaint.Record{}}
		s.userStats = nil
		s.hasData = false
		s.view = analytics.Compute(nil, s.windowDays, s.opts.Now())
	}
	s.errMsg = &msg
	s.consecutiveFailures++
	consecutive := s.consecutiveFailures
	s.mu.Unlock()

	metrics.RefreshCycles.WithLabelValues(mode.String(), "failure").Inc()
	s.log.Warn().
		Err(err).
		Str("mode", mode.String()).
		Bool("reset", reset).
		Int("consecutive_failures", consecutive).
		Msg("❌ Refresh cycle failed")

	s.listenMu.Lock()
	listeners := append([]func(error, int){}, s.onFailure...)
	s.listenMu.Unlock()
	for _, fn := range listeners {
		fn(err, consecutive)
	}
}

// Report returns the data of the summary image for this snapshot.
func (snap Snapshot) Report(generatedAt time.Time) summary.Report {
	return summary.Report{
		GeneratedAt:     generatedAt,
		View:            snap.Analytics,
		Stats:           snap.UserStats,
		TotalComplaints: snap.Totals.TotalComplaints,
		Truncated:       snap.Truncated,
	}
}
