package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"edgesync/internal/netmon"
)

// ConditionSource supplies link samples. *netmon.Monitor implements it.
type ConditionSource interface {
	CurrentConditions(ctx context.Context) netmon.Condition
	QualityScore() float64
}

// ResultWriter receives every sync outcome.
type ResultWriter interface {
	WriteResult(Result) error
}

// batchResultWriter is implemented by writers that prefer one call per
// dispatch phase.
type batchResultWriter interface {
	WriteResults([]Result) error
}

// Config holds the static parameters of a Scheduler.
type Config struct {
	NodeID            string
	MinSyncInterval   time.Duration
	MaxSyncDelay      time.Duration
	BatchThreshold    int
	SuccessRateWindow int
	MaxResults        int
	IdleWait          time.Duration
	TransferCap       time.Duration
	Thresholds        Thresholds
	Weights           Weights
	Logger            *slog.Logger
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		NodeID:            "edge-node-1",
		MinSyncInterval:   time.Second,
		MaxSyncDelay:      300 * time.Second,
		BatchThreshold:    5,
		SuccessRateWindow: 50,
		MaxResults:        1000,
		IdleWait:          100 * time.Millisecond,
		TransferCap:       5 * time.Second,
		Thresholds:        DefaultThresholds(),
		Weights:           DefaultWeights(),
	}
}

// Scheduler admits, delays, batches and dispatches sync events according
// to the current link quality.
type Scheduler struct {
	cfg    Config
	source ConditionSource
	writer ResultWriter
	policy *Policy
	log    *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	queue    *pendingQueue
	deferred deferredSet

	actionMu sync.RWMutex
	action   Action

	mu       sync.Mutex
	results  []Result
	lastSync time.Time

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Scheduler fed by source. writer may be nil.
func New(cfg Config, source ConditionSource, writer ResultWriter) *Scheduler {
	def := DefaultConfig()
	if cfg.MinSyncInterval < 0 {
		cfg.MinSyncInterval = 0
	}
	if cfg.MaxSyncDelay <= 0 {
		cfg.MaxSyncDelay = def.MaxSyncDelay
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = def.BatchThreshold
	}
	if cfg.SuccessRateWindow <= 0 {
		cfg.SuccessRateWindow = def.SuccessRateWindow
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = def.IdleWait
	}
	if cfg.TransferCap <= 0 {
		cfg.TransferCap = def.TransferCap
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		source: source,
		writer: writer,
		policy: NewPolicy(cfg.Weights, cfg.Thresholds, cfg.MinSyncInterval, cfg.MaxSyncDelay),
		log:    logger.With("component", "scheduler", "node", cfg.NodeID),
		now:    time.Now,
		sleep:  sleepContext,
		queue:  newPendingQueue(),
	}
}

// Submit validates ev and adds it to the pending queue.
func (s *Scheduler) Submit(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	ev.Consistency, _ = ParseConsistency(string(ev.Consistency))
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	if ev.SourceNode == "" {
		ev.SourceNode = s.cfg.NodeID
	}
	s.queue.push(ev, s.now())
	return nil
}

// ShouldSyncNow reports whether ev would be dispatched immediately on c.
func (s *Scheduler) ShouldSyncNow(ev Event, c netmon.Condition) bool {
	return s.policy.ShouldSyncNow(ev, c)
}

// CalculateSyncDelay returns the re-submission delay for ev on c.
func (s *Scheduler) CalculateSyncDelay(ev Event, c netmon.Condition) time.Duration {
	return s.policy.SyncDelay(ev, c)
}

// QualityScore scores c with the scheduler's current weights.
func (s *Scheduler) QualityScore(c netmon.Condition) float64 {
	return s.policy.QualityScore(c)
}

// NetworkQualityScore is the monitor's score for the latest sample.
func (s *Scheduler) NetworkQualityScore() float64 {
	return s.source.QualityScore()
}

// Weights returns the current scoring weights.
func (s *Scheduler) Weights() Weights {
	return s.policy.Weights()
}

// AdjustWeights applies one feedback observation to the scoring weights.
func (s *Scheduler) AdjustWeights(fb Feedback) {
	if s.policy.Adjust(fb) {
		w := s.policy.Weights()
		s.log.Info("adjusted weights", "success_rate", fb.SuccessRate,
			"latency", w.Latency, "bandwidth", w.Bandwidth, "priority", w.Priority, "size", w.Size)
	}
}

// ReportFeedback is shorthand for AdjustWeights with a success rate.
func (s *Scheduler) ReportFeedback(successRate float64) {
	s.AdjustWeights(Feedback{SuccessRate: successRate})
}

// Run processes the queue until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.run(ctx, nil)
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	s.log.Info("starting sync scheduler",
		"batch_threshold", s.cfg.BatchThreshold, "min_sync_interval", s.cfg.MinSyncInterval)
	defer func() {
		if n := s.deferred.clear(); n > 0 {
			s.log.Info("dropped delayed re-submissions", "count", n)
		}
		s.log.Info("stopping sync scheduler", "queue", s.queue.len())
	}()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if s.cycle(ctx) {
			continue
		}
		s.idle(ctx, stop)
	}
}

// idle waits for new work, the next due re-submission or IdleWait,
// whichever comes first.
func (s *Scheduler) idle(ctx context.Context, stop <-chan struct{}) {
	wait := s.cfg.IdleWait
	if due, ok := s.deferred.next(); ok {
		if d := due.Sub(s.now()); d < wait {
			wait = d
		}
	}
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.queue.notify:
	case <-stop:
	case <-ctx.Done():
	}
}

// cycle runs one processing pass and reports whether any event was
// drained. A panic ends the pass, not the loop; events drained but not yet
// dispatched or delayed go back to the queue.
func (s *Scheduler) cycle(ctx context.Context) (worked bool) {
	var inflight []Event
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sync cycle failed", "err", fmt.Sprint(r), "requeued", len(inflight))
			now := s.now()
			for _, ev := range inflight {
				s.queue.push(ev, now)
			}
			worked = false
		}
	}()

	now := s.now()
	for _, ev := range s.deferred.popDue(now) {
		s.queue.push(ev, now)
	}

	batch := s.queue.popN(s.cfg.BatchThreshold)
	if len(batch) == 0 {
		return false
	}
	inflight = batch

	cond := s.source.CurrentConditions(ctx)
	var admit, delay []Event
	for _, ev := range batch {
		if s.policy.ShouldSyncNow(ev, cond) {
			admit = append(admit, ev)
		} else {
			delay = append(delay, ev)
		}
	}

	inflight = delay
	if len(admit) > 0 {
		s.dispatch(ctx, admit, cond)
	}
	for _, ev := range delay {
		d := s.policy.SyncDelay(ev, cond)
		s.deferred.add(ev, s.now().Add(d))
		s.log.Debug("delayed sync", "data_id", ev.DataID, "priority", ev.Priority, "delay", d)
	}
	inflight = nil
	return true
}

func (s *Scheduler) dispatch(ctx context.Context, admit []Event, cond netmon.Condition) {
	s.mu.Lock()
	last := s.lastSync
	s.mu.Unlock()
	if !last.IsZero() {
		if wait := s.cfg.MinSyncInterval - s.now().Sub(last); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				now := s.now()
				for _, ev := range admit {
					s.queue.push(ev, now)
				}
				return
			}
		}
	}

	results := make([]Result, 0, len(admit))
	for _, group := range BatchSimilarEvents(admit) {
		s.log.Debug("dispatching batch", "app_type", group[0].AppType,
			"consistency", group[0].Consistency, "events", len(group))
		for _, ev := range group {
			r := s.safeExecute(ctx, ev, cond)
			if !r.Success {
				s.log.Warn("sync failed", "data_id", ev.DataID, "priority", ev.Priority, "err", r.Error)
			}
			results = append(results, r)
		}
	}

	s.mu.Lock()
	s.lastSync = s.now()
	s.results = append(s.results, results...)
	if over := len(s.results) - s.cfg.MaxResults; over > 0 {
		s.results = append(s.results[:0:0], s.results[over:]...)
	}
	s.mu.Unlock()

	s.emit(results)
}

// safeExecute turns a panicking action into a failed result so the event
// is still accounted for.
func (s *Scheduler) safeExecute(ctx context.Context, ev Event, cond netmon.Condition) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("sync action panicked", "data_id", ev.DataID, "err", fmt.Sprint(p))
			r = Result{Event: ev, Condition: cond, Error: fmt.Sprintf("panic: %v", p), Timestamp: s.now()}
		}
	}()
	return s.ExecuteSync(ctx, ev, cond)
}

func (s *Scheduler) emit(results []Result) {
	if s.writer == nil || len(results) == 0 {
		return
	}
	if bw, ok := s.writer.(batchResultWriter); ok {
		if err := bw.WriteResults(results); err != nil {
			s.log.Error("write results", "err", err)
		}
		return
	}
	for _, r := range results {
		if err := s.writer.WriteResult(r); err != nil {
			s.log.Error("write result", "err", err)
		}
	}
}

// Start launches the processing loop in the background. Calling Start
// while the loop is running does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	go func() {
		defer close(done)
		s.run(ctx, stop)
		s.loopMu.Lock()
		if s.stop == stop {
			s.stop, s.done = nil, nil
		}
		s.loopMu.Unlock()
	}()
}

// Stop ends the loop after the current cycle and cancels every pending
// delayed re-submission. Events still in the queue are kept.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.loopMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
