package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"edgesync/internal/netmon"
)

type fakeSource struct {
	mu    sync.Mutex
	cond  netmon.Condition
	calls int
	panic bool
}

func (f *fakeSource) CurrentConditions(context.Context) netmon.Condition {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic {
		panic("probe exploded")
	}
	return f.cond
}

func (f *fakeSource) QualityScore() float64 { return 77 }

func (f *fakeSource) set(c netmon.Condition) {
	f.mu.Lock()
	f.cond = c
	f.mu.Unlock()
}

type collectResults struct {
	mu      sync.Mutex
	single  []Result
	batches [][]Result
}

func (c *collectResults) WriteResult(r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.single = append(c.single, r)
	return nil
}

type collectBatches struct {
	collectResults
}

func (c *collectBatches) WriteResults(rs []Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, rs)
	return nil
}

type recordingAction struct {
	mu  sync.Mutex
	ids []string
}

func (a *recordingAction) run(_ context.Context, ev Event, _ netmon.Condition) Result {
	a.mu.Lock()
	a.ids = append(a.ids, ev.DataID)
	a.mu.Unlock()
	return Result{Success: true, Duration: time.Millisecond}
}

func (a *recordingAction) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSyncInterval = 0
	cfg.MaxSyncDelay = time.Minute
	cfg.IdleWait = 5 * time.Millisecond
	cfg.TransferCap = 10 * time.Millisecond
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

// fixedClock pins the scheduler's notion of time so deferred entries and
// rate limiting are deterministic.
func fixedClock(s *Scheduler, t time.Time) *time.Time {
	now := t
	s.now = func() time.Time { return now }
	return &now
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSubmitRejectsInvalidEvents(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	if err := s.Submit(Event{Priority: 0}); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if err := s.Submit(Event{Priority: 5, Size: -1}); !errors.Is(err, ErrNegativeSize) {
		t.Fatalf("expected ErrNegativeSize, got %v", err)
	}
	if err := s.Submit(Event{Priority: 5, Consistency: "bogus"}); !errors.Is(err, ErrInvalidConsistency) {
		t.Fatalf("expected ErrInvalidConsistency, got %v", err)
	}
	if s.PerformanceStats().QueueSize != 0 {
		t.Fatalf("invalid events must not be queued")
	}
}

func TestCycleDispatchesInPriorityOrder(t *testing.T) {
	src := &fakeSource{cond: goodLink}
	s := New(testConfig(), src, nil)
	act := &recordingAction{}
	s.SetExecutionAction(act.run)

	for _, ev := range []Event{
		{DataID: "p5", Priority: 5, AppType: "iot"},
		{DataID: "p10", Priority: 10, AppType: "iot"},
		{DataID: "p7", Priority: 7, AppType: "iot"},
	} {
		if err := s.Submit(ev); err != nil {
			t.Fatal(err)
		}
	}
	if !s.cycle(context.Background()) {
		t.Fatalf("cycle reported no work")
	}
	got := act.seen()
	want := []string{"p10", "p7", "p5"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("dispatch order %v, want %v", got, want)
	}
	if src.calls != 1 {
		t.Fatalf("conditions sampled %d times per cycle", src.calls)
	}
	if st := s.PerformanceStats(); st.TotalSyncs != 3 || st.SuccessRate != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestCycleHonorsBatchThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 2
	s := New(cfg, &fakeSource{cond: goodLink}, nil)
	act := &recordingAction{}
	s.SetExecutionAction(act.run)
	for i := 0; i < 5; i++ {
		_ = s.Submit(Event{DataID: "e", Priority: 9})
	}
	s.cycle(context.Background())
	if n := len(act.seen()); n != 2 {
		t.Fatalf("dispatched %d events, want 2", n)
	}
	if q := s.PerformanceStats().QueueSize; q != 3 {
		t.Fatalf("queue size %d, want 3", q)
	}
}

func TestCycleGroupsByAppTypeAndConsistency(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	act := &recordingAction{}
	s.SetExecutionAction(act.run)
	_ = s.Submit(Event{DataID: "A", Priority: 9, AppType: "x"})
	_ = s.Submit(Event{DataID: "C", Priority: 9, AppType: "y"})
	_ = s.Submit(Event{DataID: "B", Priority: 9, AppType: "x"})
	s.cycle(context.Background())
	if got := strings.Join(act.seen(), ","); got != "A,B,C" {
		t.Fatalf("dispatch order %s, want A,B,C", got)
	}
}

func TestCycleDelaysRejectedEvents(t *testing.T) {
	src := &fakeSource{cond: poorLink}
	s := New(testConfig(), src, nil)
	now := fixedClock(s, time.Unix(5000, 0))
	act := &recordingAction{}
	s.SetExecutionAction(act.run)

	_ = s.Submit(Event{DataID: "bulk", Priority: 4, Size: 2 << 20, AppType: "logs"})
	s.cycle(context.Background())
	st := s.PerformanceStats()
	if st.Deferred != 1 || st.QueueSize != 0 || st.TotalSyncs != 0 {
		t.Fatalf("expected one deferred event, got %+v", st)
	}

	// Not yet due: nothing moves.
	if s.cycle(context.Background()) {
		t.Fatalf("cycle found work before the delay elapsed")
	}

	due, _ := s.deferred.next()
	*now = due
	src.set(goodLink)
	_ = s.Submit(Event{DataID: "other", Priority: 2})
	if !s.cycle(context.Background()) {
		t.Fatalf("due event not re-submitted")
	}
	if got := act.seen(); len(got) != 1 || got[0] != "bulk" {
		t.Fatalf("expected the delayed event to sync, got %v", got)
	}
	if s.PerformanceStats().Deferred != 1 {
		t.Fatalf("priority 2 event should have been delayed on a good link")
	}
}

func TestDefaultSimulation(t *testing.T) {
	s := New(testConfig(), &fakeSource{}, nil)
	ctx := context.Background()
	ev := Event{DataID: "d", Priority: 5, Size: 1024}

	ok := s.ExecuteSync(ctx, ev, netmon.Condition{LatencyMs: 5, BandwidthMbps: 100})
	if !ok.Success || ok.Error != "" || ok.Duration < 0 {
		t.Fatalf("expected success, got %+v", ok)
	}
	lossy := s.ExecuteSync(ctx, ev, netmon.Condition{LatencyMs: 5, BandwidthMbps: 100, PacketLoss: 10})
	if lossy.Success || lossy.Error != simulatedFailure {
		t.Fatalf("expected failure on lossy link, got %+v", lossy)
	}
	slow := s.ExecuteSync(ctx, ev, netmon.Condition{LatencyMs: netmon.SentinelLatencyMs + 100, BandwidthMbps: 0})
	if slow.Success {
		t.Fatalf("expected failure on dead link")
	}
	if slow.Duration > time.Second {
		t.Fatalf("transfer not capped: %v", slow.Duration)
	}
}

func TestSimulationHonorsCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.TransferCap = time.Minute
	s := New(cfg, &fakeSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := s.ExecuteSync(ctx, Event{Priority: 5, Size: 1 << 30}, netmon.Condition{BandwidthMbps: 0.001})
	if r.Success || r.Error == "" {
		t.Fatalf("expected cancelled result, got %+v", r)
	}
}

func TestRateLimitBetweenDispatches(t *testing.T) {
	cfg := testConfig()
	cfg.MinSyncInterval = 50 * time.Millisecond
	s := New(cfg, &fakeSource{cond: goodLink}, nil)
	fixedClock(s, time.Unix(7000, 0))
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	s.SetExecutionAction((&recordingAction{}).run)

	_ = s.Submit(Event{Priority: 9})
	s.cycle(context.Background())
	if len(waits) != 0 {
		t.Fatalf("first dispatch should not wait, waited %v", waits)
	}
	_ = s.Submit(Event{Priority: 9})
	s.cycle(context.Background())
	if len(waits) != 1 || waits[0] != 50*time.Millisecond {
		t.Fatalf("expected one 50ms wait, got %v", waits)
	}
}

func TestRateLimitCancellationRequeues(t *testing.T) {
	cfg := testConfig()
	cfg.MinSyncInterval = time.Second
	s := New(cfg, &fakeSource{cond: goodLink}, nil)
	fixedClock(s, time.Unix(7000, 0))
	s.SetExecutionAction((&recordingAction{}).run)
	_ = s.Submit(Event{Priority: 9})
	s.cycle(context.Background())

	s.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	_ = s.Submit(Event{DataID: "a", Priority: 9})
	_ = s.Submit(Event{DataID: "b", Priority: 9})
	s.cycle(context.Background())
	st := s.PerformanceStats()
	if st.QueueSize != 2 || st.TotalSyncs != 1 {
		t.Fatalf("interrupted events should be re-queued, got %+v", st)
	}
}

func TestCycleSurvivesPanickingAction(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	s.SetExecutionAction(func(_ context.Context, ev Event, _ netmon.Condition) Result {
		if ev.DataID == "bad" {
			panic("transport bug")
		}
		return Result{Success: true}
	})
	_ = s.Submit(Event{DataID: "bad", Priority: 10})
	_ = s.Submit(Event{DataID: "good", Priority: 9})
	s.cycle(context.Background())

	rs := s.Results()
	if len(rs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(rs))
	}
	if rs[0].Success || !strings.HasPrefix(rs[0].Error, "panic:") {
		t.Fatalf("panicking action should fail its event, got %+v", rs[0])
	}
	if !rs[1].Success {
		t.Fatalf("second event should still succeed")
	}
}

func TestCycleRequeuesWhenSamplingPanics(t *testing.T) {
	src := &fakeSource{cond: goodLink, panic: true}
	s := New(testConfig(), src, nil)
	_ = s.Submit(Event{Priority: 9})
	_ = s.Submit(Event{Priority: 4})
	if s.cycle(context.Background()) {
		t.Fatalf("failed cycle should report no progress")
	}
	if q := s.PerformanceStats().QueueSize; q != 2 {
		t.Fatalf("drained events lost: queue=%d", q)
	}
}

func TestResultWriters(t *testing.T) {
	single := &collectResults{}
	s := New(testConfig(), &fakeSource{cond: goodLink}, single)
	s.SetExecutionAction((&recordingAction{}).run)
	_ = s.Submit(Event{Priority: 9})
	_ = s.Submit(Event{Priority: 9})
	s.cycle(context.Background())
	if len(single.single) != 2 {
		t.Fatalf("expected 2 single writes, got %d", len(single.single))
	}

	batched := &collectBatches{}
	s = New(testConfig(), &fakeSource{cond: goodLink}, batched)
	s.SetExecutionAction((&recordingAction{}).run)
	_ = s.Submit(Event{Priority: 9, AppType: "a"})
	_ = s.Submit(Event{Priority: 9, AppType: "b"})
	s.cycle(context.Background())
	if len(batched.batches) != 1 || len(batched.batches[0]) != 2 || len(batched.single) != 0 {
		t.Fatalf("expected one batch of 2, got %+v", batched.batches)
	}
}

func TestResultsHistoryBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxResults = 3
	cfg.BatchThreshold = 10
	s := New(cfg, &fakeSource{cond: goodLink}, nil)
	s.SetExecutionAction((&recordingAction{}).run)
	for i := 0; i < 5; i++ {
		_ = s.Submit(Event{DataID: string(rune('a' + i)), Priority: 9})
	}
	s.cycle(context.Background())
	rs := s.Results()
	if len(rs) != 3 || rs[0].Event.DataID != "c" {
		t.Fatalf("expected last 3 results, got %d starting at %q", len(rs), rs[0].Event.DataID)
	}
}

func TestPerformanceStats(t *testing.T) {
	cfg := testConfig()
	cfg.SuccessRateWindow = 2
	s := New(cfg, &fakeSource{cond: goodLink}, nil)

	_ = s.Submit(Event{Priority: 3})
	st := s.PerformanceStats()
	if st.TotalSyncs != 0 || st.SuccessRate != 0 || st.QueueSize != 1 {
		t.Fatalf("unexpected empty stats %+v", st)
	}

	s.results = []Result{
		{Event: Event{Priority: 1}, Success: false, Duration: time.Hour},
		{Event: Event{Priority: 4}, Success: true, Duration: 2 * time.Second},
		{Event: Event{Priority: 8}, Success: false, Duration: 4 * time.Second},
	}
	st = s.PerformanceStats()
	if st.TotalSyncs != 2 || st.SuccessRate != 0.5 || st.AvgPriority != 6 || st.AvgDuration != 3*time.Second {
		t.Fatalf("unexpected windowed stats %+v", st)
	}
}

func TestReportFeedbackAdjustsWeights(t *testing.T) {
	s := New(testConfig(), &fakeSource{}, nil)
	before := s.Weights()
	s.ReportFeedback(0.5)
	if s.Weights().Latency <= before.Latency {
		t.Fatalf("latency weight not raised")
	}
	if s.NetworkQualityScore() != 77 {
		t.Fatalf("quality score not delegated to source")
	}
}

func TestStartStopProcessesQueue(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	act := &recordingAction{}
	s.SetExecutionAction(act.run)
	ctx := context.Background()

	s.Start(ctx)
	s.Start(ctx)
	for i := 0; i < 3; i++ {
		_ = s.Submit(Event{DataID: "x", Priority: 9})
	}
	waitFor(t, func() bool { return len(act.seen()) == 3 })
	s.Stop()
	s.Stop()

	_ = s.Submit(Event{Priority: 9})
	time.Sleep(20 * time.Millisecond)
	if n := len(act.seen()); n != 3 {
		t.Fatalf("events processed after Stop: %d", n)
	}
}

func TestStartAfterContextCancelRestarts(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	act := &recordingAction{}
	s.SetExecutionAction(act.run)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.loopMu.Lock()
	done := s.done
	s.loopMu.Unlock()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on cancel")
	}

	s.Start(context.Background())
	defer s.Stop()
	_ = s.Submit(Event{DataID: "after-restart", Priority: 10})
	waitFor(t, func() bool { return len(act.seen()) == 1 })
	if st := s.PerformanceStats(); st.QueueSize != 0 {
		t.Fatalf("queue not drained after restart: %+v", st)
	}
}

func TestActionFailureWithoutReason(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	s.SetExecutionAction(func(context.Context, Event, netmon.Condition) Result { return Result{} })
	r := s.ExecuteSync(context.Background(), Event{DataID: "d1", Priority: 5}, goodLink)
	if r.Success || r.Error != actionFailure {
		t.Fatalf("expected failure reason %q, got %+v", actionFailure, r)
	}

	s.SetExecutionAction(func(context.Context, Event, netmon.Condition) Result {
		return Result{Error: "peer refused"}
	})
	r = s.ExecuteSync(context.Background(), Event{DataID: "d2", Priority: 5}, goodLink)
	if r.Error != "peer refused" {
		t.Fatalf("action reason overwritten: %q", r.Error)
	}
}

func TestStopCancelsDelayedResubmissions(t *testing.T) {
	src := &fakeSource{cond: poorLink}
	s := New(testConfig(), src, nil)
	act := &recordingAction{}
	s.SetExecutionAction(act.run)

	s.Start(context.Background())
	_ = s.Submit(Event{DataID: "later", Priority: 1, Size: 4 << 20})
	waitFor(t, func() bool { return s.PerformanceStats().Deferred == 1 })
	s.Stop()

	st := s.PerformanceStats()
	if st.Deferred != 0 || st.QueueSize != 0 {
		t.Fatalf("delayed work survived Stop: %+v", st)
	}
	src.set(goodLink)
	time.Sleep(20 * time.Millisecond)
	if len(act.seen()) != 0 {
		t.Fatalf("cancelled event was executed")
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	s := New(testConfig(), &fakeSource{cond: goodLink}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
