package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ConditionWriter receives every sample the monitor takes.
type ConditionWriter interface {
	WriteCondition(Condition) error
}

// Config holds the static parameters of a Monitor.
type Config struct {
	Target             string
	Interval           time.Duration
	LatencySamples     int
	JitterSamples      int
	LossSamples        int
	ProbeTimeout       time.Duration
	BandwidthFloorMbps float64
	MaxHistory         int
	Logger             *slog.Logger
}

// DefaultConfig mirrors the stock edge deployment.
func DefaultConfig() Config {
	return Config{
		Target:             "8.8.8.8",
		Interval:           5 * time.Second,
		LatencySamples:     3,
		JitterSamples:      5,
		LossSamples:        10,
		ProbeTimeout:       2 * time.Second,
		BandwidthFloorMbps: DefaultBandwidthFloorMbps,
		MaxHistory:         100,
	}
}

// Monitor samples link quality toward one target and keeps a bounded,
// time-ordered history of the results.
type Monitor struct {
	cfg       Config
	prober    Prober
	bandwidth BandwidthEstimator
	writer    ConditionWriter
	log       *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	history []Condition

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Monitor. writer may be nil.
func New(cfg Config, prober Prober, bandwidth BandwidthEstimator, writer ConditionWriter) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.LatencySamples <= 0 {
		cfg.LatencySamples = def.LatencySamples
	}
	if cfg.JitterSamples <= 0 {
		cfg.JitterSamples = def.JitterSamples
	}
	if cfg.LossSamples <= 0 {
		cfg.LossSamples = def.LossSamples
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.BandwidthFloorMbps <= 0 {
		cfg.BandwidthFloorMbps = def.BandwidthFloorMbps
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		prober:    prober,
		bandwidth: bandwidth,
		writer:    writer,
		log:       logger.With("component", "netmon", "target", cfg.Target),
		now:       time.Now,
	}
}

// MeasureLatency averages the round-trip time of samples probes in ms.
// Probes that fail or exceed the probe timeout are discarded; if none
// succeed the sentinel high latency is returned.
func (m *Monitor) MeasureLatency(ctx context.Context, samples int) float64 {
	rtts := m.probeRTTs(ctx, samples)
	if len(rtts) == 0 {
		return SentinelLatencyMs
	}
	return mean(rtts)
}

// MeasureJitter returns the sample standard deviation of a fresh set of
// latency probes, or 0 when fewer than two probes succeeded.
func (m *Monitor) MeasureJitter(ctx context.Context, samples int) float64 {
	rtts := m.probeRTTs(ctx, samples)
	if len(rtts) < 2 {
		return 0
	}
	return stdev(rtts)
}

// MeasurePacketLoss returns the loss percentage of one batch probe. A
// transport error reports 0.
func (m *Monitor) MeasurePacketLoss(ctx context.Context, samples int) float64 {
	if m.prober == nil {
		return 0
	}
	budget := time.Duration(samples+1) * m.cfg.ProbeTimeout
	pctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	loss, err := m.prober.Loss(pctx, samples)
	if err != nil {
		m.log.Debug("packet loss probe failed", "err", err)
		return 0
	}
	return math.Min(100, math.Max(0, loss))
}

// EstimateBandwidth returns the measured throughput in Mbps, or the
// configured floor when the download fails.
func (m *Monitor) EstimateBandwidth(ctx context.Context) float64 {
	if m.bandwidth == nil {
		return m.cfg.BandwidthFloorMbps
	}
	mbps, err := m.bandwidth.Estimate(ctx)
	if err != nil || mbps <= 0 || math.IsNaN(mbps) || math.IsInf(mbps, 0) {
		if err != nil {
			m.log.Debug("bandwidth estimate failed", "err", err)
		}
		return m.cfg.BandwidthFloorMbps
	}
	return mbps
}

// CurrentConditions takes a full sample, records it in the history and
// returns it.
func (m *Monitor) CurrentConditions(ctx context.Context) Condition {
	c := Condition{
		LatencyMs:     m.MeasureLatency(ctx, m.cfg.LatencySamples),
		BandwidthMbps: m.EstimateBandwidth(ctx),
		JitterMs:      m.MeasureJitter(ctx, m.cfg.JitterSamples),
		PacketLoss:    m.MeasurePacketLoss(ctx, m.cfg.LossSamples),
		Timestamp:     m.now(),
	}
	m.record(c)
	if m.writer != nil {
		if err := m.writer.WriteCondition(c); err != nil {
			m.log.Error("condition write failed", "err", err)
		}
	}
	return c
}

func (m *Monitor) record(c Condition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, c)
	if over := len(m.history) - m.cfg.MaxHistory; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
}

// AverageConditions returns the field-wise mean of samples taken within
// window of now. With no sample in the window the latest sample is
// returned as is; with an empty history ok is false.
func (m *Monitor) AverageConditions(window time.Duration) (Condition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return Condition{}, false
	}
	now := m.now()
	cutoff := now.Add(-window)
	var sum Condition
	n := 0
	for _, c := range m.history {
		if c.Timestamp.Before(cutoff) {
			continue
		}
		sum.LatencyMs += c.LatencyMs
		sum.BandwidthMbps += c.BandwidthMbps
		sum.PacketLoss += c.PacketLoss
		sum.JitterMs += c.JitterMs
		n++
	}
	if n == 0 {
		return m.history[len(m.history)-1], true
	}
	return Condition{
		LatencyMs:     sum.LatencyMs / float64(n),
		BandwidthMbps: sum.BandwidthMbps / float64(n),
		PacketLoss:    sum.PacketLoss / float64(n),
		JitterMs:      sum.JitterMs / float64(n),
		Timestamp:     now,
	}, true
}

// QualityScore scores the most recent sample, or NeutralScore before the
// first one.
func (m *Monitor) QualityScore() float64 {
	c, ok := m.Latest()
	if !ok {
		return NeutralScore
	}
	return Score(c)
}

// Latest returns the most recent sample.
func (m *Monitor) Latest() (Condition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return Condition{}, false
	}
	return m.history[len(m.history)-1], true
}

// History returns a copy of the recorded samples, oldest first.
func (m *Monitor) History() []Condition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Condition, len(m.history))
	copy(out, m.history)
	return out
}

// Run samples on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.run(ctx, nil)
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}) {
	m.log.Info("starting network monitor", "interval", m.cfg.Interval)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.sampleOnce(ctx)
		select {
		case <-ticker.C:
		case <-stop:
			m.log.Info("stopping network monitor")
			return
		case <-ctx.Done():
			m.log.Info("stopping network monitor")
			return
		}
	}
}

// sampleOnce keeps a misbehaving prober from taking the loop down.
func (m *Monitor) sampleOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("network sampling failed", "err", fmt.Sprint(r))
		}
	}()
	m.CurrentConditions(ctx)
}

// Start launches the sampling loop in the background. Calling Start while
// the loop is running does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop = stop
	m.done = done
	go func() {
		defer close(done)
		m.run(ctx, stop)
		m.loopMu.Lock()
		if m.stop == stop {
			m.stop, m.done = nil, nil
		}
		m.loopMu.Unlock()
	}()
}

// Stop ends the background loop once the current sample completes. It is
// a no-op when the loop is not running.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.loopMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Monitor) probeRTTs(ctx context.Context, samples int) []float64 {
	if m.prober == nil {
		return nil
	}
	rtts := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		if ctx.Err() != nil {
			break
		}
		pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		rtt, err := m.prober.RTT(pctx)
		cancel()
		if err != nil {
			continue
		}
		rtts = append(rtts, float64(rtt)/float64(time.Millisecond))
	}
	return rtts
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	mu := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - mu) * (v - mu)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
