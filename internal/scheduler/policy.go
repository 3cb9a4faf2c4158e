package scheduler

import (
	"math"
	"sync"
	"time"

	"edgesync/internal/netmon"
)

// Quality bands used by the admission policy.
const (
	poorQualityBelow    = 30.0
	averageQualityBelow = 60.0

	lossWeight     = 0.3
	baseDelaySecs  = 2.0
	maxSizeFactor  = 5.0
	weightNudge    = 0.05
	poorFeedback   = 0.7
	strongFeedback = 0.9
)

// Weights scale the terms of the policy's quality score. Only Latency and
// Bandwidth enter the score today; Priority and Size take part in feedback
// tuning and renormalization.
type Weights struct {
	Latency   float64 `json:"latency"`
	Bandwidth float64 `json:"bandwidth"`
	Priority  float64 `json:"priority"`
	Size      float64 `json:"size"`
}

// DefaultWeights returns the initial 0.4/0.3/0.2/0.1 split.
func DefaultWeights() Weights {
	return Weights{Latency: 0.4, Bandwidth: 0.3, Priority: 0.2, Size: 0.1}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Latency + w.Bandwidth + w.Priority + w.Size
}

func (w Weights) normalized() Weights {
	total := w.Sum()
	if total <= 0 {
		return w
	}
	return Weights{
		Latency:   w.Latency / total,
		Bandwidth: w.Bandwidth / total,
		Priority:  w.Priority / total,
		Size:      w.Size / total,
	}
}

// Thresholds are the minimum priorities admitted in each quality band.
type Thresholds struct {
	Poor    int `json:"poor_network"`
	Average int `json:"average_network"`
	Good    int `json:"good_network"`
}

// DefaultThresholds returns 8/6/4.
func DefaultThresholds() Thresholds {
	return Thresholds{Poor: 8, Average: 6, Good: 4}
}

// Feedback is an externally observed outcome used to tune the weights.
type Feedback struct {
	SuccessRate float64 `json:"success_rate"`
}

// Policy decides whether an event syncs now and how long it waits
// otherwise. It is safe for concurrent use.
type Policy struct {
	thresholds Thresholds
	minDelay   time.Duration
	maxDelay   time.Duration

	mu      sync.RWMutex
	weights Weights
}

// NewPolicy builds a policy. Weights are normalized to sum to 1 and delays
// are clamped to [minDelay, maxDelay].
func NewPolicy(w Weights, t Thresholds, minDelay, maxDelay time.Duration) *Policy {
	if w.Sum() <= 0 {
		w = DefaultWeights()
	}
	w = w.normalized()
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return &Policy{thresholds: t, minDelay: minDelay, maxDelay: maxDelay, weights: w}
}

// Weights returns a snapshot of the current weights.
func (p *Policy) Weights() Weights {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.weights
}

// QualityScore scores c with the current weights.
func (p *Policy) QualityScore(c netmon.Condition) float64 {
	w := p.Weights()
	latency := math.Max(0, 100-c.LatencyMs/5)
	bandwidth := math.Min(100, c.BandwidthMbps*10)
	loss := math.Max(0, 100-c.PacketLoss*10)
	return latency*w.Latency + bandwidth*w.Bandwidth + loss*lossWeight
}

// ShouldSyncNow reports whether ev is admitted under condition c.
func (p *Policy) ShouldSyncNow(ev Event, c netmon.Condition) bool {
	if ev.Priority >= 9 {
		return true
	}
	if cons, err := ParseConsistency(string(ev.Consistency)); err == nil && cons == Strong {
		return true
	}
	score := p.QualityScore(c)
	switch {
	case score < poorQualityBelow:
		return ev.Priority >= p.thresholds.Poor
	case score < averageQualityBelow:
		return ev.Priority >= p.thresholds.Average
	default:
		return ev.Priority >= p.thresholds.Good
	}
}

// SyncDelay computes how long a rejected event waits before it is
// resubmitted. Worse quality, bigger payloads (up to 5x) and lower
// priority all lengthen the wait.
func (p *Policy) SyncDelay(ev Event, c netmon.Condition) time.Duration {
	quality := (100 - p.QualityScore(c)) / 100
	size := math.Min(float64(ev.Size)/(1024*1024), maxSizeFactor)
	prio := float64(11-ev.Priority) / 10

	secs := baseDelaySecs * quality * size * prio
	d := time.Duration(secs * float64(time.Second))
	if d < p.minDelay || math.IsNaN(secs) {
		d = p.minDelay
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// Adjust nudges the weights from observed feedback: a success rate below
// 0.7 raises latency and bandwidth, above 0.9 raises priority. After a
// nudge all weights are renormalized to sum to 1. It reports whether the
// weights changed.
func (p *Policy) Adjust(fb Feedback) bool {
	rate := fb.SuccessRate
	if math.IsNaN(rate) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.weights
	switch {
	case rate < poorFeedback:
		w.Latency += weightNudge
		w.Bandwidth += weightNudge
	case rate > strongFeedback:
		w.Priority += weightNudge
	default:
		return false
	}
	p.weights = w.normalized()
	return true
}
