// Network condition samples and the link quality score
package netmon

import (
	"math"
	"time"
)

const (
	// SentinelLatencyMs is reported when every latency probe failed.
	SentinelLatencyMs = 999.9
	// DefaultBandwidthFloorMbps is reported when the bandwidth download fails.
	DefaultBandwidthFloorMbps = 1.0
	// NeutralScore is returned before the first sample exists.
	NeutralScore = 50.0
)

// Condition is one immutable sample of link quality toward the target.
type Condition struct {
	LatencyMs     float64   `json:"latency_ms"`
	BandwidthMbps float64   `json:"bandwidth_mbps"`
	PacketLoss    float64   `json:"packet_loss"` // percent, 0-100
	JitterMs      float64   `json:"jitter_ms"`
	Timestamp     time.Time `json:"ts"`
}

// Score maps a condition to 0-100. Latency reaches zero contribution at
// 500ms, bandwidth saturates at 10Mbps, each loss percent costs 10 points
// and each jitter millisecond 2 points of their respective terms.
func Score(c Condition) float64 {
	latency := math.Max(0, 100-c.LatencyMs/5)
	bandwidth := math.Min(100, c.BandwidthMbps*10)
	loss := math.Max(0, 100-c.PacketLoss*10)
	jitter := math.Max(0, 100-c.JitterMs*2)

	score := latency*0.4 + bandwidth*0.3 + loss*0.2 + jitter*0.1
	return math.Min(100, math.Max(0, score))
}
