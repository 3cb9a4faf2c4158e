package scheduler

import (
	"context"
	"time"

	"edgesync/internal/netmon"
)

// Action performs the actual transfer of one event. The scheduler does not
// move payloads itself; without an Action it falls back to a simulation.
type Action func(ctx context.Context, ev Event, c netmon.Condition) Result

// Default simulated outcome rules.
const (
	simulatedLossLimit    = 5.0
	simulatedLatencyLimit = 1000.0
	simulatedFailure      = "network timeout"
	actionFailure         = "sync action failed"
)

// SetExecutionAction installs fn as the sync action. A nil fn restores the
// built-in simulation.
func (s *Scheduler) SetExecutionAction(fn Action) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	s.action = fn
}

// ExecuteSync runs ev through the configured action.
func (s *Scheduler) ExecuteSync(ctx context.Context, ev Event, c netmon.Condition) Result {
	s.actionMu.RLock()
	fn := s.action
	s.actionMu.RUnlock()

	var r Result
	if fn != nil {
		r = fn(ctx, ev, c)
		r.Event = ev
		r.Condition = c
		if !r.Success && r.Error == "" {
			r.Error = actionFailure
		}
	} else {
		r = s.simulateSync(ctx, ev, c)
	}
	if r.Duration < 0 {
		r.Duration = 0
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	return r
}

// simulateSync waits for the time the transfer would take on c, capped at
// the configured ceiling, and succeeds only on a link with less than 5%
// loss and under a second of latency.
func (s *Scheduler) simulateSync(ctx context.Context, ev Event, c netmon.Condition) Result {
	start := s.now()
	s.log.Debug("simulating sync", "data_id", ev.DataID, "size", ev.Size, "priority", ev.Priority)

	transfer := s.cfg.TransferCap
	if c.BandwidthMbps > 0 {
		bytesPerSec := c.BandwidthMbps * 1024 * 1024 / 8
		secs := float64(ev.Size)/bytesPerSec + c.LatencyMs/1000
		if d := time.Duration(secs * float64(time.Second)); d < transfer {
			transfer = d
		}
	}
	interrupted := s.sleep(ctx, transfer) != nil

	ok := !interrupted && c.PacketLoss < simulatedLossLimit && c.LatencyMs < simulatedLatencyLimit
	r := Result{
		Event:     ev,
		Condition: c,
		Duration:  s.now().Sub(start),
		Success:   ok,
	}
	switch {
	case interrupted:
		r.Error = ctx.Err().Error()
	case !ok:
		r.Error = simulatedFailure
	}
	return r
}
