package scheduler

import "time"

// Stats summarizes the most recent results.
type Stats struct {
	TotalSyncs  int           `json:"total_syncs"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
	AvgPriority float64       `json:"avg_priority"`
	QueueSize   int           `json:"queue_size"`
	Deferred    int           `json:"deferred"`
}

// PerformanceStats reports over the trailing SuccessRateWindow results.
// Queue depths are always filled in, even before the first sync.
func (s *Scheduler) PerformanceStats() Stats {
	st := Stats{
		QueueSize: s.queue.len(),
		Deferred:  s.deferred.len(),
	}

	s.mu.Lock()
	recent := s.results
	if n := len(recent) - s.cfg.SuccessRateWindow; n > 0 {
		recent = recent[n:]
	}
	var ok, prio int
	var total time.Duration
	for _, r := range recent {
		if r.Success {
			ok++
		}
		prio += r.Event.Priority
		total += r.Duration
	}
	s.mu.Unlock()

	if len(recent) == 0 {
		return st
	}
	n := len(recent)
	st.TotalSyncs = n
	st.SuccessRate = float64(ok) / float64(n)
	st.AvgDuration = total / time.Duration(n)
	st.AvgPriority = float64(prio) / float64(n)
	return st
}

// Results returns a copy of the retained result history, oldest first.
func (s *Scheduler) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}
