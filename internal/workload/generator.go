// Package workload produces synthetic sync events for demo runs.
package workload

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"edgesync/internal/logging"
	"edgesync/internal/scheduler"
)

// MaxEventSize caps generated payloads.
const MaxEventSize = 2 << 20

// DefaultAppTypes is used when no workload types are configured.
var DefaultAppTypes = []string{"user_profile", "sensor_data", "file_sync", "chat_messages", "cache_updates"}

// Generator simulates application writes on a set of edge nodes.
type Generator struct {
	Nodes    []string
	AppTypes []string

	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator seeded with seed. An empty appTypes falls
// back to DefaultAppTypes and an empty nodes list to a single "edge-1".
func NewGenerator(seed int64, nodes, appTypes []string) *Generator {
	if len(nodes) == 0 {
		nodes = []string{"edge-1"}
	}
	if len(appTypes) == 0 {
		appTypes = DefaultAppTypes
	}
	return &Generator{
		Nodes:    nodes,
		AppTypes: appTypes,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// Next returns one event.
func (g *Generator) Next() scheduler.Event {
	app := g.AppTypes[g.rng.Intn(len(g.AppTypes))]
	return scheduler.Event{
		DataID:      fmt.Sprintf("%s-%s", app, uuid.NewString()),
		Size:        g.size(app),
		Priority:    g.priority(app),
		CreatedAt:   g.now().UTC(),
		SourceNode:  g.Nodes[g.rng.Intn(len(g.Nodes))],
		AppType:     app,
		Consistency: g.consistency(),
	}
}

// Batch returns n events.
func (g *Generator) Batch(n int) []scheduler.Event {
	out := make([]scheduler.Event, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// size draws a payload size shaped by the application kind.
func (g *Generator) size(app string) int64 {
	var lo, hi int64
	switch app {
	case "chat_messages":
		lo, hi = 64, 4<<10
	case "sensor_data":
		lo, hi = 128, 16<<10
	case "user_profile":
		lo, hi = 512, 64<<10
	case "cache_updates":
		lo, hi = 1<<10, 256<<10
	case "file_sync":
		lo, hi = 64<<10, MaxEventSize
	default:
		lo, hi = 1, MaxEventSize
	}
	return lo + g.rng.Int63n(hi-lo+1)
}

// priority draws from a range biased by the application kind, always
// within [scheduler.MinPriority, scheduler.MaxPriority].
func (g *Generator) priority(app string) int {
	lo, hi := scheduler.MinPriority, scheduler.MaxPriority
	switch app {
	case "chat_messages", "user_profile":
		lo = 6
	case "cache_updates":
		hi = 5
	}
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) consistency() scheduler.Consistency {
	switch p := g.rng.Float64(); {
	case p < 0.7:
		return scheduler.Eventual
	case p < 0.9:
		return scheduler.Causal
	default:
		return scheduler.Strong
	}
}

// Submitter accepts generated events.
type Submitter interface {
	Submit(scheduler.Event) error
}

// Feed submits rate events per second to s until ctx is done. It returns
// the number of events accepted.
func (g *Generator) Feed(ctx context.Context, s Submitter, rate float64) int {
	if rate <= 0 {
		return 0
	}
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("workload feed stopped", "submitted", n)
			return n
		case <-ticker.C:
			ev := g.Next()
			if err := s.Submit(ev); err != nil {
				log.Warn("generated event rejected", "data_id", ev.DataID, "err", err)
				continue
			}
			n++
		}
	}
}

// Demo returns the fixed five-event mix used by the quick demo.
func Demo(now time.Time) []scheduler.Event {
	return []scheduler.Event{
		{DataID: "user_profile", Size: 1024, Priority: 9, CreatedAt: now, SourceNode: "edge_1", AppType: "user_profile", Consistency: scheduler.Eventual},
		{DataID: "sensor_data", Size: 512, Priority: 5, CreatedAt: now, SourceNode: "edge_2", AppType: "sensor_data", Consistency: scheduler.Eventual},
		{DataID: "cached_image", Size: 50000, Priority: 3, CreatedAt: now, SourceNode: "edge_3", AppType: "cache_updates", Consistency: scheduler.Eventual},
		{DataID: "chat_message", Size: 256, Priority: 8, CreatedAt: now, SourceNode: "edge_4", AppType: "chat_messages", Consistency: scheduler.Eventual},
		{DataID: "log_data", Size: 2048, Priority: 2, CreatedAt: now, SourceNode: "edge_5", AppType: "sensor_data", Consistency: scheduler.Eventual},
	}
}
