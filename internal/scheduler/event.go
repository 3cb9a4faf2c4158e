package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"edgesync/internal/netmon"
)

// Consistency is the ordering guarantee a piece of data needs on the cloud side.
type Consistency string

// Consistency levels.
const (
	Eventual Consistency = "eventual"
	Causal   Consistency = "causal"
	Strong   Consistency = "strong"
)

// Priority bounds; MaxPriority is the most urgent.
const (
	MinPriority = 1
	MaxPriority = 10
)

var (
	ErrInvalidPriority    = errors.New("priority must be between 1 and 10")
	ErrInvalidConsistency = errors.New("unknown consistency level")
	ErrNegativeSize       = errors.New("size must not be negative")
)

// ParseConsistency accepts the level names case-insensitively. An empty
// string means eventual.
func ParseConsistency(s string) (Consistency, error) {
	switch Consistency(strings.ToLower(strings.TrimSpace(s))) {
	case "", Eventual:
		return Eventual, nil
	case Causal:
		return Causal, nil
	case Strong:
		return Strong, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidConsistency, s)
}

// Event is one unit of data waiting to be pushed to the cloud peer.
type Event struct {
	DataID      string      `json:"data_id"`
	Size        int64       `json:"size"`
	Priority    int         `json:"priority"`
	CreatedAt   time.Time   `json:"created_at"`
	SourceNode  string      `json:"source_node"`
	AppType     string      `json:"app_type"`
	Consistency Consistency `json:"consistency"`
}

// Validate checks the invariants the scheduler relies on.
func (e Event) Validate() error {
	if e.Priority < MinPriority || e.Priority > MaxPriority {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, e.Priority)
	}
	if e.Size < 0 {
		return ErrNegativeSize
	}
	if _, err := ParseConsistency(string(e.Consistency)); err != nil {
		return err
	}
	return nil
}

// Result records the outcome of one sync execution.
type Result struct {
	Event     Event            `json:"event"`
	Condition netmon.Condition `json:"condition"`
	Duration  time.Duration    `json:"duration_ns"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"ts"`
}
