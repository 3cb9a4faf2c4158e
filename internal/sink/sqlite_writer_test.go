package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

func TestSQLiteWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "edgesync.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	ts := time.Unix(1700000000, 0)
	if err := w.WriteResults([]scheduler.Result{
		sampleResult("a", true, ts),
		sampleResult("b", false, ts),
	}); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if err := w.WriteResult(sampleResult("c", true, ts)); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if err := w.WriteCondition(netmon.Condition{LatencyMs: 30, Timestamp: ts}); err != nil {
		t.Fatalf("WriteCondition: %v", err)
	}

	total, ok, err := w.ResultCounts(context.Background())
	if err != nil {
		t.Fatalf("ResultCounts: %v", err)
	}
	if total != 3 || ok != 2 {
		t.Fatalf("got total=%d ok=%d, want 3/2", total, ok)
	}

	var n int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM network_conditions`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("conditions count = %d (%v)", n, err)
	}
}
