package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func testGreptimeWriter(m *mockGreptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:    m,
		node:      "edge-9",
		resTable:  ResultsTable,
		condTable: ConditionsTable,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGreptimeWriterResults(t *testing.T) {
	m := &mockGreptimeClient{}
	w := testGreptimeWriter(m)
	r := sampleResult("d1", false, time.Unix(0, 0).UTC())
	r.Event.SourceNode = ""

	if err := w.WriteResults([]scheduler.Result{r, sampleResult("d2", true, time.Unix(1, 0).UTC())}); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if len(rows.Schema) != 13 {
		t.Fatalf("unexpected schema length: %d", len(rows.Schema))
	}
	if rows.Schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("node column should be a tag")
	}
	if got := rows.Rows[0].Values[0].GetStringValue(); got != "edge-9" {
		t.Fatalf("node = %s, want writer default", got)
	}
	if got := rows.Rows[0].Values[3].GetStringValue(); got != "d1" {
		t.Fatalf("data_id = %s, want d1", got)
	}
	if got := rows.Rows[0].Values[8].GetStringValue(); got != "network timeout" {
		t.Fatalf("error = %s", got)
	}
}

func TestGreptimeWriterCondition(t *testing.T) {
	m := &mockGreptimeClient{}
	w := testGreptimeWriter(m)
	c := netmon.Condition{LatencyMs: 20, BandwidthMbps: 10, Timestamp: time.Unix(5, 0)}
	if err := w.WriteCondition(c); err != nil {
		t.Fatalf("WriteCondition: %v", err)
	}
	rows := m.table.GetRows()
	if got := rows.Rows[0].Values[1].GetF64Value(); got != 20 {
		t.Fatalf("latency_ms = %v", got)
	}
	if got := rows.Rows[0].Values[5].GetF64Value(); got != netmon.Score(c) {
		t.Fatalf("quality_score = %v, want %v", got, netmon.Score(c))
	}
}

func TestGreptimeWriterPropagatesErrors(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := testGreptimeWriter(m)
	if err := w.WriteResult(sampleResult("x", true, time.Now())); err == nil {
		t.Fatalf("expected error")
	}
	if err := w.WriteResults(nil); err != nil {
		t.Fatalf("empty batch should be a no-op: %v", err)
	}
}
