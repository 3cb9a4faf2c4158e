package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

type collectWriter struct {
	results    []scheduler.Result
	conditions []netmon.Condition
	err        error
}

func (c *collectWriter) WriteResult(r scheduler.Result) error {
	c.results = append(c.results, r)
	return c.err
}

func (c *collectWriter) WriteCondition(cond netmon.Condition) error {
	c.conditions = append(c.conditions, cond)
	return c.err
}

type batchCollectWriter struct {
	collectWriter
	batches int
}

func (b *batchCollectWriter) WriteResults(rs []scheduler.Result) error {
	b.batches++
	b.results = append(b.results, rs...)
	return nil
}

func sampleResult(id string, ok bool, ts time.Time) scheduler.Result {
	r := scheduler.Result{
		Event: scheduler.Event{
			DataID:      id,
			Size:        2048,
			Priority:    6,
			SourceNode:  "edge-1",
			AppType:     "sensor_data",
			Consistency: scheduler.Causal,
		},
		Condition: netmon.Condition{LatencyMs: 40, BandwidthMbps: 12, PacketLoss: 1},
		Duration:  150 * time.Millisecond,
		Success:   ok,
		Timestamp: ts,
	}
	if !ok {
		r.Error = "network timeout"
	}
	return r
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	resPath := filepath.Join(dir, "results.jsonl")
	condPath := resPath + ".conditions"
	fw, err := NewFileWriter(resPath, condPath)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	ts := time.Unix(100, 0).UTC()
	if err := fw.WriteResults([]scheduler.Result{sampleResult("a", true, ts), sampleResult("b", false, ts)}); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if err := fw.WriteCondition(netmon.Condition{LatencyMs: 12, Timestamp: ts}); err != nil {
		t.Fatalf("WriteCondition: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(resPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	var got []scheduler.Result
	for sc.Scan() {
		var r scheduler.Result
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[1].Error != "network timeout" || got[0].Event.Consistency != scheduler.Causal {
		t.Fatalf("unexpected results %+v", got)
	}

	data, err := os.ReadFile(condPath)
	if err != nil {
		t.Fatal(err)
	}
	var c netmon.Condition
	if err := json.Unmarshal(bytes.TrimSpace(data), &c); err != nil || c.LatencyMs != 12 {
		t.Fatalf("unexpected condition %s (%v)", data, err)
	}
}

func TestFileWriterSkipsConditions(t *testing.T) {
	fw, err := NewFileWriter(filepath.Join(t.TempDir(), "r.jsonl"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer fw.Close()
	if err := fw.WriteCondition(netmon.Condition{}); err != nil {
		t.Fatalf("disabled condition log should be a no-op: %v", err)
	}
}

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	_ = w.WriteResult(sampleResult("x", true, time.Unix(0, 0).UTC()))
	_ = w.WriteCondition(netmon.Condition{BandwidthMbps: 3})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"data_id":"x"`) || !strings.Contains(lines[1], `"bandwidth_mbps":3`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestColorStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewColorStdoutWriter(&buf)
	_ = w.WriteResult(sampleResult("x", false, time.Unix(0, 0).UTC()))
	_ = w.WriteCondition(netmon.Condition{LatencyMs: 900, BandwidthMbps: 0.5, PacketLoss: 10})
	out := buf.String()
	if !strings.Contains(out, "data=x") || !strings.Contains(out, "FAIL network timeout") {
		t.Fatalf("result line missing fields: %q", out)
	}
	if !strings.Contains(out, colorRed+"score=") {
		t.Fatalf("poor link should be red: %q", out)
	}
}

func TestMultiWriter(t *testing.T) {
	plain := &collectWriter{}
	batched := &batchCollectWriter{}
	failing := &collectWriter{err: errors.New("disk full")}
	mw := NewMultiWriter(plain, nil, batched, failing)

	rs := []scheduler.Result{sampleResult("a", true, time.Now()), sampleResult("b", true, time.Now())}
	err := mw.WriteResults(rs)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected aggregated error, got %v", err)
	}
	if len(plain.results) != 2 || len(batched.results) != 2 || batched.batches != 1 {
		t.Fatalf("fan-out incomplete: plain=%d batched=%d batches=%d", len(plain.results), len(batched.results), batched.batches)
	}
	if err := NewMultiWriter(plain).WriteCondition(netmon.Condition{}); err != nil {
		t.Fatal(err)
	}
	if len(plain.conditions) != 1 {
		t.Fatalf("condition not forwarded")
	}
}

func TestReplayLog(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	rows := []scheduler.Result{
		sampleResult("a", true, time.Unix(0, 0)),
		sampleResult("b", false, time.Unix(1, 0)),
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	n, err := ReplayLog(context.Background(), &buf, cw, 0)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 2 || len(cw.results) != 2 || cw.results[1].Event.DataID != "b" {
		t.Fatalf("unexpected replay %+v", cw.results)
	}
}

func TestReplayLogHonorsCancel(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	_ = enc.Encode(sampleResult("a", true, time.Unix(0, 0)))
	_ = enc.Encode(sampleResult("b", true, time.Unix(3600, 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cw := &collectWriter{}
	n, err := ReplayLog(ctx, &buf, cw, 1)
	if !errors.Is(err, context.Canceled) || n != 1 {
		t.Fatalf("expected cancel after first row, got n=%d err=%v", n, err)
	}
}

func TestReplayLogFileMissing(t *testing.T) {
	if _, err := ReplayLogFile(context.Background(), filepath.Join(t.TempDir(), "none"), &collectWriter{}, 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
