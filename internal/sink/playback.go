package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"edgesync/internal/scheduler"
)

// ReplayLog replays JSONL results from r to writer. A speed >0 scales the
// recorded spacing between results; speed <= 0 replays without delay.
func ReplayLog(ctx context.Context, r io.Reader, writer scheduler.ResultWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var res scheduler.Result
		if err := dec.Decode(&res); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := res.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return n, ctx.Err()
				}
			}
		}
		if err := writer.WriteResult(res); err != nil {
			return n, err
		}
		n++
		prev = res.Timestamp
	}
}

// ReplayLogFile opens a file and replays its results.
func ReplayLogFile(ctx context.Context, path string, writer scheduler.ResultWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
