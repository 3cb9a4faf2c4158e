package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_results(
  data_id TEXT, source_node TEXT, app_type TEXT, consistency TEXT,
  priority INTEGER, size_bytes INTEGER, duration_ns INTEGER,
  success INTEGER, error TEXT,
  latency_ms REAL, bandwidth_mbps REAL, packet_loss REAL, ts INTEGER);
CREATE INDEX IF NOT EXISTS idx_sync_results_ts ON sync_results(ts);
CREATE TABLE IF NOT EXISTS network_conditions(
  latency_ms REAL, bandwidth_mbps REAL, packet_loss REAL, jitter_ms REAL,
  quality_score REAL, ts INTEGER);`

// SQLiteWriter keeps results and samples in a local SQLite file.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at path.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteWriter{db: db}, nil
}

// WriteResult inserts one result.
func (w *SQLiteWriter) WriteResult(r scheduler.Result) error {
	return w.WriteResults([]scheduler.Result{r})
}

// WriteResults inserts a dispatch worth of results in one transaction.
func (w *SQLiteWriter) WriteResults(rs []scheduler.Result) error {
	if len(rs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sync_results(data_id, source_node, app_type, consistency, priority, size_bytes, duration_ns, success, error, latency_ms, bandwidth_mbps, packet_loss, ts) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rs {
		ev := r.Event
		if _, err := stmt.ExecContext(ctx, ev.DataID, ev.SourceNode, ev.AppType, string(ev.Consistency),
			ev.Priority, ev.Size, int64(r.Duration), r.Success, r.Error,
			r.Condition.LatencyMs, r.Condition.BandwidthMbps, r.Condition.PacketLoss,
			r.Timestamp.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// WriteCondition inserts one link sample.
func (w *SQLiteWriter) WriteCondition(c netmon.Condition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := w.db.ExecContext(ctx, `INSERT INTO network_conditions(latency_ms, bandwidth_mbps, packet_loss, jitter_ms, quality_score, ts) VALUES(?,?,?,?,?,?)`,
		c.LatencyMs, c.BandwidthMbps, c.PacketLoss, c.JitterMs, netmon.Score(c), c.Timestamp.UnixMilli())
	return err
}

// ResultCounts reports how many results are stored and how many succeeded.
func (w *SQLiteWriter) ResultCounts(ctx context.Context) (total, succeeded int, err error) {
	row := w.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(success), 0) FROM sync_results`)
	err = row.Scan(&total, &succeeded)
	return total, succeeded, err
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
