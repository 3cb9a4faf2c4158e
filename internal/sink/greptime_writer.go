package sink

import (
	"context"
	"log/slog"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// Default table names.
const (
	ResultsTable    = "sync_results"
	ConditionsTable = "network_conditions"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes results and samples to GreptimeDB. Tables are
// created on first write by the server.
type GreptimeDBWriter struct {
	client    greptimeClient
	node      string
	resTable  string
	condTable string
	log       *slog.Logger
}

// NewGreptimeDBWriter connects to the gRPC endpoint at host:port.
func NewGreptimeDBWriter(host string, port int, database, node string) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeDBWriter{
		client:    client,
		node:      node,
		resTable:  ResultsTable,
		condTable: ConditionsTable,
		log:       slog.Default().With("component", "greptimedb"),
	}, nil
}

// WriteResult inserts a single result row.
func (w *GreptimeDBWriter) WriteResult(r scheduler.Result) error {
	return w.WriteResults([]scheduler.Result{r})
}

// WriteResults inserts one row per result.
func (w *GreptimeDBWriter) WriteResults(rs []scheduler.Result) error {
	if len(rs) == 0 {
		return nil
	}
	tbl, err := table.New(w.resTable)
	if err != nil {
		return err
	}
	_ = tbl.AddTagColumn("node", types.STRING)
	_ = tbl.AddTagColumn("app_type", types.STRING)
	_ = tbl.AddTagColumn("consistency", types.STRING)
	_ = tbl.AddFieldColumn("data_id", types.STRING)
	_ = tbl.AddFieldColumn("priority", types.INT64)
	_ = tbl.AddFieldColumn("size_bytes", types.INT64)
	_ = tbl.AddFieldColumn("duration_ms", types.FLOAT64)
	_ = tbl.AddFieldColumn("success", types.BOOLEAN)
	_ = tbl.AddFieldColumn("error", types.STRING)
	_ = tbl.AddFieldColumn("latency_ms", types.FLOAT64)
	_ = tbl.AddFieldColumn("bandwidth_mbps", types.FLOAT64)
	_ = tbl.AddFieldColumn("packet_loss", types.FLOAT64)
	_ = tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rs {
		node := r.Event.SourceNode
		if node == "" {
			node = w.node
		}
		err := tbl.AddRow(
			node,
			r.Event.AppType,
			string(r.Event.Consistency),
			r.Event.DataID,
			int64(r.Event.Priority),
			r.Event.Size,
			float64(r.Duration.Microseconds())/1000,
			r.Success,
			r.Error,
			r.Condition.LatencyMs,
			r.Condition.BandwidthMbps,
			r.Condition.PacketLoss,
			r.Timestamp,
		)
		if err != nil {
			return err
		}
	}
	return w.write(tbl, w.resTable, len(rs))
}

// WriteCondition inserts one link sample.
func (w *GreptimeDBWriter) WriteCondition(c netmon.Condition) error {
	tbl, err := table.New(w.condTable)
	if err != nil {
		return err
	}
	_ = tbl.AddTagColumn("node", types.STRING)
	_ = tbl.AddFieldColumn("latency_ms", types.FLOAT64)
	_ = tbl.AddFieldColumn("bandwidth_mbps", types.FLOAT64)
	_ = tbl.AddFieldColumn("packet_loss", types.FLOAT64)
	_ = tbl.AddFieldColumn("jitter_ms", types.FLOAT64)
	_ = tbl.AddFieldColumn("quality_score", types.FLOAT64)
	_ = tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	if err := tbl.AddRow(w.node, c.LatencyMs, c.BandwidthMbps, c.PacketLoss, c.JitterMs, netmon.Score(c), c.Timestamp); err != nil {
		return err
	}
	return w.write(tbl, w.condTable, 1)
}

func (w *GreptimeDBWriter) write(tbl *table.Table, name string, n int) error {
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.log.Error("write failed", "table", name, "err", err)
		return err
	}
	w.log.Debug("wrote rows", "table", name, "rows", n)
	return nil
}
