package output

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"sonatabench/internal/bench"
)

// DefaultTable is the GreptimeDB table used when none is configured.
const DefaultTable = "sonata_benchmark"

const defaultGreptimePort = 4001

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter stores each result key of a report as one row, tagged
// with the run id, example, rank and key.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
	log    *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database, tableName string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if database == "" {
		database = "public"
	}
	if tableName == "" {
		tableName = DefaultTable
	}
	if log == nil {
		log = slog.Default()
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating GreptimeDB client: %w", err)
	}
	return &GreptimeDBWriter{client: client, table: tableName, log: log}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("GreptimeDB endpoint is empty")
	}
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid GreptimeDB port %q", portStr)
	}
	return host, port, nil
}

// buildTable converts r into one row per result key. Numeric and boolean
// values go to the value column; text always holds the log file form.
func (w *GreptimeDBWriter) buildTable(r bench.Report) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"run_id", "example", "rank", "key"} {
		if err := tbl.AddTagColumn(col, types.STRING); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("nvp", types.INT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("value", types.FLOAT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("text", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	rank := strconv.Itoa(r.Rank)
	for _, k := range r.Results.Keys() {
		v, _ := r.Results.Get(k)
		num := 0.0
		if f, ok := r.Results.Float(k); ok {
			num = f
		} else if b, ok := v.(bool); ok && b {
			num = 1
		}
		if err := tbl.AddRow(r.ID, r.Example, rank, k, int64(r.NVP), num, bench.FormatValue(v), r.StartedAt); err != nil {
			return nil, fmt.Errorf("row %s: %w", k, err)
		}
	}
	return tbl, nil
}

// WriteReport inserts r.
func (w *GreptimeDBWriter) WriteReport(r bench.Report) error {
	if r.Results.Len() == 0 {
		return nil
	}
	tbl, err := w.buildTable(r)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.log.Error("GreptimeDB write failed", "table", w.table, "err", err)
		return err
	}
	w.log.Info("GreptimeDB write", "table", w.table, "rows", r.Results.Len(), "run_id", r.ID)
	return nil
}
