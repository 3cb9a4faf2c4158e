package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"edgesync/internal/config"
	"edgesync/internal/sink"
)

const defaultGreptimePort = 4001

type writerOptions struct {
	printOnly  bool
	tui        bool
	logFile    string
	sqlitePath string
}

// newWriters sets up the result and sample sinks based on flags and env
// vars. It returns the writer and a cleanup function to close any resources.
func newWriters(cfg *config.Config, opts writerOptions) (sink.Writer, func(), error) {
	base, err := baseWriter(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	writers := []sink.Writer{base}

	if opts.logFile != "" {
		fw, err := sink.NewFileWriter(opts.logFile, opts.logFile+".conditions")
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
	}
	if opts.sqlitePath != "" {
		sw, err := sink.NewSQLiteWriter(opts.sqlitePath)
		if err != nil {
			sink.NewMultiWriter(writers...).Close()
			return nil, nil, err
		}
		writers = append(writers, sw)
	}

	mw := sink.NewMultiWriter(writers...)
	cleanup := func() { _ = mw.Close() }
	if len(writers) == 1 {
		return base, cleanup, nil
	}
	return mw, cleanup, nil
}

// baseWriter chooses the primary sink: the TUI, GreptimeDB when an
// endpoint is configured, else STDOUT.
func baseWriter(cfg *config.Config, opts writerOptions) (sink.Writer, error) {
	if opts.tui {
		var apps []string
		if cfg != nil {
			apps = cfg.Experiment.WorkloadTypes
		}
		return sink.NewTUIWriter(apps), nil
	}
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if opts.printOnly || endpoint == "" {
		return sink.NewStdoutWriter(os.Stdout), nil
	}
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	node := "edge-node-1"
	if cfg != nil {
		node = cfg.Sync.NodeID
	}
	gw, err := sink.NewGreptimeDBWriter(host, port, database, node)
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid GREPTIMEDB_ENDPOINT port %q", portStr)
	}
	return host, port, nil
}
