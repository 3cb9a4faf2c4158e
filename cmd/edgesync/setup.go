package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"edgesync/internal/config"
	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

const bandwidthTimeout = 10 * time.Second

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist, and applies the EDGESYNC_ENV profile.
func loadConfig(path, schema string, explicit bool) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		def := config.Default()
		cfg = &def
	} else {
		cfg, err = config.Load(path, schema)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvironment(os.Getenv(config.EnvVar)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newMonitor(cfg *config.Config, w netmon.ConditionWriter, log *slog.Logger) (*netmon.Monitor, error) {
	n := cfg.Network
	target := n.TargetHost
	if n.ProbeMethod == netmon.MethodSTUN {
		target = n.STUNServer
	}
	prober, err := netmon.NewProber(n.ProbeMethod, target, n.ProbePort, n.Timeout())
	if err != nil {
		return nil, err
	}
	url := n.BandwidthURL
	if url == "" {
		url = netmon.DefaultBandwidthURL(n.BandwidthTestSize)
	}
	bw := &netmon.HTTPBandwidth{URL: url, Timeout: bandwidthTimeout}
	mc := netmon.Config{
		Target:             target,
		Interval:           n.Interval(),
		LatencySamples:     n.PingSamples,
		JitterSamples:      n.JitterSamples,
		LossSamples:        n.LossSamples,
		ProbeTimeout:       n.Timeout(),
		BandwidthFloorMbps: n.BandwidthFloorMbps,
		MaxHistory:         n.MaxHistorySamples,
		Logger:             log,
	}
	return netmon.New(mc, prober, bw, w), nil
}

func schedulerConfig(cfg *config.Config, log *slog.Logger) scheduler.Config {
	s := cfg.Sync
	sc := scheduler.DefaultConfig()
	sc.NodeID = s.NodeID
	sc.MinSyncInterval = s.MinInterval()
	sc.MaxSyncDelay = s.MaxDelay()
	sc.BatchThreshold = s.BatchThreshold
	sc.SuccessRateWindow = s.SuccessRateWindow
	sc.MaxResults = s.MaxResults
	sc.TransferCap = s.Cap()
	sc.Thresholds = scheduler.Thresholds{
		Poor:    s.PriorityThresholds.Poor,
		Average: s.PriorityThresholds.Average,
		Good:    s.PriorityThresholds.Good,
	}
	sc.Weights = scheduler.Weights{
		Latency:   s.Weights.Latency,
		Bandwidth: s.Weights.Bandwidth,
		Priority:  s.Weights.Priority,
		Size:      s.Weights.Size,
	}
	sc.Logger = log
	return sc
}
