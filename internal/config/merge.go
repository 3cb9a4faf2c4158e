package config

// overlay mirrors Config with optional fields so a file only overrides what
// it sets. Every field is copied explicitly in merge.
type overlay struct {
	Network    *networkOverlay    `yaml:"network"`
	Sync       *syncOverlay       `yaml:"sync"`
	Cluster    *clusterOverlay    `yaml:"cluster"`
	Experiment *experimentOverlay `yaml:"experiment"`
	Admin      *adminOverlay      `yaml:"admin"`
}

type networkOverlay struct {
	TargetHost         *string  `yaml:"default_target_host"`
	ProbeMethod        *string  `yaml:"probe_method"`
	ProbePort          *int     `yaml:"probe_port"`
	STUNServer         *string  `yaml:"stun_server"`
	MonitorInterval    *float64 `yaml:"monitor_interval"`
	PingSamples        *int     `yaml:"ping_samples"`
	JitterSamples      *int     `yaml:"jitter_samples"`
	LossSamples        *int     `yaml:"loss_samples"`
	ProbeTimeout       *float64 `yaml:"probe_timeout"`
	BandwidthTestSize  *int     `yaml:"bandwidth_test_size"`
	BandwidthURL       *string  `yaml:"bandwidth_url"`
	BandwidthFloorMbps *float64 `yaml:"bandwidth_floor_mbps"`
	MaxHistorySamples  *int     `yaml:"max_history_samples"`
}

type thresholdsOverlay struct {
	Poor    *int `yaml:"poor_network"`
	Average *int `yaml:"average_network"`
	Good    *int `yaml:"good_network"`
}

type weightsOverlay struct {
	Latency   *float64 `yaml:"latency"`
	Bandwidth *float64 `yaml:"bandwidth"`
	Priority  *float64 `yaml:"priority"`
	Size      *float64 `yaml:"size"`
}

type syncOverlay struct {
	NodeID             *string            `yaml:"node_id"`
	MinSyncInterval    *float64           `yaml:"min_sync_interval"`
	MaxSyncDelay       *float64           `yaml:"max_sync_delay"`
	BatchThreshold     *int               `yaml:"batch_threshold"`
	SuccessRateWindow  *int               `yaml:"success_rate_window"`
	MaxResults         *int               `yaml:"max_results"`
	TransferCap        *float64           `yaml:"transfer_cap"`
	PriorityThresholds *thresholdsOverlay `yaml:"priority_thresholds"`
	Weights            *weightsOverlay    `yaml:"weights"`
}

type nodeTypesOverlay struct {
	Edge    *string `yaml:"edge"`
	Cloud   *string `yaml:"cloud"`
	Storage *string `yaml:"storage"`
}

type clusterOverlay struct {
	Sites     []string          `yaml:"sites"`
	NodeTypes *nodeTypesOverlay `yaml:"node_types"`
}

type experimentOverlay struct {
	Duration               *int     `yaml:"experiment_duration"`
	DataCollectionInterval *float64 `yaml:"data_collection_interval"`
	LogLevel               *string  `yaml:"log_level"`
	ResultsDir             *string  `yaml:"results_dir"`
	WorkloadTypes          []string `yaml:"workload_types"`
}

type adminOverlay struct {
	Enabled *bool   `yaml:"enabled"`
	Addr    *string `yaml:"addr"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func merge(cfg *Config, ov *overlay) {
	if n := ov.Network; n != nil {
		d := &cfg.Network
		set(&d.TargetHost, n.TargetHost)
		set(&d.ProbeMethod, n.ProbeMethod)
		set(&d.ProbePort, n.ProbePort)
		set(&d.STUNServer, n.STUNServer)
		set(&d.MonitorInterval, n.MonitorInterval)
		set(&d.PingSamples, n.PingSamples)
		set(&d.JitterSamples, n.JitterSamples)
		set(&d.LossSamples, n.LossSamples)
		set(&d.ProbeTimeout, n.ProbeTimeout)
		set(&d.BandwidthTestSize, n.BandwidthTestSize)
		set(&d.BandwidthURL, n.BandwidthURL)
		set(&d.BandwidthFloorMbps, n.BandwidthFloorMbps)
		set(&d.MaxHistorySamples, n.MaxHistorySamples)
	}
	if s := ov.Sync; s != nil {
		d := &cfg.Sync
		set(&d.NodeID, s.NodeID)
		set(&d.MinSyncInterval, s.MinSyncInterval)
		set(&d.MaxSyncDelay, s.MaxSyncDelay)
		set(&d.BatchThreshold, s.BatchThreshold)
		set(&d.SuccessRateWindow, s.SuccessRateWindow)
		set(&d.MaxResults, s.MaxResults)
		set(&d.TransferCap, s.TransferCap)
		if t := s.PriorityThresholds; t != nil {
			set(&d.PriorityThresholds.Poor, t.Poor)
			set(&d.PriorityThresholds.Average, t.Average)
			set(&d.PriorityThresholds.Good, t.Good)
		}
		if w := s.Weights; w != nil {
			set(&d.Weights.Latency, w.Latency)
			set(&d.Weights.Bandwidth, w.Bandwidth)
			set(&d.Weights.Priority, w.Priority)
			set(&d.Weights.Size, w.Size)
		}
	}
	if c := ov.Cluster; c != nil {
		d := &cfg.Cluster
		if c.Sites != nil {
			d.Sites = append([]string(nil), c.Sites...)
		}
		if nt := c.NodeTypes; nt != nil {
			set(&d.NodeTypes.Edge, nt.Edge)
			set(&d.NodeTypes.Cloud, nt.Cloud)
			set(&d.NodeTypes.Storage, nt.Storage)
		}
	}
	if e := ov.Experiment; e != nil {
		d := &cfg.Experiment
		set(&d.Duration, e.Duration)
		set(&d.DataCollectionInterval, e.DataCollectionInterval)
		set(&d.LogLevel, e.LogLevel)
		set(&d.ResultsDir, e.ResultsDir)
		if e.WorkloadTypes != nil {
			d.WorkloadTypes = append([]string(nil), e.WorkloadTypes...)
		}
	}
	if a := ov.Admin; a != nil {
		set(&cfg.Admin.Enabled, a.Enabled)
		set(&cfg.Admin.Addr, a.Addr)
	}
}
