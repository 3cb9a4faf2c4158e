// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownEnvironment is returned for an EDGESYNC_ENV value without a profile.
var ErrUnknownEnvironment = errors.New("unknown environment")

// EnvVar selects an environment profile.
const EnvVar = "EDGESYNC_ENV"

// Network configures link sampling.
type Network struct {
	TargetHost         string  `yaml:"default_target_host"`
	ProbeMethod        string  `yaml:"probe_method"`
	ProbePort          int     `yaml:"probe_port"`
	STUNServer         string  `yaml:"stun_server"`
	MonitorInterval    float64 `yaml:"monitor_interval"`
	PingSamples        int     `yaml:"ping_samples"`
	JitterSamples      int     `yaml:"jitter_samples"`
	LossSamples        int     `yaml:"loss_samples"`
	ProbeTimeout       float64 `yaml:"probe_timeout"`
	BandwidthTestSize  int     `yaml:"bandwidth_test_size"`
	BandwidthURL       string  `yaml:"bandwidth_url"`
	BandwidthFloorMbps float64 `yaml:"bandwidth_floor_mbps"`
	MaxHistorySamples  int     `yaml:"max_history_samples"`
}

// Thresholds are the minimum priorities admitted per network band.
type Thresholds struct {
	Poor    int `yaml:"poor_network"`
	Average int `yaml:"average_network"`
	Good    int `yaml:"good_network"`
}

// Weights are the initial scoring weights.
type Weights struct {
	Latency   float64 `yaml:"latency"`
	Bandwidth float64 `yaml:"bandwidth"`
	Priority  float64 `yaml:"priority"`
	Size      float64 `yaml:"size"`
}

// Sync configures the scheduler.
type Sync struct {
	NodeID             string     `yaml:"node_id"`
	MinSyncInterval    float64    `yaml:"min_sync_interval"`
	MaxSyncDelay       float64    `yaml:"max_sync_delay"`
	BatchThreshold     int        `yaml:"batch_threshold"`
	SuccessRateWindow  int        `yaml:"success_rate_window"`
	MaxResults         int        `yaml:"max_results"`
	TransferCap        float64    `yaml:"transfer_cap"`
	PriorityThresholds Thresholds `yaml:"priority_thresholds"`
	Weights            Weights    `yaml:"weights"`
}

// NodeTypes maps node roles to hardware types.
type NodeTypes struct {
	Edge    string `yaml:"edge"`
	Cloud   string `yaml:"cloud"`
	Storage string `yaml:"storage"`
}

// Cluster describes the testbed the experiment runs on.
type Cluster struct {
	Sites     []string  `yaml:"sites"`
	NodeTypes NodeTypes `yaml:"node_types"`
}

// Experiment configures demo runs.
type Experiment struct {
	Duration               int      `yaml:"experiment_duration"`
	DataCollectionInterval float64  `yaml:"data_collection_interval"`
	LogLevel               string   `yaml:"log_level"`
	ResultsDir             string   `yaml:"results_dir"`
	WorkloadTypes          []string `yaml:"workload_types"`
}

// Admin configures the HTTP admin API.
type Admin struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the root configuration. It is built once at process start and
// passed to whatever needs it.
type Config struct {
	Network    Network    `yaml:"network"`
	Sync       Sync       `yaml:"sync"`
	Cluster    Cluster    `yaml:"cluster"`
	Experiment Experiment `yaml:"experiment"`
	Admin      Admin      `yaml:"admin"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Network: Network{
			TargetHost:         "8.8.8.8",
			ProbeMethod:        "ping",
			STUNServer:         "stun:stun.l.google.com:19302",
			MonitorInterval:    5,
			PingSamples:        3,
			JitterSamples:      5,
			LossSamples:        10,
			ProbeTimeout:       2,
			BandwidthTestSize:  8192,
			BandwidthFloorMbps: 1,
			MaxHistorySamples:  100,
		},
		Sync: Sync{
			NodeID:             "edge-node-1",
			MinSyncInterval:    1,
			MaxSyncDelay:       300,
			BatchThreshold:     5,
			SuccessRateWindow:  50,
			MaxResults:         1000,
			TransferCap:        5,
			PriorityThresholds: Thresholds{Poor: 8, Average: 6, Good: 4},
			Weights:            Weights{Latency: 0.4, Bandwidth: 0.3, Priority: 0.2, Size: 0.1},
		},
		Cluster: Cluster{
			Sites:     []string{"utah", "clemson", "wisconsin"},
			NodeTypes: NodeTypes{Edge: "c220g2", Cloud: "c6420", Storage: "r320"},
		},
		Experiment: Experiment{
			Duration:               3600,
			DataCollectionInterval: 10,
			LogLevel:               "INFO",
			ResultsDir:             "results",
			WorkloadTypes: []string{
				"user_profile",
				"sensor_data",
				"file_sync",
				"chat_messages",
				"cache_updates",
			},
		},
		Admin: Admin{Addr: ":8080"},
	}
}

// Load reads a YAML config, validates it against the CUE schema at
// schemaPath (the embedded schema when empty) and merges it onto Default.
func Load(configPath, schemaPath string) (*Config, error) {
	if err := ValidateWithCue(configPath, schemaPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML onto Default and checks the result.
func Parse(data []byte) (*Config, error) {
	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg := Default()
	merge(&cfg, &ov)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnvironment applies the named profile. An empty name is a no-op.
func (c *Config) ApplyEnvironment(env string) error {
	switch env {
	case "":
	case "local":
		c.Network.MonitorInterval = 2
		c.Sync.MinSyncInterval = 0.5
		c.Experiment.Duration = 300
	case "cloudlab":
		c.Experiment.ResultsDir = "/local/results"
		c.Experiment.LogLevel = "DEBUG"
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}
	return nil
}

// Validate checks the constraints that span several fields.
func (c *Config) Validate() error {
	var errs []error
	n, s := c.Network, c.Sync
	if n.MonitorInterval <= 0 {
		errs = append(errs, errors.New("network.monitor_interval must be positive"))
	}
	switch n.ProbeMethod {
	case "", "ping", "stun":
	case "tcp":
		if n.ProbePort <= 0 {
			errs = append(errs, errors.New("network.probe_port is required for tcp probes"))
		}
	default:
		errs = append(errs, fmt.Errorf("network.probe_method %q is not supported", n.ProbeMethod))
	}
	if s.MinSyncInterval > s.MaxSyncDelay {
		errs = append(errs, errors.New("sync.min_sync_interval exceeds sync.max_sync_delay"))
	}
	if s.SuccessRateWindow > s.MaxResults {
		errs = append(errs, errors.New("sync.success_rate_window exceeds sync.max_results"))
	}
	t := s.PriorityThresholds
	if !(t.Poor >= t.Average && t.Average >= t.Good) {
		errs = append(errs, errors.New("sync.priority_thresholds must satisfy poor >= average >= good"))
	}
	w := s.Weights
	if w.Latency < 0 || w.Bandwidth < 0 || w.Priority < 0 || w.Size < 0 || w.Latency+w.Bandwidth+w.Priority+w.Size <= 0 {
		errs = append(errs, errors.New("sync.weights must be non-negative with a positive sum"))
	}
	return errors.Join(errs...)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Interval is the sampling period.
func (n Network) Interval() time.Duration { return seconds(n.MonitorInterval) }

// Timeout is the per-probe deadline.
func (n Network) Timeout() time.Duration { return seconds(n.ProbeTimeout) }

// MinInterval is the minimum time between dispatch phases.
func (s Sync) MinInterval() time.Duration { return seconds(s.MinSyncInterval) }

// MaxDelay caps re-submission delays.
func (s Sync) MaxDelay() time.Duration { return seconds(s.MaxSyncDelay) }

// Cap bounds simulated transfers.
func (s Sync) Cap() time.Duration { return seconds(s.TransferCap) }

// RunDuration is the planned length of a run.
func (e Experiment) RunDuration() time.Duration { return time.Duration(e.Duration) * time.Second }
