// Package profile builds the testbed topology an experiment is deployed on.
package profile

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"edgesync/internal/config"
)

// Node counts per role.
const (
	EdgeNodes    = 10
	CloudNodes   = 3
	StorageNodes = 2
)

type NodeGroup struct {
	Count int      `yaml:"count" json:"count"`
	Type  string   `yaml:"type" json:"type"`
	Sites []string `yaml:"sites" json:"sites"`
}

type Nodes struct {
	Edge    NodeGroup `yaml:"edge_nodes" json:"edge_nodes"`
	Cloud   NodeGroup `yaml:"cloud_nodes" json:"cloud_nodes"`
	Storage NodeGroup `yaml:"storage_nodes" json:"storage_nodes"`
}

// Network describes the emulated WAN between roles.
type Network struct {
	WANEmulation    bool              `yaml:"wan_emulation" json:"wan_emulation"`
	BandwidthLimits map[string]string `yaml:"bandwidth_limits" json:"bandwidth_limits"`
	LatencySettings map[string]string `yaml:"latency_settings" json:"latency_settings"`
}

type Profile struct {
	Sites   []string `yaml:"sites" json:"sites"`
	Nodes   Nodes    `yaml:"nodes" json:"nodes"`
	Network Network  `yaml:"network" json:"network"`
}

// Build lays the roles out over the configured sites: edge nodes on all but
// the last site, cloud nodes on the last, storage on the first and last.
// A single site hosts everything.
func Build(c config.Cluster) Profile {
	sites := append([]string(nil), c.Sites...)
	var edge, cloud, storage []string
	switch n := len(sites); n {
	case 0:
	case 1:
		edge, cloud, storage = sites, sites, sites
	default:
		edge = sites[:n-1]
		cloud = sites[n-1:]
		storage = []string{sites[0], sites[n-1]}
	}
	return Profile{
		Sites: sites,
		Nodes: Nodes{
			Edge:    NodeGroup{Count: EdgeNodes, Type: c.NodeTypes.Edge, Sites: edge},
			Cloud:   NodeGroup{Count: CloudNodes, Type: c.NodeTypes.Cloud, Sites: cloud},
			Storage: NodeGroup{Count: StorageNodes, Type: c.NodeTypes.Storage, Sites: storage},
		},
		Network: Network{
			WANEmulation: true,
			BandwidthLimits: map[string]string{
				"edge_to_cloud":  "10Mbps",
				"edge_to_edge":   "100Mbps",
				"cloud_internal": "1Gbps",
			},
			LatencySettings: map[string]string{
				"edge_to_cloud": "50ms",
				"cross_site":    "80ms",
			},
		},
	}
}

// Write encodes p to w as "yaml" or "json".
func Write(w io.Writer, p Profile, format string) error {
	switch format {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	default:
		return fmt.Errorf("unknown profile format %q", format)
	}
}
