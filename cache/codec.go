// Package cache persists the last known good topology so that a restarted
// client can route without first reaching its configured primary.
package cache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/krptodr/ravendb/topology"
)

const formatVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported topology cache version")

type cachedClusterInfo struct {
	IsInCluster bool `json:"isInCluster"`
	IsLeader    bool `json:"isLeader"`
}

type cachedNode struct {
	URL         string             `json:"url"`
	Database    string             `json:"database,omitempty"`
	ClusterInfo *cachedClusterInfo `json:"clusterInfo,omitempty"`
}

type cachedTopology struct {
	Version int          `json:"version"`
	Key     string       `json:"key"`
	SavedAt time.Time    `json:"savedAt"`
	Nodes   []cachedNode `json:"nodes"`
}

// encodeNodes serializes nodes.  Credentials are never written, the loader
// is expected to attach its own.
func encodeNodes(key string, nodes []*topology.Node) ([]byte, error) {
	doc := cachedTopology{
		Version: formatVersion,
		Key:     key,
		SavedAt: time.Now().UTC(),
		Nodes:   make([]cachedNode, 0, len(nodes)),
	}

	for _, node := range nodes {
		entry := cachedNode{
			URL:      node.URL,
			Database: node.Database,
		}
		if node.ClusterInfo != nil {
			entry.ClusterInfo = &cachedClusterInfo{
				IsInCluster: node.ClusterInfo.IsInCluster,
				IsLeader:    node.ClusterInfo.IsLeader,
			}
		}
		doc.Nodes = append(doc.Nodes, entry)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode topology")
	}
	return data, nil
}

func decodeNodes(data []byte) ([]*topology.Node, error) {
	var doc cachedTopology
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode topology")
	}

	if doc.Version != formatVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", doc.Version)
	}

	nodes := make([]*topology.Node, 0, len(doc.Nodes))
	for _, entry := range doc.Nodes {
		node := &topology.Node{
			URL:      entry.URL,
			Database: entry.Database,
		}
		if entry.ClusterInfo != nil {
			node.ClusterInfo = &topology.ClusterInfo{
				IsInCluster: entry.ClusterInfo.IsInCluster,
				IsLeader:    entry.ClusterInfo.IsLeader,
			}
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}
