package topology

import "strings"

// ClusterInfo is a node's role in the cluster as last reported by a
// replication topology document.
type ClusterInfo struct {
	IsInCluster bool
	IsLeader    bool
}

// Node is one cluster member as currently known to the client.  Nodes are
// never mutated once they are placed in a Directory, a refresh always builds
// new Node values.
type Node struct {
	// URL is the reachable endpoint of the node, already resolved to the
	// database path when Database is set.
	URL      string
	Database string

	// Credentials is opaque to the routing layer and is handed back to the
	// transport untouched.
	Credentials any

	// ClusterInfo is nil until the node's role has been observed.
	ClusterInfo *ClusterInfo
}

func (n *Node) IsLeader() bool {
	return n != nil && n.ClusterInfo != nil && n.ClusterInfo.IsLeader
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.URL
}

// Destination is a peer descriptor taken from a replication topology
// document.
type Destination struct {
	URL              string
	ClientVisibleURL string
	Database         string
	Disabled         bool
	IgnoredClient    bool

	// ClusterInfo is the reporting node's view of this peer's role.
	ClusterInfo *ClusterInfo
}

// ResolvedURL returns the address a client should use to reach this
// destination, or an empty string if there is none.
func (d *Destination) ResolvedURL() string {
	url := d.ClientVisibleURL
	if url == "" {
		url = d.URL
	}
	if url == "" {
		return ""
	}

	return DatabaseURL(url, d.Database)
}

// View is a single node's opinion of the cluster, fetched during one
// refresh round.
type View struct {
	Source             *Node
	Destinations       []Destination
	ClusterCommitIndex int64
	ClusterInfo        *ClusterInfo
}

// DatabaseURL appends the database path to a server url.  An empty database
// leaves the url as-is.
func DatabaseURL(serverURL, database string) string {
	if database == "" {
		return serverURL
	}

	return strings.TrimRight(serverURL, "/") + "/databases/" + database
}
