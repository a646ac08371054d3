package topology

import (
	"golang.org/x/exp/slices"
)

// SelectAuthoritative picks the view with the highest cluster commit index.
// Nil entries represent nodes that failed to answer and are skipped.  Ties go
// to the first view encountered, which keeps the choice deterministic for a
// given snapshot order.
func SelectAuthoritative(views []*View) *View {
	var best *View
	for _, view := range views {
		if view == nil {
			continue
		}

		if best == nil || view.ClusterCommitIndex > best.ClusterCommitIndex {
			best = view
		}
	}

	return best
}

// BuildNodes computes the new directory contents from an authoritative view.
// Destinations without an address, disabled ones and ones the client is told
// to ignore are dropped.  The node which produced the view is appended last.
func BuildNodes(view *View) []*Node {
	var credentials any
	if view.Source != nil {
		credentials = view.Source.Credentials
	}

	nodes := make([]*Node, 0, len(view.Destinations)+1)
	for _, dest := range view.Destinations {
		if dest.Disabled || dest.IgnoredClient {
			continue
		}

		url := dest.ResolvedURL()
		if url == "" {
			continue
		}

		nodes = append(nodes, &Node{
			URL:         url,
			Database:    dest.Database,
			Credentials: credentials,
			ClusterInfo: copyClusterInfo(dest.ClusterInfo),
		})
	}

	if view.Source != nil {
		nodes = append(nodes, &Node{
			URL:         view.Source.URL,
			Database:    view.Source.Database,
			Credentials: view.Source.Credentials,
			ClusterInfo: copyClusterInfo(view.ClusterInfo),
		})
	}

	return nodes
}

// FindLeader returns the first node claiming leadership, or nil.
func FindLeader(nodes []*Node) *Node {
	idx := slices.IndexFunc(nodes, func(n *Node) bool { return n.IsLeader() })
	if idx == -1 {
		return nil
	}
	return nodes[idx]
}

func copyClusterInfo(info *ClusterInfo) *ClusterInfo {
	if info == nil {
		return nil
	}
	copied := *info
	return &copied
}
