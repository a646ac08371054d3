package client

import (
	"context"

	"github.com/krptodr/ravendb/topology"
)

// WatchTopology streams directory snapshots, starting with the current one.
// Slow readers only ever see the most recent snapshot.  The channel is closed
// when ctx is done or the executor is closed.
func (e *ClusterExecutor) WatchTopology(ctx context.Context) <-chan []*topology.Node {
	return e.publisher.Subscribe(ctx)
}
