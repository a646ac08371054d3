package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/krptodr/ravendb/topology"
)

var ErrNodeDown = errors.New("fake node is down")

type fakeNodeState struct {
	view    *topology.View
	err     error
	fetches int
}

// FakeCluster is a scripted topology source.  Each URL answers with the view
// configured for it, or ErrNodeDown when nothing was configured.
type FakeCluster struct {
	lock   sync.Mutex
	nodes  map[string]*fakeNodeState
	holdCh chan struct{}
}

func NewFakeCluster() *FakeCluster {
	return &FakeCluster{
		nodes: make(map[string]*fakeNodeState),
	}
}

func (c *FakeCluster) nodeLocked(url string) *fakeNodeState {
	state := c.nodes[url]
	if state == nil {
		state = &fakeNodeState{}
		c.nodes[url] = state
	}
	return state
}

// SetView configures the document returned by url.  Source is filled in with
// the queried node on every fetch.
func (c *FakeCluster) SetView(url string, view *topology.View) {
	c.lock.Lock()
	state := c.nodeLocked(url)
	state.view = view
	state.err = nil
	c.lock.Unlock()
}

func (c *FakeCluster) SetError(url string, err error) {
	c.lock.Lock()
	c.nodeLocked(url).err = err
	c.lock.Unlock()
}

// SetupCluster configures every url to report the same membership, with
// urls[leaderIdx] as the leader.  A negative leaderIdx yields a leaderless
// cluster.
func (c *FakeCluster) SetupCluster(commitIndex int64, leaderIdx int, urls ...string) {
	for i, url := range urls {
		var dests []topology.Destination
		for j, other := range urls {
			if j == i {
				continue
			}
			dests = append(dests, topology.Destination{
				URL: other,
				ClusterInfo: &topology.ClusterInfo{
					IsInCluster: true,
					IsLeader:    j == leaderIdx,
				},
			})
		}

		c.SetView(url, &topology.View{
			Destinations:       dests,
			ClusterCommitIndex: commitIndex,
			ClusterInfo: &topology.ClusterInfo{
				IsInCluster: true,
				IsLeader:    i == leaderIdx,
			},
		})
	}
}

// Hold makes every subsequent fetch block until Release is called.
func (c *FakeCluster) Hold() {
	c.lock.Lock()
	if c.holdCh == nil {
		c.holdCh = make(chan struct{})
	}
	c.lock.Unlock()
}

func (c *FakeCluster) Release() {
	c.lock.Lock()
	if c.holdCh != nil {
		close(c.holdCh)
		c.holdCh = nil
	}
	c.lock.Unlock()
}

func (c *FakeCluster) FetchCount(url string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	state := c.nodes[url]
	if state == nil {
		return 0
	}
	return state.fetches
}

func (c *FakeCluster) TotalFetches() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	total := 0
	for _, state := range c.nodes {
		total += state.fetches
	}
	return total
}

func (c *FakeCluster) FetchTopology(ctx context.Context, node *topology.Node) (*topology.View, error) {
	c.lock.Lock()
	state := c.nodeLocked(node.URL)
	state.fetches++
	view, err := state.view, state.err
	holdCh := c.holdCh
	c.lock.Unlock()

	if holdCh != nil {
		select {
		case <-holdCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeDown, node.URL)
	}

	copied := *view
	copied.Source = node
	copied.Destinations = append([]topology.Destination(nil), view.Destinations...)
	return &copied, nil
}
