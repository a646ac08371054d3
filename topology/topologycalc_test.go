package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAuthoritative(t *testing.T) {
	nodeA := &Node{URL: "http://a"}
	nodeB := &Node{URL: "http://b"}
	nodeC := &Node{URL: "http://c"}
	nodeD := &Node{URL: "http://d"}

	t.Run("FirstMaxWins", func(t *testing.T) {
		views := []*View{
			{Source: nodeA, ClusterCommitIndex: 5},
			{Source: nodeB, ClusterCommitIndex: 9},
			{Source: nodeC, ClusterCommitIndex: 9},
			{Source: nodeD, ClusterCommitIndex: 3},
		}

		best := SelectAuthoritative(views)
		require.NotNil(t, best)
		require.Same(t, nodeB, best.Source)
	})

	t.Run("SkipsAbsentViews", func(t *testing.T) {
		views := []*View{
			nil,
			{Source: nodeB, ClusterCommitIndex: 1},
			nil,
		}

		best := SelectAuthoritative(views)
		require.NotNil(t, best)
		require.Same(t, nodeB, best.Source)
	})

	t.Run("NoViews", func(t *testing.T) {
		require.Nil(t, SelectAuthoritative(nil))
		require.Nil(t, SelectAuthoritative([]*View{nil, nil}))
	})

	t.Run("ZeroIndexStillSelected", func(t *testing.T) {
		best := SelectAuthoritative([]*View{{Source: nodeA}})
		require.NotNil(t, best)
		require.Same(t, nodeA, best.Source)
	})
}

func TestBuildNodes(t *testing.T) {
	source := &Node{URL: "http://src", Credentials: "creds"}

	t.Run("FiltersDestinations", func(t *testing.T) {
		view := &View{
			Source: source,
			Destinations: []Destination{
				{URL: "", Disabled: false},
				{URL: "http://x", Disabled: true},
				{URL: "http://y", Disabled: false},
				{URL: "http://z", IgnoredClient: true},
			},
		}

		nodes := BuildNodes(view)
		require.Len(t, nodes, 2)
		assert.Equal(t, "http://y", nodes[0].URL)
		assert.Equal(t, "http://src", nodes[1].URL)
	})

	t.Run("PrefersVisibleURL", func(t *testing.T) {
		view := &View{
			Source: source,
			Destinations: []Destination{
				{URL: "http://internal:8080", ClientVisibleURL: "http://public:80"},
				{ClientVisibleURL: "http://only-visible"},
			},
		}

		nodes := BuildNodes(view)
		require.Len(t, nodes, 3)
		assert.Equal(t, "http://public:80", nodes[0].URL)
		assert.Equal(t, "http://only-visible", nodes[1].URL)
	})

	t.Run("AppendsDatabasePath", func(t *testing.T) {
		view := &View{
			Source: source,
			Destinations: []Destination{
				{URL: "http://y/", Database: "Northwind"},
			},
		}

		nodes := BuildNodes(view)
		require.Len(t, nodes, 2)
		assert.Equal(t, "http://y/databases/Northwind", nodes[0].URL)
		assert.Equal(t, "Northwind", nodes[0].Database)
	})

	t.Run("CarriesRolesAndCredentials", func(t *testing.T) {
		view := &View{
			Source: source,
			Destinations: []Destination{
				{URL: "http://leader", ClusterInfo: &ClusterInfo{IsInCluster: true, IsLeader: true}},
				{URL: "http://follower"},
			},
			ClusterInfo: &ClusterInfo{IsInCluster: true},
		}

		nodes := BuildNodes(view)
		require.Len(t, nodes, 3)

		assert.True(t, nodes[0].IsLeader())
		assert.False(t, nodes[1].IsLeader())
		assert.Nil(t, nodes[1].ClusterInfo)
		assert.False(t, nodes[2].IsLeader())
		require.NotNil(t, nodes[2].ClusterInfo)
		assert.True(t, nodes[2].ClusterInfo.IsInCluster)

		for _, node := range nodes {
			assert.Equal(t, "creds", node.Credentials)
		}

		// the view's own structures must not be shared with the new nodes
		view.Destinations[0].ClusterInfo.IsLeader = false
		assert.True(t, nodes[0].IsLeader())
	})

	t.Run("SourceIsNewNode", func(t *testing.T) {
		view := &View{
			Source:      source,
			ClusterInfo: &ClusterInfo{IsLeader: true},
		}

		nodes := BuildNodes(view)
		require.Len(t, nodes, 1)
		assert.NotSame(t, source, nodes[0])
		assert.True(t, nodes[0].IsLeader())
		assert.Nil(t, source.ClusterInfo)
	})
}

func TestFindLeader(t *testing.T) {
	follower := &Node{URL: "http://f", ClusterInfo: &ClusterInfo{}}
	unknown := &Node{URL: "http://u"}
	leader := &Node{URL: "http://l", ClusterInfo: &ClusterInfo{IsLeader: true}}
	otherLeader := &Node{URL: "http://l2", ClusterInfo: &ClusterInfo{IsLeader: true}}

	require.Nil(t, FindLeader(nil))
	require.Nil(t, FindLeader([]*Node{follower, unknown}))
	require.Same(t, leader, FindLeader([]*Node{follower, unknown, leader, otherLeader}))
}

func TestDatabaseURL(t *testing.T) {
	assert.Equal(t, "http://a:8080", DatabaseURL("http://a:8080", ""))
	assert.Equal(t, "http://a:8080/databases/db1", DatabaseURL("http://a:8080", "db1"))
	assert.Equal(t, "http://a:8080/databases/db1", DatabaseURL("http://a:8080//", "db1"))
}
