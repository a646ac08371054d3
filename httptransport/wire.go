package httptransport

import (
	"github.com/krptodr/ravendb/topology"
)

type jsonClusterInformation struct {
	IsInCluster bool `json:"IsInCluster"`
	IsLeader    bool `json:"IsLeader"`
}

type jsonDestination struct {
	URL                string                  `json:"Url"`
	ClientVisibleURL   string                  `json:"ClientVisibleUrl,omitempty"`
	Database           string                  `json:"Database,omitempty"`
	Disabled           bool                    `json:"Disabled"`
	IgnoredClient      bool                    `json:"IgnoredClient"`
	ClusterInformation *jsonClusterInformation `json:"ClusterInformation,omitempty"`
}

type jsonTopologyDocument struct {
	ClusterCommitIndex int64                   `json:"ClusterCommitIndex"`
	ClusterInformation *jsonClusterInformation `json:"ClusterInformation,omitempty"`
	Destinations       []jsonDestination       `json:"Destinations"`
}

func clusterInfoFromJson(info *jsonClusterInformation) *topology.ClusterInfo {
	if info == nil {
		return nil
	}

	return &topology.ClusterInfo{
		IsInCluster: info.IsInCluster,
		IsLeader:    info.IsLeader,
	}
}

func clusterInfoToJson(info *topology.ClusterInfo) *jsonClusterInformation {
	if info == nil {
		return nil
	}

	return &jsonClusterInformation{
		IsInCluster: info.IsInCluster,
		IsLeader:    info.IsLeader,
	}
}

func viewFromJson(source *topology.Node, doc *jsonTopologyDocument) *topology.View {
	dests := make([]topology.Destination, 0, len(doc.Destinations))
	for _, dest := range doc.Destinations {
		dests = append(dests, topology.Destination{
			URL:              dest.URL,
			ClientVisibleURL: dest.ClientVisibleURL,
			Database:         dest.Database,
			Disabled:         dest.Disabled,
			IgnoredClient:    dest.IgnoredClient,
			ClusterInfo:      clusterInfoFromJson(dest.ClusterInformation),
		})
	}

	return &topology.View{
		Source:             source,
		Destinations:       dests,
		ClusterCommitIndex: doc.ClusterCommitIndex,
		ClusterInfo:        clusterInfoFromJson(doc.ClusterInformation),
	}
}

// EncodeView builds the wire document for a view.  It is used by test
// servers and by tooling which replays captured topologies.
func EncodeView(view *topology.View) interface{} {
	doc := &jsonTopologyDocument{
		ClusterCommitIndex: view.ClusterCommitIndex,
		ClusterInformation: clusterInfoToJson(view.ClusterInfo),
		Destinations:       make([]jsonDestination, 0, len(view.Destinations)),
	}

	for _, dest := range view.Destinations {
		doc.Destinations = append(doc.Destinations, jsonDestination{
			URL:                dest.URL,
			ClientVisibleURL:   dest.ClientVisibleURL,
			Database:           dest.Database,
			Disabled:           dest.Disabled,
			IgnoredClient:      dest.IgnoredClient,
			ClusterInformation: clusterInfoToJson(dest.ClusterInfo),
		})
	}

	return doc
}
