package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

const DefaultTopologyPath = "/replication/topology"

type TopologyFetcherOptions struct {
	Logger     *zap.Logger
	HTTPClient *http.Client

	// TopologyPath is appended to the node URL, DefaultTopologyPath when unset.
	TopologyPath string

	// AcceptSnappy asks nodes for snappy compressed topology documents.
	AcceptSnappy bool

	// ClientTrace records connection level events on the request span.
	ClientTrace bool
}

// TopologyFetcher reads replication topology documents over HTTP.
type TopologyFetcher struct {
	logger       *zap.Logger
	httpClient   *http.Client
	topologyPath string
	acceptSnappy bool
	clientTrace  bool
}

var _ client.TopologyFetcher = (*TopologyFetcher)(nil)

func NewTopologyFetcher(opts *TopologyFetcherOptions) *TopologyFetcher {
	if opts == nil {
		opts = &TopologyFetcherOptions{}
	}

	f := &TopologyFetcher{
		logger:       opts.Logger,
		httpClient:   opts.HTTPClient,
		topologyPath: opts.TopologyPath,
		acceptSnappy: opts.AcceptSnappy,
		clientTrace:  opts.ClientTrace,
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.httpClient == nil {
		f.httpClient = NewHTTPClient(nil)
	}
	if f.topologyPath == "" {
		f.topologyPath = DefaultTopologyPath
	}

	return f
}

func (f *TopologyFetcher) FetchTopology(ctx context.Context, node *topology.Node) (*topology.View, error) {
	ctx = withClientTrace(ctx, f.clientTrace)
	url := strings.TrimRight(node.URL, "/") + f.topologyPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create topology request")
	}
	req.Header.Set("Accept", "application/json")
	if f.acceptSnappy {
		req.Header.Set("Accept-Encoding", "snappy")
	}

	err = authenticate(req, node.Credentials)
	if err != nil {
		return nil, errors.Wrap(err, "failed to authenticate topology request")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch topology from %s", node.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d fetching topology from %s",
			resp.StatusCode, node.URL)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var doc jsonTopologyDocument
	err = json.Unmarshal(body, &doc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse topology from %s", node.URL)
	}

	f.logger.Debug("fetched topology",
		zap.String("node", node.URL),
		zap.Int64("commitIndex", doc.ClusterCommitIndex),
		zap.Int("destinations", len(doc.Destinations)))

	return viewFromJson(node, &doc), nil
}
