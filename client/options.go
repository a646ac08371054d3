package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/pkg/metrics"
	"github.com/krptodr/ravendb/topology"
)

const (
	DefaultFreshnessWindow      = 5 * time.Minute
	DefaultRefreshRoundInterval = 500 * time.Millisecond
	DefaultMaxRefreshRounds     = 20
	DefaultLeaderWaitTimeout    = 10 * time.Second
	DefaultRetryBudget          = 3
	DefaultFetchTimeout         = 10 * time.Second
)

// TopologyFetcher retrieves a single node's replication topology document.
type TopologyFetcher interface {
	FetchTopology(ctx context.Context, node *topology.Node) (*topology.View, error)
}

// TopologyCache persists the last directory that contained a leader.  Load
// returns no nodes and no error when nothing is stored under key.
type TopologyCache interface {
	Load(ctx context.Context, key string) ([]*topology.Node, error)
	Save(ctx context.Context, key string, nodes []*topology.Node) error
}

type ClusterExecutorOptions struct {
	Logger  *zap.Logger
	Fetcher TopologyFetcher

	// PrimaryURL is the server the executor was configured with.  It seeds an
	// empty directory and is the fallback when nobody answers.
	PrimaryURL string
	Database   string

	// InitialURLs are extra servers placed in the directory at startup.
	InitialURLs []string
	Credentials any

	Cache    TopologyCache
	CacheKey string

	Clock   Clock
	Metrics *metrics.RouterMetrics
	Tracer  trace.Tracer

	FreshnessWindow      time.Duration
	RefreshRoundInterval time.Duration
	MaxRefreshRounds     int
	LeaderWaitTimeout    time.Duration
	FetchTimeout         time.Duration

	// DefaultRetryBudget is the budget used by Execute.  Nil selects
	// DefaultRetryBudget, zero disables retries.
	DefaultRetryBudget *int
}

func (o ClusterExecutorOptions) withDefaults() ClusterExecutorOptions {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.GetRouterMetrics()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("github.com/krptodr/ravendb/client")
	}
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = DefaultFreshnessWindow
	}
	if o.RefreshRoundInterval <= 0 {
		o.RefreshRoundInterval = DefaultRefreshRoundInterval
	}
	if o.MaxRefreshRounds <= 0 {
		o.MaxRefreshRounds = DefaultMaxRefreshRounds
	}
	if o.LeaderWaitTimeout <= 0 {
		o.LeaderWaitTimeout = DefaultLeaderWaitTimeout
	}
	if o.DefaultRetryBudget == nil || *o.DefaultRetryBudget < 0 {
		budget := DefaultRetryBudget
		o.DefaultRetryBudget = &budget
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.CacheKey == "" {
		o.CacheKey = topology.DatabaseURL(o.PrimaryURL, o.Database)
	}
	return o
}
