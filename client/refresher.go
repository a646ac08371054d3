package client

import (
	"context"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/pkg/metrics"
	"github.com/krptodr/ravendb/topology"
	"github.com/krptodr/ravendb/utils/gate"
	"github.com/krptodr/ravendb/utils/latestonlychannel"
)

type roundResult int

const (
	roundLeaderFound roundResult = iota
	roundNoLeader
	roundNoViews
	roundAborted
)

type refresherOptions struct {
	Logger    *zap.Logger
	Fetcher   TopologyFetcher
	Directory *topology.Directory
	Leader    *gate.Gate[*topology.Node]
	Publisher *latestonlychannel.Publisher[[]*topology.Node]
	Primary   *topology.Node
	Cache     TopologyCache
	CacheKey  string
	Clock     Clock
	Metrics   *metrics.RouterMetrics
	Tracer    trace.Tracer

	FreshnessWindow time.Duration
	RoundInterval   time.Duration
	MaxRounds       int
	FetchTimeout    time.Duration
}

// refresher runs at most one topology refresh task at a time.  The task is
// bound to the refresher's own context so that a caller giving up does not
// abort a refresh other callers are waiting on.
type refresher struct {
	logger    *zap.Logger
	fetcher   TopologyFetcher
	directory *topology.Directory
	leader    *gate.Gate[*topology.Node]
	publisher *latestonlychannel.Publisher[[]*topology.Node]
	primary   *topology.Node
	cache     TopologyCache
	cacheKey  string
	clock     Clock
	metrics   *metrics.RouterMetrics
	tracer    trace.Tracer

	freshnessWindow time.Duration
	roundInterval   time.Duration
	maxRounds       int
	fetchTimeout    time.Duration

	ctx       context.Context
	ctxCancel func()
	wg        sync.WaitGroup

	lock          sync.Mutex
	inflightCh    chan struct{}
	lastRefreshed time.Time
	leaderUpdated time.Time
	stale         bool
}

func newRefresher(opts *refresherOptions) *refresher {
	ctx, ctxCancel := context.WithCancel(context.Background())

	return &refresher{
		logger:          opts.Logger,
		fetcher:         opts.Fetcher,
		directory:       opts.Directory,
		leader:          opts.Leader,
		publisher:       opts.Publisher,
		primary:         opts.Primary,
		cache:           opts.Cache,
		cacheKey:        opts.CacheKey,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		freshnessWindow: opts.FreshnessWindow,
		roundInterval:   opts.RoundInterval,
		maxRounds:       opts.MaxRounds,
		fetchTimeout:    opts.FetchTimeout,
		ctx:             ctx,
		ctxCancel:       ctxCancel,
	}
}

// Trigger starts a refresh task and returns a channel which is closed when
// it completes.  If a task is already running its channel is returned
// instead.  Unless force is set or the refresher was marked stale, nil is
// returned when the last refresh completed inside the freshness window.
func (r *refresher) Trigger(force bool) <-chan struct{} {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.inflightCh != nil {
		return r.inflightCh
	}

	if r.ctx.Err() != nil {
		closedCh := make(chan struct{})
		close(closedCh)
		return closedCh
	}

	if !force && !r.stale && !r.lastRefreshed.IsZero() &&
		r.clock.Now().Sub(r.lastRefreshed) < r.freshnessWindow {
		return nil
	}

	doneCh := make(chan struct{})
	r.inflightCh = doneCh
	r.stale = false

	r.wg.Add(1)
	go r.procThread(doneCh)

	return doneCh
}

// MarkStale makes the next Trigger start a refresh regardless of the
// freshness window.
func (r *refresher) MarkStale() {
	r.lock.Lock()
	r.stale = true
	r.lock.Unlock()
}

func (r *refresher) Timestamps() (lastRefreshed, leaderUpdated time.Time) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.lastRefreshed, r.leaderUpdated
}

func (r *refresher) Close() {
	// Trigger adds to wg under the lock after checking ctx
	r.lock.Lock()
	r.ctxCancel()
	r.lock.Unlock()

	r.wg.Wait()
}

func (r *refresher) procThread(doneCh chan struct{}) {
	defer r.wg.Done()

	logger := r.logger.With(zap.String("taskId", uuid.NewString()))
	startTime := r.clock.Now()

	ctx, span := r.tracer.Start(r.ctx, "topology.refresh")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("topology refresh panicked",
				zap.Any("panic", recovered),
				zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
		}

		r.lock.Lock()
		r.inflightCh = nil
		r.lastRefreshed = r.clock.Now()
		r.lock.Unlock()

		r.metrics.RefreshDuration.Record(ctx, r.clock.Now().Sub(startTime).Seconds())
		close(doneCh)
	}()

	r.metrics.RefreshTasks.Add(ctx, 1)
	logger.Debug("starting topology refresh")

	result, rounds := r.refresh(ctx, logger)
	span.SetAttributes(attribute.Int("rounds", rounds))

	switch result {
	case roundLeaderFound:
		logger.Debug("topology refresh found a leader", zap.Int("rounds", rounds))
	case roundNoViews:
		logger.Info("no node returned a topology, falling back to the primary node",
			zap.String("primary", r.primary.URL))
		span.SetStatus(codes.Error, "no topology")
	case roundNoLeader:
		logger.Warn("no leader discovered",
			zap.Int("rounds", rounds))
		r.metrics.RefreshExhausted.Add(ctx, 1)
		span.SetStatus(codes.Error, "no leader")
	case roundAborted:
		logger.Debug("topology refresh aborted")
	}
}

func (r *refresher) refresh(ctx context.Context, logger *zap.Logger) (roundResult, int) {
	b := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(r.roundInterval),
		uint64(r.maxRounds-1))
	b.Reset()

	for round := 1; ; round++ {
		r.metrics.RefreshRounds.Add(ctx, 1)

		result := r.runRound(ctx, logger.With(zap.Int("round", round)))
		if result != roundNoLeader {
			return result, round
		}

		nextWait := b.NextBackOff()
		if nextWait == backoff.Stop {
			return roundNoLeader, round
		}

		select {
		case <-r.clock.After(nextWait):
		case <-ctx.Done():
			return roundAborted, round
		}
	}
}

func (r *refresher) runRound(ctx context.Context, logger *zap.Logger) roundResult {
	nodes := r.directory.Snapshot()
	if len(nodes) == 0 {
		nodes = []*topology.Node{r.primary}
		r.directory.Replace(nodes)
	}

	views := r.fetchAll(ctx, logger, nodes)
	if ctx.Err() != nil {
		return roundAborted
	}

	best := topology.SelectAuthoritative(views)
	if best == nil {
		r.install(ctx, logger, []*topology.Node{r.primary})
		return roundNoViews
	}

	logger.Debug("selected authoritative topology",
		zap.String("source", best.Source.URL),
		zap.Int64("commitIndex", best.ClusterCommitIndex))

	newNodes := topology.BuildNodes(best)
	if r.install(ctx, logger, newNodes) == nil {
		return roundNoLeader
	}

	r.saveCache(ctx, logger, newNodes)
	return roundLeaderFound
}

func (r *refresher) fetchAll(ctx context.Context, logger *zap.Logger, nodes []*topology.Node) []*topology.View {
	views := make([]*topology.View, len(nodes))

	var wg sync.WaitGroup
	for nodeIdx, node := range nodes {
		wg.Add(1)
		go func(nodeIdx int, node *topology.Node) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
			defer cancel()

			view, err := r.fetcher.FetchTopology(fetchCtx, node)
			if err != nil || view == nil {
				logger.Debug("failed to fetch topology",
					zap.String("node", node.URL),
					zap.Error(err))
				r.metrics.TopologyFetchErrors.Add(ctx, 1)
				return
			}

			if view.Source == nil {
				view.Source = node
			}
			views[nodeIdx] = view
		}(nodeIdx, node)
	}
	wg.Wait()

	return views
}

// install swaps in a new directory and updates the leader to match it.  The
// leader is cleared when the new set has none, so it is never left pointing
// at a node outside the directory.
func (r *refresher) install(ctx context.Context, logger *zap.Logger, nodes []*topology.Node) *topology.Node {
	r.directory.Replace(nodes)
	r.publisher.Publish(r.directory.Snapshot())
	r.metrics.KnownNodes.Record(ctx, int64(len(nodes)))

	oldLeader, _ := r.leader.Load()

	newLeader := topology.FindLeader(nodes)
	if newLeader == nil {
		r.leader.Clear()
		return nil
	}

	if oldLeader == nil || oldLeader.URL != newLeader.URL {
		logger.Info("leader changed",
			zap.Stringer("oldLeader", oldLeader),
			zap.String("newLeader", newLeader.URL))
		r.metrics.LeaderChanges.Add(ctx, 1)
	}

	r.leader.Signal(newLeader)

	r.lock.Lock()
	r.leaderUpdated = r.clock.Now()
	r.lock.Unlock()

	return newLeader
}

func (r *refresher) saveCache(ctx context.Context, logger *zap.Logger, nodes []*topology.Node) {
	if r.cache == nil {
		return
	}

	err := r.cache.Save(ctx, r.cacheKey, nodes)
	if err != nil {
		logger.Warn("failed to save topology to cache",
			zap.String("key", r.cacheKey),
			zap.Error(err))
	}
}
