package client

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/pkg/metrics"
	"github.com/krptodr/ravendb/topology"
	"github.com/krptodr/ravendb/utils/gate"
	"github.com/krptodr/ravendb/utils/latestonlychannel"
	"github.com/krptodr/ravendb/utils/sliceutils"
)

// Operation performs a single call against node.  Failures which mean node
// is no longer the leader must be reported as a retryable RemoteError.
type Operation func(ctx context.Context, node *topology.Node) error

// LeaderState is the executor's current belief about the leader.
type LeaderState struct {
	Leader        *topology.Node
	LastUpdated   time.Time
	LastRefreshed time.Time
}

// ClusterExecutor dispatches operations to the cluster leader, discovering it
// through periodic topology polling when it is not known.
type ClusterExecutor struct {
	logger            *zap.Logger
	clock             Clock
	metrics           *metrics.RouterMetrics
	tracer            trace.Tracer
	leaderWaitTimeout time.Duration
	retryBudget       int

	directory *topology.Directory
	leader    *gate.Gate[*topology.Node]
	publisher *latestonlychannel.Publisher[[]*topology.Node]
	refresher *refresher
}

func NewClusterExecutor(opts *ClusterExecutorOptions) (*ClusterExecutor, error) {
	if opts == nil {
		opts = &ClusterExecutorOptions{}
	}
	if opts.Fetcher == nil {
		return nil, errors.New("a topology fetcher must be specified")
	}
	if opts.PrimaryURL == "" {
		return nil, errors.New("a primary url must be specified")
	}

	o := opts.withDefaults()

	e := &ClusterExecutor{
		logger:            o.Logger,
		clock:             o.Clock,
		metrics:           o.Metrics,
		tracer:            o.Tracer,
		leaderWaitTimeout: o.LeaderWaitTimeout,
		retryBudget:       *o.DefaultRetryBudget,
		directory:         topology.NewDirectory(nil),
		leader:            gate.New[*topology.Node](),
		publisher:         latestonlychannel.NewPublisher[[]*topology.Node](),
	}

	primary := &topology.Node{
		URL:         topology.DatabaseURL(o.PrimaryURL, o.Database),
		Database:    o.Database,
		Credentials: o.Credentials,
	}

	e.refresher = newRefresher(&refresherOptions{
		Logger:          o.Logger.Named("refresher"),
		Fetcher:         o.Fetcher,
		Directory:       e.directory,
		Leader:          e.leader,
		Publisher:       e.publisher,
		Primary:         primary,
		Cache:           o.Cache,
		CacheKey:        o.CacheKey,
		Clock:           o.Clock,
		Metrics:         o.Metrics,
		Tracer:          o.Tracer,
		FreshnessWindow: o.FreshnessWindow,
		RoundInterval:   o.RefreshRoundInterval,
		MaxRounds:       o.MaxRefreshRounds,
		FetchTimeout:    o.FetchTimeout,
	})

	e.init(&o, primary)

	return e, nil
}

func (e *ClusterExecutor) init(o *ClusterExecutorOptions, primary *topology.Node) {
	nodes := []*topology.Node{primary}
	for _, url := range o.InitialURLs {
		nodes = append(nodes, &topology.Node{
			URL:         topology.DatabaseURL(url, o.Database),
			Database:    o.Database,
			Credentials: o.Credentials,
		})
	}
	nodes = sliceutils.RemoveDuplicatesFunc(nodes, func(node *topology.Node) string {
		return node.URL
	})

	if o.Cache != nil {
		cached, err := o.Cache.Load(context.Background(), o.CacheKey)
		if err != nil {
			e.logger.Warn("failed to load cached topology",
				zap.String("key", o.CacheKey),
				zap.Error(err))
		} else if len(cached) > 0 {
			e.logger.Info("using cached topology",
				zap.String("key", o.CacheKey),
				zap.Int("nodes", len(cached)))

			// role information in the cache is only a hint, the leader is
			// always rediscovered
			nodes = make([]*topology.Node, 0, len(cached))
			for _, node := range cached {
				nodes = append(nodes, &topology.Node{
					URL:         node.URL,
					Database:    node.Database,
					Credentials: o.Credentials,
				})
			}
		}
	}

	e.directory.Replace(nodes)
	e.publisher.Publish(e.directory.Snapshot())
}

// Execute runs op against the leader with the default retry budget.
func (e *ClusterExecutor) Execute(ctx context.Context, op Operation) error {
	return e.ExecuteWithBudget(ctx, e.retryBudget, op)
}

// ExecuteWithBudget runs op against the leader.  Each retryable failure
// invalidates the leader and consumes one unit of budget, so op is invoked at
// most budget+1 times.  Any other failure is returned unchanged.
func (e *ClusterExecutor) ExecuteWithBudget(ctx context.Context, budget int, op Operation) error {
	ctx, span := e.tracer.Start(ctx, "ClusterExecutor.Execute",
		trace.WithAttributes(attribute.Int("retryBudget", budget)))
	defer span.End()

	if e.isClosed() {
		return ErrExecutorClosed
	}

	attempts := 0
	var lastErr error

	for ; budget >= 0; budget-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, ok := e.leader.Load(); !ok {
			doneCh := e.refresher.Trigger(false)

			_, err := e.waitForLeader(ctx, doneCh)
			if errors.Is(err, gate.ErrTimeout) {
				if lastErr == nil {
					lastErr = err
				}
				return e.unreachable(ctx, span, attempts, lastErr)
			} else if err != nil {
				return err
			}
		}

		// the leader may have been replaced or invalidated while we waited
		leader, ok := e.leader.Load()
		if !ok {
			continue
		}

		attempts++
		e.metrics.DispatchAttempts.Add(ctx, 1)

		err := op(ctx, leader)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempts))
			return nil
		}

		if !IsRetryable(err) {
			span.RecordError(err)
			return err
		}

		e.logger.Debug("leader rejected operation, rediscovering",
			zap.String("leader", leader.URL),
			zap.Int("attempt", attempts),
			zap.Error(err))

		lastErr = err
		e.invalidateLeader(leader)
		e.metrics.DispatchRetries.Add(ctx, 1)
	}

	return e.unreachable(ctx, span, attempts, lastErr)
}

// ExecuteResult runs fn through e.Execute and returns the value produced by
// the successful attempt.
func ExecuteResult[T any](
	ctx context.Context,
	e *ClusterExecutor,
	fn func(ctx context.Context, node *topology.Node) (T, error),
) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context, node *topology.Node) error {
		value, err := fn(ctx, node)
		if err != nil {
			return err
		}

		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}

// waitForLeader blocks until a leader is signalled.  It gives up with
// gate.ErrTimeout once the leader wait timeout elapses, or as soon as the
// refresh behind doneCh ends without having found a leader.
func (e *ClusterExecutor) waitForLeader(ctx context.Context, doneCh <-chan struct{}) (*topology.Node, error) {
	timeoutCh := e.clock.After(e.leaderWaitTimeout)

	for {
		if leader, ok := e.leader.Load(); ok {
			return leader, nil
		}

		select {
		case <-e.leader.Ready():
		case <-doneCh:
			if leader, ok := e.leader.Load(); ok {
				return leader, nil
			}
			return nil, gate.ErrTimeout
		case <-timeoutCh:
			return nil, gate.ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.refresher.ctx.Done():
			return nil, ErrExecutorClosed
		}
	}
}

// WaitForLeader blocks until a leader is known, starting a refresh if
// needed.  It is bounded by the leader wait timeout.
func (e *ClusterExecutor) WaitForLeader(ctx context.Context) (*topology.Node, error) {
	if e.isClosed() {
		return nil, ErrExecutorClosed
	}

	if _, ok := e.leader.Load(); !ok {
		e.refresher.Trigger(false)
	}

	leader, err := e.leader.Wait(ctx, e.clock.After(e.leaderWaitTimeout))
	if errors.Is(err, gate.ErrTimeout) {
		return nil, &ClusterUnreachableError{Cause: err}
	}
	return leader, err
}

func (e *ClusterExecutor) invalidateLeader(leader *topology.Node) {
	if e.leader.CompareAndClear(leader) {
		e.logger.Info("invalidated leader", zap.String("leader", leader.URL))
	}
	e.refresher.MarkStale()
}

func (e *ClusterExecutor) unreachable(ctx context.Context, span trace.Span, attempts int, cause error) error {
	e.logger.Warn("cluster unreachable",
		zap.Int("attempts", attempts),
		zap.Error(cause))
	e.metrics.ClusterUnreachable.Add(ctx, 1)

	err := &ClusterUnreachableError{
		Attempts: attempts,
		Cause:    cause,
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "cluster unreachable")
	return err
}

// CurrentNodes returns a copy of the current directory.
func (e *ClusterExecutor) CurrentNodes() []*topology.Node {
	return e.directory.Snapshot()
}

func (e *ClusterExecutor) CurrentLeader() (*topology.Node, bool) {
	return e.leader.Load()
}

func (e *ClusterExecutor) LeaderState() LeaderState {
	leader, _ := e.leader.Load()
	lastRefreshed, leaderUpdated := e.refresher.Timestamps()

	return LeaderState{
		Leader:        leader,
		LastUpdated:   leaderUpdated,
		LastRefreshed: lastRefreshed,
	}
}

// ForceRefresh starts a refresh regardless of the freshness window, or joins
// the one already running.  The returned channel is closed when it ends.
func (e *ClusterExecutor) ForceRefresh() <-chan struct{} {
	return e.refresher.Trigger(true)
}

func (e *ClusterExecutor) isClosed() bool {
	return e.refresher.ctx.Err() != nil
}

// Close stops any running refresh and closes all topology watchers.
func (e *ClusterExecutor) Close() error {
	e.refresher.Close()
	e.publisher.Close()
	return nil
}
