package metrics

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/krptodr/ravendb/utils/buildversion"
)

type RouterMetrics struct {
	RefreshTasks        metric.Int64Counter
	RefreshRounds       metric.Int64Counter
	RefreshExhausted    metric.Int64Counter
	TopologyFetchErrors metric.Int64Counter
	LeaderChanges       metric.Int64Counter
	DispatchAttempts    metric.Int64Counter
	DispatchRetries     metric.Int64Counter
	ClusterUnreachable  metric.Int64Counter
	RefreshDuration     metric.Float64Histogram
	KnownNodes          metric.Int64Gauge
}

var (
	routerMetrics     *RouterMetrics
	routerMetricsLock sync.Mutex
)

func GetRouterMetrics() *RouterMetrics {
	routerMetricsLock.Lock()

	if routerMetrics != nil {
		routerMetricsLock.Unlock()
		return routerMetrics
	}

	routerMetrics = NewRouterMetrics(otel.GetMeterProvider())

	routerMetricsLock.Unlock()
	return routerMetrics
}

var buildVersion string = buildversion.GetVersion("github.com/krptodr/ravendb")

// NewRouterMetrics creates a fresh set of instruments on the given provider.
// Most callers want GetRouterMetrics, this exists for tests which need an
// isolated provider.
func NewRouterMetrics(provider metric.MeterProvider) *RouterMetrics {
	meter := provider.Meter(
		"github.com/krptodr/ravendb/client",
		metric.WithInstrumentationVersion(buildVersion))

	refreshTasks, _ := meter.Int64Counter("leader_refresh_tasks_total",
		metric.WithDescription("Topology refresh tasks started"))
	refreshRounds, _ := meter.Int64Counter("leader_refresh_rounds_total",
		metric.WithDescription("Topology refresh rounds executed"))
	refreshExhausted, _ := meter.Int64Counter("leader_refresh_exhausted_total",
		metric.WithDescription("Refresh tasks that ran out of rounds without finding a leader"))
	fetchErrors, _ := meter.Int64Counter("leader_topology_fetch_errors_total",
		metric.WithDescription("Failed topology fetches against a single node"))
	leaderChanges, _ := meter.Int64Counter("leader_changes_total")
	dispatchAttempts, _ := meter.Int64Counter("leader_dispatch_attempts_total")
	dispatchRetries, _ := meter.Int64Counter("leader_dispatch_retries_total")
	clusterUnreachable, _ := meter.Int64Counter("leader_cluster_unreachable_total")
	refreshDuration, _ := meter.Float64Histogram("leader_refresh_duration_seconds",
		metric.WithUnit("s"))
	knownNodes, _ := meter.Int64Gauge("leader_known_nodes")

	return &RouterMetrics{
		RefreshTasks:        refreshTasks,
		RefreshRounds:       refreshRounds,
		RefreshExhausted:    refreshExhausted,
		TopologyFetchErrors: fetchErrors,
		LeaderChanges:       leaderChanges,
		DispatchAttempts:    dispatchAttempts,
		DispatchRetries:     dispatchRetries,
		ClusterUnreachable:  clusterUnreachable,
		RefreshDuration:     refreshDuration,
		KnownNodes:          knownNodes,
	}
}
