package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/cache"
	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/httptransport"
	"github.com/krptodr/ravendb/utils/connstr"
)

type config struct {
	logLevelStr        string
	connStr            string
	database           string
	user               string
	pass               string
	apiKey             string
	topologyPath       string
	acceptSnappy       bool
	retryBudget        int
	freshnessWindow    time.Duration
	roundInterval      time.Duration
	maxRounds          int
	leaderWaitTimeout  time.Duration
	cache              string
	cacheDir           string
	etcdEndpoints      string
	webAddress         string
	otlpEndpoint       string
	disableOtlpTraces  bool
	disableOtlpMetrics bool
	traceEverything    bool
	clientTrace        bool
	debug              bool
}

func readConfig(logger *zap.Logger) *config {
	config := &config{
		logLevelStr:        viper.GetString("log-level"),
		connStr:            viper.GetString("connstr"),
		database:           viper.GetString("database"),
		user:               viper.GetString("user"),
		pass:               viper.GetString("pass"),
		apiKey:             viper.GetString("api-key"),
		topologyPath:       viper.GetString("topology-path"),
		acceptSnappy:       viper.GetBool("accept-snappy"),
		retryBudget:        viper.GetInt("retry-budget"),
		freshnessWindow:    viper.GetDuration("freshness-window"),
		roundInterval:      viper.GetDuration("round-interval"),
		maxRounds:          viper.GetInt("max-rounds"),
		leaderWaitTimeout:  viper.GetDuration("leader-wait-timeout"),
		cache:              viper.GetString("cache"),
		cacheDir:           viper.GetString("cache-dir"),
		etcdEndpoints:      viper.GetString("etcd-endpoints"),
		webAddress:         viper.GetString("web-address"),
		otlpEndpoint:       viper.GetString("otlp-endpoint"),
		disableOtlpTraces:  viper.GetBool("disable-otlp-traces"),
		disableOtlpMetrics: viper.GetBool("disable-otlp-metrics"),
		traceEverything:    viper.GetBool("trace-everything"),
		clientTrace:        viper.GetBool("client-trace"),
		debug:              viper.GetBool("debug"),
	}

	logger.Info("parsed leaderctl configuration",
		zap.String("logLevelStr", config.logLevelStr),
		zap.String("connStr", config.connStr),
		zap.String("database", config.database),
		zap.String("user", config.user),
		// zap.String("pass", config.pass),
		zap.Bool("apiKeySet", config.apiKey != ""),
		zap.String("topologyPath", config.topologyPath),
		zap.Bool("acceptSnappy", config.acceptSnappy),
		zap.Int("retryBudget", config.retryBudget),
		zap.Duration("freshnessWindow", config.freshnessWindow),
		zap.Duration("roundInterval", config.roundInterval),
		zap.Int("maxRounds", config.maxRounds),
		zap.Duration("leaderWaitTimeout", config.leaderWaitTimeout),
		zap.String("cache", config.cache),
		zap.String("cacheDir", config.cacheDir),
		zap.String("etcdEndpoints", config.etcdEndpoints),
		zap.String("webAddress", config.webAddress),
		zap.String("otlpEndpoint", config.otlpEndpoint),
		zap.Bool("disableOtlpTraces", config.disableOtlpTraces),
		zap.Bool("disableOtlpMetrics", config.disableOtlpMetrics),
		zap.Bool("traceEverything", config.traceEverything),
		zap.Bool("clientTrace", config.clientTrace),
		zap.Bool("debug", config.debug))

	return config
}

func (c *config) credentials() any {
	if c.apiKey != "" {
		return &httptransport.APIKeyCredentials{Key: c.apiKey}
	}
	if c.user != "" {
		return &httptransport.BasicCredentials{Username: c.user, Password: c.pass}
	}
	return nil
}

func (c *config) openCache(logger *zap.Logger) (client.TopologyCache, func(), error) {
	noop := func() {}

	cacheDir := c.cacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", ".leaderctl")
	}

	switch c.cache {
	case "", "none":
		return nil, noop, nil
	case "file":
		store, err := cache.NewFileStore(cacheDir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case "badger":
		store, err := cache.NewBadgerStore(&cache.BadgerStoreOptions{
			Logger: logger,
			Dir:    filepath.Join(cacheDir, "badger"),
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case "etcd":
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(c.etcdEndpoints, ","),
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, noop, err
		}

		store, err := cache.NewEtcdStore(cache.EtcdStoreOptions{
			EtcdClient: etcdClient,
		})
		if err != nil {
			_ = etcdClient.Close()
			return nil, noop, err
		}
		return store, func() { _ = etcdClient.Close() }, nil
	}

	return nil, noop, fmt.Errorf("unknown cache type %q", c.cache)
}

type routing struct {
	executor *client.ClusterExecutor
	invoker  *httptransport.Invoker
	close    func()
}

func (a *app) newRouting() (*routing, error) {
	seeds, err := connstr.Parse(a.config.connStr)
	if err != nil {
		return nil, err
	}

	database := seeds.Database
	if a.config.database != "" {
		database = a.config.database
	}

	topologyCache, closeCache, err := a.config.openCache(a.logger.Named("cache"))
	if err != nil {
		return nil, err
	}

	httpClient := httptransport.NewHTTPClient(nil)

	executor, err := client.NewClusterExecutor(&client.ClusterExecutorOptions{
		Logger: a.logger.Named("executor"),
		Fetcher: httptransport.NewTopologyFetcher(&httptransport.TopologyFetcherOptions{
			Logger:       a.logger.Named("fetcher"),
			HTTPClient:   httpClient,
			TopologyPath: a.config.topologyPath,
			AcceptSnappy: a.config.acceptSnappy,
			ClientTrace:  a.config.clientTrace,
		}),
		PrimaryURL:           seeds.PrimaryURL,
		Database:             database,
		InitialURLs:          seeds.URLs,
		Credentials:          a.config.credentials(),
		Cache:                topologyCache,
		FreshnessWindow:      a.config.freshnessWindow,
		RefreshRoundInterval: a.config.roundInterval,
		MaxRefreshRounds:     a.config.maxRounds,
		LeaderWaitTimeout:    firstDuration(a.config.leaderWaitTimeout, seeds.LeaderWaitTimeout),
		DefaultRetryBudget:   &a.config.retryBudget,
		FetchTimeout:         seeds.FetchTimeout,
	})
	if err != nil {
		closeCache()
		return nil, err
	}

	invoker := httptransport.NewInvoker(&httptransport.InvokerOptions{
		Logger:      a.logger.Named("invoker"),
		HTTPClient:  httpClient,
		ClientTrace: a.config.clientTrace,
	})

	return &routing{
		executor: executor,
		invoker:  invoker,
		close: func() {
			_ = executor.Close()
			closeCache()
		},
	}, nil
}

func firstDuration(values ...time.Duration) time.Duration {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}
	return 0
}
