package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/krptodr/ravendb/utils/buildversion"
)

var buildVersion string = buildversion.GetVersion("github.com/krptodr/ravendb")

var rootCmd = &cobra.Command{
	Version: buildVersion,

	Use:   "leaderctl",
	Short: "Discovers and talks to the leader of a document store cluster",

	SilenceUsage: true,
}

var cfgFile string
var watchCfgFile bool

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "specifies a config file to load")
	rootCmd.PersistentFlags().BoolVar(&watchCfgFile, "watch-config", false, "indicates whether to watch the config file for changes")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("connstr", "http://localhost:8080", "the cluster seed connection string")
	configFlags.String("database", "", "the database to route to, overrides the connection string path")
	configFlags.String("user", "", "the username for basic authentication")
	configFlags.String("pass", "", "the password for basic authentication")
	configFlags.String("api-key", "", "an api key to authenticate with")
	configFlags.String("topology-path", "", "the path of the replication topology document")
	configFlags.Bool("accept-snappy", false, "request snappy compressed topology documents")
	configFlags.Int("retry-budget", 3, "the number of leader re-dispatches per operation")
	configFlags.Duration("freshness-window", 0, "minimum time between unforced topology refreshes")
	configFlags.Duration("round-interval", 0, "the pause between refresh rounds without a leader")
	configFlags.Int("max-rounds", 0, "the number of refresh rounds before giving up")
	configFlags.Duration("leader-wait-timeout", 0, "how long an operation waits for a leader")
	configFlags.String("cache", "none", "where to cache topologies: none, file, badger or etcd")
	configFlags.String("cache-dir", "", "the directory used by the file and badger caches")
	configFlags.String("etcd-endpoints", "localhost:2379", "comma separated etcd endpoints for the etcd cache")
	configFlags.String("web-address", "", "address to serve the diagnostics web api on")
	configFlags.String("otlp-endpoint", "", "opentelemetry endpoint to send telemetry to")
	configFlags.Bool("disable-otlp-traces", false, "disable sending traces to otlp")
	configFlags.Bool("disable-otlp-metrics", false, "disable sending metrics to otlp")
	configFlags.Bool("trace-everything", false, "enables tracing of all components")
	configFlags.Bool("client-trace", false, "record http connection events on spans")
	configFlags.Bool("debug", false, "enable debug mode")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("ldr")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(topologyCmd, execCmd, watchCmd)
}

func getLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stderr), logLevel),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

// app is the state shared by every subcommand once the configuration has
// been loaded.
type app struct {
	logLevel zap.AtomicLevel
	logger   *zap.Logger
	config   *config
	shutdown func()
}

func startApp(ctx context.Context) (*app, error) {
	logLevel, logger := getLogger()

	logger.Info("starting leaderctl", zap.String("version", buildVersion))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		err := viper.ReadInConfig()
		if err != nil {
			logger.Error("failed to load specified config file", zap.Error(err))
			return nil, err
		}
	}

	config := readConfig(logger)
	logLevel.SetLevel(parseLogLevel(logger, config.logLevelStr))

	tracerProvider, meterProvider, err := initTelemetry(ctx,
		logger,
		config.otlpEndpoint,
		!config.disableOtlpTraces,
		!config.disableOtlpMetrics,
		config.traceEverything)
	if err != nil {
		logger.Error("failed to initialize opentelemetry", zap.Error(err))
		return nil, err
	}

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}
	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	a := &app{
		logLevel: logLevel,
		logger:   logger,
		config:   config,
		shutdown: func() {
			shutdownCtx := context.Background()
			if tracerProvider != nil {
				_ = tracerProvider.Shutdown(shutdownCtx)
			}
			if meterProvider != nil {
				_ = meterProvider.Shutdown(shutdownCtx)
			}
		},
	}

	if watchCfgFile && cfgFile != "" {
		a.watchConfig()
	}

	return a, nil
}

func parseLogLevel(logger *zap.Logger, levelStr string) zapcore.Level {
	parsedLogLevel, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead")
		parsedLogLevel = zapcore.InfoLevel
	}
	return parsedLogLevel
}

func (a *app) watchConfig() {
	var configLock sync.Mutex
	reloadConfiguration := func() {
		configLock.Lock()
		defer configLock.Unlock()

		err := viper.ReadInConfig()
		if err != nil {
			a.logger.Warn("failed to parse configuration file",
				zap.Error(err))
		}

		newConfig := readConfig(a.logger)

		if newConfig.connStr != a.config.connStr ||
			newConfig.database != a.config.database ||
			newConfig.cache != a.config.cache {
			a.logger.Warn("config changes for connstr, database or cache require a restart")
		}

		if newConfig.logLevelStr != a.config.logLevelStr {
			newParsedLogLevel := parseLogLevel(a.logger, newConfig.logLevelStr)
			a.logLevel.SetLevel(newParsedLogLevel)

			a.logger.Info("updated log level",
				zap.String("newLevel", newParsedLogLevel.String()))
		}

		a.config = newConfig
	}

	viper.OnConfigChange(func(in fsnotify.Event) {
		a.logger.Info("configuration file change detected", zap.String("file", in.Name))
		reloadConfiguration()
	})

	go viper.WatchConfig()
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
