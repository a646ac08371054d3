// This file is to handle things such as metrics/health/topology diagnostics, etc

package webapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

// TopologySource is the part of the executor the web api reports on.
type TopologySource interface {
	CurrentNodes() []*topology.Node
	LeaderState() client.LeaderState
	ForceRefresh() <-chan struct{}
}

type WebServerOptions struct {
	Logger   *zap.Logger
	LogLevel *zap.AtomicLevel
	Topology TopologySource
	Version  string
	Debug    bool
}

type WebServer struct {
	logger     *zap.Logger
	logLevel   *zap.AtomicLevel
	topology   TopologySource
	version    string
	debug      bool
	httpServer *http.Server
}

func NewWebServer(opts WebServerOptions) *WebServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebServer{
		logger:   logger,
		logLevel: opts.LogLevel,
		topology: opts.Topology,
		version:  opts.Version,
		debug:    opts.Debug,
	}
}

type jsonNode struct {
	URL         string `json:"url"`
	Database    string `json:"database,omitempty"`
	IsInCluster bool   `json:"isInCluster"`
	IsLeader    bool   `json:"isLeader"`
}

type jsonTopology struct {
	Nodes         []jsonNode `json:"nodes"`
	Leader        string     `json:"leader,omitempty"`
	LastUpdated   *time.Time `json:"lastUpdated,omitempty"`
	LastRefreshed *time.Time `json:"lastRefreshed,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (w *WebServer) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, err := rw.Write([]byte("leader routing diagnostics " + w.version))
	if err != nil {
		w.logger.Debug("failed to write generic root response", zap.Error(err))
	}
}

func (w *WebServer) writeTopology(rw http.ResponseWriter) {
	state := w.topology.LeaderState()

	out := jsonTopology{
		Nodes:         []jsonNode{},
		LastUpdated:   optionalTime(state.LastUpdated),
		LastRefreshed: optionalTime(state.LastRefreshed),
	}
	if state.Leader != nil {
		out.Leader = state.Leader.URL
	}

	for _, node := range w.topology.CurrentNodes() {
		entry := jsonNode{
			URL:      node.URL,
			Database: node.Database,
			IsLeader: node.IsLeader(),
		}
		if node.ClusterInfo != nil {
			entry.IsInCluster = node.ClusterInfo.IsInCluster
		}
		out.Nodes = append(out.Nodes, entry)
	}

	rw.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(rw).Encode(out)
	if err != nil {
		w.logger.Debug("failed to write topology response", zap.Error(err))
	}
}

func (w *WebServer) handleTopology(rw http.ResponseWriter, r *http.Request) {
	w.writeTopology(rw)
}

func (w *WebServer) handleRefresh(rw http.ResponseWriter, r *http.Request) {
	select {
	case <-w.topology.ForceRefresh():
	case <-r.Context().Done():
		return
	}

	w.writeTopology(rw)
}

// Handler builds the routes served by the web api.
func (w *WebServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	if w.topology != nil {
		r.HandleFunc("/topology", w.handleTopology).Methods(http.MethodGet)
		r.HandleFunc("/topology/refresh", w.handleRefresh).Methods(http.MethodPost)
	}
	if w.logLevel != nil {
		r.Handle("/log-level", w.logLevel).Methods(http.MethodGet, http.MethodPut)
	}
	r.HandleFunc("/", w.handleRoot)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		Debug:          w.debug,
	})

	return c.Handler(r)
}

// Serve serves on l until ctx is done.
func (w *WebServer) Serve(ctx context.Context, l net.Listener) error {
	w.httpServer = &http.Server{
		Handler:      w.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.httpServer.Shutdown(shutdownCtx)
	}()

	err := w.httpServer.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
