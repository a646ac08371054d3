package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/pkg/webapi"
	"github.com/krptodr/ravendb/topology"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Refreshes the topology and prints the known nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithRouting(cmd.Context(), func(a *app, r *routing) error {
			_, err := r.executor.WaitForLeader(cmd.Context())
			if err != nil {
				a.logger.Warn("no leader discovered", zap.Error(err))
			}

			printNodes(cmd.OutOrStdout(), r.executor.CurrentNodes())
			return nil
		})
	},
}

var execBody string

var execCmd = &cobra.Command{
	Use:   "exec <method> <path>",
	Short: "Sends one request to the current leader and prints the response",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := strings.ToUpper(args[0])
		path := args[1]

		var body []byte
		if execBody == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			body = data
		} else if execBody != "" {
			body = []byte(execBody)
		}

		return runWithRouting(cmd.Context(), func(a *app, r *routing) error {
			var out json.RawMessage
			err := r.executor.Execute(cmd.Context(), r.invoker.Operation(method, path, body, &out))
			if err != nil {
				return err
			}

			if len(out) > 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serves the diagnostics web api and prints every topology change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return runWithRouting(ctx, func(a *app, r *routing) error {
			if a.config.webAddress != "" {
				l, err := net.Listen("tcp", a.config.webAddress)
				if err != nil {
					return err
				}

				ws := webapi.NewWebServer(webapi.WebServerOptions{
					Logger:   a.logger.Named("webapi"),
					LogLevel: &a.logLevel,
					Topology: r.executor,
					Version:  buildVersion,
					Debug:    a.config.debug,
				})
				go func() {
					err := ws.Serve(ctx, l)
					if err != nil {
						a.logger.Error("failed to serve diagnostics web api", zap.Error(err))
					}
				}()

				a.logger.Info("serving diagnostics web api", zap.String("address", l.Addr().String()))
			}

			r.executor.ForceRefresh()

			for nodes := range r.executor.WatchTopology(ctx) {
				leader, _ := r.executor.CurrentLeader()
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "topology changed, leader %s\n", leader)
				printNodes(cmd.OutOrStdout(), nodes)
			}

			a.logger.Info("stopped watching topology")
			return nil
		})
	},
}

func init() {
	execCmd.Flags().StringVar(&execBody, "body", "", "the request body, - reads it from stdin")
}

func runWithRouting(ctx context.Context, fn func(a *app, r *routing) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown()

	r, err := a.newRouting()
	if err != nil {
		a.logger.Error("failed to initialize routing", zap.Error(err))
		return err
	}
	defer r.close()

	return fn(a, r)
}

func printNodes(w io.Writer, nodes []*topology.Node) {
	for _, node := range nodes {
		role := "unknown"
		if node.ClusterInfo != nil {
			role = "follower"
			if node.ClusterInfo.IsLeader {
				role = "leader"
			} else if !node.ClusterInfo.IsInCluster {
				role = "standalone"
			}
		}
		_, _ = fmt.Fprintf(w, "%-10s %s\n", role, node.URL)
	}

	if len(nodes) == 0 {
		_, _ = fmt.Fprintln(w, "no nodes known")
	}
}
