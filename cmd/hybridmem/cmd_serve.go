package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/hybridmem/pkg/logger"
	"github.com/sipeed/hybridmem/pkg/mcpserver"
	"github.com/sipeed/hybridmem/pkg/scheduler"
)

var (
	serveTransport string
	serveAddr      string
	serveIdle      time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve graph and scratchpad tools over MCP",
	Long: `Starts an MCP server exposing the graph_*, scratchpad_* and memory_context
tools. stdio is the default transport; --transport http serves streamable
HTTP on --addr. When indexer.schedule is set, records are re-indexed on that
cron schedule.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "stdio or http (default from config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address for http (default from config)")
	serveCmd.Flags().DurationVar(&serveIdle, "session-idle", time.Hour, "drop empty sessions idle this long")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := mcpserver.Options{
		Name:      cfg.MCP.Name,
		Version:   cfg.MCP.Version,
		Transport: cfg.MCP.Transport,
		Addr:      cfg.MCP.Addr,
	}
	if serveTransport != "" {
		opts.Transport = serveTransport
	}
	if serveAddr != "" {
		opts.Addr = serveAddr
	}
	srv := mcpserver.New(rt.registry, opts)

	sched, err := scheduler.NewService(cfg.Indexer.Schedule)
	if err != nil {
		return err
	}
	sched.SetSweeper(&sessionJanitor{rt: rt, idle: serveIdle})
	if path := cfg.RecordsPath(); path != "" {
		sched.SetJob(func(ctx context.Context) error {
			_, err := rt.graph.IndexFile(ctx, path)
			return err
		})
		if cfg.Indexer.RunOnStart {
			if err := sched.RunOnce(cmd.Context()); err != nil {
				logger.WarnCF("serve", "Initial index failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		defer cancel()
		return srv.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})
	return g.Wait()
}

// sessionJanitor sweeps expired entries in every session and drops
// sessions left empty and idle.
type sessionJanitor struct {
	rt   *runtime
	idle time.Duration
}

func (j *sessionJanitor) Sweep() int {
	n := j.rt.sessions.Sweep()
	if removed := j.rt.sessions.PruneIdle(j.idle); len(removed) > 0 {
		logger.DebugCF("serve", "Pruned idle sessions", map[string]interface{}{
			"sessions": removed,
		})
	}
	return n
}
