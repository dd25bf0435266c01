package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jacentio/docrepo/metrics"
	"github.com/jacentio/docrepo/stream"
)

var (
	metricsAddr   string
	generateEvery time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print member changes as they happen",
	Long: `Subscribes to inserts, updates and replaces of members and prints each
changed document. Runs until interrupted.

With --generate, a writer updates a member at the given interval so changes
can be observed against an empty store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)
		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				slog.Info("serving metrics", "addr", metricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server failed", "error", err)
				}
			}()
			defer srv.Shutdown(context.WithoutCancel(ctx))
		}

		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))

		lc := stream.DefaultConfig()
		lc.Workers = cfg.Listener.Workers
		lc.QueueSize = cfg.Listener.QueueSize
		lc.Observer = m
		listeners := stream.NewRegistry(ctx, lc)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := listeners.Shutdown(shutdownCtx); err != nil {
				slog.Warn("listener shutdown", "error", err)
			}
		}()

		listener, err := stream.Subscribing(listeners, newMembers(client, nil))
		if err != nil {
			return fmt.Errorf("watch members: %w", err)
		}
		listener.Subscribe(func(_ context.Context, doc *Member) error {
			return printJSON(doc)
		})
		go func() {
			for err := range listener.Errors() {
				slog.Error("listener", "error", err)
			}
		}()
		slog.Info("watching members", "collection", listener.State().(stream.State).Collection)

		if generateEvery > 0 {
			writer := newMembers(client, m)
			defer writer.Close()
			go generate(ctx, writer, generateEvery)
		}

		<-ctx.Done()
		slog.Info("shutting down")
		return nil
	},
}

// generate creates one member and keeps changing it until ctx is done.
func generate(ctx context.Context, members membersRepo, every time.Duration) {
	m := members.CreateNew()
	m.UserName = "generated"
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		m.Title = fmt.Sprintf("revision %d", n)
		if err := members.Save(ctx); err != nil && ctx.Err() == nil {
			slog.Error("generate", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(reg))
	return mux
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().DurationVar(&generateEvery, "generate", 0, "Write a sample change at this interval")
}
