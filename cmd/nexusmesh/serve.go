package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/adminapi"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/routetable"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API",
		Long: `Run the admin HTTP API in front of the registry. With --watch the
process also keeps an in-memory route table current and serves
longest-prefix lookups on /resolve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "maintain a local route table and enable /resolve")
	return cmd
}

// serve runs until ctx is done, then drains the HTTP server and
// disconnects the registry.
func (a *app) serve(ctx context.Context, watch bool) error {
	reg, b, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Disconnect() }()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var watcher *routetable.Watcher
	if watch {
		watcher = a.newWatcher(reg, b, routetable.NewMetrics(promReg))
	}
	srv := a.newAdminServer(reg, b, promReg, watcher)

	a.logStartup("serve")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Either component exiting early takes the other down with it
	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()
	if watcher != nil {
		go func() { errCh <- watcher.Run(ctx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()

	a.logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil {
		return fmt.Errorf("serve: %w", runErr)
	}
	return nil
}

func (a *app) newAdminServer(reg *nexusmesh.RouteRegistry, b *backend, promReg *prometheus.Registry, watcher *routetable.Watcher) *adminapi.Server {
	cfg := adminapi.Config{
		Addr:       a.settings.HTTPAddr,
		Logger:     a.logger,
		Registerer: promReg,
		Gatherer:   promReg,
		Health:     b.health,
	}
	if watcher != nil {
		cfg.Resolver = watcher.Table()
	}
	return adminapi.NewServer(reg, cfg)
}

func (a *app) newWatcher(reg *nexusmesh.RouteRegistry, b *backend, metrics *routetable.Metrics, opts ...routetable.WatcherOption) *routetable.Watcher {
	opts = append([]routetable.WatcherOption{
		routetable.WithChannel(a.settings.Channel),
		routetable.WithResyncInterval(a.settings.ResyncInterval),
		routetable.WithLogger(a.logger),
		routetable.WithMetrics(metrics),
	}, opts...)
	return routetable.NewWatcher(routetable.NewTable(), b.bus, reg, opts...)
}

// logStartup records the effective backend settings.
func (a *app) logStartup(cmd string) {
	a.logger.Info("starting",
		slog.String("command", cmd),
		slog.String("backend", string(a.settings.Backend)),
		slog.String("channel", a.settings.Channel),
		slog.String("key_prefix", a.settings.KeyPrefix),
	)
}
