package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/routetable"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow route announcements",
		Long: `Watch subscribes to the announcement channel and prints every route
change as a JSON line. The local table is reconciled against the store
on start and every --resync-interval.

Only the redis backend carries announcements between processes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg, b, err := a.openRegistry(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = reg.Disconnect() }()

			// Deliveries for one subscription are sequential
			enc := json.NewEncoder(cmd.OutOrStdout())
			emit := func(route nexusmesh.Route) {
				_ = enc.Encode(route)
			}

			a.logStartup("watch")
			watcher := a.newWatcher(reg, b, nil, routetable.WithOnApply(emit))
			return watcher.Run(ctx)
		},
	}
}
