package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

func newRegisterCommand(a *app) *cobra.Command {
	var (
		retries int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "register PATH BACKEND...",
		Short: "Register the backends serving a path",
		Long: `Register stores the route for PATH and announces it to every
subscriber. Registering an existing path replaces its backends.

Transient transport failures are retried up to --retries attempts.
A route that was stored but not announced is reported as an error;
watchers pick it up on their next reconciliation.`,
		Example: `  nexusmesh register /api/users http://users-1:8080 http://users-2:8080`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reg, _, err := a.openRegistry(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = reg.Disconnect() }()

			path, backends := args[0], args[1:]
			result := nmerrors.WithRetryContext(ctx,
				nmerrors.NewRetryConfig(nmerrors.WithMaxAttempts(retries)),
				func(ctx context.Context) (*nexusmesh.RegisterResult, error) {
					return reg.RegisterService(ctx, path, backends)
				},
			)
			if result.Err != nil {
				return result.Err
			}
			if result.Attempts > 1 {
				a.logger.Info("registered after retry", slog.Int("attempts", result.Attempts))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result.Value); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 3, "attempts for transient failures (1 disables retry)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}
