package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
)

func newListCommand(a *app) *cobra.Command {
	var (
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reg, _, err := a.openRegistry(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = reg.Disconnect() }()

			routes, err := reg.ListServices(ctx)
			if err != nil {
				return err
			}
			return writeRoutes(cmd, output, routes)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func writeRoutes(cmd *cobra.Command, output string, routes []nexusmesh.Route) error {
	out := cmd.OutOrStdout()

	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(routes)

	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(routes)

	case "table":
		if len(routes) == 0 {
			_, err := fmt.Fprintln(out, "No routes registered.")
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tBACKENDS")
		for _, r := range routes {
			fmt.Fprintf(w, "%s\t%s\n", r.Path, strings.Join(r.Backends, ","))
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown output format %q", output)
}
