// Command nexusmesh runs and drives the route registry.
//
// Settings come from flags, NEXUSMESH_* environment variables and an
// optional YAML or JSON config file, in that order of precedence.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/config"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/observability"
)

var version = "dev"

// app carries per-invocation state shared by the subcommands.
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings config.Settings
	logger   *slog.Logger
	logOut   io.Writer
}

func main() {
	if err := newRootCommand(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Logs go to logOut.
func newRootCommand(logOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), logOut: logOut}

	root := &cobra.Command{
		Use:   "nexusmesh",
		Short: "Route registry for a service mesh control plane",
		Long: `nexusmesh records which backends serve each request path and
announces every change on a pub/sub channel so proxies can update their
routing tables without polling.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	d := config.Defaults()
	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML)")
	flags.String("backend", d[config.KeyBackend].(string), "store/bus backend: redis, sqlite or memory")
	flags.String("redis-url", d[config.KeyRedisURL].(string), "Redis URL for the redis backend")
	flags.String("sqlite-path", d[config.KeySQLitePath].(string), "database file for the sqlite backend")
	flags.String("channel", d[config.KeyChannel].(string), "announcement channel")
	flags.String("key-prefix", d[config.KeyKeyPrefix].(string), "store key prefix")
	flags.String("log-level", d[config.KeyLogLevel].(string), "log level: debug, info, warn or error")
	flags.String("log-format", d[config.KeyLogFormat].(string), "log format: text or json")
	flags.String("http-addr", d[config.KeyHTTPAddr].(string), "admin API listen address")
	flags.Duration("health-check-interval", d[config.KeyHealthCheckInterval].(time.Duration), "redis link check interval (0 disables)")
	flags.Duration("resync-interval", d[config.KeyResyncInterval].(time.Duration), "route table reconciliation interval (0 disables)")

	for key, flag := range map[string]string{
		config.KeyBackend:    "backend",
		config.KeyRedisURL:   "redis-url",
		config.KeySQLitePath: "sqlite-path",
		config.KeyChannel:    "channel",
		config.KeyKeyPrefix:  "key-prefix",
		config.KeyLogLevel:   "log-level",
		config.KeyLogFormat:  "log-format",
		config.KeyHTTPAddr:   "http-addr",

		config.KeyHealthCheckInterval: "health-check-interval",
		config.KeyResyncInterval:      "resync-interval",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newServeCommand(a))
	root.AddCommand(newRegisterCommand(a))
	root.AddCommand(newListCommand(a))
	root.AddCommand(newWatchCommand(a))

	return root
}

// load resolves settings and the logger before any subcommand runs.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	a.v.SetEnvPrefix("NEXUSMESH")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	cfg := config.New(nil)
	if a.cfgFile != "" {
		fileCfg, err := config.LoadFile(a.cfgFile)
		if err != nil {
			return fmt.Errorf("load config %s: %w", a.cfgFile, err)
		}
		cfg = fileCfg
	}

	// Flags and env win over the file; LoadSettings fills the rest from
	// config.Defaults.
	settings, err := config.LoadSettings(cfg.Merge(a.overrides()))
	if err != nil {
		return err
	}
	a.settings = settings
	a.logger = newLogger(a.logOut, settings)
	return nil
}

// overrides returns the settings given by a changed flag or a NEXUSMESH_*
// variable. viper holds no defaults, so IsSet is true only for those.
func (a *app) overrides() config.Config {
	set := make(map[string]any)
	for key := range config.Defaults() {
		if a.v.IsSet(key) {
			set[key] = a.v.Get(key)
		}
	}
	return config.New(set)
}

func newLogger(w io.Writer, s config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: observability.ParseLevel(s.LogLevel)}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
