package routetable

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/bus"
)

// Lister lists every registered route. *nexusmesh.RouteRegistry implements it.
type Lister interface {
	ListServices(ctx context.Context) ([]nexusmesh.Route, error)
}

// Watcher keeps a Table current.
//
// Announcements are fire-and-forget, so the watcher subscribes before it
// reconciles: anything registered after the subscription is confirmed
// arrives as a message, and anything before it is in the listing. A
// periodic resync covers messages lost while the link was down.
type Watcher struct {
	table   *Table
	bus     bus.Bus
	lister  Lister
	channel string
	resync  time.Duration
	logger  *slog.Logger
	metrics *Metrics
	onApply func(nexusmesh.Route)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithChannel sets the announcement channel.
// Default: "config_updates"
func WithChannel(channel string) WatcherOption {
	return func(w *Watcher) {
		if channel != "" {
			w.channel = channel
		}
	}
}

// WithResyncInterval sets how often the watcher reconciles.
// Zero disables periodic resync.
func WithResyncInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.resync = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics records table state to m.
func WithMetrics(m *Metrics) WatcherOption {
	return func(w *Watcher) {
		w.metrics = m
	}
}

// WithOnApply calls fn with every announced route after it is applied.
// fn runs on the subscription's delivery goroutine and must not block.
func WithOnApply(fn func(nexusmesh.Route)) WatcherOption {
	return func(w *Watcher) {
		w.onApply = fn
	}
}

// NewWatcher creates a watcher feeding table from b and lister.
func NewWatcher(table *Table, b bus.Bus, lister Lister, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		table:   table,
		bus:     b,
		lister:  lister,
		channel: nexusmesh.DefaultChannel,
		resync:  30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Table returns the table the watcher maintains.
func (w *Watcher) Table() *Table {
	return w.table
}

// Run subscribes, reconciles, and then keeps the table current until ctx
// is done. It returns an error only if the subscription cannot be made.
// A failed reconciliation is logged and retried at the next resync.
func (w *Watcher) Run(ctx context.Context) error {
	sub, err := w.bus.Subscribe(ctx, w.channel, w.handle)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Warn("unsubscribe failed", slog.String("error", err.Error()))
		}
	}()

	w.logger.Info("watching routes", slog.String("channel", w.channel))
	_ = w.Reconcile(ctx)

	if w.resync <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Reconcile(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Reconcile merges the registry listing into the table.
func (w *Watcher) Reconcile(ctx context.Context) error {
	since := w.table.Seq()

	routes, err := w.lister.ListServices(ctx)
	if err != nil {
		w.metrics.synced(0, err)
		if ctx.Err() == nil {
			w.logger.Warn("route reconciliation failed", slog.String("error", err.Error()))
		}
		return err
	}

	applied := w.table.Sync(routes, since)
	w.metrics.synced(w.table.Len(), nil)
	w.logger.Debug("routes reconciled",
		slog.Int("listed", len(routes)),
		slog.Int("applied", applied),
	)
	return nil
}

func (w *Watcher) handle(_ context.Context, msg bus.Message) error {
	route, err := w.table.Apply(msg.Payload)
	w.metrics.updated(w.table.Len(), err)
	if err != nil {
		w.logger.Warn("ignoring malformed announcement",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()),
		)
		return nil
	}

	w.logger.Info("route updated",
		slog.String("path", route.Path),
		slog.Int("backends", len(route.Backends)),
	)
	if w.onApply != nil {
		w.onApply(route)
	}
	return nil
}
