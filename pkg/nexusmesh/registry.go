package nexusmesh

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/bus"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/observability"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/store"
)

// StatusSuccess is the Status of a successful RegisterResult.
const StatusSuccess = "success"

// RegisterResult reports a successful registration.
// It serializes as {"status": "success", "data": {"path": ..., "backends": [...]}}.
type RegisterResult struct {
	Status string `json:"status"`
	Data   Route  `json:"data"`

	Stored    bool `json:"-"`
	Published bool `json:"-"`

	// Receivers is the subscriber count the transport reported, or -1 when
	// the store and bus are separate and the count is unknown.
	Receivers int64 `json:"-"`
}

// RouteRegistry records routes and announces each change.
// It is safe for concurrent use; the only mutable state is the
// disconnected flag.
type RouteRegistry struct {
	store    store.Store
	bus      bus.Bus
	combined store.PutPublisher // non-nil when store and bus share a transport
	shared   bool
	cfg      registryConfig

	disconnected atomic.Bool
	closeOnce    sync.Once
}

// New creates a RouteRegistry over s and b. Ownership of both passes to the
// registry; Disconnect closes them.
func New(s store.Store, b bus.Bus, opts ...Option) (*RouteRegistry, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	if b == nil {
		return nil, ErrNilBus
	}

	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &RouteRegistry{
		store:  s,
		bus:    b,
		shared: sameHandle(s, b),
		cfg:    cfg,
	}
	// Only pipeline when the publish half reaches the same bus callers
	// subscribe to
	if pp, ok := s.(store.PutPublisher); ok && r.shared {
		r.combined = pp
	}
	return r, nil
}

// Channel returns the channel changes are announced on.
func (r *RouteRegistry) Channel() string {
	return r.cfg.channel
}

// KeyPrefix returns the store key prefix.
func (r *RouteRegistry) KeyPrefix() string {
	return r.cfg.keyPrefix
}

// Connected reports whether Disconnect has not yet been called.
func (r *RouteRegistry) Connected() bool {
	return !r.disconnected.Load()
}

// RegisterService stores the route for path and announces it.
//
// Invalid input returns a *errors.ValidationError and performs no I/O.
// Any later failure returns a *errors.OperationError; when its Stored field
// is true the route is durable but consumers were not notified and will
// only see it on their next reconciliation.
func (r *RouteRegistry) RegisterService(ctx context.Context, path string, backends []string) (*RegisterResult, error) {
	route, err := NewRoute(path, backends)
	if err != nil {
		return nil, err
	}
	if r.disconnected.Load() {
		return nil, &nmerrors.OperationError{Op: "register", Path: path, Err: ErrDisconnected}
	}

	payload, err := route.Marshal()
	if err != nil {
		return nil, &nmerrors.OperationError{Op: "register", Path: path, Err: fmt.Errorf("encode route: %w", err)}
	}

	ctx, span := r.cfg.spans.StartRegisterSpan(ctx, path, len(route.Backends))
	done := observability.TimedOperation()
	start := time.Now()

	res, err := r.commit(ctx, RouteKey(r.cfg.keyPrefix, path), payload)

	r.cfg.metrics.RecordRegister(ctx, time.Since(start), err, res.Stored && !res.Published)
	if err != nil {
		opErr := &nmerrors.OperationError{
			Op:        "register",
			Path:      path,
			Stored:    res.Stored,
			Published: res.Published,
			Err:       err,
		}
		observability.LogRegisterError(r.cfg.logger, path, res.Stored, err)
		r.cfg.spans.EndSpanWithError(span, opErr)
		return nil, opErr
	}

	if res.Receivers >= 0 {
		r.cfg.metrics.RecordPublishReceivers(ctx, res.Receivers)
	}
	r.cfg.spans.AddSpanEvent(ctx, "route.announced", attribute.Int64("receivers", res.Receivers))
	r.cfg.spans.EndSpanWithError(span, nil)
	observability.LogRegister(r.cfg.logger, path, len(route.Backends), res.Receivers, done())

	return &RegisterResult{
		Status:    StatusSuccess,
		Data:      route,
		Stored:    true,
		Published: true,
		Receivers: res.Receivers,
	}, nil
}

// commit writes payload under key and announces it, in one round trip when
// the transport allows.
func (r *RouteRegistry) commit(ctx context.Context, key string, payload []byte) (store.PipelineResult, error) {
	if r.combined != nil {
		return r.combined.PutAndPublish(ctx, key, payload, r.cfg.channel)
	}

	res := store.PipelineResult{Receivers: -1}
	if err := r.store.Put(ctx, key, payload); err != nil {
		return res, err
	}
	res.Stored = true

	if err := r.bus.Publish(ctx, r.cfg.channel, payload); err != nil {
		return res, err
	}
	res.Published = true
	return res, nil
}

// ListServices returns every stored route, sorted by path.
//
// A key removed between the scan and the fetch is omitted. A stored value
// that does not decode as a route, or whose path differs from the one its
// key names, is skipped and logged at warn level.
// An empty store yields an empty, non-nil slice.
func (r *RouteRegistry) ListServices(ctx context.Context) ([]Route, error) {
	if r.disconnected.Load() {
		return nil, &nmerrors.OperationError{Op: "list", Err: ErrDisconnected}
	}

	ctx, span := r.cfg.spans.StartListSpan(ctx)
	done := observability.TimedOperation()
	start := time.Now()

	routes, skipped, err := r.list(ctx)

	r.cfg.metrics.RecordList(ctx, len(routes), skipped, time.Since(start), err)
	if err != nil {
		opErr := &nmerrors.OperationError{Op: "list", Err: err}
		observability.LogListError(r.cfg.logger, err)
		r.cfg.spans.EndSpanWithError(span, opErr)
		return nil, opErr
	}

	r.cfg.spans.AddSpanEvent(ctx, "routes.listed",
		attribute.Int("routes", len(routes)),
		attribute.Int("skipped", skipped),
	)
	r.cfg.spans.EndSpanWithError(span, nil)
	observability.LogList(r.cfg.logger, len(routes), skipped, done())

	return routes, nil
}

func (r *RouteRegistry) list(ctx context.Context) ([]Route, int, error) {
	keys, err := r.store.ScanKeys(ctx, r.cfg.keyPrefix)
	if err != nil {
		return nil, 0, err
	}
	if len(keys) == 0 {
		return []Route{}, 0, nil
	}

	values, err := r.store.GetMany(ctx, keys)
	if err != nil {
		return nil, 0, err
	}
	if len(values) != len(keys) {
		return nil, 0, fmt.Errorf("store returned %d values for %d keys", len(values), len(keys))
	}

	routes := make([]Route, 0, len(values))
	skipped := 0
	for i, v := range values {
		if v == nil {
			continue
		}
		route, err := DecodeRoute(v)
		if err == nil {
			err = r.checkKey(keys[i], route)
		}
		if err != nil {
			observability.LogMalformedRoute(r.cfg.logger, keys[i], err)
			skipped++
			continue
		}
		routes = append(routes, route)
	}

	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Path < routes[j].Path
	})
	return routes, skipped, nil
}

// checkKey rejects a value whose path is not the one its key names, so
// each path appears at most once in a listing.
func (r *RouteRegistry) checkKey(key string, route Route) error {
	want, ok := PathFromKey(r.cfg.keyPrefix, key)
	if !ok || route.Path != want {
		return &nmerrors.ValidationError{
			Field:   "path",
			Message: fmt.Sprintf("%q does not match key %q", route.Path, key),
		}
	}
	return nil
}

// Disconnect closes the store and the bus, closing a shared handle once.
// The first call returns any close errors joined; later calls return nil.
// Operations after Disconnect fail with an OperationError wrapping
// ErrDisconnected.
func (r *RouteRegistry) Disconnect() error {
	var err error
	r.closeOnce.Do(func() {
		r.disconnected.Store(true)

		var errs []error
		if e := r.store.Close(); e != nil {
			errs = append(errs, fmt.Errorf("close store: %w", e))
		}
		if !r.shared {
			if e := r.bus.Close(); e != nil {
				errs = append(errs, fmt.Errorf("close bus: %w", e))
			}
		}

		err = errors.Join(errs...)
		observability.LogDisconnect(r.cfg.logger, err)
	})
	return err
}

// sameHandle reports whether a and b are the same pointer of the same type.
func sameHandle(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer || vb.Kind() != reflect.Pointer {
		return false
	}
	return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
}
