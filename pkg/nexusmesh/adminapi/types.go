package adminapi

import (
	"context"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
)

// Registry is the registry surface the admin API drives.
// *nexusmesh.RouteRegistry implements it.
type Registry interface {
	RegisterService(ctx context.Context, path string, backends []string) (*nexusmesh.RegisterResult, error)
	ListServices(ctx context.Context) ([]nexusmesh.Route, error)
}

// Resolver maps a request path to the route serving it.
// *routetable.Table implements it.
type Resolver interface {
	Lookup(requestPath string) (route nexusmesh.Route, rest string, ok bool)
}

// ResolveResponse is the body of GET /resolve.
type ResolveResponse struct {
	Route nexusmesh.Route `json:"route"`
	Rest  string          `json:"rest"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`

	// Stored is set when a registration was written but not announced.
	Stored bool `json:"stored,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
