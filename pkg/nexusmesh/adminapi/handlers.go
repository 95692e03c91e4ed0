package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

// maxBodyBytes bounds a registration request body.
const maxBodyBytes = 1 << 20

// Handlers holds the HTTP handlers.
type Handlers struct {
	registry Registry
	health   func(ctx context.Context) error
	resolver Resolver
}

// NewHandlers creates handlers over registry. health and resolver may be nil.
func NewHandlers(registry Registry, health func(ctx context.Context) error, resolver Resolver) *Handlers {
	return &Handlers{registry: registry, health: health, resolver: resolver}
}

// RegisterService handles POST /services.
func (h *Handlers) RegisterService(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Strict decode so non-array backends are rejected, not coerced
	route, err := nexusmesh.DecodeRoute(body)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.registry.RegisterService(r.Context(), route.Path, route.Backends)
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}

	h.writeJSON(w, result, http.StatusOK)
}

// ListServices handles GET /services.
func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	routes, err := h.registry.ListServices(r.Context())
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	if routes == nil {
		routes = []nexusmesh.Route{}
	}
	h.writeJSON(w, routes, http.StatusOK)
}

// Resolve handles GET /resolve?path=...
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, "path query parameter is required", http.StatusBadRequest)
		return
	}

	route, rest, ok := h.resolver.Lookup(path)
	if !ok {
		h.writeError(w, "no route for "+path, http.StatusNotFound)
		return
	}
	h.writeJSON(w, ResolveResponse{Route: route, Rest: rest}, http.StatusOK)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.writeJSON(w, HealthResponse{Status: "unavailable", Error: err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	h.writeJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
}

// writeRegistryError maps registry errors to status codes. A route stored
// but not announced is 502 with Stored set; unknown failures are 500.
func (h *Handlers) writeRegistryError(w http.ResponseWriter, err error) {
	if nmerrors.IsValidation(err) {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, nexusmesh.ErrDisconnected) {
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var opErr *nmerrors.OperationError
	if errors.As(err, &opErr) && opErr.PartiallyApplied() {
		writeErrorResponse(w, ErrorResponse{
			Error:   http.StatusText(http.StatusBadGateway),
			Message: err.Error(),
			Code:    http.StatusBadGateway,
			Stored:  true,
		})
		return
	}

	h.writeError(w, err.Error(), http.StatusInternalServerError)
}

// writeError writes an error response as JSON.
func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	writeErrorResponse(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	_ = json.NewEncoder(w).Encode(resp)
}
