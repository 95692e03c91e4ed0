package nexusmesh

import (
	"encoding/json"
	"fmt"
	"strings"

	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

const (
	// DefaultKeyPrefix prefixes every route key in the store.
	DefaultKeyPrefix = "route:"

	// DefaultChannel is the channel route changes are announced on.
	DefaultChannel = "config_updates"
)

// Route maps a request path to the backends that serve it.
// The JSON form is both the stored value and the notification body.
type Route struct {
	Path     string   `json:"path"`
	Backends []string `json:"backends"`
}

// NewRoute validates path and backends and returns a Route holding a copy
// of backends.
func NewRoute(path string, backends []string) (Route, error) {
	if path == "" {
		return Route{}, &nmerrors.ValidationError{Field: "path", Message: "must not be empty"}
	}
	if len(backends) == 0 {
		return Route{}, &nmerrors.ValidationError{Field: "backends", Message: "must contain at least one endpoint"}
	}
	for i, b := range backends {
		if b == "" {
			return Route{}, &nmerrors.ValidationError{
				Field:   "backends",
				Message: fmt.Sprintf("element %d must not be empty", i),
			}
		}
	}

	return Route{
		Path:     path,
		Backends: append([]string(nil), backends...),
	}, nil
}

// Marshal returns the canonical JSON payload.
func (r Route) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// wireRoute keeps backends raw so a non-array can be told apart from a
// missing field.
type wireRoute struct {
	Path     string          `json:"path"`
	Backends json.RawMessage `json:"backends"`
}

// DecodeRoute strictly decodes a route payload. Anything NewRoute would
// reject, a missing backends field, backends that is not an array, or a
// non-string element yields a ValidationError. Field names must be exactly
// "path" and "backends"; case variants such as "PATH" are rejected.
// Unrelated fields are ignored.
func DecodeRoute(data []byte) (Route, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Route{}, &nmerrors.ValidationError{Message: "malformed route: " + err.Error()}
	}
	for name := range fields {
		for _, canonical := range []string{"path", "backends"} {
			if name != canonical && strings.EqualFold(name, canonical) {
				return Route{}, &nmerrors.ValidationError{
					Field:   canonical,
					Message: fmt.Sprintf("non-canonical field name %q", name),
				}
			}
		}
	}

	var w wireRoute
	if err := json.Unmarshal(data, &w); err != nil {
		return Route{}, &nmerrors.ValidationError{Message: "malformed route: " + err.Error()}
	}

	raw := strings.TrimSpace(string(w.Backends))
	if raw == "" || raw == "null" {
		return Route{}, &nmerrors.ValidationError{Field: "backends", Message: "is required"}
	}
	if !strings.HasPrefix(raw, "[") {
		return Route{}, &nmerrors.ValidationError{Field: "backends", Message: "must be an array"}
	}

	var backends []string
	if err := json.Unmarshal(w.Backends, &backends); err != nil {
		return Route{}, &nmerrors.ValidationError{Field: "backends", Message: "must be an array of strings"}
	}

	return NewRoute(w.Path, backends)
}

// RouteKey returns the store key for path under prefix.
func RouteKey(prefix, path string) string {
	return prefix + path
}

// PathFromKey is the inverse of RouteKey. ok is false when key does not
// carry prefix.
func PathFromKey(prefix, key string) (path string, ok bool) {
	return strings.CutPrefix(key, prefix)
}
