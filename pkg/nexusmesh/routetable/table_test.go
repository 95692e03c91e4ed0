package routetable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/routetable"
)

func route(path string, backends ...string) nexusmesh.Route {
	return nexusmesh.Route{Path: path, Backends: backends}
}

func TestTable_Lookup(t *testing.T) {
	table := routetable.NewTable()
	table.Upsert(route("/api", "http://api"))
	table.Upsert(route("/api/v2", "http://api-v2"))
	table.Upsert(route("/static", "http://cdn"))

	tests := []struct {
		request  string
		wantPath string
		wantRest string
		found    bool
	}{
		{"/api/users", "/api", "/users", true},
		{"/api/v2/users", "/api/v2", "/users", true},
		{"/api/v2", "/api/v2", "/", true},
		{"/static/app.js", "/static", "/app.js", true},
		{"/unknown", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			got, rest, ok := table.Lookup(tt.request)
			require.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestTable_Apply(t *testing.T) {
	table := routetable.NewTable()

	got, err := table.Apply([]byte(`{"path":"/api","backends":["http://h1","http://h2"]}`))
	require.NoError(t, err)
	assert.Equal(t, "/api", got.Path)

	stored, ok := table.Get("/api")
	require.True(t, ok)
	assert.Equal(t, []string{"http://h1", "http://h2"}, stored.Backends)

	_, err = table.Apply([]byte(`{"path":"/bad","backends":"http://h1"}`))
	assert.True(t, nmerrors.IsValidation(err))
	assert.Equal(t, 1, table.Len())
}

func TestTable_UpsertReplaces(t *testing.T) {
	table := routetable.NewTable()
	table.Upsert(route("/api", "http://old"))
	table.Upsert(route("/api", "http://new"))

	assert.Equal(t, []nexusmesh.Route{route("/api", "http://new")}, table.Routes())
}

func TestTable_SyncKeepsNewerUpdates(t *testing.T) {
	table := routetable.NewTable()
	table.Upsert(route("/kept", "http://local-only"))

	since := table.Seq()

	// Announcement lands while the listing is in flight
	table.Upsert(route("/api", "http://newer"))

	applied := table.Sync([]nexusmesh.Route{
		route("/api", "http://stale"),
		route("/users", "http://users"),
	}, since)
	assert.Equal(t, 1, applied)

	api, _ := table.Get("/api")
	assert.Equal(t, []string{"http://newer"}, api.Backends)

	users, ok := table.Get("/users")
	require.True(t, ok)
	assert.Equal(t, []string{"http://users"}, users.Backends)

	_, ok = table.Get("/kept")
	assert.True(t, ok, "sync never removes routes")
}

func TestTable_ReturnsCopies(t *testing.T) {
	table := routetable.NewTable()
	backends := []string{"http://h1"}
	table.Upsert(route("/api", backends...))
	backends[0] = "mutated"

	got, _ := table.Get("/api")
	assert.Equal(t, "http://h1", got.Backends[0])

	got.Backends[0] = "mutated"
	again, _ := table.Get("/api")
	assert.Equal(t, "http://h1", again.Backends[0])
}
