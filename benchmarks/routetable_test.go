package benchmarks

import (
	"testing"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/routetable"
)

func buildTable(n int) *routetable.Table {
	t := routetable.NewTable()
	for i := 0; i < n; i++ {
		t.Upsert(nexusmesh.Route{Path: pathID(i), Backends: backends})
	}
	return t
}

// BenchmarkLookup_100 resolves against a 100-route table.
func BenchmarkLookup_100(b *testing.B) {
	t := buildTable(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = t.Lookup("/svc/42/users/7")
	}
}

// BenchmarkLookup_1000 resolves against a 1000-route table.
func BenchmarkLookup_1000(b *testing.B) {
	t := buildTable(1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = t.Lookup("/svc/420/users/7")
	}
}

// BenchmarkApply measures decoding and applying one announcement.
func BenchmarkApply(b *testing.B) {
	t := routetable.NewTable()
	payload, err := nexusmesh.Route{Path: "/svc/1", Backends: backends}.Marshal()
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := t.Apply(payload); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSync_1000 measures reconciling a full listing.
func BenchmarkSync_1000(b *testing.B) {
	routes := make([]nexusmesh.Route, 1000)
	for i := range routes {
		routes[i] = nexusmesh.Route{Path: pathID(i), Backends: backends}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t := routetable.NewTable()
		t.Sync(routes, t.Seq())
	}
}
