// Package storetest provides a contract suite that every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/store"
)

// Factory creates a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run runs the contract tests against the stores produced by factory.
func Run(t *testing.T, name string, factory Factory) {
	ctx := context.Background()

	t.Run(name+"/Put_and_Get", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		data := []byte(`{"path":"/a","backends":["http://h1"]}`)
		require.NoError(t, s.Put(ctx, "route:/a", data))

		values, err := s.GetMany(ctx, []string{"route:/a"})
		require.NoError(t, err)
		require.Len(t, values, 1)
		assert.Equal(t, data, values[0])
	})

	t.Run(name+"/Put_Overwrite", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "route:/a", []byte("first")))
		require.NoError(t, s.Put(ctx, "route:/a", []byte("second")))

		keys, err := s.ScanKeys(ctx, "route:")
		require.NoError(t, err)
		assert.Equal(t, []string{"route:/a"}, keys)

		values, err := s.GetMany(ctx, keys)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), values[0])
	})

	t.Run(name+"/ScanKeys_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		keys, err := s.ScanKeys(ctx, "route:")
		require.NoError(t, err)
		assert.NotNil(t, keys)
		assert.Empty(t, keys)
	})

	t.Run(name+"/ScanKeys_Prefix", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "route:/a", []byte("a")))
		require.NoError(t, s.Put(ctx, "route:/b", []byte("b")))
		require.NoError(t, s.Put(ctx, "other:/c", []byte("c")))
		require.NoError(t, s.Put(ctx, "rout", []byte("d")))

		keys, err := s.ScanKeys(ctx, "route:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"route:/a", "route:/b"}, keys)
	})

	t.Run(name+"/ScanKeys_LiteralPrefix", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "r*:/a", []byte("a")))
		require.NoError(t, s.Put(ctx, "r%:/b", []byte("b")))
		require.NoError(t, s.Put(ctx, "rx:/c", []byte("c")))

		keys, err := s.ScanKeys(ctx, "r*:")
		require.NoError(t, err)
		assert.Equal(t, []string{"r*:/a"}, keys)

		keys, err = s.ScanKeys(ctx, "r%:")
		require.NoError(t, err)
		assert.Equal(t, []string{"r%:/b"}, keys)
	})

	t.Run(name+"/GetMany_Order_and_Missing", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "k1", []byte("v1")))
		require.NoError(t, s.Put(ctx, "k3", []byte("v3")))

		values, err := s.GetMany(ctx, []string{"k3", "k2", "k1"})
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.Equal(t, []byte("v3"), values[0])
		assert.Nil(t, values[1])
		assert.Equal(t, []byte("v1"), values[2])
	})

	t.Run(name+"/GetMany_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		values, err := s.GetMany(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run(name+"/Concurrent_Puts", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Put(ctx, fmt.Sprintf("route:/svc-%02d", i), []byte(fmt.Sprintf("v%d", i)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		keys, err := s.ScanKeys(ctx, "route:")
		require.NoError(t, err)
		assert.Len(t, keys, n)

		values, err := s.GetMany(ctx, keys)
		require.NoError(t, err)
		for i, v := range values {
			var idx int
			_, err := fmt.Sscanf(keys[i], "route:/svc-%02d", &idx)
			require.NoError(t, err)
			assert.Equal(t, []byte(fmt.Sprintf("v%d", idx)), v)
		}
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), store.ErrStoreClosed)

		_, err := s.ScanKeys(ctx, "")
		assert.ErrorIs(t, err, store.ErrStoreClosed)

		_, err = s.GetMany(ctx, []string{"k"})
		assert.ErrorIs(t, err, store.ErrStoreClosed)

		// Idempotent
		assert.NoError(t, s.Close())
	})
}
