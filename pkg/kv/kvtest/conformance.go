// Package kvtest provides conformance tests for kv.Store implementations.
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebasefi/stbt-ledger/pkg/kv"
)

// StoreFactory returns a fresh, empty Store.
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests exercises the kv.Store contract against factory.
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetMissing", testGetMissing},
		{"Overwrite", testOverwrite},
		{"SetNX", testSetNX},
		{"DelExists", testDelExists},
		{"TTL", testTTL},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:setget", []byte("hello")))

	got, err := store.Get(ctx, "kvtest:setget")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func testGetMissing(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "kvtest:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:over", []byte("a")))
	require.NoError(t, store.Set(ctx, "kvtest:over", []byte("b")))

	got, err := store.Get(ctx, "kvtest:over")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func testSetNX(t *testing.T, store kv.Store) {
	ctx := context.Background()
	ok, err := store.SetNX(ctx, "kvtest:nx", []byte("first"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "kvtest:nx", []byte("second"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, "kvtest:nx")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func testDelExists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:a", []byte("1")))
	require.NoError(t, store.Set(ctx, "kvtest:b", []byte("2")))

	n, err := store.Exists(ctx, "kvtest:a", "kvtest:b", "kvtest:c")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.Del(ctx, "kvtest:a", "kvtest:c")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.Get(ctx, "kvtest:a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:ttl", []byte("x"), 50*time.Millisecond))
	ok, err := store.SetNX(ctx, "kvtest:ttlnx", []byte("x"), 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "kvtest:ttl")
		return err == kv.ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)

	ok, err = store.SetNX(ctx, "kvtest:ttlnx", []byte("y"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testPing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
