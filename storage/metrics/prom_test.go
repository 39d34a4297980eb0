package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loquia/sessionstore/storage"
	"github.com/loquia/sessionstore/storage/driver/inmemory"
	"github.com/loquia/sessionstore/storage/lock"
	"github.com/loquia/sessionstore/storage/lock/objectlock"
)

func TestPrometheusObjectStorePassesThrough(t *testing.T) {
	driver := inmemory.New()
	inner, err := storage.NewStore(driver, objectlock.New(driver), storage.Options{
		LeaseDuration: time.Second,
		Retry:         lock.RetryPolicy{Attempts: 3, Delay: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	store := NewPrometheusObjectStore(inner, "test_storage", "test storage latency")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "sessions/alpha", []byte("one")))

	content, err := store.Read(ctx, "sessions/alpha")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), content)

	require.NoError(t, store.ReadModifyWrite(ctx, "sessions/alpha", func(cur []byte) ([]byte, error) {
		return append(cur, []byte("+two")...), nil
	}))

	content, err = store.Read(ctx, "sessions/alpha")
	require.NoError(t, err)
	require.Equal(t, []byte("one+two"), content)

	keys, err := store.List(ctx, "sessions")
	require.NoError(t, err)
	require.Equal(t, []string{"/sessions/alpha"}, keys)

	require.NoError(t, store.Delete(ctx, "sessions/alpha"))
}
