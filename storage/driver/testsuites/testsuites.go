// Package testsuites holds the conformance suite every storage driver must
// pass. Driver packages call Run from their own tests with a constructor
// for a clean driver instance.
package testsuites

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
)

// DriverConstructor returns a clean driver instance for one subtest.
type DriverConstructor func(t *testing.T) storagedriver.StorageDriver

// Run exercises the StorageDriver contract against the given constructor.
func Run(t *testing.T, newDriver DriverConstructor) {
	t.Run("RoundTrip", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		content := []byte("some content")
		require.NoError(t, d.PutContent(ctx, "/sessions/alpha", content))

		got, err := d.GetContent(ctx, "/sessions/alpha")
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("OverwriteReplaces", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		require.NoError(t, d.PutContent(ctx, "/doc", []byte("first")))
		require.NoError(t, d.PutContent(ctx, "/doc", []byte("second, longer content")))

		got, err := d.GetContent(ctx, "/doc")
		require.NoError(t, err)
		assert.Equal(t, []byte("second, longer content"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		d := newDriver(t)

		_, err := d.GetContent(context.Background(), "/nonexistent")
		require.Error(t, err)
		var notFound storagedriver.PathNotFoundError
		assert.True(t, errors.As(err, &notFound), "expected PathNotFoundError, got %T", err)
	})

	t.Run("Stat", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		content := []byte("0123456789")
		require.NoError(t, d.PutContent(ctx, "/stat/target", content))

		fi, err := d.Stat(ctx, "/stat/target")
		require.NoError(t, err)
		assert.Equal(t, "/stat/target", fi.Path())
		assert.Equal(t, int64(len(content)), fi.Size())

		_, err = d.Stat(ctx, "/stat/missing")
		var notFound storagedriver.PathNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		require.NoError(t, d.PutContent(ctx, "/doomed", []byte("x")))
		require.NoError(t, d.Delete(ctx, "/doomed"))

		_, err := d.GetContent(ctx, "/doomed")
		var notFound storagedriver.PathNotFoundError
		assert.True(t, errors.As(err, &notFound))

		// Deleting again must succeed without error.
		assert.NoError(t, d.Delete(ctx, "/doomed"))
		assert.NoError(t, d.Delete(ctx, "/never-existed"))
	})

	t.Run("Exists", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		ok, err := storagedriver.Exists(ctx, d, "/present")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, d.PutContent(ctx, "/present", []byte("x")))
		ok, err = storagedriver.Exists(ctx, d, "/present")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ListOrderedAndScoped", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		paths := []string{
			"/users/2/profile",
			"/users/10/profile",
			"/users/1/profile",
			"/users/1/chatlog",
			"/other/file",
		}
		for _, p := range paths {
			require.NoError(t, d.PutContent(ctx, p, []byte(p)))
		}

		keys, err := d.List(ctx, "/users")
		require.NoError(t, err)
		assert.True(t, sort.StringsAreSorted(keys), "list output not sorted: %v", keys)
		assert.Equal(t, []string{
			"/users/1/chatlog",
			"/users/1/profile",
			"/users/10/profile",
			"/users/2/profile",
		}, keys)

		all, err := d.List(ctx, "/")
		require.NoError(t, err)
		assert.Len(t, all, len(paths))
	})

	t.Run("ListEmptyPrefix", func(t *testing.T) {
		d := newDriver(t)

		keys, err := d.List(context.Background(), "/nothing/here")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ConditionalPut", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		putter, ok := d.(storagedriver.ConditionalPutter)
		if !ok {
			t.Skip("driver has no conditional create")
		}

		err := putter.PutContentIfAbsent(ctx, "/cond/marker", []byte("one"))
		var unsupported storagedriver.ErrUnsupportedMethod
		if errors.As(err, &unsupported) {
			t.Skip("driver has no conditional create")
		}
		require.NoError(t, err)

		err = putter.PutContentIfAbsent(ctx, "/cond/marker", []byte("two"))
		var exists storagedriver.AlreadyExistsError
		require.True(t, errors.As(err, &exists), "expected AlreadyExistsError, got %v", err)

		got, err := d.GetContent(ctx, "/cond/marker")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got, "losing conditional put must not clobber")

		require.NoError(t, d.Delete(ctx, "/cond/marker"))
		require.NoError(t, putter.PutContentIfAbsent(ctx, "/cond/marker", []byte("three")))
	})

	t.Run("ConditionalDelete", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		deleter, ok := d.(storagedriver.ConditionalDeleter)
		if !ok {
			t.Skip("driver has no conditional delete")
		}

		require.NoError(t, d.PutContent(ctx, "/cond/victim", []byte("one")))

		err := deleter.DeleteIfUnchanged(ctx, "/cond/victim", []byte("changed"))
		var unsupported storagedriver.ErrUnsupportedMethod
		if errors.As(err, &unsupported) {
			t.Skip("driver has no conditional delete")
		}
		var precondition storagedriver.PreconditionFailedError
		require.True(t, errors.As(err, &precondition), "expected PreconditionFailedError, got %v", err)

		got, err := d.GetContent(ctx, "/cond/victim")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got, "failed conditional delete must not remove the object")

		require.NoError(t, deleter.DeleteIfUnchanged(ctx, "/cond/victim", []byte("one")))
		_, err = d.GetContent(ctx, "/cond/victim")
		var notFound storagedriver.PathNotFoundError
		require.True(t, errors.As(err, &notFound), "expected PathNotFoundError, got %v", err)

		// Absent objects are a no-op, matching Delete.
		require.NoError(t, deleter.DeleteIfUnchanged(ctx, "/cond/victim", []byte("one")))
	})

	t.Run("InvalidPath", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		for _, p := range []string{"", "no-leading-slash", "/trailing/", "/sp ace"} {
			_, err := d.GetContent(ctx, p)
			var invalid storagedriver.InvalidPathError
			assert.True(t, errors.As(err, &invalid), "path %q: expected InvalidPathError, got %v", p, err)
		}
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		d := newDriver(t)
		ctx := context.Background()

		const writers = 8
		done := make(chan error, writers)
		for i := 0; i < writers; i++ {
			content := []byte(fmt.Sprintf("writer-%d", i))
			go func() {
				done <- d.PutContent(ctx, "/contended", content)
			}()
		}
		for i := 0; i < writers; i++ {
			require.NoError(t, <-done)
		}

		// Whatever won, the blob must be one writer's content, whole.
		got, err := d.GetContent(ctx, "/contended")
		require.NoError(t, err)
		assert.Regexp(t, `^writer-[0-7]$`, string(got))
	})
}
