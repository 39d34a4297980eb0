package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/testsuites"
)

func TestInMemoryDriverSuite(t *testing.T) {
	testsuites.Run(t, func(t *testing.T) storagedriver.StorageDriver {
		return New()
	})
}

func TestGetContentReturnsACopy(t *testing.T) {
	d := New()
	ctx := context.Background()

	require.NoError(t, d.PutContent(ctx, "/doc", []byte("original")))

	got, err := d.GetContent(ctx, "/doc")
	require.NoError(t, err)
	got[0] = 'X'

	again, err := d.GetContent(ctx, "/doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}
