package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquia/sessionstore/configuration"
)

func validConfig(t *testing.T) *configuration.Configuration {
	return &configuration.Configuration{Storage: configuration.Storage{
		Type:    configuration.DriverFilesystem,
		BaseDir: t.TempDir(),
		Lock: configuration.Lock{
			Strategy:             configuration.LockFile,
			BaseDir:              t.TempDir(),
			LeaseDurationSeconds: 10,
			RetryAttempts:        3,
			RetryDelaySeconds:    0.05,
		},
	}}
}

func TestCreateFileBackendFileLock(t *testing.T) {
	store, err := Create(context.Background(), validConfig(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "doc", []byte("hello")))
	got, err := store.Read(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestCreateInMemoryObjectLock(t *testing.T) {
	config := validConfig(t)
	config.Storage.Type = configuration.DriverInMemory
	config.Storage.BaseDir = ""
	config.Storage.Lock.Strategy = configuration.LockObject
	config.Storage.Lock.BaseDir = ""

	store, err := Create(context.Background(), config)
	require.NoError(t, err)

	require.NoError(t, store.Write(context.Background(), "doc", []byte("x")))
}

func TestCreateFailsFastOnInvalidConfiguration(t *testing.T) {
	config := validConfig(t)
	config.Storage.Type = "tape"
	_, err := Create(context.Background(), config)
	require.Error(t, err)

	config = validConfig(t)
	config.Storage.Lock.Strategy = "zookeeper"
	_, err = Create(context.Background(), config)
	require.Error(t, err)

	config = validConfig(t)
	config.Storage.Lock.LeaseDurationSeconds = 0
	_, err = Create(context.Background(), config)
	require.Error(t, err)

	config = validConfig(t)
	config.Storage.Lock.Strategy = configuration.LockCoordinator
	_, err = Create(context.Background(), config)
	require.Error(t, err, "coordinator strategy requires an address")
}
