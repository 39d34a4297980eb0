// Package factory wires a backend driver and a lock strategy into one
// locked store from configuration. Construction is pure and explicit: the
// returned store is intended to be created once at process start and passed
// by reference into whatever request context needs it. Any configuration
// problem surfaces here, before the store is handed out.
package factory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/loquia/sessionstore/configuration"
	"github.com/loquia/sessionstore/internal/dcontext"
	"github.com/loquia/sessionstore/storage"
	driverfactory "github.com/loquia/sessionstore/storage/driver/factory"
	"github.com/loquia/sessionstore/storage/lock"
	"github.com/loquia/sessionstore/storage/lock/filelock"
	"github.com/loquia/sessionstore/storage/lock/objectlock"
	"github.com/loquia/sessionstore/storage/lock/redislock"
)

// InvalidLockStrategyError records an attempt to construct a lock strategy
// of an unknown kind.
type InvalidLockStrategyError struct {
	Name string
}

func (err InvalidLockStrategyError) Error() string {
	return fmt.Sprintf("unknown lock strategy kind: %s", err.Name)
}

// Create builds the locked store selected by the configuration: exactly one
// backend driver and one lock strategy, composed into one store.
func Create(ctx context.Context, config *configuration.Configuration) (*storage.Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	driver, err := driverfactory.Create(ctx, config.Storage)
	if err != nil {
		return nil, err
	}

	var locker lock.Strategy
	lockConfig := config.Storage.Lock
	switch lockConfig.Strategy {
	case configuration.LockFile:
		locker = filelock.New(lockConfig.BaseDir)
	case configuration.LockObject:
		locker = objectlock.New(driver)
	case configuration.LockCoordinator:
		locker = redislock.New(redis.NewClient(&redis.Options{
			Addr:     lockConfig.Redis.Addr,
			Password: lockConfig.Redis.Password,
			DB:       lockConfig.Redis.DB,
		}), "")
	default:
		return nil, InvalidLockStrategyError{Name: lockConfig.Strategy}
	}

	dcontext.GetLoggerWithFields(ctx, map[string]any{
		"storage.type":  config.Storage.Type,
		"lock.strategy": lockConfig.Strategy,
	}).Info("constructed object store")

	return storage.NewStore(driver, locker, storage.Options{
		LeaseDuration: lockConfig.LeaseDuration(),
		Retry: lock.RetryPolicy{
			Attempts: lockConfig.RetryAttempts,
			Delay:    lockConfig.RetryDelay(),
		},
	})
}
