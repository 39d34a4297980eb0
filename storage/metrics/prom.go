// Package metrics decorates an ObjectStore with prometheus latency timers.
package metrics

import (
	"context"
	"time"

	"github.com/docker/go-metrics"

	prometheus "github.com/loquia/sessionstore/metrics"
	"github.com/loquia/sessionstore/storage"
)

type prometheusObjectStore struct {
	storage.ObjectStore
	latencyTimer metrics.LabeledTimer
}

// NewPrometheusObjectStore wraps an ObjectStore so every operation's
// duration is observed under the given timer name.
func NewPrometheusObjectStore(wrap storage.ObjectStore, name, help string) storage.ObjectStore {
	return &prometheusObjectStore{
		wrap,
		prometheus.StorageNamespace.NewLabeledTimer(name, help, "operation"),
	}
}

func (p *prometheusObjectStore) Read(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	content, err := p.ObjectStore.Read(ctx, key)
	p.latencyTimer.WithValues("Read").UpdateSince(start)
	return content, err
}

func (p *prometheusObjectStore) Write(ctx context.Context, key string, content []byte) error {
	start := time.Now()
	err := p.ObjectStore.Write(ctx, key, content)
	p.latencyTimer.WithValues("Write").UpdateSince(start)
	return err
}

func (p *prometheusObjectStore) ReadModifyWrite(ctx context.Context, key string, transform storage.TransformFunc) error {
	start := time.Now()
	err := p.ObjectStore.ReadModifyWrite(ctx, key, transform)
	p.latencyTimer.WithValues("ReadModifyWrite").UpdateSince(start)
	return err
}

func (p *prometheusObjectStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := p.ObjectStore.Delete(ctx, key)
	p.latencyTimer.WithValues("Delete").UpdateSince(start)
	return err
}

func (p *prometheusObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := p.ObjectStore.List(ctx, prefix)
	p.latencyTimer.WithValues("List").UpdateSince(start)
	return keys, err
}
