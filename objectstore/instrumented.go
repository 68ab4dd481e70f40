package objectstore

import (
	"context"
	"io"
	"time"
)

// Instrumented wraps a Store with metrics recording, grounded on the
// teacher's InstrumentedBackend. Unlike the teacher's version it records
// into an explicit Metrics instance rather than a package-level telemetry
// singleton.
type Instrumented struct {
	store   Store
	name    string
	metrics *Metrics
}

// NewInstrumented wraps store with metrics recording under the given name
// (used as an attribute to distinguish multiple stores, e.g. "primary").
func NewInstrumented(store Store, name string, metrics *Metrics) *Instrumented {
	return &Instrumented{store: store, name: name, metrics: metrics}
}

func (in *Instrumented) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	start := time.Now()
	n, err := in.store.Write(ctx, key, r)
	in.metrics.record(ctx, "write", outcomeFromError(err), start, n)
	return n, err
}

func (in *Instrumented) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := in.store.Read(ctx, key)
	in.metrics.record(ctx, "read", outcomeFromError(err), start, 0)
	return rc, err
}

func (in *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := in.store.Delete(ctx, key)
	in.metrics.record(ctx, "delete", outcomeFromError(err), start, 0)
	return err
}

func (in *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	exists, err := in.store.Exists(ctx, key)
	in.metrics.record(ctx, "exists", outcomeFromError(err), start, 0)
	return exists, err
}

func (in *Instrumented) Size(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	size, err := in.store.Size(ctx, key)
	in.metrics.record(ctx, "size", outcomeFromError(err), start, 0)
	return size, err
}

func (in *Instrumented) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := in.store.Keys(ctx)
	in.metrics.record(ctx, "keys", outcomeFromError(err), start, 0)
	return keys, err
}

func (in *Instrumented) FreeSpace(ctx context.Context) (int64, error) {
	start := time.Now()
	free, err := in.store.FreeSpace(ctx)
	in.metrics.record(ctx, "free_space", outcomeFromError(err), start, 0)
	return free, err
}

// Unwrap returns the underlying store.
func (in *Instrumented) Unwrap() Store {
	return in.store
}

func outcomeFromError(err error) string {
	if err == nil {
		return "success"
	}
	if err == ErrNotFound {
		return "not_found"
	}
	return "error"
}

var _ Store = (*Instrumented)(nil)
