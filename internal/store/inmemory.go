package store

import (
	"context"
	"fmt"

	"github.com/featflip/featflip/internal/feature"
	"github.com/featflip/featflip/internal/reentrant"
)

// memoryBackend is the reference backend: a single uid-to-feature map
// guarded end-to-end by one reentrant lock. No per-key locking; simplicity
// over throughput, which fits the feature-count scale this library targets.
type memoryBackend struct {
	mu       *reentrant.Lock
	features map[string]*feature.Feature
}

// NewInMemory creates an empty in-memory feature store.
func NewInMemory() FeatureStore {
	return Derive(&memoryBackend{
		mu:       reentrant.New(),
		features: make(map[string]*feature.Feature),
	})
}

func (m *memoryBackend) Get(ctx context.Context, uid string) (*feature.Feature, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (*feature.Feature, error) {
		return m.features[uid], nil
	})
}

func (m *memoryBackend) Require(ctx context.Context, uid string) (*feature.Feature, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (*feature.Feature, error) {
		f, ok := m.features[uid]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, uid)
		}
		return f, nil
	})
}

func (m *memoryBackend) Contains(ctx context.Context, uid string) (bool, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (bool, error) {
		_, ok := m.features[uid]
		return ok, nil
	})
}

func (m *memoryBackend) Create(ctx context.Context, f *feature.Feature) error {
	return m.mu.Do(ctx, func(context.Context) error {
		if _, ok := m.features[f.Uid()]; ok {
			return fmt.Errorf("%w: %q", ErrAlreadyExists, f.Uid())
		}
		m.features[f.Uid()] = f
		return nil
	})
}

// CreateOrUpdate composes Create and Update under one lock acquisition; the
// nested calls re-enter the already held lock instead of deadlocking.
func (m *memoryBackend) CreateOrUpdate(ctx context.Context, f *feature.Feature) error {
	return m.mu.Do(ctx, func(ctx context.Context) error {
		if _, ok := m.features[f.Uid()]; ok {
			return m.Update(ctx, f)
		}
		return m.Create(ctx, f)
	})
}

func (m *memoryBackend) Update(ctx context.Context, f *feature.Feature) error {
	return m.mu.Do(ctx, func(context.Context) error {
		if _, ok := m.features[f.Uid()]; !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, f.Uid())
		}
		m.features[f.Uid()] = f
		return nil
	})
}

func (m *memoryBackend) Delete(ctx context.Context, uid string) error {
	return m.mu.Do(ctx, func(context.Context) error {
		if _, ok := m.features[uid]; !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, uid)
		}
		delete(m.features, uid)
		return nil
	})
}

func (m *memoryBackend) Toggle(ctx context.Context, uid string) error {
	_, err := m.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.Toggled(), nil
	})
	return err
}

// UpdateFeature performs get, transform, uid-check, store under a single
// lock acquisition. Releasing between the read and the write would let two
// concurrent transforms interleave and lose an update.
func (m *memoryBackend) UpdateFeature(ctx context.Context, uid string, transform Transform) (*feature.Feature, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (*feature.Feature, error) {
		current, ok := m.features[uid]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, uid)
		}
		next, err := transform(current)
		if err != nil {
			return nil, err
		}
		if next == nil || next.Uid() != uid {
			return nil, fmt.Errorf("%w: %q", ErrUidMismatch, uid)
		}
		m.features[uid] = next
		return next, nil
	})
}

// GetAll returns a copy taken under the lock, so callers never observe the
// store being mutated underneath an iteration.
func (m *memoryBackend) GetAll(ctx context.Context) (map[string]*feature.Feature, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (map[string]*feature.Feature, error) {
		snapshot := make(map[string]*feature.Feature, len(m.features))
		for uid, f := range m.features {
			snapshot[uid] = f
		}
		return snapshot, nil
	})
}

func (m *memoryBackend) Clear(ctx context.Context) error {
	return m.mu.Do(ctx, func(context.Context) error {
		m.features = make(map[string]*feature.Feature)
		return nil
	})
}

func (m *memoryBackend) Count(ctx context.Context) (int, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (int, error) {
		return len(m.features), nil
	})
}

func (m *memoryBackend) IsEmpty(ctx context.Context) (bool, error) {
	n, err := m.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
