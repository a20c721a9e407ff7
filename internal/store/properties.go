package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/featflip/featflip/internal/feature"
	"github.com/featflip/featflip/internal/reentrant"
)

var (
	// ErrPropertyNotFound is returned when a required property is absent.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPropertyExists is returned by PropertyStore.Create on a taken name.
	ErrPropertyExists = errors.New("property already exists")
)

// PropertyStore holds shared configuration properties consulted alongside
// features. It is a boundary collaborator of the engine: stored and queried
// here, interpreted elsewhere.
type PropertyStore interface {
	Get(ctx context.Context, name string) (feature.Property, bool, error)
	Require(ctx context.Context, name string) (feature.Property, error)
	Contains(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, p feature.Property) error
	Update(ctx context.Context, p feature.Property) error
	Delete(ctx context.Context, name string) error
	GetAll(ctx context.Context) (map[string]feature.Property, error)
	Clear(ctx context.Context) error
}

type memoryPropertyStore struct {
	mu         *reentrant.Lock
	properties map[string]feature.Property
}

// NewInMemoryProperties creates an empty in-memory property store.
func NewInMemoryProperties() PropertyStore {
	return &memoryPropertyStore{
		mu:         reentrant.New(),
		properties: make(map[string]feature.Property),
	}
}

func (m *memoryPropertyStore) Get(ctx context.Context, name string) (feature.Property, bool, error) {
	var found bool
	p, err := reentrant.DoValue(ctx, m.mu, func(context.Context) (feature.Property, error) {
		p, ok := m.properties[name]
		found = ok
		return p, nil
	})
	return p, found, err
}

func (m *memoryPropertyStore) Require(ctx context.Context, name string) (feature.Property, error) {
	p, ok, err := m.Get(ctx, name)
	if err != nil {
		return feature.Property{}, err
	}
	if !ok {
		return feature.Property{}, fmt.Errorf("%w: %q", ErrPropertyNotFound, name)
	}
	return p, nil
}

func (m *memoryPropertyStore) Contains(ctx context.Context, name string) (bool, error) {
	_, ok, err := m.Get(ctx, name)
	return ok, err
}

func (m *memoryPropertyStore) Create(ctx context.Context, p feature.Property) error {
	return m.mu.Do(ctx, func(context.Context) error {
		if _, ok := m.properties[p.Name()]; ok {
			return fmt.Errorf("%w: %q", ErrPropertyExists, p.Name())
		}
		m.properties[p.Name()] = p
		return nil
	})
}

func (m *memoryPropertyStore) Update(ctx context.Context, p feature.Property) error {
	return m.mu.Do(ctx, func(context.Context) error {
		if _, ok := m.properties[p.Name()]; !ok {
			return fmt.Errorf("%w: %q", ErrPropertyNotFound, p.Name())
		}
		m.properties[p.Name()] = p
		return nil
	})
}

func (m *memoryPropertyStore) Delete(ctx context.Context, name string) error {
	return m.mu.Do(ctx, func(context.Context) error {
		if _, ok := m.properties[name]; !ok {
			return fmt.Errorf("%w: %q", ErrPropertyNotFound, name)
		}
		delete(m.properties, name)
		return nil
	})
}

func (m *memoryPropertyStore) GetAll(ctx context.Context) (map[string]feature.Property, error) {
	return reentrant.DoValue(ctx, m.mu, func(context.Context) (map[string]feature.Property, error) {
		snapshot := make(map[string]feature.Property, len(m.properties))
		for name, p := range m.properties {
			snapshot[name] = p
		}
		return snapshot, nil
	})
}

func (m *memoryPropertyStore) Clear(ctx context.Context) error {
	return m.mu.Do(ctx, func(context.Context) error {
		m.properties = make(map[string]feature.Property)
		return nil
	})
}
