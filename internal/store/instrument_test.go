package store

import (
	"errors"
	"testing"
	"time"

	"github.com/featflip/featflip/internal/feature"
)

func TestInstrumentObservesOps(t *testing.T) {
	observed := make(map[string]int)
	fs := Instrument(NewInMemory(), func(op string, _ time.Duration) {
		observed[op]++
	})

	ctx := t.Context()
	f, err := feature.New("timed")
	if err != nil {
		t.Fatalf("feature.New() error = %v", err)
	}
	if err := fs.Create(ctx, f); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := fs.Enable(ctx, "timed"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if _, err := fs.Get(ctx, "timed"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := fs.UpdateFeature(ctx, "timed", func(f *feature.Feature) (*feature.Feature, error) {
		return f.Toggled(), nil
	}); err != nil {
		t.Fatalf("UpdateFeature() error = %v", err)
	}

	for _, op := range []string{"create", "enable", "get", "update_feature"} {
		if observed[op] == 0 {
			t.Errorf("op %q never observed", op)
		}
	}
}

func TestInstrumentPreservesErrors(t *testing.T) {
	fs := Instrument(NewInMemory(), func(string, time.Duration) {})

	if _, err := fs.Require(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Require() error = %v, want ErrNotFound", err)
	}
}

func TestInstrumentNilObserver(t *testing.T) {
	base := NewInMemory()
	if got := Instrument(base, nil); got != base {
		t.Fatal("nil observer should return the store unchanged")
	}
}
