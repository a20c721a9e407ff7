// Package engine provides the evaluation and mutation facade: the single
// entry point combining a feature store, an optional property store, and the
// auto-create policy into check/enable/disable/group operations.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/featflip/featflip/internal/evalctx"
	"github.com/featflip/featflip/internal/feature"
	"github.com/featflip/featflip/internal/reentrant"
	"github.com/featflip/featflip/internal/store"
)

// Engine evaluates and mutates features through its stores. With auto-create
// on, a missing feature is materialized as disabled-by-default on first
// access instead of erroring.
type Engine struct {
	features   store.FeatureStore
	properties store.PropertyStore
	autoCreate bool

	// mu serializes lazy creation. It is the facade's own lock, distinct
	// from any lock inside the store, so holding it while calling store
	// operations nests two different locks.
	mu *reentrant.Lock

	log          *slog.Logger
	onCheck      func(result bool)
	onAutoCreate func()
}

// Option configures an engine.
type Option func(*Engine)

// WithAutoCreate enables lazy creation of missing features on first access.
func WithAutoCreate() Option {
	return func(e *Engine) { e.autoCreate = true }
}

// WithPropertyStore attaches an optional property store.
func WithPropertyStore(ps store.PropertyStore) Option {
	return func(e *Engine) { e.properties = ps }
}

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCheckHook registers a callback invoked with every check result, e.g.
// to feed a Prometheus counter.
func WithCheckHook(fn func(result bool)) Option {
	return func(e *Engine) { e.onCheck = fn }
}

// WithAutoCreateHook registers a callback invoked on every lazy creation.
func WithAutoCreateHook(fn func()) Option {
	return func(e *Engine) { e.onAutoCreate = fn }
}

// New creates an engine over the given feature store.
func New(features store.FeatureStore, opts ...Option) *Engine {
	e := &Engine{
		features: features,
		mu:       reentrant.New(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Features returns the underlying feature store.
func (e *Engine) Features() store.FeatureStore { return e.features }

// Properties returns the attached property store, nil when none.
func (e *Engine) Properties() store.PropertyStore { return e.properties }

// Exists reports whether uid is stored, without triggering auto-create.
func (e *Engine) Exists(ctx context.Context, uid string) (bool, error) {
	return e.features.Contains(ctx, uid)
}

// Check resolves the feature and reports its effective enablement. A
// disabled feature is off; an enabled feature with no strategy is on; an
// enabled feature with a strategy delegates to it, passing the ambient
// evaluation context from ctx (or an empty one when none is installed).
func (e *Engine) Check(ctx context.Context, uid string) (bool, error) {
	return e.check(ctx, uid, nil)
}

// CheckWith is Check with an explicit evaluation context, which takes
// precedence over the ambient one.
func (e *Engine) CheckWith(ctx context.Context, uid string, ec *evalctx.Context) (bool, error) {
	if ec == nil {
		ec = evalctx.New()
	}
	return e.check(ctx, uid, ec)
}

func (e *Engine) check(ctx context.Context, uid string, explicit *evalctx.Context) (bool, error) {
	f, created, err := e.resolve(ctx, uid)
	if err != nil {
		return false, err
	}
	if created {
		// A lazily created feature is disabled by definition; do not re-run
		// the evaluation against it.
		return e.record(false), nil
	}

	if !f.IsEnabled() {
		return e.record(false), nil
	}
	strategy := f.Strategy()
	if strategy == nil {
		return e.record(true), nil
	}

	ec := explicit
	if ec == nil {
		if ambient, ok := evalctx.From(ctx); ok {
			ec = ambient
		} else {
			ec = evalctx.New()
		}
	}

	on, err := strategy.Evaluate(ctx, uid, e.features, ec)
	if err != nil {
		return false, fmt.Errorf("evaluate strategy %q for feature %q: %w", strategy.Tag(), uid, err)
	}
	return e.record(on), nil
}

// Enable turns the feature on, lazily creating it first when auto-create is
// enabled.
func (e *Engine) Enable(ctx context.Context, uid string) error {
	if _, _, err := e.resolve(ctx, uid); err != nil {
		return err
	}
	return e.features.Enable(ctx, uid)
}

// Disable turns the feature off, lazily creating it first when auto-create
// is enabled.
func (e *Engine) Disable(ctx context.Context, uid string) error {
	if _, _, err := e.resolve(ctx, uid); err != nil {
		return err
	}
	return e.features.Disable(ctx, uid)
}

// Toggle flips the feature, lazily creating it first when auto-create is
// enabled.
func (e *Engine) Toggle(ctx context.Context, uid string) error {
	if _, _, err := e.resolve(ctx, uid); err != nil {
		return err
	}
	return e.features.Toggle(ctx, uid)
}

// EnableGroup enables every current member of the group.
func (e *Engine) EnableGroup(ctx context.Context, group string) error {
	return e.features.EnableGroup(ctx, group)
}

// DisableGroup disables every current member of the group.
func (e *Engine) DisableGroup(ctx context.Context, group string) error {
	return e.features.DisableGroup(ctx, group)
}

// resolve returns the feature for uid. When the feature is missing and
// auto-create is off it fails with store.ErrNotFound. When auto-create is
// on, resolve takes the facade lock and re-checks existence under it: if
// another task created the feature while this one waited, the existing
// feature is returned for the caller to re-run its operation against;
// otherwise a default disabled feature is inserted and returned with
// created set. The double check means two callers racing on the same
// missing uid never surface an ErrAlreadyExists.
func (e *Engine) resolve(ctx context.Context, uid string) (f *feature.Feature, created bool, err error) {
	f, err = e.features.Get(ctx, uid)
	if err != nil {
		return nil, false, err
	}
	if f != nil {
		return f, false, nil
	}

	if !e.autoCreate {
		return nil, false, fmt.Errorf("%w: %q", store.ErrNotFound, uid)
	}

	f, err = reentrant.DoValue(ctx, e.mu, func(ctx context.Context) (*feature.Feature, error) {
		again, err := e.features.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		if again != nil {
			return again, nil
		}

		fresh, err := feature.New(uid)
		if err != nil {
			return nil, err
		}
		if err := e.features.Create(ctx, fresh); err != nil {
			return nil, err
		}
		created = true
		e.log.DebugContext(ctx, "feature auto-created", "uid", uid)
		if e.onAutoCreate != nil {
			e.onAutoCreate()
		}
		return fresh, nil
	})
	return f, created, err
}

func (e *Engine) record(result bool) bool {
	if e.onCheck != nil {
		e.onCheck(result)
	}
	return result
}
