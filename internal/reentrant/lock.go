// Package reentrant implements a context-aware mutual exclusion lock that a
// call chain may re-acquire without deadlocking.
//
// Composed store operations call back into primitives that take the same
// lock; a plain [sync.Mutex] would self-deadlock there. Instead of tracking
// an owner goroutine, the lock records the set of held lock identities in
// the [context.Context] flowing through the call chain: a nested acquisition
// that already holds the lock runs its critical section immediately, and the
// held marker disappears structurally when the derived context goes out of
// scope.
package reentrant

import "context"

// Lock is a mutual exclusion lock that supports re-entry by a call chain
// already holding it. Two independent call chains still serialize. The zero
// value is not usable; create locks with [New].
type Lock struct {
	sem chan struct{}
}

// New creates an unlocked Lock.
func New() *Lock {
	return &Lock{sem: make(chan struct{}, 1)}
}

// heldKey marks a lock as held on a context. Distinct locks get distinct
// keys because the key embeds the lock's identity, so nesting lock A inside
// lock B keeps both markers independently scoped.
type heldKey struct{ l *Lock }

// Held reports whether the call chain owning ctx currently holds l.
func (l *Lock) Held(ctx context.Context) bool {
	held, _ := ctx.Value(heldKey{l}).(bool)
	return held
}

// Do runs fn while holding the lock. If ctx already holds l, fn runs
// immediately without re-acquiring. Otherwise Do blocks until the lock is
// acquired or ctx is cancelled; on cancellation it returns ctx.Err() without
// running fn. The lock is released on every exit path, including a panic or
// error from fn, so cancelled or failed callers never starve other waiters.
//
// fn receives a derived context that records the holding; it must be used
// for any nested calls that may take the same lock.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.Held(ctx) {
		return fn(ctx)
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	return fn(context.WithValue(ctx, heldKey{l}, true))
}

// DoValue runs fn under l like [Lock.Do] and passes through its result.
func DoValue[T any](ctx context.Context, l *Lock, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func(ctx context.Context) error {
		var fnErr error
		out, fnErr = fn(ctx)
		return fnErr
	})
	return out, err
}
