package evalctx

import "context"

type ambientKey struct{}

// With returns a context whose ambient evaluation context is exactly ec,
// replacing any previously installed one. The prior ambient context remains
// visible to callers holding the parent ctx, so restoration on scope exit is
// structural: it happens whether the block completes normally or fails.
func With(ctx context.Context, ec *Context) context.Context {
	return context.WithValue(ctx, ambientKey{}, ec.Clone())
}

// Merge returns a context whose ambient evaluation context is the current
// ambient one overlaid with ec's entries (ec wins on conflict). When no
// ambient context is installed this behaves like [With].
func Merge(ctx context.Context, ec *Context) context.Context {
	current, ok := From(ctx)
	if !ok {
		return With(ctx, ec)
	}
	return context.WithValue(ctx, ambientKey{}, current.MergedWith(ec))
}

// From returns the ambient evaluation context installed on ctx, if any. The
// returned context is a copy; mutating it does not affect the ambient one.
func From(ctx context.Context) (*Context, bool) {
	ec, ok := ctx.Value(ambientKey{}).(*Context)
	if !ok {
		return nil, false
	}
	return ec.Clone(), true
}
