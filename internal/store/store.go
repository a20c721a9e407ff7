// Package store defines the feature store contract every storage backend
// must satisfy, the derivation layer that builds the full contract out of a
// small set of storage primitives, and the in-memory reference backend.
//
// All operations are atomic single-feature or whole-group transformations.
// Backends never expose their internal state by reference: every read
// returns a snapshot, so external mutation cannot bypass the backend's
// locking.
package store

import (
	"context"
	"errors"

	"github.com/featflip/featflip/internal/feature"
)

var (
	// ErrNotFound is returned when a required feature is absent. Callers can
	// recover by check-then-act or by enabling auto-create at the engine.
	ErrNotFound = errors.New("feature not found")

	// ErrAlreadyExists is returned by Create when the uid is already taken.
	ErrAlreadyExists = errors.New("feature already exists")

	// ErrGroupNotFound is returned by RemoveFromGroup when the feature's
	// current group does not match the named group. It is distinct from
	// ErrNotFound: the feature exists, the group association does not.
	ErrGroupNotFound = errors.New("feature group not found")

	// ErrUidMismatch is returned when an UpdateFeature transform replaces a
	// feature's uid. This is a programming-contract violation, never a
	// recoverable condition.
	ErrUidMismatch = errors.New("transform must not change the feature uid")

	// ErrBlankRole is returned when a permission operation names a blank role.
	ErrBlankRole = errors.New("role must not be blank")
)

// Transform maps a current feature value to its replacement inside an atomic
// read-modify-write. It receives an immutable snapshot and must return a new
// value with the same uid.
type Transform func(f *feature.Feature) (*feature.Feature, error)

// Backend is the primitive storage contract. Implementations supply atomic
// single-feature storage; everything else on [FeatureStore] is derived from
// UpdateFeature and GetAll by [Derive].
type Backend interface {
	// Get returns the feature snapshot for uid, or nil without error when
	// absent.
	Get(ctx context.Context, uid string) (*feature.Feature, error)

	// Require returns the feature snapshot for uid, or ErrNotFound.
	Require(ctx context.Context, uid string) (*feature.Feature, error)

	// Contains reports whether uid is stored.
	Contains(ctx context.Context, uid string) (bool, error)

	// Create stores a new feature; ErrAlreadyExists when the uid is taken.
	Create(ctx context.Context, f *feature.Feature) error

	// CreateOrUpdate upserts; it never fails on existence.
	CreateOrUpdate(ctx context.Context, f *feature.Feature) error

	// Update replaces an existing feature; ErrNotFound when absent.
	Update(ctx context.Context, f *feature.Feature) error

	// Delete removes a feature; ErrNotFound when absent.
	Delete(ctx context.Context, uid string) error

	// Toggle flips the enablement state; ErrNotFound when absent.
	Toggle(ctx context.Context, uid string) error

	// UpdateFeature atomically reads uid, applies transform, and stores the
	// result in one step; no other operation can interleave between the read
	// and the write. ErrNotFound when absent; ErrUidMismatch when the
	// transform changes the uid; transform errors propagate unchanged.
	UpdateFeature(ctx context.Context, uid string, transform Transform) (*feature.Feature, error)

	// GetAll returns a snapshot of every stored feature, keyed by uid.
	GetAll(ctx context.Context) (map[string]*feature.Feature, error)

	// Clear drops all features, including all group and permission state.
	Clear(ctx context.Context) error

	// Count returns the number of stored features.
	Count(ctx context.Context) (int, error)

	// IsEmpty reports whether the store holds no features.
	IsEmpty(ctx context.Context) (bool, error)
}

// FeatureStore is the full storage contract: the primitives plus the group,
// permission, and enablement operations derived from them.
type FeatureStore interface {
	Backend

	// Enable turns the feature on; ErrNotFound when absent.
	Enable(ctx context.Context, uid string) error

	// Disable turns the feature off; ErrNotFound when absent.
	Disable(ctx context.Context, uid string) error

	// AddToGroup places the feature in the named group, silently vacating
	// any prior group. ErrNotFound when the feature is absent;
	// feature.ErrBlankGroup on a blank name.
	AddToGroup(ctx context.Context, uid, group string) error

	// RemoveFromGroup removes the feature from the named group.
	// ErrGroupNotFound when the feature's current group differs from group;
	// removal is precondition-checked, not a blind clear.
	RemoveFromGroup(ctx context.Context, uid, group string) error

	// GetGroup returns the features whose group equals the name. An empty
	// map, never an error, when the group has no members.
	GetGroup(ctx context.Context, group string) (map[string]*feature.Feature, error)

	// ContainsGroup reports whether at least one feature references group.
	ContainsGroup(ctx context.Context, group string) (bool, error)

	// GetAllGroups returns the names of all groups currently referenced, in
	// sorted order.
	GetAllGroups(ctx context.Context) ([]string, error)

	// EnableGroup enables every current member of group, best-effort: a
	// member deleted mid-operation is silently skipped.
	EnableGroup(ctx context.Context, group string) error

	// DisableGroup disables every current member of group, best-effort.
	DisableGroup(ctx context.Context, group string) error

	// GrantRole adds role to the feature's permission set, idempotently.
	// ErrNotFound when the feature is absent; ErrBlankRole on a blank role.
	GrantRole(ctx context.Context, uid, role string) error

	// RevokeRole removes role from the feature's permission set,
	// idempotently. ErrNotFound when the feature is absent; ErrBlankRole on
	// a blank role.
	RevokeRole(ctx context.Context, uid, role string) error
}
