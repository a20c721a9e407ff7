// Package feature defines the feature toggle value object, its typed custom
// properties, and the flipping strategy contract.
//
// A [Feature] is immutable: every mutator returns a new copy and the maps it
// exposes are defensive copies, so callers only ever hold snapshots. The
// store layer is the single place where identity (uid to current value) is
// tracked.
package feature

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrBlankUid is returned when a feature is constructed with a blank uid.
	ErrBlankUid = errors.New("feature uid must not be blank")

	// ErrBlankGroup is returned when a blank group name is supplied.
	ErrBlankGroup = errors.New("group name must not be blank")
)

// Feature is a named boolean toggle with metadata: an optional group for
// bulk operations, a permission set (stored, never enforced here), typed
// custom properties, and an optional flipping strategy consulted during
// evaluation.
type Feature struct {
	uid         string
	enabled     bool
	description string
	group       string
	permissions map[string]struct{}
	strategy    Strategy
	properties  map[string]Property
}

// Option configures a feature under construction.
type Option func(*Feature) error

// WithDescription sets the feature description.
func WithDescription(description string) Option {
	return func(f *Feature) error {
		f.description = description
		return nil
	}
}

// Enabled constructs the feature in the enabled state.
func Enabled() Option {
	return func(f *Feature) error {
		f.enabled = true
		return nil
	}
}

// InGroup places the feature in the named group.
func InGroup(group string) Option {
	return func(f *Feature) error {
		if strings.TrimSpace(group) == "" {
			return ErrBlankGroup
		}
		f.group = group
		return nil
	}
}

// WithPermissions grants the given roles.
func WithPermissions(roles ...string) Option {
	return func(f *Feature) error {
		for _, role := range roles {
			f.permissions[role] = struct{}{}
		}
		return nil
	}
}

// WithStrategy attaches a flipping strategy.
func WithStrategy(s Strategy) Option {
	return func(f *Feature) error {
		f.strategy = s
		return nil
	}
}

// WithProperties adds custom properties, keyed by name.
func WithProperties(props ...Property) Option {
	return func(f *Feature) error {
		for _, p := range props {
			f.properties[p.Name()] = p
		}
		return nil
	}
}

// New constructs a feature. The uid must be non-blank; features start
// disabled unless [Enabled] is given.
func New(uid string, opts ...Option) (*Feature, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, ErrBlankUid
	}
	f := &Feature{
		uid:         uid,
		permissions: make(map[string]struct{}),
		properties:  make(map[string]Property),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("feature %q: %w", uid, err)
		}
	}
	return f, nil
}

// Uid returns the feature's unique identifier.
func (f *Feature) Uid() string { return f.uid }

// IsEnabled reports whether the toggle is on.
func (f *Feature) IsEnabled() bool { return f.enabled }

// Description returns the optional description.
func (f *Feature) Description() string { return f.description }

// Group returns the group name, empty when the feature is ungrouped.
func (f *Feature) Group() string { return f.group }

// HasGroup reports whether the feature belongs to a group.
func (f *Feature) HasGroup() bool { return f.group != "" }

// Strategy returns the attached flipping strategy, nil when none.
func (f *Feature) Strategy() Strategy { return f.strategy }

// Permissions returns the granted roles as a sorted copy.
func (f *Feature) Permissions() []string {
	roles := make([]string, 0, len(f.permissions))
	for role := range f.permissions {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// HasPermission reports whether role has been granted.
func (f *Feature) HasPermission(role string) bool {
	_, ok := f.permissions[role]
	return ok
}

// Property returns the named custom property.
func (f *Feature) Property(name string) (Property, bool) {
	p, ok := f.properties[name]
	return p, ok
}

// Properties returns a copy of the custom property map.
func (f *Feature) Properties() map[string]Property {
	out := make(map[string]Property, len(f.properties))
	for name, p := range f.properties {
		out[name] = p
	}
	return out
}

func (f *Feature) clone() *Feature {
	next := &Feature{
		uid:         f.uid,
		enabled:     f.enabled,
		description: f.description,
		group:       f.group,
		strategy:    f.strategy,
		permissions: make(map[string]struct{}, len(f.permissions)),
		properties:  make(map[string]Property, len(f.properties)),
	}
	for role := range f.permissions {
		next.permissions[role] = struct{}{}
	}
	for name, p := range f.properties {
		next.properties[name] = p
	}
	return next
}

// WithEnabled returns a copy with the given enablement state.
func (f *Feature) WithEnabled(enabled bool) *Feature {
	next := f.clone()
	next.enabled = enabled
	return next
}

// Toggled returns a copy with the enablement state flipped.
func (f *Feature) Toggled() *Feature {
	return f.WithEnabled(!f.enabled)
}

// WithDescription returns a copy with the given description.
func (f *Feature) WithDescription(description string) *Feature {
	next := f.clone()
	next.description = description
	return next
}

// WithGroup returns a copy placed in the named group. Moving to a new group
// silently vacates the prior one.
func (f *Feature) WithGroup(group string) (*Feature, error) {
	if strings.TrimSpace(group) == "" {
		return nil, ErrBlankGroup
	}
	next := f.clone()
	next.group = group
	return next, nil
}

// WithoutGroup returns a copy removed from its group.
func (f *Feature) WithoutGroup() *Feature {
	next := f.clone()
	next.group = ""
	return next
}

// WithPermission returns a copy with role granted. Granting an already held
// role is a no-op copy.
func (f *Feature) WithPermission(role string) *Feature {
	next := f.clone()
	next.permissions[role] = struct{}{}
	return next
}

// WithoutPermission returns a copy with role revoked. Revoking an absent
// role is a no-op copy.
func (f *Feature) WithoutPermission(role string) *Feature {
	next := f.clone()
	delete(next.permissions, role)
	return next
}

// WithStrategy returns a copy with the given strategy attached; nil detaches.
func (f *Feature) WithStrategy(s Strategy) *Feature {
	next := f.clone()
	next.strategy = s
	return next
}

// WithProperty returns a copy with the property stored under its name.
func (f *Feature) WithProperty(p Property) *Feature {
	next := f.clone()
	next.properties[p.Name()] = p
	return next
}

// WithoutProperty returns a copy with the named property removed.
func (f *Feature) WithoutProperty(name string) *Feature {
	next := f.clone()
	delete(next.properties, name)
	return next
}
