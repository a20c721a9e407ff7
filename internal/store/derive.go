package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/featflip/featflip/internal/feature"
)

// Derive builds the full [FeatureStore] contract on top of a backend's
// storage primitives. Every enablement, group, and permission operation is
// expressed through UpdateFeature and GetAll, so a backend only implements
// atomic single-feature storage.
func Derive(b Backend) FeatureStore {
	return &derived{Backend: b}
}

type derived struct {
	Backend
}

func (d *derived) Enable(ctx context.Context, uid string) error {
	_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.WithEnabled(true), nil
	})
	return err
}

func (d *derived) Disable(ctx context.Context, uid string) error {
	_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.WithEnabled(false), nil
	})
	return err
}

func (d *derived) AddToGroup(ctx context.Context, uid, group string) error {
	if strings.TrimSpace(group) == "" {
		return feature.ErrBlankGroup
	}
	_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.WithGroup(group)
	})
	return err
}

func (d *derived) RemoveFromGroup(ctx context.Context, uid, group string) error {
	if strings.TrimSpace(group) == "" {
		return feature.ErrBlankGroup
	}
	_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		if f.Group() != group {
			return nil, fmt.Errorf("%w: feature %q is not in group %q", ErrGroupNotFound, uid, group)
		}
		return f.WithoutGroup(), nil
	})
	return err
}

func (d *derived) GetGroup(ctx context.Context, group string) (map[string]*feature.Feature, error) {
	all, err := d.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	members := make(map[string]*feature.Feature)
	for uid, f := range all {
		if f.Group() == group {
			members[uid] = f
		}
	}
	return members, nil
}

func (d *derived) ContainsGroup(ctx context.Context, group string) (bool, error) {
	members, err := d.GetGroup(ctx, group)
	if err != nil {
		return false, err
	}
	return len(members) > 0, nil
}

func (d *derived) GetAllGroups(ctx context.Context) ([]string, error) {
	all, err := d.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, f := range all {
		if f.HasGroup() {
			seen[f.Group()] = struct{}{}
		}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups, nil
}

func (d *derived) EnableGroup(ctx context.Context, group string) error {
	return d.setGroupEnabled(ctx, group, true)
}

func (d *derived) DisableGroup(ctx context.Context, group string) error {
	return d.setGroupEnabled(ctx, group, false)
}

// setGroupEnabled iterates a snapshot of the group's members and flips each
// one through UpdateFeature. Group membership is re-checked inside the
// transform: a feature that moved groups between the snapshot read and the
// transform's application is left untouched. A member deleted mid-iteration
// raises ErrNotFound for that member only, which is swallowed as a benign
// race; every other error propagates.
func (d *derived) setGroupEnabled(ctx context.Context, group string, enabled bool) error {
	members, err := d.GetGroup(ctx, group)
	if err != nil {
		return err
	}
	for uid := range members {
		_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
			if f.Group() != group {
				return f, nil
			}
			return f.WithEnabled(enabled), nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (d *derived) GrantRole(ctx context.Context, uid, role string) error {
	if strings.TrimSpace(role) == "" {
		return ErrBlankRole
	}
	_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.WithPermission(role), nil
	})
	return err
}

func (d *derived) RevokeRole(ctx context.Context, uid, role string) error {
	if strings.TrimSpace(role) == "" {
		return ErrBlankRole
	}
	_, err := d.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.WithoutPermission(role), nil
	})
	return err
}
