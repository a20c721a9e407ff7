package store

import (
	"context"
	"time"

	"github.com/featflip/featflip/internal/feature"
)

// ObserveFunc records the duration of one store operation.
type ObserveFunc func(op string, d time.Duration)

// Instrument wraps a feature store so every operation reports its duration
// through observe, typically into a Prometheus histogram.
func Instrument(fs FeatureStore, observe ObserveFunc) FeatureStore {
	if observe == nil {
		return fs
	}
	return &instrumented{next: fs, observe: observe}
}

type instrumented struct {
	next    FeatureStore
	observe ObserveFunc
}

func (s *instrumented) timed(op string) func() {
	start := time.Now()
	return func() { s.observe(op, time.Since(start)) }
}

func (s *instrumented) Get(ctx context.Context, uid string) (*feature.Feature, error) {
	defer s.timed("get")()
	return s.next.Get(ctx, uid)
}

func (s *instrumented) Require(ctx context.Context, uid string) (*feature.Feature, error) {
	defer s.timed("require")()
	return s.next.Require(ctx, uid)
}

func (s *instrumented) Contains(ctx context.Context, uid string) (bool, error) {
	defer s.timed("contains")()
	return s.next.Contains(ctx, uid)
}

func (s *instrumented) Create(ctx context.Context, f *feature.Feature) error {
	defer s.timed("create")()
	return s.next.Create(ctx, f)
}

func (s *instrumented) CreateOrUpdate(ctx context.Context, f *feature.Feature) error {
	defer s.timed("create_or_update")()
	return s.next.CreateOrUpdate(ctx, f)
}

func (s *instrumented) Update(ctx context.Context, f *feature.Feature) error {
	defer s.timed("update")()
	return s.next.Update(ctx, f)
}

func (s *instrumented) Delete(ctx context.Context, uid string) error {
	defer s.timed("delete")()
	return s.next.Delete(ctx, uid)
}

func (s *instrumented) Toggle(ctx context.Context, uid string) error {
	defer s.timed("toggle")()
	return s.next.Toggle(ctx, uid)
}

func (s *instrumented) UpdateFeature(ctx context.Context, uid string, transform Transform) (*feature.Feature, error) {
	defer s.timed("update_feature")()
	return s.next.UpdateFeature(ctx, uid, transform)
}

func (s *instrumented) GetAll(ctx context.Context) (map[string]*feature.Feature, error) {
	defer s.timed("get_all")()
	return s.next.GetAll(ctx)
}

func (s *instrumented) Clear(ctx context.Context) error {
	defer s.timed("clear")()
	return s.next.Clear(ctx)
}

func (s *instrumented) Count(ctx context.Context) (int, error) {
	defer s.timed("count")()
	return s.next.Count(ctx)
}

func (s *instrumented) IsEmpty(ctx context.Context) (bool, error) {
	defer s.timed("is_empty")()
	return s.next.IsEmpty(ctx)
}

func (s *instrumented) Enable(ctx context.Context, uid string) error {
	defer s.timed("enable")()
	return s.next.Enable(ctx, uid)
}

func (s *instrumented) Disable(ctx context.Context, uid string) error {
	defer s.timed("disable")()
	return s.next.Disable(ctx, uid)
}

func (s *instrumented) AddToGroup(ctx context.Context, uid, group string) error {
	defer s.timed("add_to_group")()
	return s.next.AddToGroup(ctx, uid, group)
}

func (s *instrumented) RemoveFromGroup(ctx context.Context, uid, group string) error {
	defer s.timed("remove_from_group")()
	return s.next.RemoveFromGroup(ctx, uid, group)
}

func (s *instrumented) GetGroup(ctx context.Context, group string) (map[string]*feature.Feature, error) {
	defer s.timed("get_group")()
	return s.next.GetGroup(ctx, group)
}

func (s *instrumented) ContainsGroup(ctx context.Context, group string) (bool, error) {
	defer s.timed("contains_group")()
	return s.next.ContainsGroup(ctx, group)
}

func (s *instrumented) GetAllGroups(ctx context.Context) ([]string, error) {
	defer s.timed("get_all_groups")()
	return s.next.GetAllGroups(ctx)
}

func (s *instrumented) EnableGroup(ctx context.Context, group string) error {
	defer s.timed("enable_group")()
	return s.next.EnableGroup(ctx, group)
}

func (s *instrumented) DisableGroup(ctx context.Context, group string) error {
	defer s.timed("disable_group")()
	return s.next.DisableGroup(ctx, group)
}

func (s *instrumented) GrantRole(ctx context.Context, uid, role string) error {
	defer s.timed("grant_role")()
	return s.next.GrantRole(ctx, uid, role)
}

func (s *instrumented) RevokeRole(ctx context.Context, uid, role string) error {
	defer s.timed("revoke_role")()
	return s.next.RevokeRole(ctx, uid, role)
}
