//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/docker/go-connections/nat"

	"github.com/featflip/featflip/internal/feature"
	"github.com/featflip/featflip/internal/store"
	"github.com/featflip/featflip/internal/store/postgres"
	"github.com/featflip/featflip/migrations"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "featflip_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgresql://test:test@%s:%s/featflip_test?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(30 * time.Second),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Printf("start postgres container: %v", err)
		return 1
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Printf("container host: %v", err)
		return 1
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Printf("container port: %v", err)
		return 1
	}

	dsn := fmt.Sprintf("postgresql://test:test@%s:%s/featflip_test?sslmode=disable", host, port.Port())
	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		log.Printf("connect pool: %v", err)
		return 1
	}
	defer testPool.Close()

	if err := applyMigrations(testPool); err != nil {
		log.Printf("apply migrations: %v", err)
		return 1
	}

	return m.Run()
}

func applyMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.Up(db, ".")
}

func freshStore(t *testing.T) store.FeatureStore {
	t.Helper()
	fs := postgres.New(testPool)
	if err := fs.Clear(t.Context()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	return fs
}

func mustFeature(t *testing.T, uid string, opts ...feature.Option) *feature.Feature {
	t.Helper()
	f, err := feature.New(uid, opts...)
	if err != nil {
		t.Fatalf("feature.New(%q) error = %v", uid, err)
	}
	return f
}

func TestPostgresCRUD(t *testing.T) {
	fs := freshStore(t)
	ctx := t.Context()

	f := mustFeature(t, "crud", feature.WithDescription("roundtrip"), feature.Enabled())
	if err := fs.Create(ctx, f); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := fs.Create(ctx, f); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}

	got, err := fs.Require(ctx, "crud")
	if err != nil {
		t.Fatalf("Require() error = %v", err)
	}
	if !got.IsEnabled() || got.Description() != "roundtrip" {
		t.Fatalf("stored feature = enabled %v desc %q, want enabled true desc roundtrip", got.IsEnabled(), got.Description())
	}

	ok, err := fs.Contains(ctx, "crud")
	if err != nil || !ok {
		t.Fatalf("Contains() = %v, %v; want true, nil", ok, err)
	}

	if err := fs.Update(ctx, got.WithDescription("changed")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = fs.Get(ctx, "crud")
	if got.Description() != "changed" {
		t.Fatalf("Description() = %q after update, want changed", got.Description())
	}

	if err := fs.Delete(ctx, "crud"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := fs.Delete(ctx, "crud"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
	missing, err := fs.Get(ctx, "crud")
	if err != nil || missing != nil {
		t.Fatalf("Get() after delete = %v, %v; want nil, nil", missing, err)
	}
}

func TestPostgresUpdateFeature(t *testing.T) {
	fs := freshStore(t)
	ctx := t.Context()

	if err := fs.Create(ctx, mustFeature(t, "atomic")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	next, err := fs.UpdateFeature(ctx, "atomic", func(f *feature.Feature) (*feature.Feature, error) {
		return f.WithEnabled(true), nil
	})
	if err != nil {
		t.Fatalf("UpdateFeature() error = %v", err)
	}
	if !next.IsEnabled() {
		t.Fatal("transform result should be enabled")
	}

	if _, err := fs.UpdateFeature(ctx, "ghost", func(f *feature.Feature) (*feature.Feature, error) {
		return f, nil
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateFeature(ghost) error = %v, want ErrNotFound", err)
	}

	sentinel := errors.New("transform rejected")
	if _, err := fs.UpdateFeature(ctx, "atomic", func(*feature.Feature) (*feature.Feature, error) {
		return nil, sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("UpdateFeature() error = %v, want sentinel", err)
	}

	// The failed transform must not have altered the row.
	got, _ := fs.Get(ctx, "atomic")
	if !got.IsEnabled() {
		t.Fatal("failed transform should leave the row untouched")
	}
}

func TestPostgresConcurrentTransforms(t *testing.T) {
	fs := freshStore(t)
	ctx := t.Context()

	f := mustFeature(t, "counter", feature.WithProperties(mustIntProperty(t, "hits", 0)))
	if err := fs.Create(ctx, f); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const workers = 16
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := fs.UpdateFeature(ctx, "counter", func(f *feature.Feature) (*feature.Feature, error) {
				p, _ := f.Property("hits")
				n, err := p.IntValue()
				if err != nil {
					return nil, err
				}
				updated, err := p.WithValue(n + 1)
				if err != nil {
					return nil, err
				}
				return f.WithProperty(updated), nil
			})
			errCh <- err
		}()
	}
	for i := 0; i < workers; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent UpdateFeature() error = %v", err)
		}
	}

	got, _ := fs.Get(ctx, "counter")
	p, _ := got.Property("hits")
	n, err := p.IntValue()
	if err != nil {
		t.Fatalf("IntValue() error = %v", err)
	}
	if n != workers {
		t.Fatalf("hits = %d after %d concurrent increments, want %d", n, workers, workers)
	}
}

func mustIntProperty(t *testing.T, name string, value int) feature.Property {
	t.Helper()
	p, err := feature.NewIntProperty(name, value)
	if err != nil {
		t.Fatalf("NewIntProperty(%q) error = %v", name, err)
	}
	return p
}

func TestPostgresGroupOps(t *testing.T) {
	fs := freshStore(t)
	ctx := t.Context()

	for _, uid := range []string{"m1", "m2", "solo"} {
		if err := fs.Create(ctx, mustFeature(t, uid)); err != nil {
			t.Fatalf("Create(%q) error = %v", uid, err)
		}
	}
	for _, uid := range []string{"m1", "m2"} {
		if err := fs.AddToGroup(ctx, uid, "beta"); err != nil {
			t.Fatalf("AddToGroup(%q) error = %v", uid, err)
		}
	}

	members, err := fs.GetGroup(ctx, "beta")
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("group size = %d, want 2", len(members))
	}

	if err := fs.EnableGroup(ctx, "beta"); err != nil {
		t.Fatalf("EnableGroup() error = %v", err)
	}
	for uid := range members {
		got, _ := fs.Get(ctx, uid)
		if !got.IsEnabled() {
			t.Fatalf("member %q not enabled after EnableGroup", uid)
		}
	}
	solo, _ := fs.Get(ctx, "solo")
	if solo.IsEnabled() {
		t.Fatal("non-member enabled by EnableGroup")
	}

	groups, err := fs.GetAllGroups(ctx)
	if err != nil {
		t.Fatalf("GetAllGroups() error = %v", err)
	}
	if len(groups) != 1 || groups[0] != "beta" {
		t.Fatalf("groups = %v, want [beta]", groups)
	}
}

func TestPostgresEvents(t *testing.T) {
	backend := postgres.NewBackend(testPool)
	fs := postgres.New(testPool)
	ctx := t.Context()
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	since := time.Now()
	time.Sleep(10 * time.Millisecond)

	if err := fs.Create(ctx, mustFeature(t, "audited")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := fs.Toggle(ctx, "audited"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if err := fs.Delete(ctx, "audited"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	events, err := backend.ListEventsSince(ctx, since)
	if err != nil {
		t.Fatalf("ListEventsSince() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	wantTypes := []string{"created", "updated", "deleted"}
	for i, e := range events {
		if e.Uid != "audited" {
			t.Fatalf("event %d uid = %q, want audited", i, e.Uid)
		}
		if e.EventType != wantTypes[i] {
			t.Fatalf("event %d type = %q, want %q", i, e.EventType, wantTypes[i])
		}
	}
}
