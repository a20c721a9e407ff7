package evalctx

import (
	"context"
	"errors"
	"testing"
)

func TestTypedReads(t *testing.T) {
	c := New().
		Put("user", "alice").
		Put("age", 42).
		Put("beta", true).
		Put("ratio", 0.25)

	got, err := c.String("user")
	if err != nil {
		t.Fatalf("String(user) error = %v", err)
	}
	if got != "alice" {
		t.Fatalf("String(user) = %q, want %q", got, "alice")
	}

	age, err := c.Int("age")
	if err != nil || age != 42 {
		t.Fatalf("Int(age) = %d, %v, want 42, nil", age, err)
	}

	beta, err := c.Bool("beta")
	if err != nil || !beta {
		t.Fatalf("Bool(beta) = %t, %v, want true, nil", beta, err)
	}

	ratio, err := c.Float64("ratio")
	if err != nil || ratio != 0.25 {
		t.Fatalf("Float64(ratio) = %v, %v, want 0.25, nil", ratio, err)
	}
}

func TestTypedReadErrors(t *testing.T) {
	c := New().Put("age", 42)

	if _, err := c.String("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("String(missing) error = %v, want ErrKeyNotFound", err)
	}

	if _, err := c.String("age"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("String(age) error = %v, want ErrTypeMismatch", err)
	}

	// Lookup never errors on absence.
	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) = true, want false")
	}
}

func TestNilContextReads(t *testing.T) {
	var c *Context

	if c.Len() != 0 {
		t.Fatalf("nil Len() = %d, want 0", c.Len())
	}
	if c.Contains("x") {
		t.Fatal("nil Contains(x) = true, want false")
	}
	if _, err := Value[string](c, "x"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("nil Value error = %v, want ErrKeyNotFound", err)
	}
}

func TestMergedWith(t *testing.T) {
	base := New().Put("region", "eu").Put("user", "alice")
	overlay := New().Put("region", "us")

	merged := base.MergedWith(overlay)

	region, err := merged.String("region")
	if err != nil || region != "us" {
		t.Fatalf("merged region = %q, %v, want us, nil", region, err)
	}
	user, err := merged.String("user")
	if err != nil || user != "alice" {
		t.Fatalf("merged user = %q, %v, want alice, nil", user, err)
	}

	// Originals are untouched.
	if region, _ := base.String("region"); region != "eu" {
		t.Fatalf("base region mutated to %q", region)
	}
	if overlay.Contains("user") {
		t.Fatal("overlay gained key user")
	}
}

func TestAmbientScoping(t *testing.T) {
	outer := New().Put("region", "eu").Put("user", "alice")
	inner := New().Put("region", "us")

	ctx := With(context.Background(), outer)

	readRegion := func(ctx context.Context) string {
		ec, ok := From(ctx)
		if !ok {
			t.Fatal("From() = false, want ambient context present")
		}
		region, err := ec.String("region")
		if err != nil {
			t.Fatalf("String(region) error = %v", err)
		}
		return region
	}

	if got := readRegion(ctx); got != "eu" {
		t.Fatalf("outer region = %q, want eu", got)
	}

	// Replace inside a nested scope.
	func(ctx context.Context) {
		ctx = With(ctx, inner)
		if got := readRegion(ctx); got != "us" {
			t.Fatalf("inner region = %q, want us", got)
		}
		ec, _ := From(ctx)
		if ec.Contains("user") {
			t.Fatal("replaced ambient context kept key user")
		}
	}(ctx)

	// The outer scope still sees its own context after the inner block exits.
	if got := readRegion(ctx); got != "eu" {
		t.Fatalf("restored region = %q, want eu", got)
	}
}

func TestAmbientMerge(t *testing.T) {
	ctx := With(context.Background(), New().Put("region", "eu").Put("user", "alice"))
	ctx2 := Merge(ctx, New().Put("region", "us"))

	ec, ok := From(ctx2)
	if !ok {
		t.Fatal("From() = false after Merge")
	}
	if region, _ := ec.String("region"); region != "us" {
		t.Fatalf("merged ambient region = %q, want us", region)
	}
	if user, _ := ec.String("user"); user != "alice" {
		t.Fatalf("merged ambient user = %q, want alice", user)
	}

	// Merge with no ambient installed behaves like With.
	ctx3 := Merge(context.Background(), New().Put("k", 1))
	ec3, ok := From(ctx3)
	if !ok || !ec3.Contains("k") {
		t.Fatalf("Merge on empty ambient: got %v, %t", ec3, ok)
	}
}

func TestFromReturnsCopy(t *testing.T) {
	ctx := With(context.Background(), New().Put("k", "v"))

	ec, _ := From(ctx)
	ec.Put("k", "changed")

	again, _ := From(ctx)
	if got, _ := again.String("k"); got != "v" {
		t.Fatalf("ambient context mutated through copy: k = %q, want v", got)
	}
}
