package feature

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/featflip/featflip/internal/evalctx"
)

func TestAlwaysOn(t *testing.T) {
	s := AlwaysOn{}

	if s.Tag() != AlwaysOnTag {
		t.Fatalf("Tag() = %q, want %q", s.Tag(), AlwaysOnTag)
	}

	on, err := s.Evaluate(context.Background(), "dark-mode", nil, evalctx.New())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !on {
		t.Fatal("Evaluate() = false, want true")
	}
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy(AlwaysOnTag, nil)
	if err != nil {
		t.Fatalf("NewStrategy(always-on) error = %v", err)
	}
	if _, ok := s.(AlwaysOn); !ok {
		t.Fatalf("NewStrategy(always-on) = %T, want AlwaysOn", s)
	}

	if _, err := NewStrategy("percentage", nil); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("NewStrategy(percentage) error = %v, want ErrUnknownStrategy", err)
	}
}

type paramStrategy struct {
	params map[string]string
}

func (s paramStrategy) Tag() string                   { return "param" }
func (s paramStrategy) InitParams() map[string]string { return s.params }
func (s paramStrategy) Evaluate(_ context.Context, _ string, _ StoreReader, ec *evalctx.Context) (bool, error) {
	want := s.params["region"]
	got, err := ec.String("region")
	if err != nil {
		return false, nil
	}
	return got == want, nil
}

func TestRegisterStrategy(t *testing.T) {
	RegisterStrategy("param", func(initParams map[string]string) (Strategy, error) {
		return paramStrategy{params: initParams}, nil
	})

	s, err := NewStrategy("param", map[string]string{"region": "eu"})
	if err != nil {
		t.Fatalf("NewStrategy(param) error = %v", err)
	}

	on, err := s.Evaluate(context.Background(), "f", nil, evalctx.New().Put("region", "eu"))
	if err != nil || !on {
		t.Fatalf("Evaluate(eu) = %t, %v, want true, nil", on, err)
	}
	off, err := s.Evaluate(context.Background(), "f", nil, evalctx.New().Put("region", "us"))
	if err != nil || off {
		t.Fatalf("Evaluate(us) = %t, %v, want false, nil", off, err)
	}
}

func TestFeatureJSONRoundTrip(t *testing.T) {
	RegisterStrategy("param", func(initParams map[string]string) (Strategy, error) {
		return paramStrategy{params: initParams}, nil
	})

	p, _ := NewStringProperty("theme", "dark")
	f, err := New("dark-mode",
		Enabled(),
		WithDescription("dark UI theme"),
		InGroup("ui"),
		WithPermissions("admin", "beta"),
		WithStrategy(paramStrategy{params: map[string]string{"region": "eu"}}),
		WithProperties(p),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	back := new(Feature)
	if err := json.Unmarshal(data, back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if back.Uid() != "dark-mode" || !back.IsEnabled() || back.Group() != "ui" {
		t.Fatalf("round-trip = %q enabled=%t group=%q", back.Uid(), back.IsEnabled(), back.Group())
	}
	if !back.HasPermission("admin") || !back.HasPermission("beta") {
		t.Fatalf("round-trip permissions = %v", back.Permissions())
	}
	if back.Strategy() == nil || back.Strategy().Tag() != "param" {
		t.Fatalf("round-trip strategy = %v", back.Strategy())
	}
	if back.Strategy().InitParams()["region"] != "eu" {
		t.Fatalf("round-trip init params = %v", back.Strategy().InitParams())
	}
	if _, ok := back.Property("theme"); !ok {
		t.Fatal("round-trip lost property theme")
	}
}

func TestFeatureJSONValidates(t *testing.T) {
	f := new(Feature)
	if err := json.Unmarshal([]byte(`{"uid":""}`), f); !errors.Is(err, ErrBlankUid) {
		t.Fatalf("Unmarshal blank uid error = %v, want ErrBlankUid", err)
	}
	if err := json.Unmarshal([]byte(`{"uid":"x","strategy":{"type":"nope"}}`), f); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("Unmarshal unknown strategy error = %v, want ErrUnknownStrategy", err)
	}
}
