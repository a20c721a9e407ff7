package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	featflip "github.com/featflip/featflip/clients/go"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "key.secret"})
}

func TestCreateFeatureSendsAuthAndBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/features" {
			t.Errorf("got %s %s, want POST /v1/features", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key.secret" {
			t.Errorf("Authorization = %q", got)
		}
		var f featflip.Feature
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if f.Uid != "checkout" {
			t.Errorf("uid = %q, want checkout", f.Uid)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(f)
	})

	created, err := client.CreateFeature(context.Background(), featflip.Feature{Uid: "checkout", Enabled: true})
	if err != nil {
		t.Fatalf("CreateFeature() error = %v", err)
	}
	if created.Uid != "checkout" || !created.Enabled {
		t.Fatalf("created = %+v", created)
	}
}

func TestGetFeatureEscapesUid(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/v1/features/with%2Fslash" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		_ = json.NewEncoder(w).Encode(featflip.Feature{Uid: "with/slash"})
	})

	f, err := client.GetFeature(context.Background(), "with/slash")
	if err != nil {
		t.Fatalf("GetFeature() error = %v", err)
	}
	if f.Uid != "with/slash" {
		t.Fatalf("uid = %q", f.Uid)
	}
}

func TestAPIErrorSurfacesStatusAndMessage(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"feature not found"}`, http.StatusNotFound)
	})

	_, err := client.GetFeature(context.Background(), "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestTogglePaths(t *testing.T) {
	var paths []string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := client.Enable(ctx, "f"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := client.Disable(ctx, "f"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if err := client.Toggle(ctx, "f"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if err := client.EnableGroup(ctx, "beta"); err != nil {
		t.Fatalf("EnableGroup() error = %v", err)
	}

	want := []string{
		"POST /v1/features/f/enable",
		"POST /v1/features/f/disable",
		"POST /v1/features/f/toggle",
		"POST /v1/groups/beta/enable",
	}
	if len(paths) != len(want) {
		t.Fatalf("requests = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestCheckSingle(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req checkWireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Uid != "dark-mode" || req.Context["region"] != "eu" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(checkWireResponse{
			Results: []featflip.CheckResult{{Uid: "dark-mode", Enabled: true}},
		})
	})

	enabled, err := client.Check(context.Background(), "dark-mode", map[string]any{"region": "eu"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !enabled {
		t.Fatal("Check() = false, want true")
	}
}

func TestCheckBatch(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req checkWireRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		results := make([]featflip.CheckResult, 0, len(req.Checks))
		for _, c := range req.Checks {
			results = append(results, featflip.CheckResult{Uid: c.Uid, Enabled: c.Uid == "on"})
		}
		_ = json.NewEncoder(w).Encode(checkWireResponse{Results: results})
	})

	results, err := client.CheckBatch(context.Background(), []featflip.CheckRequest{
		{Uid: "on"}, {Uid: "off"},
	})
	if err != nil {
		t.Fatalf("CheckBatch() error = %v", err)
	}
	if len(results) != 2 || !results[0].Enabled || results[1].Enabled {
		t.Fatalf("results = %+v", results)
	}
}

func TestNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no Authorization header")
		}
		_ = json.NewEncoder(w).Encode(map[string]featflip.Feature{})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	if _, err := client.ListFeatures(context.Background()); err != nil {
		t.Fatalf("ListFeatures() error = %v", err)
	}
}
