package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}
	if _, err := m.Registry.Gather(); err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	// No samples yet, but families are registered on first use;
	// force a sample so we can verify at least one family appears.
	m.AutoCreatesTotal.Inc()
	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather after inc failed: %v", err)
	}
	if len(fams) == 0 {
		t.Fatal("expected at least one metric family after increment")
	}
}

func TestRecordCheck(t *testing.T) {
	m := New()

	m.RecordCheck(true)
	m.RecordCheck(true)
	m.RecordCheck(false)

	trueCount := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("true"))
	falseCount := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("false"))

	if trueCount != 2 {
		t.Fatalf("expected true count 2, got %v", trueCount)
	}
	if falseCount != 1 {
		t.Fatalf("expected false count 1, got %v", falseCount)
	}
}

func TestRecordAutoCreate(t *testing.T) {
	m := New()

	m.RecordAutoCreate()
	m.RecordAutoCreate()

	if v := testutil.ToFloat64(m.AutoCreatesTotal); v != 2 {
		t.Fatalf("expected auto creates 2, got %v", v)
	}
}

func TestObserveStoreOp(t *testing.T) {
	m := New()

	m.ObserveStoreOp("get", 10*time.Millisecond)
	m.ObserveStoreOp("get", 20*time.Millisecond)
	m.ObserveStoreOp("update_feature", 5*time.Millisecond)

	if n := testutil.CollectAndCount(m.StoreOpDuration); n != 2 {
		t.Fatalf("expected 2 labeled histograms, got %d", n)
	}
}

func TestSetFeatureCount(t *testing.T) {
	m := New()

	m.SetFeatureCount(42)
	if v := testutil.ToFloat64(m.FeatureCount); v != 42 {
		t.Fatalf("expected feature count 42, got %v", v)
	}
}

func TestAuthFailures(t *testing.T) {
	m := New()

	m.AuthFailuresTotal.Inc()
	m.AuthFailuresTotal.Inc()
	m.AuthFailuresTotal.Inc()

	if v := testutil.ToFloat64(m.AuthFailuresTotal); v != 3 {
		t.Fatalf("expected auth failures 3, got %v", v)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.AutoCreatesTotal.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Result().Body)
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), "featflip_auto_creates_total") {
		t.Fatal("expected response to contain featflip_auto_creates_total")
	}
}
