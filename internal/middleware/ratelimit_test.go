package middleware

import (
	"context"
	"fmt"
	"testing"
)

func newTestRateLimiter(t *testing.T, maxPerMinute int) *RateLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rl := NewRateLimiter(ctx, maxPerMinute)
	t.Cleanup(func() {
		rl.Stop()
		cancel()
	})
	return rl
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, 5)

	for i := 0; i < 5; i++ {
		if !rl.RecordFailureAndAllow("1.2.3.4") {
			t.Fatalf("attempt %d unexpectedly blocked", i+1)
		}
	}
	if rl.RecordFailureAndAllow("1.2.3.4") {
		t.Fatal("attempt beyond burst should be blocked")
	}
}

func TestRateLimiterIsolatesIPs(t *testing.T) {
	rl := newTestRateLimiter(t, 2)

	rl.RecordFailureAndAllow("1.1.1.1")
	rl.RecordFailureAndAllow("1.1.1.1")
	if rl.RecordFailureAndAllow("1.1.1.1") {
		t.Fatal("first IP should be exhausted")
	}
	if !rl.RecordFailureAndAllow("2.2.2.2") {
		t.Fatal("second IP should be unaffected")
	}
}

func TestAllowWithoutFailures(t *testing.T) {
	rl := newTestRateLimiter(t, 1)

	if !rl.Allow("9.9.9.9") {
		t.Fatal("IP with no recorded failures should be allowed")
	}
}

func TestRateLimiterEvictsWhenFull(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	rl.maxTrackedIPs = 3

	for i := 0; i < 10; i++ {
		rl.RecordFailureAndAllow(fmt.Sprintf("10.0.0.%d", i))
	}

	rl.mu.Lock()
	n := len(rl.entries)
	rl.mu.Unlock()
	if n > 3 {
		t.Fatalf("tracked %d IPs, want at most 3", n)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1.2.3:8080", "10.1.2.3"},
		{"10.1.2.3", "10.1.2.3"},
		{"[::1]:9000", "::1"},
		{"::1", "::1"},
	}
	for _, tt := range tests {
		if got := ExtractIP(tt.in); got != tt.want {
			t.Errorf("ExtractIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
