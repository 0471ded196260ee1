package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxAttempts:   3,
		CleanupPeriod: time.Minute,
		BanDuration:   time.Minute,
	}
}

func TestAllowUnderLimit(t *testing.T) {
	rl := NewMemoryRateLimiter(testConfig())
	defer rl.Close()

	for i := 0; i < 3; i++ {
		allowed, info := rl.Allow("1.2.3.4")
		if !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		if info.Remaining != 3-(i+1) {
			t.Fatalf("attempt %d: remaining %d", i+1, info.Remaining)
		}
	}
}

func TestBanAfterExceedingLimit(t *testing.T) {
	rl := NewMemoryRateLimiter(testConfig())
	defer rl.Close()

	for i := 0; i < 3; i++ {
		rl.Allow("1.2.3.4")
	}
	allowed, info := rl.Allow("1.2.3.4")
	if allowed || !info.Banned {
		t.Fatalf("fourth attempt should be banned, got %+v", info)
	}
	if info.RetryAfter <= 0 {
		t.Fatalf("banned response must carry a retry delay")
	}

	// Other identifiers are unaffected.
	if allowed, _ := rl.Allow("5.6.7.8"); !allowed {
		t.Fatalf("unrelated identifier must not be banned")
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if ip := GetClientIP(r); ip != "10.0.0.1" {
		t.Fatalf("remote addr: got %q", ip)
	}

	r.Header.Set("X-Real-IP", "10.0.0.2")
	if ip := GetClientIP(r); ip != "10.0.0.2" {
		t.Fatalf("real ip header: got %q", ip)
	}

	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	if ip := GetClientIP(r); ip != "10.0.0.3" {
		t.Fatalf("forwarded header: got %q", ip)
	}
}
