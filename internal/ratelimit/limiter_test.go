package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllow_BurstThenRefill(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{PerMinute: 60, Burst: 2, Clock: clock})
	defer limiter.Close()

	for i := 0; i < 2; i++ {
		if result := limiter.Allow("actor:manager:pat"); !result.Allowed {
			t.Fatalf("write %d should be allowed, got blocked: %s", i+1, result.Reason)
		}
	}

	result := limiter.Allow("actor:manager:pat")
	if result.Allowed {
		t.Fatal("third write in the same instant should be blocked")
	}
	if result.Reason != "write_rate" {
		t.Errorf("Expected reason 'write_rate', got '%s'", result.Reason)
	}
	if result.RetryAfter != time.Second {
		t.Errorf("Expected RetryAfter 1s, got %v", result.RetryAfter)
	}

	clock.Advance(time.Second)
	if result := limiter.Allow("actor:manager:pat"); !result.Allowed {
		t.Errorf("write after refill should be allowed, got blocked: %s", result.Reason)
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{PerMinute: 60, Burst: 1, Clock: clock})
	defer limiter.Close()

	if !limiter.Allow("ip:10.0.0.1").Allowed {
		t.Fatal("first key should be allowed")
	}
	if limiter.Allow("ip:10.0.0.1").Allowed {
		t.Fatal("first key should be exhausted")
	}
	if !limiter.Allow("ip:10.0.0.2").Allowed {
		t.Error("second key should have its own bucket")
	}
}

func TestAllow_KeyNormalization(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{PerMinute: 60, Burst: 1, Clock: clock})
	defer limiter.Close()

	limiter.Allow("Actor:Manager:Pat")
	if limiter.Allow("  actor:manager:pat ").Allowed {
		t.Error("keys differing only in case and spacing should share a bucket")
	}
	if limiter.Len() != 1 {
		t.Errorf("Expected 1 tracked key, got %d", limiter.Len())
	}
}

func TestCleanup_ForgetsIdleKeys(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{IdleTTL: time.Minute, Clock: clock})
	defer limiter.Close()

	limiter.Allow("a")
	clock.Advance(30 * time.Second)
	limiter.Allow("b")
	clock.Advance(45 * time.Second)
	limiter.cleanup()

	if limiter.Len() != 1 {
		t.Errorf("Expected only the recent key to survive, got %d keys", limiter.Len())
	}
}

func TestNew_Defaults(t *testing.T) {
	limiter := New(nil)
	defer limiter.Close()

	cfg := DefaultConfig()
	if limiter.config.PerMinute != cfg.PerMinute || limiter.config.Burst != cfg.Burst || limiter.config.IdleTTL != cfg.IdleTTL {
		t.Errorf("New(nil) should use defaults, got %+v", limiter.config)
	}

	partial := New(&Config{Burst: 3})
	defer partial.Close()
	if partial.config.PerMinute != cfg.PerMinute || partial.config.Burst != 3 {
		t.Errorf("zero fields should take defaults, got %+v", partial.config)
	}
}

func TestLimiter_Close(t *testing.T) {
	limiter := New(nil)
	limiter.Allow("x")

	done := make(chan struct{})
	go func() {
		limiter.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return in time")
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := New(&Config{PerMinute: 6000, Burst: 1000})
	defer limiter.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				limiter.Allow(fmt.Sprintf("ip:10.0.0.%d", id%5))
			}
		}(i)
	}
	wg.Wait()

	if limiter.Len() != 5 {
		t.Errorf("Expected 5 tracked keys, got %d", limiter.Len())
	}
}

func TestGetClientIP_TrustProxy(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		expected   string
	}{
		{
			name:       "TrustProxy=true, XFF rightmost public IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.50", // Rightmost non-private
		},
		{
			name:       "TrustProxy=true, XFF all private",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "10.0.0.1", // Last one when all private
		},
		{
			name:       "TrustProxy=true, X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.51",
		},
		{
			name:       "TrustProxy=false, ignores XFF",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			expected:   "192.168.1.100", // Uses RemoteAddr, ignores spoofed XFF
		},
		{
			name:       "TrustProxy=false, ignores X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			expected:   "192.168.1.100",
		},
		{
			name:       "No headers, RemoteAddr only",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: true,
			expected:   "192.168.1.100",
		},
		{
			name:       "RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100",
			trustProxy: false,
			expected:   "192.168.1.100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			got := GetClientIP(r, tt.trustProxy)
			if got != tt.expected {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetClientIP_SpoofingPrevention(t *testing.T) {
	// Attacker sends fake X-Forwarded-For header
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4") // Attacker-supplied
	r.RemoteAddr = "192.168.1.100:54321"       // Real connection

	// With TrustProxy=false, the fake header is ignored
	got := GetClientIP(r, false)
	if got != "192.168.1.100" {
		t.Errorf("Should ignore X-Forwarded-For when TrustProxy=false, got %q", got)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		// IPv4 private ranges
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.1.1", true},
		{"192.168.255.255", true},
		{"127.0.0.1", true},
		// IPv6 private/reserved
		{"::1", true},
		{"fc00::1", true},
		{"fe80::1", true}, // Link-local
		// IPv4-mapped IPv6 addresses (must match their IPv4 equivalents)
		{"::ffff:10.0.0.1", true},
		{"::ffff:192.168.1.1", true},
		{"::ffff:172.16.0.1", true},
		{"::ffff:127.0.0.1", true},
		{"::ffff:8.8.8.8", false},   // Public IP in IPv4-mapped format
		{"::ffff:1.1.1.1", false},   // Public IP in IPv4-mapped format
		// Public IPs
		{"203.0.113.50", false},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2001:4860:4860::8888", false}, // Google DNS IPv6
		// Invalid
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got := isPrivateIP(tt.ip)
			if got != tt.expected {
				t.Errorf("isPrivateIP(%q) = %v, want %v", tt.ip, got, tt.expected)
			}
		})
	}
}
