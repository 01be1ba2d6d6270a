package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitEnforcesPerIPLimit(t *testing.T) {
	handler := RateLimit(2, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := do("198.51.100.10:1234"); code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", code)
	}
	if code := do("198.51.100.10:1234"); code != http.StatusOK {
		t.Fatalf("second request: got %d, want 200", code)
	}
	if code := do("198.51.100.10:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", code)
	}

	// A different client keeps its own bucket.
	if code := do("203.0.113.7:1234"); code != http.StatusOK {
		t.Fatalf("other client: got %d, want 200", code)
	}
}

func TestClientIPForRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded header wins",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "first forwarded entry used",
			header:     " 203.0.113.1 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "garbage forwarded falls back to remote",
			header:     "not-an-ip",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "remote without port",
			remoteAddr: "203.0.113.1",
			want:       "203.0.113.1",
		},
		{
			name:       "ipv6 remote",
			remoteAddr: "[2001:db8::2]:443",
			want:       "2001:db8::2",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := clientIPForRateLimit(req); got != tc.want {
				t.Fatalf("clientIPForRateLimit() = %q, want %q", got, tc.want)
			}
		})
	}
}
