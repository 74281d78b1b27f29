package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestBearerAuth(t *testing.T) {
	h := BearerAuth("s3cret", "/info")(okHandler)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing token", "/train", "", http.StatusUnauthorized},
		{"wrong token", "/train", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "/train", "Basic s3cret", http.StatusUnauthorized},
		{"valid token", "/train", "Bearer s3cret", http.StatusOK},
		{"lowercase scheme", "/train", "bearer s3cret", http.StatusOK},
		{"public path", "/info", "", http.StatusOK},
		{"query token on stream", "/events?access_token=s3cret", "", http.StatusOK},
		{"query token on websocket", "/events/ws?access_token=s3cret", "", http.StatusOK},
		{"query token elsewhere", "/models?access_token=s3cret", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAccessLog_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := AccessLog(&buf)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query().Get("password")
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/train/abc?password=s3cret&access_token=tok&lastEventId=3", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if strings.Contains(line, "s3cret") || strings.Contains(line, "tok&") || strings.Contains(line, "=tok") {
		t.Errorf("Credentials leaked into access log: %s", line)
	}
	if !strings.Contains(line, "password=REDACTED") || !strings.Contains(line, "lastEventId=3") {
		t.Errorf("Unexpected access log line: %s", line)
	}
	if seen != "s3cret" {
		t.Errorf("Handler saw password %q, want the original", seen)
	}
}

func TestAccessLog_LeavesPlainRequestsAlone(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/models?limit=5", nil)
	if got := redactRequest(req); got != req {
		t.Error("Expected the original request when nothing is sensitive")
	}
}

func TestBearerAuth_DisabledWithoutToken(t *testing.T) {
	h := BearerAuth("")(okHandler)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/train", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 2, time.Minute)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("Request %d should be allowed", i)
		}
	}
	ok, wait := rl.Allow("1.2.3.4")
	if ok {
		t.Fatal("Third request should be limited")
	}
	if wait != time.Minute {
		t.Errorf("Expected wait 1m, got %v", wait)
	}
	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Error("Other clients should not be limited")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Error("Request should be allowed after the window")
	}

	now = now.Add(2 * time.Minute)
	rl.evict()
	if rl.Len() != 0 {
		t.Errorf("Expected eviction of stale keys, %d left", rl.Len())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewRateLimiter(ctx, 1, time.Hour).Middleware(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestCORS_PreflightBeforeAuth(t *testing.T) {
	h := CORS([]string{"https://builder.example"})(BearerAuth("tok")(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/train", nil)
	req.Header.Set("Origin", "https://builder.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://builder.example" {
		t.Errorf("Expected allow-origin header, got %q", got)
	}
	if w.Code == http.StatusUnauthorized {
		t.Error("Preflight must not be rejected by auth")
	}

	req = httptest.NewRequest(http.MethodGet, "/train", nil)
	req.Header.Set("Origin", "https://builder.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://builder.example" {
		t.Errorf("Unauthenticated responses should still carry CORS headers, got %q", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	if got := ClientIP(req); got != "192.168.1.9" {
		t.Errorf("Expected 192.168.1.9, got %s", got)
	}
	req.RemoteAddr = "weird"
	if got := ClientIP(req); got != "weird" {
		t.Errorf("Expected raw addr fallback, got %s", got)
	}
}
