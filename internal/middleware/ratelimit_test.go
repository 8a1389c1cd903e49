package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestGeneralMiddleware_AllowsWithinLimit は許容量内のリクエストが通過する
// ことを検証する。
func TestGeneralMiddleware_AllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(60, 10)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestSendMessageMiddleware_BlocksOverLimit はバースト許容量を超えた
// リクエストが429になることを検証する。
func TestSendMessageMiddleware_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(1000, 2)
	defer rl.Stop()

	handler := rl.SendMessageMiddleware()(okHandler())

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/conversations/1/messages", nil)
		req.RemoteAddr = "10.0.0.2:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

// TestRateLimiter_SeparatePerClient はクライアントIPごとに独立した許容量を
// 持つことを検証する。
func TestRateLimiter_SeparatePerClient(t *testing.T) {
	rl := NewRateLimiter(1000, 1)
	defer rl.Stop()

	handler := rl.SendMessageMiddleware()(okHandler())

	// 1つ目のIPの許容量を使い切る
	req := httptest.NewRequest(http.MethodPost, "/conversations/1/messages", nil)
	req.RemoteAddr = "10.0.0.3:1"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/conversations/1/messages", nil)
	req2.RemoteAddr = "10.0.0.4:1"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req2)

	if w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestClientIP_XForwardedFor はリバースプロキシ配下でX-Forwarded-Forの
// 先頭が使われることを検証する。
func TestClientIP_XForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP = %q, want 203.0.113.7", got)
	}
}

// TestClientIP_RemoteAddr はX-Forwarded-Forがない場合にRemoteAddrの
// ホスト部が使われることを検証する。
func TestClientIP_RemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.5:54321"

	if got := clientIP(req); got != "192.0.2.5" {
		t.Errorf("clientIP = %q, want 192.0.2.5", got)
	}
}
