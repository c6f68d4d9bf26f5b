package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/books/my-books", nil)
	return req.WithContext(context.WithValue(req.Context(), userIDContextKey, userID))
}

func TestGeneralMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retrySeconds, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retrySeconds < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}
	if body := decodeErrorBody(t, w); body.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", body.Code)
	}
}

func TestGeneralMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-A"))
	}

	// ユーザーBはユーザーAのレートに影響されない
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-B"))
	if w.Code != http.StatusOK {
		t.Errorf("user-B: status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestGeneralMiddleware_RequiresAuthenticatedUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_LimitsByClientIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.AuthMiddleware()(okHandler())

	login := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if got := login("10.0.0.1:5000"); got != http.StatusOK {
		t.Errorf("first login: status = %d, want 200", got)
	}
	// ポートが異なっても同じIPとして扱う
	if got := login("10.0.0.1:5001"); got != http.StatusTooManyRequests {
		t.Errorf("second login: status = %d, want 429", got)
	}
	if got := login("10.0.0.2:5000"); got != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", got)
	}
	if got := rl.AuthLimiterCount(); got != 2 {
		t.Errorf("AuthLimiterCount = %d, want 2", got)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-idle"))
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}

	// TTL（CleanupIntervalの2倍）を超えた時刻でクリーンアップする
	rl.cleanup(time.Now().Add(3 * time.Minute))

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount after cleanup = %d, want 0", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
