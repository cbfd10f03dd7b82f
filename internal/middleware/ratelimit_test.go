package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// --- モック定義 ---

type mockRateLimitedRecorder struct {
	mu     sync.Mutex
	scopes []string
}

func (m *mockRateLimitedRecorder) RecordRateLimited(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = append(m.scopes, scope)
}

func (m *mockRateLimitedRecorder) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.scopes...)
}

// --- テスト ---

// testConfig は即時に枯渇させられる小さなバーストの設定を返す。
func testConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    2,
		UploadRate:      rate.Limit(1.0 / 60.0),
		UploadBurst:     1,
		LoginRate:       rate.Limit(1.0 / 60.0),
		LoginBurst:      2,
		CleanupInterval: time.Hour,
	}
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	return req.WithContext(ContextWithPrincipal(req.Context(), Principal{
		UserID:   userID,
		BrokerID: "broker-1",
		Role:     model.RoleStaff,
	}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_WithinBurst_Passes(t *testing.T) {
	rl := NewRateLimiter(testConfig(), nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("user-1"))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Result().StatusCode, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_BurstExhausted_Returns429(t *testing.T) {
	recorder := &mockRateLimitedRecorder{}
	rl := NewRateLimiter(testConfig(), recorder)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// バーストを使い切る
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("user-1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されること")
	}
	if apiErr := decodeErrorBody(t, resp); apiErr.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeRateLimited)
	}
	if scopes := recorder.recorded(); len(scopes) != 1 || scopes[0] != "general" {
		t.Errorf("recorded scopes = %v, want [general]", scopes)
	}
}

func TestGeneralMiddleware_PerUserIsolation(t *testing.T) {
	rl := NewRateLimiter(testConfig(), nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// user-1のバーストを使い切る
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("user-1"))
	}

	// user-2は影響を受けない
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-2"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("user-2 status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestGeneralMiddleware_NoPrincipal_Returns401(t *testing.T) {
	rl := NewRateLimiter(testConfig(), nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestUploadMiddleware_IndependentFromGeneral(t *testing.T) {
	recorder := &mockRateLimitedRecorder{}
	rl := NewRateLimiter(testConfig(), recorder)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	upload := rl.UploadMiddleware()(okHandler())

	// アップロードのバースト（1）を使い切る
	w := httptest.NewRecorder()
	upload.ServeHTTP(w, authedRequest("user-1"))
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("first upload: status = %d", w.Result().StatusCode)
	}

	w = httptest.NewRecorder()
	upload.ServeHTTP(w, authedRequest("user-1"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second upload: status = %d, want 429", w.Result().StatusCode)
	}

	// API全般のバケットは消費されていない
	w = httptest.NewRecorder()
	general.ServeHTTP(w, authedRequest("user-1"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("general after upload exhaustion: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	if scopes := recorder.recorded(); len(scopes) != 1 || scopes[0] != "upload" {
		t.Errorf("recorded scopes = %v, want [upload]", scopes)
	}
}

func TestLoginMiddleware_KeyedByClientIP(t *testing.T) {
	rl := NewRateLimiter(testConfig(), nil)
	defer rl.Stop()

	handler := rl.LoginMiddleware(func(r *http.Request) string {
		return r.RemoteAddr
	})(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Result().StatusCode
	}

	// 同一IPからバースト（2）を超えると429
	if status := send("10.0.0.1:1234"); status != http.StatusOK {
		t.Fatalf("1st attempt: status = %d", status)
	}
	if status := send("10.0.0.1:1234"); status != http.StatusOK {
		t.Fatalf("2nd attempt: status = %d", status)
	}
	if status := send("10.0.0.1:1234"); status != http.StatusTooManyRequests {
		t.Fatalf("3rd attempt: status = %d, want 429", status)
	}

	// 別IPは独立
	if status := send("10.0.0.2:1234"); status != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", status, http.StatusOK)
	}
}

func TestRateLimiter_LimiterCounts(t *testing.T) {
	rl := NewRateLimiter(testConfig(), nil)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	login := rl.LoginMiddleware(func(r *http.Request) string { return r.RemoteAddr })(okHandler())

	general.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))
	general.ServeHTTP(httptest.NewRecorder(), authedRequest("user-2"))

	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	login.ServeHTTP(httptest.NewRecorder(), req)

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
	if got := rl.UploadLimiterCount(); got != 0 {
		t.Errorf("UploadLimiterCount = %d, want 0", got)
	}
	if got := rl.LoginLimiterCount(); got != 1 {
		t.Errorf("LoginLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(testConfig(), nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-2"))

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Fatalf("GeneralLimiterCount = %d, want 2", got)
	}

	// user-1の最終アクセスをTTLより過去に戻してクリーンアップを実行
	rl.general.mu.Lock()
	rl.general.limiters["user-1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.general.mu.Unlock()

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Errorf("GeneralLimiterCount after cleanup = %d, want 1", got)
	}

	// 残ったuser-2はそのまま利用できる
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-2"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("user-2 after cleanup: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestWriteRateLimitResponse_RetryAfterAtLeastOneSecond(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimitResponse(w, rate.Limit(100))

	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
}

func TestDefaultRateLimiterConfig_Values(t *testing.T) {
	config := DefaultRateLimiterConfig()

	if config.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", config.GeneralBurst)
	}
	if config.UploadBurst != 20 {
		t.Errorf("UploadBurst = %d, want 20", config.UploadBurst)
	}
	if config.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", config.LoginBurst)
	}
	if config.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", config.CleanupInterval)
	}
}
