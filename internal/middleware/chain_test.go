package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// TestMiddlewareChain_AuthenticatedAdminRequest は
// セキュリティヘッダー・セッション・ロールガードを重ねたチェーンを
// 管理者リクエストが通過することを検証する。
func TestMiddlewareChain_AuthenticatedAdminRequest(t *testing.T) {
	admin := &model.User{
		ID:     "admin-1",
		Role:   model.RoleAdmin,
		Active: true,
	}

	securityMW := NewSecurityHeadersMiddleware()
	sessionMW := NewSessionMiddleware(validSessionFinder(admin.ID), activeUserFinder(admin))
	roleMW := RequireRole(model.RoleAdmin)

	handler := securityMW(sessionMW(roleMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

// TestMiddlewareChain_StaffBlockedFromAdminRoute は
// staffロールが管理者ルートで403になることを検証する。
func TestMiddlewareChain_StaffBlockedFromAdminRoute(t *testing.T) {
	staff := &model.User{
		ID:       "staff-1",
		BrokerID: "broker-1",
		Role:     model.RoleStaff,
		Active:   true,
	}

	sessionMW := NewSessionMiddleware(validSessionFinder(staff.ID), activeUserFinder(staff))
	roleMW := RequireRole(model.RoleAdmin)

	handler := sessionMW(roleMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// TestMiddlewareChain_PanicRecoveredAsJSON500 は
// ハンドラーのpanicがrecoveryミドルウェアで統一フォーマットの500になることを検証する。
func TestMiddlewareChain_PanicRecoveredAsJSON500(t *testing.T) {
	recoveryMW := NewRecoveryMiddleware()
	securityMW := NewSecurityHeadersMiddleware()

	handler := securityMW(recoveryMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if apiErr := decodeErrorBody(t, resp); apiErr.Code != model.ErrCodeInternal {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeInternal)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

// TestMaxBytesMiddleware_LimitsBodySize は
// ボディ上限を超えた読み取りがエラーになることを検証する。
func TestMaxBytesMiddleware_LimitsBodySize(t *testing.T) {
	mw := NewMaxBytesMiddleware(10)

	var readErr error
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		if readErr != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(strings.Repeat("a", 100)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if readErr == nil {
		t.Error("上限超過の読み取りはエラーになること")
	}
	if w.Result().StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusRequestEntityTooLarge)
	}
}

// TestMaxBytesMiddleware_SmallBodyPasses は
// 上限内のボディがそのまま読めることを検証する。
func TestMaxBytesMiddleware_SmallBodyPasses(t *testing.T) {
	mw := NewMaxBytesMiddleware(1024)

	var body []byte
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("hello"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}
}
