package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/admin"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// --- モック定義 ---

// mockAdminService はAdminServiceInterfaceのモック実装。
type mockAdminService struct {
	listBrokersFn   func(ctx context.Context) ([]repository.BrokerWithStats, error)
	createBrokerFn  func(ctx context.Context, input admin.CreateBrokerInput) (*model.Broker, *model.User, string, error)
	listUsersFn     func(ctx context.Context, brokerID string) ([]*model.User, error)
	setUserActiveFn func(ctx context.Context, userID string, active bool) (*model.User, error)
	statsFn         func(ctx context.Context) (*admin.PlatformStats, error)
	documentRulesFn func() *document.RuleSet
}

func (m *mockAdminService) ListBrokers(ctx context.Context) ([]repository.BrokerWithStats, error) {
	if m.listBrokersFn != nil {
		return m.listBrokersFn(ctx)
	}
	return nil, nil
}

func (m *mockAdminService) CreateBroker(ctx context.Context, input admin.CreateBrokerInput) (*model.Broker, *model.User, string, error) {
	if m.createBrokerFn != nil {
		return m.createBrokerFn(ctx, input)
	}
	return nil, nil, "", nil
}

func (m *mockAdminService) ListUsers(ctx context.Context, brokerID string) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, brokerID)
	}
	return nil, nil
}

func (m *mockAdminService) SetUserActive(ctx context.Context, userID string, active bool) (*model.User, error) {
	if m.setUserActiveFn != nil {
		return m.setUserActiveFn(ctx, userID, active)
	}
	return &model.User{ID: userID, Active: active}, nil
}

func (m *mockAdminService) Stats(ctx context.Context) (*admin.PlatformStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &admin.PlatformStats{}, nil
}

func (m *mockAdminService) DocumentRules() *document.RuleSet {
	if m.documentRulesFn != nil {
		return m.documentRulesFn()
	}
	return &document.RuleSet{}
}

// --- テスト ---

func TestAdminHandler_ListBrokers_IncludesUsageCounts(t *testing.T) {
	svc := &mockAdminService{
		listBrokersFn: func(ctx context.Context) ([]repository.BrokerWithStats, error) {
			return []repository.BrokerWithStats{
				{
					Broker:           model.Broker{ID: "broker-1", Name: "山田保険事務所"},
					UserCount:        3,
					CompanyCount:     12,
					ApplicationCount: 5,
				},
			}, nil
		},
	}
	h := NewAdminHandler(svc, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/brokers", nil)
	req = withPrincipal(req, adminPrincipal)
	w := httptest.NewRecorder()

	h.ListBrokers(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var results []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0]["user_count"] != float64(3) {
		t.Errorf("user_count = %v, want 3", results[0]["user_count"])
	}
	if results[0]["company_count"] != float64(12) {
		t.Errorf("company_count = %v, want 12", results[0]["company_count"])
	}
}

func TestAdminHandler_CreateBroker_ReturnsTempPasswordOnce(t *testing.T) {
	svc := &mockAdminService{
		createBrokerFn: func(ctx context.Context, input admin.CreateBrokerInput) (*model.Broker, *model.User, string, error) {
			if input.BrokerName != "佐藤ライフプランニング" {
				t.Errorf("BrokerName = %q", input.BrokerName)
			}
			if input.OwnerUsername != "sato" {
				t.Errorf("OwnerUsername = %q, want %q", input.OwnerUsername, "sato")
			}
			broker := &model.Broker{ID: "broker-2", Name: input.BrokerName, Email: input.Email}
			owner := &model.User{ID: "user-10", BrokerID: broker.ID, Username: input.OwnerUsername, Role: model.RoleOwner, Active: true}
			return broker, owner, "initial-secret-99", nil
		},
	}
	auditRec := &stubAuditRecorder{}
	h := NewAdminHandler(svc, auditRec)

	body := `{"broker_name":"佐藤ライフプランニング","email":"info@sato-lp.example.com","owner_username":"sato","owner_email":"sato@sato-lp.example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/brokers", bytes.NewBufferString(body))
	req = withPrincipal(req, adminPrincipal)
	w := httptest.NewRecorder()

	h.CreateBroker(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var result struct {
		Broker       map[string]any `json:"broker"`
		Owner        map[string]any `json:"owner"`
		TempPassword string         `json:"temp_password"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.TempPassword != "initial-secret-99" {
		t.Errorf("temp_password = %q, want %q", result.TempPassword, "initial-secret-99")
	}
	if result.Owner["role"] != "owner" {
		t.Errorf("owner.role = %v, want %q", result.Owner["role"], "owner")
	}

	if auditRec.lastAction() != "admin.create_broker" {
		t.Errorf("audit action = %q, want %q", auditRec.lastAction(), "admin.create_broker")
	}
}

func TestAdminHandler_ListUsers_MissingBrokerID_ReturnsBadRequest(t *testing.T) {
	called := false
	svc := &mockAdminService{
		listUsersFn: func(ctx context.Context, brokerID string) ([]*model.User, error) {
			called = true
			return nil, nil
		},
	}
	h := NewAdminHandler(svc, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req = withPrincipal(req, adminPrincipal)
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if called {
		t.Error("ListUsers must not be called without broker_id")
	}
}

func TestAdminHandler_SetUserActive_CrossesBrokerBoundary(t *testing.T) {
	svc := &mockAdminService{
		setUserActiveFn: func(ctx context.Context, userID string, active bool) (*model.User, error) {
			if userID != "user-99" {
				t.Errorf("userID = %q, want %q", userID, "user-99")
			}
			return &model.User{ID: userID, BrokerID: "broker-other", Active: active}, nil
		},
	}
	auditRec := &stubAuditRecorder{}
	h := NewAdminHandler(svc, auditRec)

	body := `{"active":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/user-99/active", bytes.NewBufferString(body))
	req = withPrincipal(req, adminPrincipal)
	req = withChiURLParam(req, "id", "user-99")
	w := httptest.NewRecorder()

	h.SetUserActive(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if auditRec.lastAction() != "admin.set_user_active" {
		t.Errorf("audit action = %q, want %q", auditRec.lastAction(), "admin.set_user_active")
	}
}

func TestAdminHandler_Stats_ConvertsStatusKeys(t *testing.T) {
	svc := &mockAdminService{
		statsFn: func(ctx context.Context) (*admin.PlatformStats, error) {
			return &admin.PlatformStats{
				Brokers:   2,
				Users:     8,
				Companies: 15,
				Applications: map[model.ApplicationStatus]int{
					model.StatusDraft:     7,
					model.StatusSubmitted: 4,
					model.StatusApproved:  3,
				},
			}, nil
		},
	}
	h := NewAdminHandler(svc, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req = withPrincipal(req, adminPrincipal)
	w := httptest.NewRecorder()

	h.Stats(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result struct {
		Brokers      int            `json:"brokers"`
		Users        int            `json:"users"`
		Companies    int            `json:"companies"`
		Applications map[string]int `json:"applications"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Brokers != 2 || result.Users != 8 || result.Companies != 15 {
		t.Errorf("counts = %d/%d/%d, want 2/8/15", result.Brokers, result.Users, result.Companies)
	}
	if result.Applications["draft"] != 7 {
		t.Errorf("applications[draft] = %d, want 7", result.Applications["draft"])
	}
	if result.Applications["submitted"] != 4 {
		t.Errorf("applications[submitted] = %d, want 4", result.Applications["submitted"])
	}
}

func TestAdminHandler_DocumentRules_ReturnsRuleSet(t *testing.T) {
	svc := &mockAdminService{
		documentRulesFn: func() *document.RuleSet {
			return &document.RuleSet{
				Rules: []model.DocumentRule{
					{DocumentType: "articles_of_incorporation", Label: "定款", Required: true},
				},
			}
		},
	}
	h := NewAdminHandler(svc, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/document-rules", nil)
	req = withPrincipal(req, adminPrincipal)
	w := httptest.NewRecorder()

	h.DocumentRules(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result struct {
		Rules []map[string]any `json:"rules"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1", len(result.Rules))
	}
	if result.Rules[0]["document_type"] != "articles_of_incorporation" {
		t.Errorf("rules[0].document_type = %v", result.Rules[0]["document_type"])
	}
}

// --- compile-time interface checks ---

var _ AdminServiceInterface = (*mockAdminService)(nil)
