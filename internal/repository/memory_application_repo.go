package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryApplicationRepo はインメモリの申請リポジトリ。
// 選択プランの紐付けも合わせて保持する。
type MemoryApplicationRepo struct {
	mu           sync.RWMutex
	applications map[string]model.Application
	planIDs      map[string][]string // applicationID -> planIDs

	companies *MemoryCompanyRepo
}

// NewMemoryApplicationRepo はMemoryApplicationRepoを生成する。
func NewMemoryApplicationRepo() *MemoryApplicationRepo {
	return &MemoryApplicationRepo{
		applications: make(map[string]model.Application),
		planIDs:      make(map[string][]string),
	}
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *MemoryApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.applications[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

// FindDraftByCompanyID は指定企業の下書き申請を取得する。
// 下書きが存在しない場合はnilを返す。
func (r *MemoryApplicationRepo) FindDraftByCompanyID(ctx context.Context, companyID string) (*model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, app := range r.applications {
		if app.CompanyID == companyID && app.Status == model.StatusDraft {
			a := app
			return &a, nil
		}
	}
	return nil, nil
}

// Create は申請を作成する。
// 下書きの重複はDBの部分ユニークインデックスと同様にエラーになる。
func (r *MemoryApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if app.Status == model.StatusDraft {
		for _, existing := range r.applications {
			if existing.CompanyID == app.CompanyID && existing.Status == model.StatusDraft {
				return fmt.Errorf("draft application already exists for company: %s", app.CompanyID)
			}
		}
	}
	r.applications[app.ID] = *app
	return nil
}

// Update は申請を更新する。
func (r *MemoryApplicationRepo) Update(ctx context.Context, app *model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[app.ID]; !ok {
		return fmt.Errorf("application not found: %s", app.ID)
	}
	r.applications[app.ID] = *app
	return nil
}

// ListByCompanyID は指定企業の全申請を作成日時降順で返す。
func (r *MemoryApplicationRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var apps []*model.Application
	for _, app := range r.applications {
		if app.CompanyID == companyID {
			a := app
			apps = append(apps, &a)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	return apps, nil
}

// ListByBrokerID は指定ブローカー配下の全申請を作成日時降順で返す。
func (r *MemoryApplicationRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Application, error) {
	if r.companies == nil {
		return nil, nil
	}
	companyIDs := r.companies.idsByBrokerID(brokerID)
	idSet := make(map[string]bool, len(companyIDs))
	for _, id := range companyIDs {
		idSet[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var apps []*model.Application
	for _, app := range r.applications {
		if idSet[app.CompanyID] {
			a := app
			apps = append(apps, &a)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	return apps, nil
}

// ListByStatus は指定状態の全申請を提出日時昇順で返す（管理者の審査キュー向け）。
func (r *MemoryApplicationRepo) ListByStatus(ctx context.Context, status model.ApplicationStatus) ([]*model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var apps []*model.Application
	for _, app := range r.applications {
		if app.Status == status {
			a := app
			apps = append(apps, &a)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		si, sj := apps[i].SubmittedAt, apps[j].SubmittedAt
		switch {
		case si != nil && sj != nil:
			return si.Before(*sj)
		case si != nil:
			return true
		case sj != nil:
			return false
		default:
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
	})
	return apps, nil
}

// CountByStatus は指定状態の申請数を返す。
func (r *MemoryApplicationRepo) CountByStatus(ctx context.Context, status model.ApplicationStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, app := range r.applications {
		if app.Status == status {
			count++
		}
	}
	return count, nil
}

// ReplacePlans は申請の選択プラン一覧を入れ替える。
func (r *MemoryApplicationRepo) ReplacePlans(ctx context.Context, applicationID string, planIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(planIDs))
	copy(ids, planIDs)
	r.planIDs[applicationID] = ids
	return nil
}

// ListPlanIDs は申請に紐づくプランIDの一覧を返す。
func (r *MemoryApplicationRepo) ListPlanIDs(ctx context.Context, applicationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.planIDs[applicationID]
	result := make([]string, len(ids))
	copy(result, ids)
	return result, nil
}

// countByCompanyIDs はブローカー集計用の内部ヘルパー。
func (r *MemoryApplicationRepo) countByCompanyIDs(companyIDs []string) int {
	idSet := make(map[string]bool, len(companyIDs))
	for _, id := range companyIDs {
		idSet[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, app := range r.applications {
		if idSet[app.CompanyID] {
			count++
		}
	}
	return count
}

// deleteByCompanyID は企業削除時のCASCADE用内部ヘルパー。
// 申請に紐づく選択プランも合わせて削除する。
func (r *MemoryApplicationRepo) deleteByCompanyID(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, app := range r.applications {
		if app.CompanyID == companyID {
			delete(r.applications, id)
			delete(r.planIDs, id)
		}
	}
}

// compile-time interface check
var _ ApplicationRepository = (*MemoryApplicationRepo)(nil)
