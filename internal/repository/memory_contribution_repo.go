package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryContributionRepo はインメモリの事業主負担リポジトリ。
// (companyID, planType) の複合キーで保持する。
type MemoryContributionRepo struct {
	mu            sync.RWMutex
	contributions map[string]model.Contribution
}

// NewMemoryContributionRepo はMemoryContributionRepoを生成する。
func NewMemoryContributionRepo() *MemoryContributionRepo {
	return &MemoryContributionRepo{contributions: make(map[string]model.Contribution)}
}

func contributionKey(companyID string, planType model.PlanType) string {
	return companyID + "/" + string(planType)
}

// FindByCompanyAndType は企業IDとプラン種別で負担設定を検索する。
// 見つからない場合はnilを返す。
func (r *MemoryContributionRepo) FindByCompanyAndType(ctx context.Context, companyID string, planType model.PlanType) (*model.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contributions[contributionKey(companyID, planType)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListByCompanyID は指定企業の全負担設定を返す。
func (r *MemoryContributionRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var contributions []*model.Contribution
	for _, c := range r.contributions {
		if c.CompanyID == companyID {
			contribution := c
			contributions = append(contributions, &contribution)
		}
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].PlanType < contributions[j].PlanType
	})
	return contributions, nil
}

// Upsert は負担設定を冪等にUPSERTする。
// (company_id, plan_type) が既に存在する場合は上書きする。
func (r *MemoryContributionRepo) Upsert(ctx context.Context, contribution *model.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := contributionKey(contribution.CompanyID, contribution.PlanType)
	if existing, ok := r.contributions[key]; ok {
		// 既存レコードのIDと作成日時は維持する
		updated := *contribution
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		r.contributions[key] = updated
		return nil
	}
	r.contributions[key] = *contribution
	return nil
}

// DeleteByCompanyAndType は指定企業・プラン種別の負担設定を削除する。
func (r *MemoryContributionRepo) DeleteByCompanyAndType(ctx context.Context, companyID string, planType model.PlanType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contributions, contributionKey(companyID, planType))
	return nil
}

// deleteByCompanyID は企業削除時のCASCADE用内部ヘルパー。
func (r *MemoryContributionRepo) deleteByCompanyID(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, c := range r.contributions {
		if c.CompanyID == companyID {
			delete(r.contributions, key)
		}
	}
}

// compile-time interface check
var _ ContributionRepository = (*MemoryContributionRepo)(nil)
