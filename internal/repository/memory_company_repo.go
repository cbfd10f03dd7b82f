package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryCompanyRepo はインメモリの企業リポジトリ。
// 企業削除時のCASCADEは、NewMemoryStoreが設定する関連リポジトリ参照を通じて再現する。
type MemoryCompanyRepo struct {
	mu        sync.RWMutex
	companies map[string]model.Company

	owners        *MemoryOwnerRepo
	employees     *MemoryEmployeeRepo
	applications  *MemoryApplicationRepo
	documents     *MemoryDocumentRepo
	contributions *MemoryContributionRepo
}

// NewMemoryCompanyRepo はMemoryCompanyRepoを生成する。
func NewMemoryCompanyRepo() *MemoryCompanyRepo {
	return &MemoryCompanyRepo{companies: make(map[string]model.Company)}
}

// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
func (r *MemoryCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	company, ok := r.companies[id]
	if !ok {
		return nil, nil
	}
	return &company, nil
}

// Create は企業を作成する。
func (r *MemoryCompanyRepo) Create(ctx context.Context, company *model.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.companies[company.ID] = *company
	return nil
}

// Update は企業情報を更新する。
func (r *MemoryCompanyRepo) Update(ctx context.Context, company *model.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.companies[company.ID]; !ok {
		return fmt.Errorf("company not found: %s", company.ID)
	}
	r.companies[company.ID] = *company
	return nil
}

// Delete は指定IDの企業を削除する。
// 関連する出資者・従業員・申請・書類・負担設定はCASCADE削除される。
func (r *MemoryCompanyRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.companies[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("company not found: %s", id)
	}
	delete(r.companies, id)
	r.mu.Unlock()

	if r.owners != nil {
		r.owners.deleteByCompanyID(id)
	}
	if r.employees != nil {
		r.employees.deleteByCompanyID(id)
	}
	if r.applications != nil {
		r.applications.deleteByCompanyID(id)
	}
	if r.documents != nil {
		r.documents.deleteByCompanyID(id)
	}
	if r.contributions != nil {
		r.contributions.deleteByCompanyID(id)
	}
	return nil
}

// ListByBrokerID は指定ブローカーの全企業を作成日時降順で返す。
func (r *MemoryCompanyRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var companies []*model.Company
	for _, company := range r.companies {
		if company.BrokerID == brokerID {
			c := company
			companies = append(companies, &c)
		}
	}
	sort.Slice(companies, func(i, j int) bool {
		return companies[i].CreatedAt.After(companies[j].CreatedAt)
	})
	return companies, nil
}

// Count は全企業数を返す。
func (r *MemoryCompanyRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.companies), nil
}

// idsByBrokerID はブローカー集計用の内部ヘルパー。
func (r *MemoryCompanyRepo) idsByBrokerID(brokerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, company := range r.companies {
		if company.BrokerID == brokerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// compile-time interface check
var _ CompanyRepository = (*MemoryCompanyRepo)(nil)
