package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryOwnerRepo はインメモリの出資者リポジトリ。
type MemoryOwnerRepo struct {
	mu     sync.RWMutex
	owners map[string]model.Owner
}

// NewMemoryOwnerRepo はMemoryOwnerRepoを生成する。
func NewMemoryOwnerRepo() *MemoryOwnerRepo {
	return &MemoryOwnerRepo{owners: make(map[string]model.Owner)}
}

// FindByID は指定IDの出資者を取得する。見つからない場合はnilを返す。
func (r *MemoryOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[id]
	if !ok {
		return nil, nil
	}
	return &owner, nil
}

// Create は出資者を作成する。
func (r *MemoryOwnerRepo) Create(ctx context.Context, owner *model.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[owner.ID] = *owner
	return nil
}

// Update は出資者情報を更新する。
func (r *MemoryOwnerRepo) Update(ctx context.Context, owner *model.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[owner.ID]; !ok {
		return fmt.Errorf("owner not found: %s", owner.ID)
	}
	r.owners[owner.ID] = *owner
	return nil
}

// Delete は指定IDの出資者を削除する。
func (r *MemoryOwnerRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, id)
	return nil
}

// ListByCompanyID は指定企業の全出資者を出資比率降順で返す。
func (r *MemoryOwnerRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var owners []*model.Owner
	for _, owner := range r.owners {
		if owner.CompanyID == companyID {
			o := owner
			owners = append(owners, &o)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].OwnershipPercent != owners[j].OwnershipPercent {
			return owners[i].OwnershipPercent > owners[j].OwnershipPercent
		}
		return owners[i].LastName < owners[j].LastName
	})
	return owners, nil
}

// SumPercentByCompanyID は指定企業の出資比率の合計を返す。
// 出資者がいない場合は0を返す。
func (r *MemoryOwnerRepo) SumPercentByCompanyID(ctx context.Context, companyID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum float64
	for _, owner := range r.owners {
		if owner.CompanyID == companyID {
			sum += owner.OwnershipPercent
		}
	}
	return sum, nil
}

// deleteByCompanyID は企業削除時のCASCADE用内部ヘルパー。
func (r *MemoryOwnerRepo) deleteByCompanyID(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, owner := range r.owners {
		if owner.CompanyID == companyID {
			delete(r.owners, id)
		}
	}
}

// compile-time interface check
var _ OwnerRepository = (*MemoryOwnerRepo)(nil)
