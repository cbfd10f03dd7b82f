package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryPlanRepo はインメモリのプランリポジトリ。
type MemoryPlanRepo struct {
	mu    sync.RWMutex
	plans map[string]model.Plan
}

// NewMemoryPlanRepo はMemoryPlanRepoを生成する。
func NewMemoryPlanRepo() *MemoryPlanRepo {
	return &MemoryPlanRepo{plans: make(map[string]model.Plan)}
}

// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
func (r *MemoryPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

// Create はプランを作成する。
func (r *MemoryPlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ID] = *plan
	return nil
}

// Update はプラン情報を更新する。無効化はActiveをfalseにして更新する。
func (r *MemoryPlanRepo) Update(ctx context.Context, plan *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plans[plan.ID]; !ok {
		return fmt.Errorf("plan not found: %s", plan.ID)
	}
	r.plans[plan.ID] = *plan
	return nil
}

// ListByBrokerID は指定ブローカーの全プランを種別・名前順で返す。
func (r *MemoryPlanRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plans []*model.Plan
	for _, plan := range r.plans {
		if plan.BrokerID == brokerID {
			p := plan
			plans = append(plans, &p)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].PlanType != plans[j].PlanType {
			return plans[i].PlanType < plans[j].PlanType
		}
		return plans[i].Name < plans[j].Name
	})
	return plans, nil
}

// compile-time interface check
var _ PlanRepository = (*MemoryPlanRepo)(nil)
