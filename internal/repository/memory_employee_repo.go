package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryEmployeeRepo はインメモリの従業員リポジトリ。
type MemoryEmployeeRepo struct {
	mu        sync.RWMutex
	employees map[string]model.Employee
}

// NewMemoryEmployeeRepo はMemoryEmployeeRepoを生成する。
func NewMemoryEmployeeRepo() *MemoryEmployeeRepo {
	return &MemoryEmployeeRepo{employees: make(map[string]model.Employee)}
}

// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
func (r *MemoryEmployeeRepo) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	emp, ok := r.employees[id]
	if !ok {
		return nil, nil
	}
	return &emp, nil
}

// Create は従業員を作成する。
func (r *MemoryEmployeeRepo) Create(ctx context.Context, employee *model.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.employees[employee.ID] = *employee
	return nil
}

// CreateBatch は複数の従業員をまとめて作成する。
// トランザクションの全件ロールバックと同じく、途中失敗時は1件も追加されない。
func (r *MemoryEmployeeRepo) CreateBatch(ctx context.Context, employees []*model.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, employee := range employees {
		if _, ok := r.employees[employee.ID]; ok {
			return fmt.Errorf("duplicate employee id: %s", employee.ID)
		}
	}
	for _, employee := range employees {
		r.employees[employee.ID] = *employee
	}
	return nil
}

// Update は従業員情報を更新する。
func (r *MemoryEmployeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.employees[employee.ID]; !ok {
		return fmt.Errorf("employee not found: %s", employee.ID)
	}
	r.employees[employee.ID] = *employee
	return nil
}

// Delete は指定IDの従業員を削除する。
func (r *MemoryEmployeeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.employees, id)
	return nil
}

// ListByCompanyID は指定企業の全従業員を姓・名の昇順で返す。
func (r *MemoryEmployeeRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var employees []*model.Employee
	for _, emp := range r.employees {
		if emp.CompanyID == companyID {
			e := emp
			employees = append(employees, &e)
		}
	}
	sort.Slice(employees, func(i, j int) bool {
		if employees[i].LastName != employees[j].LastName {
			return employees[i].LastName < employees[j].LastName
		}
		return employees[i].FirstName < employees[j].FirstName
	})
	return employees, nil
}

// CountByCompanyID は指定企業の従業員数を返す。
func (r *MemoryEmployeeRepo) CountByCompanyID(ctx context.Context, companyID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, emp := range r.employees {
		if emp.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}

// deleteByCompanyID は企業削除時のCASCADE用内部ヘルパー。
func (r *MemoryEmployeeRepo) deleteByCompanyID(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, emp := range r.employees {
		if emp.CompanyID == companyID {
			delete(r.employees, id)
		}
	}
}

// compile-time interface check
var _ EmployeeRepository = (*MemoryEmployeeRepo)(nil)
