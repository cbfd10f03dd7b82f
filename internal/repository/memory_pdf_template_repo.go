package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryPDFTemplateRepo はインメモリの帳票テンプレートリポジトリ。
type MemoryPDFTemplateRepo struct {
	mu        sync.RWMutex
	templates map[string]model.PDFTemplate
}

// NewMemoryPDFTemplateRepo はMemoryPDFTemplateRepoを生成する。
func NewMemoryPDFTemplateRepo() *MemoryPDFTemplateRepo {
	return &MemoryPDFTemplateRepo{
		templates: make(map[string]model.PDFTemplate),
	}
}

// FindByID は指定IDのテンプレートをファイル本体込みで取得する。見つからない場合はnilを返す。
func (r *MemoryPDFTemplateRepo) FindByID(ctx context.Context, id string) (*model.PDFTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	copyTemplateData(&tpl)
	return &tpl, nil
}

// Create はテンプレートを作成する。
func (r *MemoryPDFTemplateRepo) Create(ctx context.Context, tpl *model.PDFTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *tpl
	copyTemplateData(&stored)
	r.templates[tpl.ID] = stored
	return nil
}

// Update はテンプレートのメタデータと項目マッピングを更新する。
// ファイル本体は変更しない。
func (r *MemoryPDFTemplateRepo) Update(ctx context.Context, tpl *model.PDFTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.templates[tpl.ID]
	if !ok {
		return fmt.Errorf("pdf template not found: %s", tpl.ID)
	}
	stored := *tpl
	copyTemplateData(&stored)
	stored.FileName = existing.FileName
	stored.FileSize = existing.FileSize
	stored.FileData = existing.FileData
	r.templates[tpl.ID] = stored
	return nil
}

// Delete は指定IDのテンプレートを削除する。
func (r *MemoryPDFTemplateRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[id]; !ok {
		return fmt.Errorf("pdf template not found: %s", id)
	}
	delete(r.templates, id)
	return nil
}

// ListByBrokerID は指定ブローカーのテンプレート一覧をメタデータのみで名前順に返す。
func (r *MemoryPDFTemplateRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tpls []*model.PDFTemplate
	for _, tpl := range r.templates {
		if tpl.BrokerID != brokerID {
			continue
		}
		t := tpl
		copyTemplateData(&t)
		t.FileData = nil
		tpls = append(tpls, &t)
	}
	sort.Slice(tpls, func(i, j int) bool {
		return tpls[i].Name < tpls[j].Name
	})
	return tpls, nil
}

// copyTemplateData はスライスフィールドを複製してストア外への参照共有を防ぐ。
func copyTemplateData(tpl *model.PDFTemplate) {
	if tpl.FileData != nil {
		data := make([]byte, len(tpl.FileData))
		copy(data, tpl.FileData)
		tpl.FileData = data
	}
	if tpl.FieldMappings != nil {
		mappings := make([]model.FieldMapping, len(tpl.FieldMappings))
		copy(mappings, tpl.FieldMappings)
		tpl.FieldMappings = mappings
	}
}

// compile-time interface check
var _ PDFTemplateRepository = (*MemoryPDFTemplateRepo)(nil)
