package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresPDFTemplateRepo はPostgreSQLを使用した帳票テンプレートリポジトリ。
type PostgresPDFTemplateRepo struct {
	db *sql.DB
}

// NewPostgresPDFTemplateRepo はPostgresPDFTemplateRepoを生成する。
func NewPostgresPDFTemplateRepo(db *sql.DB) *PostgresPDFTemplateRepo {
	return &PostgresPDFTemplateRepo{db: db}
}

// FindByID は指定IDのテンプレートをファイル本体込みで取得する。見つからない場合はnilを返す。
func (r *PostgresPDFTemplateRepo) FindByID(ctx context.Context, id string) (*model.PDFTemplate, error) {
	tpl := &model.PDFTemplate{}
	var mappingsJSON []byte
	var uploadedBy sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, broker_id, name, carrier_name, form_number, file_name, file_size, file_data,
		        field_mappings, uploaded_by, created_at, updated_at
		 FROM pdf_templates WHERE id = $1`,
		id,
	).Scan(
		&tpl.ID, &tpl.BrokerID, &tpl.Name, &tpl.CarrierName, &tpl.FormNumber,
		&tpl.FileName, &tpl.FileSize, &tpl.FileData,
		&mappingsJSON, &uploadedBy, &tpl.CreatedAt, &tpl.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}

	if len(mappingsJSON) > 0 {
		if err := json.Unmarshal(mappingsJSON, &tpl.FieldMappings); err != nil {
			return nil, fmt.Errorf("項目マッピングの読み取りに失敗しました: %w", err)
		}
	}
	tpl.UploadedBy = nullStringValue(uploadedBy)
	return tpl, nil
}

// Create はテンプレートを作成する。
func (r *PostgresPDFTemplateRepo) Create(ctx context.Context, tpl *model.PDFTemplate) error {
	mappingsJSON, err := json.Marshal(tpl.FieldMappings)
	if err != nil {
		return fmt.Errorf("項目マッピングの書き込みに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pdf_templates (id, broker_id, name, carrier_name, form_number, file_name,
		                            file_size, file_data, field_mappings, uploaded_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tpl.ID, tpl.BrokerID, tpl.Name, tpl.CarrierName, tpl.FormNumber, tpl.FileName,
		tpl.FileSize, tpl.FileData, mappingsJSON, nullString(tpl.UploadedBy),
		tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("テンプレートの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はテンプレートのメタデータと項目マッピングを更新する。
// ファイル本体は変更しない。
func (r *PostgresPDFTemplateRepo) Update(ctx context.Context, tpl *model.PDFTemplate) error {
	mappingsJSON, err := json.Marshal(tpl.FieldMappings)
	if err != nil {
		return fmt.Errorf("項目マッピングの書き込みに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE pdf_templates
		 SET name = $1, carrier_name = $2, form_number = $3, field_mappings = $4, updated_at = $5
		 WHERE id = $6`,
		tpl.Name, tpl.CarrierName, tpl.FormNumber, mappingsJSON, tpl.UpdatedAt, tpl.ID,
	)
	if err != nil {
		return fmt.Errorf("テンプレートの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのテンプレートを削除する。
func (r *PostgresPDFTemplateRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pdf_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("テンプレートの削除に失敗しました: %w", err)
	}
	return nil
}

// ListByBrokerID は指定ブローカーのテンプレート一覧をメタデータのみで名前順に返す。
func (r *PostgresPDFTemplateRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, broker_id, name, carrier_name, form_number, file_name, file_size,
		        field_mappings, uploaded_by, created_at, updated_at
		 FROM pdf_templates WHERE broker_id = $1 ORDER BY name ASC`,
		brokerID,
	)
	if err != nil {
		return nil, fmt.Errorf("テンプレート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tpls []*model.PDFTemplate
	for rows.Next() {
		tpl := &model.PDFTemplate{}
		var mappingsJSON []byte
		var uploadedBy sql.NullString
		if err := rows.Scan(
			&tpl.ID, &tpl.BrokerID, &tpl.Name, &tpl.CarrierName, &tpl.FormNumber,
			&tpl.FileName, &tpl.FileSize,
			&mappingsJSON, &uploadedBy, &tpl.CreatedAt, &tpl.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("テンプレート一覧の読み取りに失敗しました: %w", err)
		}
		if len(mappingsJSON) > 0 {
			if err := json.Unmarshal(mappingsJSON, &tpl.FieldMappings); err != nil {
				return nil, fmt.Errorf("項目マッピングの読み取りに失敗しました: %w", err)
			}
		}
		tpl.UploadedBy = nullStringValue(uploadedBy)
		tpls = append(tpls, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("テンプレート一覧の走査に失敗しました: %w", err)
	}
	return tpls, nil
}

// compile-time interface check
var _ PDFTemplateRepository = (*PostgresPDFTemplateRepo)(nil)
