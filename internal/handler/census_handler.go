package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/census"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// CensusImporterInterface は名簿取り込みハンドラーが必要とするインターフェース。
type CensusImporterInterface interface {
	// Import は名簿ファイルを解析・検証し、全行を一括登録する。
	Import(ctx context.Context, companyID, filename string, r io.Reader) (*census.ImportResult, error)
}

// CensusMetricsRecorder は取り込んだ名簿行数を記録するインターフェース。
type CensusMetricsRecorder interface {
	RecordCensusRowsImported(count int)
}

// CensusHandler は従業員名簿の一括取り込みのHTTPハンドラー。
type CensusHandler struct {
	importer  CensusImporterInterface
	companies CompanyAuthorizer
	metrics   CensusMetricsRecorder
	audit     AuditRecorder
}

// NewCensusHandler はCensusHandlerを生成する。
func NewCensusHandler(importer CensusImporterInterface, companies CompanyAuthorizer, metrics CensusMetricsRecorder, auditRec AuditRecorder) *CensusHandler {
	return &CensusHandler{
		importer:  importer,
		companies: companies,
		metrics:   metrics,
		audit:     auditRec,
	}
}

// censusImportResponse は取り込み成功時のAPIレスポンス。
type censusImportResponse struct {
	Imported int `json:"imported"`
}

// censusErrorResponse は行単位の検証エラーを含むエラーレスポンス。
type censusErrorResponse struct {
	model.APIError
	Rows []census.RowError `json:"rows"`
}

// Import は名簿ファイルの取り込みを処理する。
// 1行でもエラーがあれば何も登録せず、全行のエラーを返す。
// POST /api/companies/{id}/census
func (h *CensusHandler) Import(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handleUploadFormError(w, err)
		return
	}
	defer file.Close()

	result, err := h.importer.Import(r.Context(), target.ID, header.Filename, file)
	if err != nil {
		var importErr *census.ImportError
		if errors.As(err, &importErr) {
			writeJSON(w, http.StatusUnprocessableEntity, censusErrorResponse{
				APIError: *model.NewCensusInvalidError(importErr.Error()),
				Rows:     importErr.Rows,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordCensusRowsImported(result.Imported)
	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "census.import",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]any{"file_name": header.Filename, "imported": result.Imported},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, censusImportResponse{Imported: result.Imported})
}
