package repository

import (
	"context"
	"strings"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const insertBatchSize = 200

type ReconciledInvoiceRepository struct {
	db *gorm.DB
}

func NewReconciledInvoiceRepository(db *gorm.DB) *ReconciledInvoiceRepository {
	return &ReconciledInvoiceRepository{db: db}
}

func (r *ReconciledInvoiceRepository) WithTx(tx *gorm.DB) *ReconciledInvoiceRepository {
	return &ReconciledInvoiceRepository{db: tx}
}

// InvoiceFilter narrows ListByBatch. Empty fields are ignored.
type InvoiceFilter struct {
	MatchStatus  models.MatchStatus
	ActionStatus models.ActionStatus
	DocumentType models.DocumentType
	Search       string
}

func (r *ReconciledInvoiceRepository) CreateInBatches(ctx context.Context, invoices []models.ReconciledInvoice) error {
	if len(invoices) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(invoices, insertBatchSize).Error
}

func (r *ReconciledInvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReconciledInvoice, error) {
	var inv models.ReconciledInvoice
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// FindByBatch loads every invoice of a batch in a stable order. With
// pendingOnly set, invoices an operator already actioned are left out.
func (r *ReconciledInvoiceRepository) FindByBatch(ctx context.Context, batchID uuid.UUID, pendingOnly bool) ([]models.ReconciledInvoice, error) {
	query := r.db.WithContext(ctx).Where("import_batch_id = ?", batchID)
	if pendingOnly {
		query = query.Where("action_status = ?", models.ActionPending)
	}

	var invoices []models.ReconciledInvoice
	err := query.
		Order("supplier_gstin ASC").
		Order("invoice_number ASC").
		Order("id ASC").
		Find(&invoices).Error
	return invoices, err
}

func (r *ReconciledInvoiceRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, filter InvoiceFilter, page models.PageRequest) ([]models.ReconciledInvoice, int64, error) {
	page = page.Normalize()
	query := r.db.WithContext(ctx).Model(&models.ReconciledInvoice{}).Where("import_batch_id = ?", batchID)

	if filter.MatchStatus != "" {
		query = query.Where("match_status = ?", filter.MatchStatus)
	}
	if filter.ActionStatus != "" {
		query = query.Where("action_status = ?", filter.ActionStatus)
	}
	if filter.DocumentType != "" {
		query = query.Where("document_type = ?", filter.DocumentType)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(invoice_number) LIKE ? OR LOWER(supplier_gstin) LIKE ? OR LOWER(supplier_name) LIKE ? OR LOWER(supplier_trade_name) LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []models.ReconciledInvoice
	err := query.
		Order("supplier_gstin ASC").
		Order("invoice_date ASC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&invoices).Error
	return invoices, total, err
}

// SaveMatchResult writes one automated matcher outcome. When pendingOnly is
// set the write is skipped for invoices actioned since they were loaded; the
// bool reports whether the row was written.
func (r *ReconciledInvoiceRepository) SaveMatchResult(ctx context.Context, id uuid.UUID, snap models.MatchSnapshot, matchedAt time.Time, pendingOnly bool) (bool, error) {
	discrepancies := snap.Discrepancies
	if discrepancies == nil {
		discrepancies = []string{}
	}
	snap.Discrepancies = discrepancies

	query := r.db.WithContext(ctx).Model(&models.ReconciledInvoice{}).Where("id = ?", id)
	if pendingOnly {
		query = query.Where("action_status = ?", models.ActionPending)
	}
	result := query.Updates(map[string]interface{}{
		"match_status":                snap.Status,
		"matched_internal_invoice_id": snap.MatchedInternalInvoiceID,
		"match_confidence":            snap.Confidence,
		"discrepancies":               datatypes.NewJSONSlice(discrepancies),
		"auto_match":                  datatypes.NewJSONType(snap),
		"matched_at":                  matchedAt,
		"version":                     gorm.Expr("version + 1"),
	})
	return result.RowsAffected == 1, result.Error
}

// CompareAndSwap applies fields only if the row is still at version. A false
// result with a nil error means someone else wrote first.
func (r *ReconciledInvoiceRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, version int, fields map[string]interface{}) (bool, error) {
	fields["version"] = version + 1
	result := r.db.WithContext(ctx).Model(&models.ReconciledInvoice{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	return result.RowsAffected == 1, result.Error
}

func (r *ReconciledInvoiceRepository) DeleteByBatch(ctx context.Context, batchID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("import_batch_id = ?", batchID).Delete(&models.ReconciledInvoice{}).Error
}
