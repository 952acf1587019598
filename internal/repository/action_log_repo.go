package repository

import (
	"context"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActionLogRepository struct {
	db *gorm.DB
}

func NewActionLogRepository(db *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

func (r *ActionLogRepository) WithTx(tx *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: tx}
}

func (r *ActionLogRepository) Create(ctx context.Context, entry *models.InvoiceActionLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByInvoice returns an invoice's transitions, oldest first.
func (r *ActionLogRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActionLog, error) {
	var entries []models.InvoiceActionLog
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *ActionLogRepository) DeleteByBatch(ctx context.Context, batchID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("import_batch_id = ?", batchID).Delete(&models.InvoiceActionLog{}).Error
}
