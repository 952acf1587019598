package repository

import (
	"context"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ImportBatchRepository struct {
	db *gorm.DB
}

func NewImportBatchRepository(db *gorm.DB) *ImportBatchRepository {
	return &ImportBatchRepository{db: db}
}

func (r *ImportBatchRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a copy bound to an open transaction.
func (r *ImportBatchRepository) WithTx(tx *gorm.DB) *ImportBatchRepository {
	return &ImportBatchRepository{db: tx}
}

func (r *ImportBatchRepository) Create(ctx context.Context, batch *models.ImportBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *ImportBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *ImportBatchRepository) GetByCompanyPeriod(ctx context.Context, companyID uuid.UUID, period string) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND return_period = ?", companyID, period).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// List returns a company's batches, newest period first.
func (r *ImportBatchRepository) List(ctx context.Context, companyID uuid.UUID, status models.ImportStatus, page models.PageRequest) ([]models.ImportBatch, int64, error) {
	page = page.Normalize()
	query := r.db.WithContext(ctx).Model(&models.ImportBatch{}).Where("company_id = ?", companyID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []models.ImportBatch
	err := query.
		Order("return_period DESC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&batches).Error
	return batches, total, err
}

// ClaimForProcessing flips the batch to processing under the given pass id
// unless another pass holds it. The conditional update is the lock; false
// means it is already taken.
func (r *ImportBatchRepository) ClaimForProcessing(ctx context.Context, id, pass uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ? AND status <> ?", id, models.ImportProcessing).
		Updates(map[string]interface{}{
			"status":                models.ImportProcessing,
			"pass_id":               pass,
			"processing_started_at": now,
			"heartbeat_at":          now,
			"error_message":         "",
		})
	return result.RowsAffected == 1, result.Error
}

// Heartbeat records that the pass is still alive. False means the pass no
// longer holds the batch.
func (r *ImportBatchRepository) Heartbeat(ctx context.Context, id, pass uuid.UUID, now time.Time) (bool, error) {
	result := r.held(ctx, id, pass).Update("heartbeat_at", now)
	return result.RowsAffected == 1, result.Error
}

// FinishPass writes fields only while the pass still holds the batch.
func (r *ImportBatchRepository) FinishPass(ctx context.Context, id, pass uuid.UUID, fields map[string]interface{}) (bool, error) {
	result := r.held(ctx, id, pass).Updates(fields)
	return result.RowsAffected == 1, result.Error
}

func (r *ImportBatchRepository) held(ctx context.Context, id, pass uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ? AND status = ? AND pass_id = ?", id, models.ImportProcessing, pass)
}

func (r *ImportBatchRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *ImportBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.ImportBatch{}, "id = ?", id).Error
}

// FailStaleProcessing releases processing batches whose last heartbeat is
// older than cutoff. It returns how many were released.
func (r *ImportBatchRepository) FailStaleProcessing(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("status = ? AND heartbeat_at < ?", models.ImportProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        models.ImportFailed,
			"error_message": reason,
		})
	return result.RowsAffected, result.Error
}
