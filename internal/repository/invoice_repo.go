package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VendorInvoiceRepository reads the books-side vendor invoices.
type VendorInvoiceRepository struct {
	db *gorm.DB
}

func NewVendorInvoiceRepository(db *gorm.DB) *VendorInvoiceRepository {
	return &VendorInvoiceRepository{db: db}
}

// FindBySupplierAndDateWindow returns a company's invoices from one supplier
// dated within windowDays of center, inclusive.
func (r *VendorInvoiceRepository) FindBySupplierAndDateWindow(
	ctx context.Context,
	companyID uuid.UUID,
	supplierGSTIN string,
	center time.Time,
	windowDays int,
) ([]models.InternalInvoice, error) {

	day := time.Date(center.Year(), center.Month(), center.Day(), 0, 0, 0, 0, time.UTC)
	from := day.AddDate(0, 0, -windowDays)
	to := day.AddDate(0, 0, windowDays+1)

	var invoices []models.InternalInvoice
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Where("UPPER(supplier_gstin) = ?", strings.ToUpper(supplierGSTIN)).
		Where("invoice_date >= ? AND invoice_date < ?", from, to).
		Order("id ASC").
		Find(&invoices).Error
	return invoices, err
}

// GetByID returns nil without error when the invoice does not exist for the
// company.
func (r *VendorInvoiceRepository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.InternalInvoice, error) {
	var invoice models.InternalInvoice
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *VendorInvoiceRepository) Create(ctx context.Context, invoice *models.InternalInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}
