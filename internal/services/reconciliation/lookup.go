package reconciliation

import (
	"context"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

// InternalInvoiceLookup reads books-side vendor invoices. The vendor invoice
// repository satisfies it.
//
//go:generate mockgen -destination=mocks/mock_lookup.go -package=mock_reconciliation -source=lookup.go
type InternalInvoiceLookup interface {
	FindBySupplierAndDateWindow(ctx context.Context, companyID uuid.UUID, supplierGSTIN string, center time.Time, windowDays int) ([]models.InternalInvoice, error)
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.InternalInvoice, error)
}

// StatementArchive keeps the raw statement bytes and returns where they went.
type StatementArchive interface {
	Store(ctx context.Context, key string, raw []byte) (string, error)
}

// ProgressTracker publishes live progress of a reconciliation pass.
type ProgressTracker interface {
	Start(ctx context.Context, batchID uuid.UUID, total int) error
	Advance(ctx context.Context, batchID uuid.UUID) error
	Finish(ctx context.Context, batchID uuid.UUID, status models.ImportStatus) error
	Get(ctx context.Context, batchID uuid.UUID) (*models.Progress, error)
}
