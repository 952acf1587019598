package reconciliation

import (
	"context"
	"log"
	"time"

	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/repository"
	"itc-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Options struct {
	Matching matching.Config

	// MalformedThreshold is the fraction of malformed statement records
	// tolerated before an import fails outright.
	MalformedThreshold float64

	// Workers bounds how many invoices are matched at once.
	Workers int

	// HeartbeatInterval is how often a running pass marks the batch alive.
	// It must stay well below the stale sweeper's cutoff.
	HeartbeatInterval time.Duration

	Archive  StatementArchive
	Progress ProgressTracker
	Clock    func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Matching:           matching.DefaultConfig(),
		MalformedThreshold: 0.10,
		Workers:            4,
		HeartbeatInterval:  time.Minute,
	}
}

type ReconciliationService struct {
	db          *gorm.DB
	batchRepo   *repository.ImportBatchRepository
	invoiceRepo *repository.ReconciledInvoiceRepository
	logRepo     *repository.ActionLogRepository
	lookup      InternalInvoiceLookup
	engine      *matching.Engine

	archive  StatementArchive
	progress ProgressTracker
	clock    func() time.Time

	malformedThreshold float64
	workers            int
	heartbeatInterval  time.Duration
}

func NewReconciliationService(
	batchRepo *repository.ImportBatchRepository,
	invoiceRepo *repository.ReconciledInvoiceRepository,
	logRepo *repository.ActionLogRepository,
	lookup InternalInvoiceLookup,
	opts Options,
) *ReconciliationService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultOptions().HeartbeatInterval
	}
	if opts.Progress == nil {
		opts.Progress = NewMemoryProgress()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &ReconciliationService{
		db:                 batchRepo.DB(),
		batchRepo:          batchRepo,
		invoiceRepo:        invoiceRepo,
		logRepo:            logRepo,
		lookup:             lookup,
		engine:             matching.NewEngine(opts.Matching),
		archive:            opts.Archive,
		progress:           opts.Progress,
		clock:              opts.Clock,
		malformedThreshold: opts.MalformedThreshold,
		workers:            opts.Workers,
		heartbeatInterval:  opts.HeartbeatInterval,
	}
}

func (s *ReconciliationService) now() time.Time {
	return s.clock().UTC()
}

func (s *ReconciliationService) GetImportBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	batch, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get import batch", err, "import batch")
	}
	return batch, nil
}

func (s *ReconciliationService) ListImportBatches(ctx context.Context, companyID uuid.UUID, status models.ImportStatus, page models.PageRequest) (models.Page[models.ImportBatch], error) {
	const op = "list import batches"
	switch status {
	case "", models.ImportPending, models.ImportProcessing, models.ImportCompleted, models.ImportFailed:
	default:
		return models.Page[models.ImportBatch]{}, validationError(op, "status", "unknown import status %q", status)
	}

	batches, total, err := s.batchRepo.List(ctx, companyID, status, page)
	if err != nil {
		return models.Page[models.ImportBatch]{}, storageError(op, err, "import batches")
	}
	return models.NewPage(batches, total, page), nil
}

func (s *ReconciliationService) ListInvoices(ctx context.Context, batchID uuid.UUID, filter repository.InvoiceFilter, page models.PageRequest) (models.Page[models.ReconciledInvoice], error) {
	const op = "list invoices"
	if filter.MatchStatus != "" && !filter.MatchStatus.Valid() {
		return models.Page[models.ReconciledInvoice]{}, validationError(op, "match_status", "unknown match status %q", filter.MatchStatus)
	}
	if filter.DocumentType != "" && !filter.DocumentType.Valid() {
		return models.Page[models.ReconciledInvoice]{}, validationError(op, "invoice_type", "unknown invoice type %q", filter.DocumentType)
	}

	if _, err := s.batchRepo.GetByID(ctx, batchID); err != nil {
		return models.Page[models.ReconciledInvoice]{}, storageError(op, err, "import batch")
	}

	invoices, total, err := s.invoiceRepo.ListByBatch(ctx, batchID, filter, page)
	if err != nil {
		return models.Page[models.ReconciledInvoice]{}, storageError(op, err, "invoices")
	}
	return models.NewPage(invoices, total, page), nil
}

func (s *ReconciliationService) GetInvoice(ctx context.Context, id uuid.UUID) (*models.ReconciledInvoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get invoice", err, "invoice")
	}
	return inv, nil
}

// ActionHistory lists the workflow transitions of one invoice, oldest first.
func (s *ReconciliationService) ActionHistory(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActionLog, error) {
	const op = "action history"
	if _, err := s.invoiceRepo.GetByID(ctx, invoiceID); err != nil {
		return nil, storageError(op, err, "invoice")
	}
	entries, err := s.logRepo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, storageError(op, err, "action history")
	}
	if entries == nil {
		entries = []models.InvoiceActionLog{}
	}
	return entries, nil
}

// DeleteImportBatch purges a batch together with its invoices and their
// history. A batch under reconciliation cannot be purged.
func (s *ReconciliationService) DeleteImportBatch(ctx context.Context, id uuid.UUID) error {
	const op = "delete import batch"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.batchRepo.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			return storageError(op, err, "import batch")
		}
		if batch.Status == models.ImportProcessing {
			return conflictError(op, "import batch %s is being reconciled", id)
		}
		return s.purge(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	log.Printf("Import batch %s deleted", id)
	return nil
}

func (s *ReconciliationService) purge(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) error {
	if err := s.logRepo.WithTx(tx).DeleteByBatch(ctx, batchID); err != nil {
		return internalError("purge", "deleting action history", err)
	}
	if err := s.invoiceRepo.WithTx(tx).DeleteByBatch(ctx, batchID); err != nil {
		return internalError("purge", "deleting invoices", err)
	}
	if err := s.batchRepo.WithTx(tx).Delete(ctx, batchID); err != nil {
		return internalError("purge", "deleting import batch", err)
	}
	return nil
}

// GetProgress reports how far the current or last pass got. Without a
// tracked pass it falls back to the stored batch state.
func (s *ReconciliationService) GetProgress(ctx context.Context, batchID uuid.UUID) (*models.Progress, error) {
	const op = "get progress"
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, storageError(op, err, "import batch")
	}

	p, err := s.progress.Get(ctx, batchID)
	if err != nil {
		log.Printf("ERROR reading progress for batch %s: %v", batchID, err)
	}
	if p != nil {
		return p, nil
	}

	processed := 0
	if batch.Status == models.ImportCompleted {
		processed = batch.TotalInvoices
	}
	return &models.Progress{
		ImportBatchID: batch.ID,
		Processed:     processed,
		Total:         batch.TotalInvoices,
		Status:        batch.Status,
		UpdatedAt:     batch.UpdatedAt,
	}, nil
}
