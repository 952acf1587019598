package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/services/statement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ImportRequest struct {
	CompanyID    uuid.UUID
	ReturnPeriod string
	Raw          []byte
	FileName     string
	// Replace purges an existing batch for the same period first.
	Replace bool
}

// ImportStatement parses a GSTR-2B statement and stores it as a new pending
// import batch. Records that fail validation are skipped with a warning as
// long as their share stays within the malformed threshold.
func (s *ReconciliationService) ImportStatement(ctx context.Context, req ImportRequest) (*models.ImportBatch, error) {
	const op = "import statement"

	if req.CompanyID == uuid.Nil {
		return nil, validationError(op, "company_id", "company id is required")
	}
	period, err := models.ParseReturnPeriod(req.ReturnPeriod)
	if err != nil {
		return nil, validationError(op, "return_period", "%v", err)
	}
	if len(req.Raw) == 0 {
		return nil, validationError(op, "file", "statement is empty")
	}

	stmt, err := statement.Parse(req.Raw)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Field: "file", Message: "statement is not a valid GSTR-2B document", Err: err}
	}
	if stmt.ReturnPeriod != period {
		return nil, validationError(op, "return_period", "statement is for period %s, expected %s", stmt.ReturnPeriod, period)
	}

	now := s.now()
	batch := &models.ImportBatch{
		ID:           uuid.New(),
		CompanyID:    req.CompanyID,
		ReturnPeriod: period,
		GSTIN:        stmt.GSTIN,
		Source:       models.SourceGSTR2B,
		FileName:     req.FileName,
		Status:       models.ImportPending,
		Warnings:     datatypes.NewJSONSlice(warnings(stmt)),
		ImportedAt:   now,
	}

	tooMalformed := stmt.MalformedFraction() > s.malformedThreshold
	var invoices []models.ReconciledInvoice
	if tooMalformed {
		batch.Status = models.ImportFailed
		batch.ErrorMessage = fmt.Sprintf("%d of %d statement records are malformed, above the %.0f%% tolerance",
			len(stmt.Rejected), stmt.TotalRecords(), s.malformedThreshold*100)
	} else {
		invoices = buildInvoices(batch, stmt.Records)
		applyImportTotals(batch, invoices)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batches := s.batchRepo.WithTx(tx)

		existing, err := batches.GetByCompanyPeriod(ctx, req.CompanyID, period)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return internalError(op, "checking existing import", err)
		}
		if err != nil {
			existing = nil
		}

		if existing != nil {
			if existing.Status == models.ImportProcessing {
				return conflictError(op, "import batch %s for %s is being reconciled", existing.ID, period)
			}
			// a failed import that stored nothing may be retried freely
			retryable := existing.ImportRejected()
			if !req.Replace && !retryable {
				return conflictError(op, "statement for %s already imported as batch %s", period, existing.ID)
			}
			if tooMalformed && !retryable {
				// leave the previous import in place
				return nil
			}
			if err := s.purge(ctx, tx, existing.ID); err != nil {
				return err
			}
		}

		if err := batches.Create(ctx, batch); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflictError(op, "statement for %s was imported concurrently", period)
			}
			return internalError(op, "creating import batch", err)
		}
		if err := s.invoiceRepo.WithTx(tx).CreateInBatches(ctx, invoices); err != nil {
			return internalError(op, "storing invoices", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if tooMalformed {
		log.Printf("Import for company %s period %s rejected: %s", req.CompanyID, period, batch.ErrorMessage)
		return nil, validationError(op, "file", "%s", batch.ErrorMessage)
	}

	log.Printf("Imported statement for company %s period %s: batch %s, %d invoices, %d skipped",
		req.CompanyID, period, batch.ID, len(invoices), len(stmt.Rejected))

	s.archiveStatement(ctx, batch, req.Raw)
	return batch, nil
}

// archiveStatement keeps the raw upload next to the batch. Failure only
// loses the copy, the import itself stands.
func (s *ReconciliationService) archiveStatement(ctx context.Context, batch *models.ImportBatch, raw []byte) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("statements/%s/%s/%s.json", batch.CompanyID, batch.ReturnPeriod, batch.ID)
	uri, err := s.archive.Store(ctx, key, raw)
	if err != nil {
		log.Printf("ERROR archiving statement for batch %s: %v", batch.ID, err)
		return
	}
	if err := s.batchRepo.UpdateFields(ctx, batch.ID, map[string]interface{}{"source_uri": uri}); err != nil {
		log.Printf("ERROR recording archive location for batch %s: %v", batch.ID, err)
		return
	}
	batch.SourceURI = uri
}

func warnings(stmt *statement.Statement) []string {
	out := make([]string, 0, len(stmt.Rejected))
	for _, rej := range stmt.Rejected {
		out = append(out, "skipped "+rej.Error())
	}
	return out
}

func buildInvoices(batch *models.ImportBatch, records []statement.Record) []models.ReconciledInvoice {
	invoices := make([]models.ReconciledInvoice, 0, len(records))
	for _, rec := range records {
		inv := models.ReconciledInvoice{
			ID:                uuid.New(),
			ImportBatchID:     batch.ID,
			CompanyID:         batch.CompanyID,
			ReturnPeriod:      batch.ReturnPeriod,
			SupplierGSTIN:     rec.SupplierGSTIN,
			SupplierName:      rec.SupplierName,
			SupplierTradeName: rec.SupplierTradeName,
			InvoiceNumber:     rec.InvoiceNumber,
			InvoiceDate:       rec.InvoiceDate,
			DocumentType:      rec.DocumentType,
			TaxableValue:      rec.TaxableValue,
			IGST:              rec.IGST,
			CGST:              rec.CGST,
			SGST:              rec.SGST,
			Cess:              rec.Cess,
			InvoiceValue:      rec.InvoiceValue,
			ITCEligible:       rec.ITCEligible,
			ReverseCharge:     rec.ReverseCharge,
			PlaceOfSupply:     rec.PlaceOfSupply,
			SupplyType:        rec.SupplyType,
			MatchStatus:       models.MatchUnmatched,
			Discrepancies:     datatypes.NewJSONSlice([]string{}),
			AutoMatch:         datatypes.NewJSONType(models.MatchSnapshot{Status: models.MatchUnmatched, Discrepancies: []string{}}),
			ActionStatus:      models.ActionPending,
			Version:           1,
		}
		if rec.ITCEligible {
			inv.IGSTCredit = rec.IGST
			inv.CGSTCredit = rec.CGST
			inv.SGSTCredit = rec.SGST
			inv.CessCredit = rec.Cess
		}
		inv.TotalTax = inv.TaxSum()
		invoices = append(invoices, inv)
	}
	return invoices
}

// applyImportTotals sets the pre-matching counters from the raw records.
func applyImportTotals(batch *models.ImportBatch, invoices []models.ReconciledInvoice) {
	t := creditTotals(invoices)
	batch.TotalInvoices = len(invoices)
	batch.UnmatchedInvoices = len(invoices)
	batch.TotalIGSTCredit = t.IGST
	batch.TotalCGSTCredit = t.CGST
	batch.TotalSGSTCredit = t.SGST
	batch.TotalCessCredit = t.Cess
	batch.MatchedCreditAmount = decimal.Zero
	batch.FillDerived()
}
