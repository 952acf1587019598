package reconciliation

import (
	"context"
	"math"
	"sort"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MatchCounts struct {
	Matched     int `json:"matched"`
	Partial     int `json:"partial"`
	Discrepancy int `json:"discrepancy"`
	Unmatched   int `json:"unmatched"`
}

type ActionCounts struct {
	Pending       int `json:"pending"`
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
	ManualMatched int `json:"manual_matched"`
}

// ReconciliationSummary is always computed from the current invoice rows.
type ReconciliationSummary struct {
	ImportBatchID uuid.UUID           `json:"import_batch_id"`
	CompanyID     uuid.UUID           `json:"company_id"`
	ReturnPeriod  string              `json:"return_period"`
	Status        models.ImportStatus `json:"status"`
	ProcessedAt   *time.Time          `json:"processed_at"`

	TotalInvoices   int          `json:"total_invoices"`
	MatchCounts     MatchCounts  `json:"match_counts"`
	ActionCounts    ActionCounts `json:"action_counts"`
	MatchPercentage float64      `json:"match_percentage"`

	TotalTaxableValue     decimal.Decimal `json:"total_taxable_value"`
	MatchedTaxableValue   decimal.Decimal `json:"matched_taxable_value"`
	UnmatchedTaxableValue decimal.Decimal `json:"unmatched_taxable_value"`
	TotalCredit           decimal.Decimal `json:"total_credit"`
	MatchedCredit         decimal.Decimal `json:"matched_credit"`
	UnmatchedCredit       decimal.Decimal `json:"unmatched_credit"`
}

type SupplierSummary struct {
	SupplierGSTIN     string          `json:"supplier_gstin"`
	SupplierName      string          `json:"supplier_name"`
	InvoiceCount      int             `json:"invoice_count"`
	MatchedCount      int             `json:"matched_count"`
	PartialCount      int             `json:"partial_count"`
	UnmatchedCount    int             `json:"unmatched_count"`
	TotalTaxableValue decimal.Decimal `json:"total_taxable_value"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	MatchPercentage   float64         `json:"match_percentage"`
}

type ComponentComparison struct {
	Statement  decimal.Decimal `json:"statement"`
	Books      decimal.Decimal `json:"books"`
	Difference decimal.Decimal `json:"difference"`
}

type CreditComparison struct {
	ImportBatchID uuid.UUID           `json:"import_batch_id"`
	CompanyID     uuid.UUID           `json:"company_id"`
	ReturnPeriod  string              `json:"return_period"`
	IGST          ComponentComparison `json:"igst"`
	CGST          ComponentComparison `json:"cgst"`
	SGST          ComponentComparison `json:"sgst"`
	Cess          ComponentComparison `json:"cess"`
	Total         ComponentComparison `json:"total"`

	// LinkedInvoices counts statement rows carrying a books link.
	LinkedInvoices int `json:"linked_invoices"`
	// MissingBookInvoices are linked books invoices that no longer exist.
	MissingBookInvoices []uuid.UUID `json:"missing_book_invoices"`
}

type componentTotals struct {
	IGST decimal.Decimal
	CGST decimal.Decimal
	SGST decimal.Decimal
	Cess decimal.Decimal
}

func (c componentTotals) Total() decimal.Decimal {
	return c.IGST.Add(c.CGST).Add(c.SGST).Add(c.Cess)
}

func (s *ReconciliationService) GetReconciliationSummary(ctx context.Context, companyID uuid.UUID, returnPeriod string) (*ReconciliationSummary, error) {
	batch, err := s.batchForPeriod(ctx, "reconciliation summary", companyID, returnPeriod)
	if err != nil {
		return nil, err
	}
	return s.summarizeBatch(ctx, batch)
}

func (s *ReconciliationService) GetSupplierSummary(ctx context.Context, companyID uuid.UUID, returnPeriod string) ([]SupplierSummary, error) {
	const op = "supplier summary"
	batch, err := s.batchForPeriod(ctx, op, companyID, returnPeriod)
	if err != nil {
		return nil, err
	}
	invoices, err := s.invoiceRepo.FindByBatch(ctx, batch.ID, false)
	if err != nil {
		return nil, storageError(op, err, "invoices")
	}
	return summarizeSuppliers(invoices), nil
}

// GetCreditComparison sets the credit the statement offers against the
// credit substantiated by the linked books invoices, per tax component.
// Rows the statement marks ineligible offer no credit, so their books tax is
// left out as well.
func (s *ReconciliationService) GetCreditComparison(ctx context.Context, companyID uuid.UUID, returnPeriod string) (*CreditComparison, error) {
	const op = "credit comparison"
	batch, err := s.batchForPeriod(ctx, op, companyID, returnPeriod)
	if err != nil {
		return nil, err
	}
	invoices, err := s.invoiceRepo.FindByBatch(ctx, batch.ID, false)
	if err != nil {
		return nil, storageError(op, err, "invoices")
	}

	statementSide := creditTotals(invoices)
	var booksSide componentTotals
	cache := make(map[uuid.UUID]*models.InternalInvoice)
	missing := []uuid.UUID{}
	linked := 0

	for i := range invoices {
		inv := &invoices[i]
		if inv.MatchedInternalInvoiceID == nil {
			continue
		}
		linked++
		if !inv.ITCEligible {
			continue
		}
		id := *inv.MatchedInternalInvoiceID
		books, seen := cache[id]
		if !seen {
			books, err = s.lookup.GetByID(ctx, batch.CompanyID, id)
			if err != nil {
				return nil, internalError(op, "looking up internal invoice", err)
			}
			cache[id] = books
			if books == nil {
				missing = append(missing, id)
			}
		}
		if books == nil {
			continue
		}
		sign := inv.CreditSign()
		booksSide.IGST = booksSide.IGST.Add(books.IGST.Mul(sign))
		booksSide.CGST = booksSide.CGST.Add(books.CGST.Mul(sign))
		booksSide.SGST = booksSide.SGST.Add(books.SGST.Mul(sign))
		booksSide.Cess = booksSide.Cess.Add(books.Cess.Mul(sign))
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].String() < missing[j].String() })
	return &CreditComparison{
		ImportBatchID:       batch.ID,
		CompanyID:           batch.CompanyID,
		ReturnPeriod:        batch.ReturnPeriod,
		IGST:                compare(statementSide.IGST, booksSide.IGST),
		CGST:                compare(statementSide.CGST, booksSide.CGST),
		SGST:                compare(statementSide.SGST, booksSide.SGST),
		Cess:                compare(statementSide.Cess, booksSide.Cess),
		Total:               compare(statementSide.Total(), booksSide.Total()),
		LinkedInvoices:      linked,
		MissingBookInvoices: missing,
	}, nil
}

func (s *ReconciliationService) batchForPeriod(ctx context.Context, op string, companyID uuid.UUID, returnPeriod string) (*models.ImportBatch, error) {
	period, err := models.ParseReturnPeriod(returnPeriod)
	if err != nil {
		return nil, validationError(op, "return_period", "%v", err)
	}
	batch, err := s.batchRepo.GetByCompanyPeriod(ctx, companyID, period)
	if err != nil {
		return nil, storageError(op, err, "import batch for "+period)
	}
	return batch, nil
}

func (s *ReconciliationService) summarizeBatch(ctx context.Context, batch *models.ImportBatch) (*ReconciliationSummary, error) {
	invoices, err := s.invoiceRepo.FindByBatch(ctx, batch.ID, false)
	if err != nil {
		return nil, storageError("reconciliation summary", err, "invoices")
	}
	return summarize(batch, invoices), nil
}

// summarize is a pure function of the batch and its rows, so repeated calls
// over unchanged data produce identical output.
func summarize(batch *models.ImportBatch, invoices []models.ReconciledInvoice) *ReconciliationSummary {
	sum := &ReconciliationSummary{
		ImportBatchID:         batch.ID,
		CompanyID:             batch.CompanyID,
		ReturnPeriod:          batch.ReturnPeriod,
		Status:                batch.Status,
		TotalInvoices:         len(invoices),
		MatchCounts:           countStatuses(invoices),
		TotalTaxableValue:     decimal.Zero,
		MatchedTaxableValue:   decimal.Zero,
		UnmatchedTaxableValue: decimal.Zero,
		TotalCredit:           decimal.Zero,
		MatchedCredit:         decimal.Zero,
		UnmatchedCredit:       decimal.Zero,
	}
	if batch.ProcessedAt != nil {
		ts := batch.ProcessedAt.UTC()
		sum.ProcessedAt = &ts
	}

	for i := range invoices {
		inv := &invoices[i]
		switch inv.ActionStatus {
		case models.ActionPending:
			sum.ActionCounts.Pending++
		case models.ActionAccepted:
			sum.ActionCounts.Accepted++
		case models.ActionRejected:
			sum.ActionCounts.Rejected++
		case models.ActionManualMatched:
			sum.ActionCounts.ManualMatched++
		}

		sign := inv.CreditSign()
		taxable := inv.TaxableValue.Mul(sign)
		credit := inv.TotalCredit().Mul(sign)
		sum.TotalTaxableValue = sum.TotalTaxableValue.Add(taxable)
		sum.TotalCredit = sum.TotalCredit.Add(credit)
		if inv.MatchedInternalInvoiceID != nil {
			sum.MatchedTaxableValue = sum.MatchedTaxableValue.Add(taxable)
			sum.MatchedCredit = sum.MatchedCredit.Add(credit)
		} else {
			sum.UnmatchedTaxableValue = sum.UnmatchedTaxableValue.Add(taxable)
			sum.UnmatchedCredit = sum.UnmatchedCredit.Add(credit)
		}
	}
	sum.MatchPercentage = percentage(sum.MatchCounts.Matched, sum.TotalInvoices)
	return sum
}

func summarizeSuppliers(invoices []models.ReconciledInvoice) []SupplierSummary {
	bySupplier := make(map[string]*SupplierSummary)
	for i := range invoices {
		inv := &invoices[i]
		ss, ok := bySupplier[inv.SupplierGSTIN]
		if !ok {
			ss = &SupplierSummary{
				SupplierGSTIN:     inv.SupplierGSTIN,
				SupplierName:      inv.SupplierName,
				TotalTaxableValue: decimal.Zero,
				TotalCredit:       decimal.Zero,
			}
			bySupplier[inv.SupplierGSTIN] = ss
		}
		if ss.SupplierName == "" {
			ss.SupplierName = inv.SupplierName
		}

		ss.InvoiceCount++
		switch inv.MatchStatus {
		case models.MatchMatched:
			ss.MatchedCount++
		case models.MatchPartial, models.MatchDiscrepancy:
			ss.PartialCount++
		default:
			ss.UnmatchedCount++
		}
		sign := inv.CreditSign()
		ss.TotalTaxableValue = ss.TotalTaxableValue.Add(inv.TaxableValue.Mul(sign))
		ss.TotalCredit = ss.TotalCredit.Add(inv.TotalCredit().Mul(sign))
	}

	out := make([]SupplierSummary, 0, len(bySupplier))
	for _, ss := range bySupplier {
		ss.MatchPercentage = percentage(ss.MatchedCount, ss.InvoiceCount)
		out = append(out, *ss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierGSTIN < out[j].SupplierGSTIN })
	return out
}

func countStatuses(invoices []models.ReconciledInvoice) MatchCounts {
	var c MatchCounts
	for i := range invoices {
		switch invoices[i].MatchStatus {
		case models.MatchMatched:
			c.Matched++
		case models.MatchPartial:
			c.Partial++
		case models.MatchDiscrepancy:
			c.Discrepancy++
		default:
			c.Unmatched++
		}
	}
	return c
}

// creditTotals sums eligible credit per component. Credit notes count
// negative.
func creditTotals(invoices []models.ReconciledInvoice) componentTotals {
	var t componentTotals
	for i := range invoices {
		inv := &invoices[i]
		sign := inv.CreditSign()
		t.IGST = t.IGST.Add(inv.IGSTCredit.Mul(sign))
		t.CGST = t.CGST.Add(inv.CGSTCredit.Mul(sign))
		t.SGST = t.SGST.Add(inv.SGSTCredit.Mul(sign))
		t.Cess = t.Cess.Add(inv.CessCredit.Mul(sign))
	}
	return t
}

func matchedCredit(invoices []models.ReconciledInvoice) decimal.Decimal {
	total := decimal.Zero
	for i := range invoices {
		inv := &invoices[i]
		if inv.MatchedInternalInvoiceID != nil {
			total = total.Add(inv.TotalCredit().Mul(inv.CreditSign()))
		}
	}
	return total
}

func compare(statement, books decimal.Decimal) ComponentComparison {
	return ComponentComparison{
		Statement:  statement,
		Books:      books,
		Difference: statement.Sub(books),
	}
}

// percentage is part/whole*100 rounded to two places, 0 for an empty whole.
func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
