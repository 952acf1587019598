package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentType string

const (
	DocumentInvoice    DocumentType = "invoice"
	DocumentCreditNote DocumentType = "credit_note"
	DocumentDebitNote  DocumentType = "debit_note"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocumentInvoice, DocumentCreditNote, DocumentDebitNote:
		return true
	}
	return false
}

type MatchStatus string

const (
	MatchUnmatched   MatchStatus = "unmatched"
	MatchMatched     MatchStatus = "matched"
	MatchPartial     MatchStatus = "partial"
	MatchDiscrepancy MatchStatus = "discrepancy"
)

func (m MatchStatus) Valid() bool {
	switch m {
	case MatchUnmatched, MatchMatched, MatchPartial, MatchDiscrepancy:
		return true
	}
	return false
}

type ActionStatus string

const (
	ActionPending       ActionStatus = "pending"
	ActionAccepted      ActionStatus = "accepted"
	ActionRejected      ActionStatus = "rejected"
	ActionManualMatched ActionStatus = "manual_matched"
)

// MatchSnapshot is the outcome of one automated matcher run. It is kept
// alongside the live match columns so a manual match can be undone.
type MatchSnapshot struct {
	Status                   MatchStatus `json:"status"`
	MatchedInternalInvoiceID *uuid.UUID  `json:"matched_internal_invoice_id,omitempty"`
	Confidence               *int        `json:"confidence,omitempty"`
	Discrepancies            []string    `json:"discrepancies"`
}

// ReconciledInvoice is one invoice-level line of an imported statement.
type ReconciledInvoice struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ImportBatchID uuid.UUID `gorm:"type:uuid;not null;index" json:"import_batch_id"`
	CompanyID     uuid.UUID `gorm:"type:uuid;not null;index:idx_reconciled_company_period" json:"company_id"`
	ReturnPeriod  string    `gorm:"size:7;not null;index:idx_reconciled_company_period" json:"return_period"`

	SupplierGSTIN     string `gorm:"size:15;index" json:"supplier_gstin"`
	SupplierName      string `json:"supplier_name"`
	SupplierTradeName string `json:"supplier_trade_name,omitempty"`

	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DocumentType  DocumentType    `gorm:"size:20;index" json:"document_type"`
	TaxableValue  decimal.Decimal `gorm:"type:decimal(18,2)" json:"taxable_value"`
	IGST          decimal.Decimal `gorm:"type:decimal(18,2)" json:"igst"`
	CGST          decimal.Decimal `gorm:"type:decimal(18,2)" json:"cgst"`
	SGST          decimal.Decimal `gorm:"type:decimal(18,2)" json:"sgst"`
	Cess          decimal.Decimal `gorm:"type:decimal(18,2)" json:"cess"`
	TotalTax      decimal.Decimal `gorm:"-" json:"total_tax"`
	InvoiceValue  decimal.Decimal `gorm:"type:decimal(18,2)" json:"invoice_value"`

	ITCEligible   bool            `json:"itc_eligible"`
	IGSTCredit    decimal.Decimal `gorm:"type:decimal(18,2)" json:"igst_credit"`
	CGSTCredit    decimal.Decimal `gorm:"type:decimal(18,2)" json:"cgst_credit"`
	SGSTCredit    decimal.Decimal `gorm:"type:decimal(18,2)" json:"sgst_credit"`
	CessCredit    decimal.Decimal `gorm:"type:decimal(18,2)" json:"cess_credit"`
	ReverseCharge bool            `json:"reverse_charge"`
	PlaceOfSupply string          `gorm:"size:4" json:"place_of_supply,omitempty"`
	SupplyType    string          `gorm:"size:8" json:"supply_type,omitempty"`

	MatchStatus              MatchStatus                       `gorm:"size:20;index" json:"match_status"`
	MatchedInternalInvoiceID *uuid.UUID                        `gorm:"type:uuid" json:"matched_internal_invoice_id"`
	MatchConfidence          *int                              `json:"match_confidence"`
	Discrepancies            datatypes.JSONSlice[string]       `json:"discrepancies"`
	MatchedAt                *time.Time                        `json:"matched_at,omitempty"`
	AutoMatch                datatypes.JSONType[MatchSnapshot] `json:"-"`

	ActionStatus    ActionStatus `gorm:"size:20;index" json:"action_status"`
	ActionNotes     string       `json:"action_notes,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ActionedAt      *time.Time   `json:"actioned_at,omitempty"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (inv *ReconciledInvoice) AfterFind(tx *gorm.DB) error {
	inv.TotalTax = inv.TaxSum()
	return nil
}

func (inv *ReconciledInvoice) TaxSum() decimal.Decimal {
	return inv.IGST.Add(inv.CGST).Add(inv.SGST).Add(inv.Cess)
}

func (inv *ReconciledInvoice) TotalCredit() decimal.Decimal {
	return inv.IGSTCredit.Add(inv.CGSTCredit).Add(inv.SGSTCredit).Add(inv.CessCredit)
}

// CreditSign is -1 for credit notes, which reduce available credit.
func (inv *ReconciledInvoice) CreditSign() decimal.Decimal {
	if inv.DocumentType == DocumentCreditNote {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// HasBeenMatched reports whether at least one reconciliation pass has run.
func (inv *ReconciledInvoice) HasBeenMatched() bool {
	return inv.MatchedAt != nil
}
