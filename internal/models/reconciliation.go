package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// SourceGSTR2B identifies statements imported from the GSTR-2B JSON download.
const SourceGSTR2B = "gstr2b-json"

// ImportBatch is one imported statement for a company and return period.
// Counters are rewritten after every reconciliation pass.
type ImportBatch struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_import_company_period" json:"company_id"`
	ReturnPeriod string       `gorm:"size:7;not null;uniqueIndex:idx_import_company_period" json:"return_period"`
	GSTIN        string       `gorm:"size:15" json:"gstin"`
	Source       string       `gorm:"size:32" json:"source"`
	SourceURI    string       `json:"source_uri,omitempty"`
	FileName     string       `json:"file_name,omitempty"`
	Status       ImportStatus `gorm:"size:20;index" json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`

	Warnings datatypes.JSONSlice[string] `json:"warnings"`

	TotalInvoices            int `json:"total_invoices"`
	MatchedInvoices          int `json:"matched_invoices"`
	PartiallyMatchedInvoices int `json:"partially_matched_invoices"`
	UnmatchedInvoices        int `json:"unmatched_invoices"`

	TotalIGSTCredit     decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_igst_credit"`
	TotalCGSTCredit     decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_cgst_credit"`
	TotalSGSTCredit     decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_sgst_credit"`
	TotalCessCredit     decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_cess_credit"`
	MatchedCreditAmount decimal.Decimal `gorm:"type:decimal(18,2)" json:"matched_credit_amount"`

	// Derived from the component totals on load, never stored.
	TotalCreditAmount decimal.Decimal `gorm:"-" json:"total_credit_amount"`

	ImportedAt          time.Time  `json:"imported_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	// HeartbeatAt is refreshed while a pass runs; PassID names the pass
	// holding the claim.
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
	PassID      *uuid.UUID `gorm:"type:uuid" json:"-"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ImportRejected reports an import that failed before any pass ran. Such a
// batch holds no invoices and is only ever replaced.
func (b *ImportBatch) ImportRejected() bool {
	return b.Status == ImportFailed && b.ProcessingStartedAt == nil
}

func (b *ImportBatch) AfterFind(tx *gorm.DB) error {
	b.FillDerived()
	return nil
}

func (b *ImportBatch) AfterCreate(tx *gorm.DB) error {
	b.FillDerived()
	return nil
}

// FillDerived recomputes fields that are not persisted.
func (b *ImportBatch) FillDerived() {
	b.TotalCreditAmount = b.TotalIGSTCredit.
		Add(b.TotalCGSTCredit).
		Add(b.TotalSGSTCredit).
		Add(b.TotalCessCredit)
}
