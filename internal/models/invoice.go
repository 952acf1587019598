package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InternalInvoice is a vendor invoice as recorded in the books. The vendor
// invoice module owns the table; reconciliation only reads it.
type InternalInvoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_vendor_invoice_lookup" json:"company_id"`
	SupplierGSTIN string          `gorm:"size:15;not null;index:idx_vendor_invoice_lookup" json:"supplier_gstin"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `gorm:"index:idx_vendor_invoice_lookup" json:"invoice_date"`
	TaxableValue  decimal.Decimal `gorm:"type:decimal(18,2)" json:"taxable_value"`
	IGST          decimal.Decimal `gorm:"type:decimal(18,2)" json:"igst"`
	CGST          decimal.Decimal `gorm:"type:decimal(18,2)" json:"cgst"`
	SGST          decimal.Decimal `gorm:"type:decimal(18,2)" json:"sgst"`
	Cess          decimal.Decimal `gorm:"type:decimal(18,2)" json:"cess"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (InternalInvoice) TableName() string {
	return "vendor_invoices"
}

func (i *InternalInvoice) TotalTax() decimal.Decimal {
	return i.IGST.Add(i.CGST).Add(i.SGST).Add(i.Cess)
}
