package models

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceAction string

const (
	ActionAcceptMismatch InvoiceAction = "accept_mismatch"
	ActionReject         InvoiceAction = "reject"
	ActionManualMatch    InvoiceAction = "manual_match"
	ActionReset          InvoiceAction = "reset"
	ActionForcedReset    InvoiceAction = "forced_reset"
)

// InvoiceActionLog records one workflow transition on a reconciled invoice.
type InvoiceActionLog struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID       uuid.UUID     `gorm:"type:uuid;index" json:"invoice_id"`
	ImportBatchID   uuid.UUID     `gorm:"type:uuid;index" json:"import_batch_id"`
	Action          InvoiceAction `gorm:"size:32" json:"action"`
	FromStatus      ActionStatus  `gorm:"size:20" json:"from_status"`
	ToStatus        ActionStatus  `gorm:"size:20" json:"to_status"`
	PreviousInvoice *uuid.UUID    `gorm:"type:uuid" json:"previous_internal_invoice_id,omitempty"`
	NewInvoice      *uuid.UUID    `gorm:"type:uuid" json:"new_internal_invoice_id,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
