package models

import (
	"time"

	"github.com/google/uuid"
)

// Progress is the live view of a running reconciliation pass.
type Progress struct {
	ImportBatchID uuid.UUID    `json:"import_batch_id"`
	Processed     int          `json:"processed"`
	Total         int          `json:"total"`
	Status        ImportStatus `json:"status"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// All lists every model owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&ImportBatch{},
		&ReconciledInvoice{},
		&InternalInvoice{},
		&InvoiceActionLog{},
	}
}
