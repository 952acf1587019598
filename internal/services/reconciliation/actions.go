package reconciliation

import (
	"context"
	"log"
	"strings"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const manualMatchConfidence = 100

// transition is one planned workflow change on an invoice.
type transition struct {
	action   models.InvoiceAction
	to       models.ActionStatus
	fields   map[string]interface{}
	newMatch *uuid.UUID
	reason   string
}

// AcceptMismatch records that the operator accepts a partial or
// discrepant match as it stands.
func (s *ReconciliationService) AcceptMismatch(ctx context.Context, invoiceID uuid.UUID, notes string) (*models.ReconciledInvoice, error) {
	const op = "accept mismatch"
	return s.applyAction(ctx, op, invoiceID, func(inv *models.ReconciledInvoice) (*transition, error) {
		if err := requirePending(op, inv); err != nil {
			return nil, err
		}
		if inv.MatchStatus != models.MatchPartial && inv.MatchStatus != models.MatchDiscrepancy {
			return nil, invalidStateError(op, inv.ID, "only partial or discrepancy matches can be accepted, invoice is %s", inv.MatchStatus)
		}
		notes = strings.TrimSpace(notes)
		return &transition{
			action:   models.ActionAcceptMismatch,
			to:       models.ActionAccepted,
			newMatch: inv.MatchedInternalInvoiceID,
			reason:   notes,
			fields: map[string]interface{}{
				"action_status": models.ActionAccepted,
				"action_notes":  notes,
			},
		}, nil
	})
}

func (s *ReconciliationService) Reject(ctx context.Context, invoiceID uuid.UUID, reason string) (*models.ReconciledInvoice, error) {
	const op = "reject"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Field: "reason", InvoiceID: &invoiceID, Message: "a rejection reason is required"}
	}

	return s.applyAction(ctx, op, invoiceID, func(inv *models.ReconciledInvoice) (*transition, error) {
		if err := requirePending(op, inv); err != nil {
			return nil, err
		}
		if inv.MatchStatus == models.MatchMatched {
			return nil, invalidStateError(op, inv.ID, "a fully matched invoice cannot be rejected")
		}
		return &transition{
			action:   models.ActionReject,
			to:       models.ActionRejected,
			newMatch: inv.MatchedInternalInvoiceID,
			reason:   reason,
			fields: map[string]interface{}{
				"action_status":    models.ActionRejected,
				"rejection_reason": reason,
			},
		}, nil
	})
}

// ManualMatch links the invoice to a books invoice chosen by the operator.
// The books invoice must belong to the same company.
func (s *ReconciliationService) ManualMatch(ctx context.Context, invoiceID, internalInvoiceID uuid.UUID, notes string) (*models.ReconciledInvoice, error) {
	const op = "manual match"
	if internalInvoiceID == uuid.Nil {
		return nil, &Error{Kind: KindValidation, Op: op, Field: "internal_invoice_id", InvoiceID: &invoiceID, Message: "internal invoice id is required"}
	}

	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, storageError(op, err, "invoice")
	}
	books, err := s.lookup.GetByID(ctx, inv.CompanyID, internalInvoiceID)
	if err != nil {
		return nil, internalError(op, "looking up internal invoice", err)
	}
	if books == nil {
		return nil, &Error{
			Kind:      KindNotFound,
			Op:        op,
			Field:     "internal_invoice_id",
			InvoiceID: &invoiceID,
			Message:   "internal invoice " + internalInvoiceID.String() + " not found for this company",
		}
	}

	return s.applyAction(ctx, op, invoiceID, func(inv *models.ReconciledInvoice) (*transition, error) {
		if err := requirePending(op, inv); err != nil {
			return nil, err
		}
		matchID := books.ID
		confidence := manualMatchConfidence
		notes = strings.TrimSpace(notes)
		return &transition{
			action:   models.ActionManualMatch,
			to:       models.ActionManualMatched,
			newMatch: &matchID,
			reason:   notes,
			fields: map[string]interface{}{
				"action_status":               models.ActionManualMatched,
				"action_notes":                notes,
				"matched_internal_invoice_id": &matchID,
				"match_confidence":            &confidence,
				"discrepancies":               datatypes.NewJSONSlice([]string{}),
			},
		}, nil
	})
}

// ResetAction returns an actioned invoice to pending. Undoing a manual
// match restores the last automated match result.
func (s *ReconciliationService) ResetAction(ctx context.Context, invoiceID uuid.UUID) (*models.ReconciledInvoice, error) {
	const op = "reset action"
	return s.applyAction(ctx, op, invoiceID, func(inv *models.ReconciledInvoice) (*transition, error) {
		if inv.ActionStatus == models.ActionPending {
			return nil, invalidStateError(op, inv.ID, "invoice has no action to reset")
		}
		return &transition{
			action:   models.ActionReset,
			to:       models.ActionPending,
			newMatch: restoredMatchID(inv),
			fields:   resetFields(inv),
		}, nil
	})
}

func (s *ReconciliationService) applyAction(
	ctx context.Context,
	op string,
	invoiceID uuid.UUID,
	plan func(inv *models.ReconciledInvoice) (*transition, error),
) (*models.ReconciledInvoice, error) {

	var updated *models.ReconciledInvoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoices := s.invoiceRepo.WithTx(tx)

		inv, err := invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return storageError(op, err, "invoice")
		}
		batch, err := s.batchRepo.WithTx(tx).GetByID(ctx, inv.ImportBatchID)
		if err != nil {
			return storageError(op, err, "import batch")
		}
		if batch.Status == models.ImportProcessing {
			return &Error{Kind: KindConflict, Op: op, InvoiceID: &inv.ID,
				Message: "import batch " + batch.ID.String() + " is being reconciled"}
		}
		if !inv.HasBeenMatched() {
			return invalidStateError(op, inv.ID, "invoice has not been reconciled yet")
		}

		t, err := plan(inv)
		if err != nil {
			return err
		}
		if t.to == models.ActionPending {
			t.fields["actioned_at"] = nil
		} else {
			t.fields["actioned_at"] = s.now()
		}

		ok, err := invoices.CompareAndSwap(ctx, inv.ID, inv.Version, t.fields)
		if err != nil {
			return internalError(op, "updating invoice", err)
		}
		if !ok {
			return &Error{Kind: KindConflict, Op: op, InvoiceID: &inv.ID, Message: "invoice was changed by another request, reload and retry"}
		}

		entry := transitionLog(inv, t.action, t.to, t.newMatch, t.reason)
		if err := s.logRepo.WithTx(tx).Create(ctx, entry); err != nil {
			return internalError(op, "recording action", err)
		}

		updated, err = invoices.GetByID(ctx, inv.ID)
		if err != nil {
			return internalError(op, "reloading invoice", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Invoice %s: %s (%s)", invoiceID, op, updated.ActionStatus)
	return updated, nil
}

func requirePending(op string, inv *models.ReconciledInvoice) error {
	if inv.ActionStatus != models.ActionPending {
		return invalidStateError(op, inv.ID, "invoice is already %s", inv.ActionStatus)
	}
	return nil
}

// lastAutomatedResult is the stored matcher outcome, or unmatched defaults
// when no pass has run.
func lastAutomatedResult(inv *models.ReconciledInvoice) models.MatchSnapshot {
	snap := inv.AutoMatch.Data()
	if snap.Status == "" {
		snap = models.MatchSnapshot{Status: models.MatchUnmatched}
	}
	if snap.Discrepancies == nil {
		snap.Discrepancies = []string{}
	}
	return snap
}

func resetFields(inv *models.ReconciledInvoice) map[string]interface{} {
	fields := map[string]interface{}{
		"action_status":    models.ActionPending,
		"action_notes":     "",
		"rejection_reason": "",
		"actioned_at":      nil,
	}
	if inv.ActionStatus == models.ActionManualMatched {
		snap := lastAutomatedResult(inv)
		fields["match_status"] = snap.Status
		fields["matched_internal_invoice_id"] = snap.MatchedInternalInvoiceID
		fields["match_confidence"] = snap.Confidence
		fields["discrepancies"] = datatypes.NewJSONSlice(snap.Discrepancies)
	}
	return fields
}

func restoredMatchID(inv *models.ReconciledInvoice) *uuid.UUID {
	if inv.ActionStatus == models.ActionManualMatched {
		return lastAutomatedResult(inv).MatchedInternalInvoiceID
	}
	return inv.MatchedInternalInvoiceID
}

func transitionLog(inv *models.ReconciledInvoice, action models.InvoiceAction, to models.ActionStatus, newMatch *uuid.UUID, reason string) *models.InvoiceActionLog {
	return &models.InvoiceActionLog{
		ID:              uuid.New(),
		InvoiceID:       inv.ID,
		ImportBatchID:   inv.ImportBatchID,
		Action:          action,
		FromStatus:      inv.ActionStatus,
		ToStatus:        to,
		PreviousInvoice: inv.MatchedInternalInvoiceID,
		NewInvoice:      newMatch,
		Reason:          reason,
	}
}
