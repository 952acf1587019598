package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// only the first few failures are spelled out on the batch
const maxReportedFailures = 5

const forcedResetRetries = 3

// errClaimLost means the sweeper released the batch under a running pass.
var errClaimLost = errors.New("pass no longer holds the import batch")

type invoiceFailure struct {
	invoiceID uuid.UUID
	err       error
}

// Reconcile runs a matching pass over a batch. A completed batch is not
// recomputed unless force is set; force also re-matches invoices an operator
// already actioned and resets those actions to pending.
func (s *ReconciliationService) Reconcile(ctx context.Context, batchID uuid.UUID, force bool) (*ReconciliationSummary, error) {
	const op = "reconcile"

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, storageError(op, err, "import batch")
	}
	if batch.ImportRejected() {
		return nil, &Error{Kind: KindInvalidState, Op: op,
			Message: fmt.Sprintf("import batch %s was rejected at import (%s); upload a corrected statement", batchID, batch.ErrorMessage)}
	}
	switch batch.Status {
	case models.ImportProcessing:
		return nil, conflictError(op, "import batch %s is already being reconciled", batchID)
	case models.ImportCompleted:
		if !force {
			return s.summarizeBatch(ctx, batch)
		}
	}

	pass := uuid.New()
	claimed, err := s.batchRepo.ClaimForProcessing(ctx, batchID, pass, s.now())
	if err != nil {
		return nil, internalError(op, "claiming import batch", err)
	}
	if !claimed {
		return nil, conflictError(op, "import batch %s is already being reconciled", batchID)
	}

	return s.runPass(ctx, batch, pass, force)
}

func (s *ReconciliationService) runPass(ctx context.Context, batch *models.ImportBatch, pass uuid.UUID, force bool) (*ReconciliationSummary, error) {
	const op = "reconcile"
	started := time.Now()
	beat := &heartbeat{last: s.now()}

	invoices, err := s.invoiceRepo.FindByBatch(ctx, batch.ID, !force)
	if err != nil {
		s.release(ctx, batch.ID, pass, "loading invoices: "+err.Error())
		return nil, internalError(op, "loading invoices", err)
	}

	if force {
		reset, err := s.resetActionsForRematch(ctx, invoices)
		if err != nil {
			s.release(ctx, batch.ID, pass, "resetting operator actions: "+err.Error())
			return nil, internalError(op, "resetting operator actions", err)
		}
		if reset > 0 {
			log.Printf("WARNING: forced reconciliation of batch %s reset %d operator actions to pending", batch.ID, reset)
		}
	}

	if err := s.progress.Start(ctx, batch.ID, len(invoices)); err != nil {
		log.Printf("ERROR publishing progress for batch %s: %v", batch.ID, err)
	}

	matchedAt := s.now()
	var (
		mu       sync.Mutex
		failures []invoiceFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range invoices {
		inv := &invoices[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.matchInvoice(gctx, batch, inv, matchedAt, !force); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				failures = append(failures, invoiceFailure{invoiceID: inv.ID, err: err})
				mu.Unlock()
			}
			if err := s.progress.Advance(gctx, batch.ID); err != nil {
				log.Printf("ERROR publishing progress for batch %s: %v", batch.ID, err)
			}
			return s.beat(gctx, batch.ID, pass, beat)
		})
	}

	// every invoice write lands before the aggregates are rebuilt
	if err := g.Wait(); err != nil {
		if errors.Is(err, errClaimLost) {
			return nil, s.claimLost(op, batch.ID)
		}
		reason := "interrupted: " + err.Error()
		s.release(ctx, batch.ID, pass, reason)
		log.Printf("Reconciliation of batch %s %s", batch.ID, reason)
		return nil, internalError(op, "reconciliation interrupted", err)
	}

	finishCtx := context.WithoutCancel(ctx)
	updated, err := s.finalize(finishCtx, batch.ID, pass, failures)
	if errors.Is(err, errClaimLost) {
		return nil, s.claimLost(op, batch.ID)
	}
	if err != nil {
		s.release(ctx, batch.ID, pass, "recomputing aggregates: "+err.Error())
		return nil, internalError(op, "recomputing aggregates", err)
	}

	log.Printf("Reconciled batch %s: %d invoices in %s, %d matched, %d partial, %d unmatched, %d failed",
		batch.ID, len(invoices), time.Since(started).Round(time.Millisecond),
		updated.MatchedInvoices, updated.PartiallyMatchedInvoices, updated.UnmatchedInvoices, len(failures))

	if len(failures) > 0 {
		first := failures[0]
		return nil, &Error{
			Kind:      KindInternal,
			Op:        op,
			Message:   updated.ErrorMessage,
			InvoiceID: &first.invoiceID,
			Err:       first.err,
		}
	}
	return s.summarizeBatch(finishCtx, updated)
}

func (s *ReconciliationService) matchInvoice(ctx context.Context, batch *models.ImportBatch, inv *models.ReconciledInvoice, matchedAt time.Time, pendingOnly bool) error {
	candidates, err := s.lookup.FindBySupplierAndDateWindow(ctx, batch.CompanyID, inv.SupplierGSTIN, inv.InvoiceDate, s.engine.Config().DateWindowDays)
	if err != nil {
		return fmt.Errorf("candidate lookup: %w", err)
	}

	result := s.engine.Match(inv, candidates)
	if _, err := s.invoiceRepo.SaveMatchResult(ctx, inv.ID, result.Snapshot(), matchedAt, pendingOnly); err != nil {
		return fmt.Errorf("saving match result: %w", err)
	}
	return nil
}

// finalize rebuilds the batch counters from the stored invoices and closes
// the pass.
func (s *ReconciliationService) finalize(ctx context.Context, batchID, pass uuid.UUID, failures []invoiceFailure) (*models.ImportBatch, error) {
	invoices, err := s.invoiceRepo.FindByBatch(ctx, batchID, false)
	if err != nil {
		return nil, err
	}

	counts := countStatuses(invoices)
	credit := creditTotals(invoices)
	fields := map[string]interface{}{
		"total_invoices":             len(invoices),
		"matched_invoices":           counts.Matched,
		"partially_matched_invoices": counts.Partial + counts.Discrepancy,
		"unmatched_invoices":         counts.Unmatched,
		"total_igst_credit":          credit.IGST,
		"total_cgst_credit":          credit.CGST,
		"total_sgst_credit":          credit.SGST,
		"total_cess_credit":          credit.Cess,
		"matched_credit_amount":      matchedCredit(invoices),
		"processed_at":               s.now(),
		"status":                     models.ImportCompleted,
		"error_message":              "",
	}
	status := models.ImportCompleted
	if len(failures) > 0 {
		status = models.ImportFailed
		fields["status"] = status
		fields["error_message"] = failureMessage(failures)
	}

	held, err := s.batchRepo.FinishPass(ctx, batchID, pass, fields)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, errClaimLost
	}
	if err := s.progress.Finish(ctx, batchID, status); err != nil {
		log.Printf("ERROR publishing progress for batch %s: %v", batchID, err)
	}
	return s.batchRepo.GetByID(ctx, batchID)
}

// release marks an unfinished pass as failed so the batch can be
// reconciled again. It must succeed even when ctx is already cancelled.
func (s *ReconciliationService) release(ctx context.Context, batchID, pass uuid.UUID, reason string) {
	ctx = context.WithoutCancel(ctx)
	held, err := s.batchRepo.FinishPass(ctx, batchID, pass, map[string]interface{}{
		"status":        models.ImportFailed,
		"error_message": reason,
	})
	if err != nil {
		log.Printf("ERROR releasing batch %s: %v", batchID, err)
	}
	if !held {
		return
	}
	if err := s.progress.Finish(ctx, batchID, models.ImportFailed); err != nil {
		log.Printf("ERROR publishing progress for batch %s: %v", batchID, err)
	}
}

type heartbeat struct {
	mu   sync.Mutex
	last time.Time
}

// beat refreshes the batch heartbeat at most once per heartbeat interval and
// fails with errClaimLost once the batch was taken from this pass.
func (s *ReconciliationService) beat(ctx context.Context, batchID, pass uuid.UUID, hb *heartbeat) error {
	now := s.now()
	hb.mu.Lock()
	due := now.Sub(hb.last) >= s.heartbeatInterval
	if due {
		hb.last = now
	}
	hb.mu.Unlock()
	if !due {
		return nil
	}

	held, err := s.batchRepo.Heartbeat(ctx, batchID, pass, now)
	if err != nil {
		log.Printf("ERROR refreshing heartbeat for batch %s: %v", batchID, err)
		return nil
	}
	if !held {
		return errClaimLost
	}
	return nil
}

func (s *ReconciliationService) claimLost(op string, batchID uuid.UUID) error {
	log.Printf("WARNING: reconciliation of batch %s abandoned, the batch was released while the pass ran", batchID)
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf("import batch %s was released while being reconciled", batchID), Err: errClaimLost}
}

func failureMessage(failures []invoiceFailure) string {
	parts := make([]string, 0, maxReportedFailures)
	for i, f := range failures {
		if i == maxReportedFailures {
			break
		}
		parts = append(parts, fmt.Sprintf("invoice %s: %v", f.invoiceID, f.err))
	}
	msg := fmt.Sprintf("%d invoices failed: %s", len(failures), strings.Join(parts, "; "))
	if len(failures) > maxReportedFailures {
		msg += "; ..."
	}
	return msg
}

// resetActionsForRematch returns every actioned invoice to pending ahead of a
// forced pass. Each reset is logged against the invoice.
func (s *ReconciliationService) resetActionsForRematch(ctx context.Context, invoices []models.ReconciledInvoice) (int, error) {
	reset := 0
	for i := range invoices {
		inv := &invoices[i]
		if inv.ActionStatus == models.ActionPending {
			continue
		}
		done, err := s.forceReset(ctx, inv)
		if err != nil {
			return reset, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		if done {
			reset++
		}
	}
	return reset, nil
}

func (s *ReconciliationService) forceReset(ctx context.Context, inv *models.ReconciledInvoice) (bool, error) {
	current := inv
	for attempt := 0; attempt < forcedResetRetries; attempt++ {
		if current.ActionStatus == models.ActionPending {
			return false, nil
		}

		swapped := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.invoiceRepo.WithTx(tx).CompareAndSwap(ctx, current.ID, current.Version, resetFields(current))
			if err != nil || !ok {
				return err
			}
			swapped = true
			return s.logRepo.WithTx(tx).Create(ctx, transitionLog(current, models.ActionForcedReset, models.ActionPending,
				restoredMatchID(current), "reset by forced reconciliation"))
		})
		if err != nil {
			return false, err
		}
		if swapped {
			return true, nil
		}

		reloaded, err := s.invoiceRepo.GetByID(ctx, current.ID)
		if err != nil {
			return false, err
		}
		current = reloaded
	}
	return false, fmt.Errorf("invoice kept changing after %d attempts", forcedResetRetries)
}
