package reconciliation_test

import (
	"sync"

	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/services/reconciliation"
	"itc-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
)

func (s *ServiceSuite) TestReject_RequiresReason() {
	batch := s.reconciled()
	inv := s.invoice(batch.ID, "BILL-9")

	_, err := s.svc.Reject(s.ctx, inv.ID, "   ")

	s.ErrorIs(err, reconciliation.ErrValidation)
	after := s.invoice(batch.ID, "BILL-9")
	s.Equal(models.ActionPending, after.ActionStatus)
	s.Equal(inv.Version, after.Version)
}

func (s *ServiceSuite) TestReject() {
	batch := s.reconciled()
	inv := s.invoice(batch.ID, "BILL-9")

	updated, err := s.svc.Reject(s.ctx, inv.ID, "supplier filed in error")

	s.Require().NoError(err)
	s.Equal(models.ActionRejected, updated.ActionStatus)
	s.Equal("supplier filed in error", updated.RejectionReason)
	s.NotNil(updated.ActionedAt)
	s.Equal(inv.Version+1, updated.Version)

	_, err = s.svc.Reject(s.ctx, s.invoice(batch.ID, "INV-001").ID, "wrong")
	s.ErrorIs(err, reconciliation.ErrInvalidState)
}

func (s *ServiceSuite) TestActionsRequireAReconciliationPass() {
	batch := s.importLines(standardLines()...)
	inv := s.invoice(batch.ID, "BILL-9")

	_, err := s.svc.Reject(s.ctx, inv.ID, "too early")
	s.ErrorIs(err, reconciliation.ErrInvalidState)
	_, err = s.svc.AcceptMismatch(s.ctx, inv.ID, "")
	s.ErrorIs(err, reconciliation.ErrInvalidState)
}

func (s *ServiceSuite) TestAcceptMismatch() {
	batch := s.reconciled()

	_, err := s.svc.AcceptMismatch(s.ctx, s.invoice(batch.ID, "INV-001").ID, "")
	s.ErrorIs(err, reconciliation.ErrInvalidState, "matched invoices have nothing to accept")
	_, err = s.svc.AcceptMismatch(s.ctx, s.invoice(batch.ID, "BILL-9").ID, "")
	s.ErrorIs(err, reconciliation.ErrInvalidState, "unmatched invoices have nothing to accept")

	partial := s.invoice(batch.ID, "INV-002")
	updated, err := s.svc.AcceptMismatch(s.ctx, partial.ID, "freight charged separately")
	s.Require().NoError(err)
	s.Equal(models.ActionAccepted, updated.ActionStatus)
	s.Equal("freight charged separately", updated.ActionNotes)
	s.Equal(models.MatchPartial, updated.MatchStatus)

	_, err = s.svc.AcceptMismatch(s.ctx, partial.ID, "")
	s.ErrorIs(err, reconciliation.ErrInvalidState)
}

func (s *ServiceSuite) TestManualMatchThenResetRestoresAutomatedResult() {
	batch := s.reconciled()
	before := s.invoice(batch.ID, "INV-002")
	other := testutil.BooksInvoice(s.company, supplierA, "INV-2", "2024-04-11", 10000, 0, 450, 450)
	s.addBooks(other)

	matched, err := s.svc.ManualMatch(s.ctx, before.ID, other.ID, "confirmed with supplier")
	s.Require().NoError(err)
	s.Equal(models.ActionManualMatched, matched.ActionStatus)
	s.Require().NotNil(matched.MatchedInternalInvoiceID)
	s.Equal(other.ID, *matched.MatchedInternalInvoiceID)
	s.Require().NotNil(matched.MatchConfidence)
	s.Equal(100, *matched.MatchConfidence)
	s.Empty(matched.Discrepancies)

	reset, err := s.svc.ResetAction(s.ctx, before.ID)
	s.Require().NoError(err)
	s.Equal(models.ActionPending, reset.ActionStatus)
	s.Equal(before.MatchStatus, reset.MatchStatus)
	s.Equal(before.MatchConfidence, reset.MatchConfidence)
	s.Equal(before.MatchedInternalInvoiceID, reset.MatchedInternalInvoiceID)
	s.Equal([]string(before.Discrepancies), []string(reset.Discrepancies))
	s.Nil(reset.ActionedAt)
	s.Empty(reset.ActionNotes)

	history, err := s.svc.ActionHistory(s.ctx, before.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.ActionManualMatch, history[0].Action)
	s.Equal(models.ActionReset, history[1].Action)
	s.Equal(before.MatchedInternalInvoiceID, history[1].NewInvoice)
}

func (s *ServiceSuite) TestManualMatch_OtherCompanyInvoiceIsNotFound() {
	batch := s.reconciled()
	foreign := testutil.BooksInvoice(uuid.New(), supplierB, "BILL-9", "2024-04-12", 5000, 900, 0, 0)
	s.addBooks(foreign)

	_, err := s.svc.ManualMatch(s.ctx, s.invoice(batch.ID, "BILL-9").ID, foreign.ID, "")

	s.ErrorIs(err, reconciliation.ErrNotFound)
	s.Equal(models.ActionPending, s.invoice(batch.ID, "BILL-9").ActionStatus)
}

func (s *ServiceSuite) TestResetAction_NothingToReset() {
	batch := s.reconciled()

	_, err := s.svc.ResetAction(s.ctx, s.invoice(batch.ID, "BILL-9").ID)

	s.ErrorIs(err, reconciliation.ErrInvalidState)
}

func (s *ServiceSuite) TestResetAction_AfterReject() {
	batch := s.reconciled()
	inv := s.invoice(batch.ID, "BILL-9")
	_, err := s.svc.Reject(s.ctx, inv.ID, "not ours")
	s.Require().NoError(err)

	reset, err := s.svc.ResetAction(s.ctx, inv.ID)

	s.Require().NoError(err)
	s.Equal(models.ActionPending, reset.ActionStatus)
	s.Empty(reset.RejectionReason)
	s.Equal(models.MatchUnmatched, reset.MatchStatus)
}

func (s *ServiceSuite) TestActionsConflictWhileProcessing() {
	batch := s.reconciled()
	inv := s.invoice(batch.ID, "INV-002")
	s.setBatchStatus(batch.ID, models.ImportProcessing)

	_, err := s.svc.AcceptMismatch(s.ctx, inv.ID, "")
	s.ErrorIs(err, reconciliation.ErrConflict)
	_, err = s.svc.Reject(s.ctx, inv.ID, "reason")
	s.ErrorIs(err, reconciliation.ErrConflict)
	_, err = s.svc.ResetAction(s.ctx, inv.ID)
	s.ErrorIs(err, reconciliation.ErrConflict)

	s.Equal(models.ActionPending, s.invoice(batch.ID, "INV-002").ActionStatus)
}

func (s *ServiceSuite) TestRacingActionsOnOneInvoice() {
	batch := s.reconciled()
	inv := s.invoice(batch.ID, "INV-002")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = s.svc.AcceptMismatch(s.ctx, inv.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = s.svc.Reject(s.ctx, inv.ID, "price dispute")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := reconciliation.KindOf(err)
		s.Contains([]reconciliation.ErrorKind{reconciliation.KindConflict, reconciliation.KindInvalidState}, kind)
	}
	s.Equal(1, succeeded)

	history, err := s.svc.ActionHistory(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *ServiceSuite) TestActionOnUnknownInvoice() {
	_, err := s.svc.AcceptMismatch(s.ctx, uuid.New(), "")
	s.ErrorIs(err, reconciliation.ErrNotFound)
	_, err = s.svc.ActionHistory(s.ctx, uuid.New())
	s.ErrorIs(err, reconciliation.ErrNotFound)
}
