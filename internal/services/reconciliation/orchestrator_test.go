package reconciliation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/repository"
	"itc-reconciliation-backend/internal/services/reconciliation"
	mock_reconciliation "itc-reconciliation-backend/internal/services/reconciliation/mocks"
	"itc-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
)

func (s *ServiceSuite) TestReconcile_ClassifiesAndCounts() {
	inv001, _ := s.addStandardBooks()
	batch := s.importLines(standardLines()...)

	summary, err := s.svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)

	s.Equal(models.ImportCompleted, summary.Status)
	s.Equal(4, summary.TotalInvoices)
	s.Equal(reconciliation.MatchCounts{Matched: 1, Partial: 1, Unmatched: 2}, summary.MatchCounts)
	s.Equal(25.0, summary.MatchPercentage)

	stored := s.batch(batch.ID)
	s.Equal(models.ImportCompleted, stored.Status)
	s.Equal(1, stored.MatchedInvoices)
	s.Equal(1, stored.PartiallyMatchedInvoices)
	s.Equal(2, stored.UnmatchedInvoices)
	s.Equal(stored.TotalInvoices, stored.MatchedInvoices+stored.PartiallyMatchedInvoices+stored.UnmatchedInvoices)
	s.Equal("1800.00", stored.MatchedCreditAmount.StringFixed(2))
	s.NotNil(stored.ProcessedAt)

	matched := s.invoice(batch.ID, "INV-001")
	s.Equal(models.MatchMatched, matched.MatchStatus)
	s.Require().NotNil(matched.MatchedInternalInvoiceID)
	s.Equal(inv001.ID, *matched.MatchedInternalInvoiceID)
	s.NotNil(matched.MatchedAt)
	s.Empty(matched.Discrepancies)

	partial := s.invoice(batch.ID, "INV-002")
	s.Equal(models.MatchPartial, partial.MatchStatus)
	s.Contains(partial.Discrepancies, "taxable value: statement 10000.00 vs books 10500.00")

	unmatched := s.invoice(batch.ID, "BILL-9")
	s.Equal(models.MatchUnmatched, unmatched.MatchStatus)
	s.Nil(unmatched.MatchedInternalInvoiceID)
	s.Nil(unmatched.MatchConfidence)
}

func (s *ServiceSuite) TestReconcile_CompletedBatchIsIdempotent() {
	batch := s.reconciled()

	first, err := s.svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)
	second, err := s.svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)

	a, err := json.Marshal(first)
	s.Require().NoError(err)
	b, err := json.Marshal(second)
	s.Require().NoError(err)
	s.Equal(string(a), string(b))
}

func (s *ServiceSuite) TestReconcile_ForceResetsOperatorActions() {
	batch := s.reconciled()
	unmatched := s.invoice(batch.ID, "BILL-9")
	_, err := s.svc.Reject(s.ctx, unmatched.ID, "duplicate upload by supplier")
	s.Require().NoError(err)
	// books arrive later but the operator already decided
	s.addBooks(testutil.BooksInvoice(s.company, supplierB, "BILL-9", "2024-04-12", 5000, 900, 0, 0))

	_, err = s.svc.Reconcile(s.ctx, batch.ID, true)
	s.Require().NoError(err)
	forced := s.invoice(batch.ID, "BILL-9")
	s.Equal(models.ActionPending, forced.ActionStatus)
	s.Equal(models.MatchMatched, forced.MatchStatus)
	s.Empty(forced.RejectionReason)

	history, err := s.svc.ActionHistory(s.ctx, unmatched.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.ActionReject, history[0].Action)
	s.Equal(models.ActionForcedReset, history[1].Action)
	s.Equal(models.ActionRejected, history[1].FromStatus)
}

func (s *ServiceSuite) TestReconcile_NonForcedPassLeavesActionedRows() {
	batch := s.importLines(standardLines()...)
	_, err := s.svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)

	unmatched := s.invoice(batch.ID, "BILL-9")
	_, err = s.svc.Reject(s.ctx, unmatched.ID, "not received")
	s.Require().NoError(err)
	s.setBatchStatus(batch.ID, models.ImportFailed)
	s.addBooks(testutil.BooksInvoice(s.company, supplierB, "BILL-9", "2024-04-12", 5000, 900, 0, 0))

	_, err = s.svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)

	still := s.invoice(batch.ID, "BILL-9")
	s.Equal(models.ActionRejected, still.ActionStatus)
	s.Equal(models.MatchUnmatched, still.MatchStatus)
}

func (s *ServiceSuite) TestReconcile_Errors() {
	_, err := s.svc.Reconcile(s.ctx, uuid.New(), false)
	s.ErrorIs(err, reconciliation.ErrNotFound)

	batch := s.importLines(standardLines()...)
	s.setBatchStatus(batch.ID, models.ImportProcessing)
	_, err = s.svc.Reconcile(s.ctx, batch.ID, false)
	s.ErrorIs(err, reconciliation.ErrConflict)
}

func (s *ServiceSuite) TestReconcile_ConcurrentPassConflicts() {
	batch := s.importLines(standardLines()[0])
	ctrl := gomock.NewController(s.T())
	lookup := mock_reconciliation.NewMockInternalInvoiceLookup(ctrl)
	svc := newService(s.db, lookup, reconciliation.DefaultOptions())

	entered := make(chan struct{})
	release := make(chan struct{})
	lookup.EXPECT().
		FindBySupplierAndDateWindow(gomock.Any(), s.company, supplierA, gomock.Any(), 45).
		DoAndReturn(func(ctx context.Context, companyID uuid.UUID, supplier string, center time.Time, window int) ([]models.InternalInvoice, error) {
			close(entered)
			<-release
			return nil, nil
		}).
		Times(1)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Reconcile(s.ctx, batch.ID, false)
		done <- err
	}()

	<-entered
	_, err := svc.Reconcile(s.ctx, batch.ID, false)
	s.ErrorIs(err, reconciliation.ErrConflict)

	close(release)
	s.NoError(<-done)
	s.Equal(models.ImportCompleted, s.batch(batch.ID).Status)
}

func (s *ServiceSuite) TestReconcile_InvoiceFailureMarksBatchFailed() {
	batch := s.importLines(standardLines()[0], standardLines()[2])
	ctrl := gomock.NewController(s.T())
	lookup := mock_reconciliation.NewMockInternalInvoiceLookup(ctrl)
	svc := newService(s.db, lookup, reconciliation.DefaultOptions())

	lookup.EXPECT().
		FindBySupplierAndDateWindow(gomock.Any(), s.company, supplierA, gomock.Any(), gomock.Any()).
		Return(nil, errors.New("books unavailable"))
	lookup.EXPECT().
		FindBySupplierAndDateWindow(gomock.Any(), s.company, supplierB, gomock.Any(), gomock.Any()).
		Return(nil, nil)

	_, err := svc.Reconcile(s.ctx, batch.ID, false)

	s.Require().ErrorIs(err, reconciliation.ErrInternal)
	failing := s.invoice(batch.ID, "INV-001")
	var svcErr *reconciliation.Error
	s.Require().True(errors.As(err, &svcErr))
	s.Require().NotNil(svcErr.InvoiceID)
	s.Equal(failing.ID, *svcErr.InvoiceID)

	stored := s.batch(batch.ID)
	s.Equal(models.ImportFailed, stored.Status)
	s.Contains(stored.ErrorMessage, failing.ID.String())
	s.Contains(stored.ErrorMessage, "books unavailable")

	// the healthy invoice keeps its result
	s.NotNil(s.invoice(batch.ID, "BILL-9").MatchedAt)
	s.Nil(failing.MatchedAt)
}

func (s *ServiceSuite) TestReconcile_CancelledPassCanResume() {
	batch := s.importLines(standardLines()[0])
	ctrl := gomock.NewController(s.T())
	lookup := mock_reconciliation.NewMockInternalInvoiceLookup(ctrl)
	opts := reconciliation.DefaultOptions()
	opts.Workers = 1
	svc := newService(s.db, lookup, opts)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	lookup.EXPECT().
		FindBySupplierAndDateWindow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID, string, time.Time, int) ([]models.InternalInvoice, error) {
			cancel()
			return nil, context.Canceled
		}).
		Times(1)

	_, err := svc.Reconcile(ctx, batch.ID, false)
	s.Require().ErrorIs(err, reconciliation.ErrInternal)
	interrupted := s.batch(batch.ID)
	s.Equal(models.ImportFailed, interrupted.Status)
	s.Contains(interrupted.ErrorMessage, "interrupted")

	lookup.EXPECT().
		FindBySupplierAndDateWindow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, nil)

	summary, err := svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)
	s.Equal(models.ImportCompleted, summary.Status)
	s.Equal(1, summary.MatchCounts.Unmatched)
}

func (s *ServiceSuite) TestReconcile_CountersAlwaysAddUp() {
	s.addStandardBooks()
	s.addBooks(testutil.BooksInvoice(s.company, supplierB, "BILL-9X", "2024-04-12", 5000, 900, 0, 0))
	batch := s.importLines(append(standardLines(), linesWithBlanks(6, 0)...)...)

	for _, force := range []bool{false, true, false} {
		_, err := s.svc.Reconcile(s.ctx, batch.ID, force)
		s.Require().NoError(err)
		b := s.batch(batch.ID)
		s.Equal(b.TotalInvoices, b.MatchedInvoices+b.PartiallyMatchedInvoices+b.UnmatchedInvoices)
	}
}

func (s *ServiceSuite) TestReconcile_RejectedImportIsRefused() {
	_, err := s.svc.ImportStatement(s.ctx, s.request(false, linesWithBlanks(10, 2)...))
	s.Require().ErrorIs(err, reconciliation.ErrValidation)
	page, err := s.svc.ListImportBatches(s.ctx, s.company, models.ImportFailed, models.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	rejected := page.Items[0]

	for _, force := range []bool{false, true} {
		_, err = s.svc.Reconcile(s.ctx, rejected.ID, force)
		s.ErrorIs(err, reconciliation.ErrInvalidState, "force=%v", force)
	}

	stored := s.batch(rejected.ID)
	s.Equal(models.ImportFailed, stored.Status)
	s.Contains(stored.ErrorMessage, "2 of 10")
	s.Nil(stored.ProcessingStartedAt)

	batch, err := s.svc.ImportStatement(s.ctx, s.request(false, standardLines()...))
	s.Require().NoError(err)
	s.Equal(models.ImportPending, batch.Status)
}

func (s *ServiceSuite) TestReconcile_ReleasedPassGivesUpTheBatch() {
	batch := s.importLines(standardLines()[0])
	ctrl := gomock.NewController(s.T())
	lookup := mock_reconciliation.NewMockInternalInvoiceLookup(ctrl)
	svc := newService(s.db, lookup, reconciliation.DefaultOptions())

	entered := make(chan struct{})
	release := make(chan struct{})
	lookup.EXPECT().
		FindBySupplierAndDateWindow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID, string, time.Time, int) ([]models.InternalInvoice, error) {
			close(entered)
			<-release
			return nil, nil
		}).
		Times(1)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Reconcile(s.ctx, batch.ID, false)
		done <- err
	}()
	<-entered

	// the sweeper frees the batch and a new pass takes it over
	repo := repository.NewImportBatchRepository(s.db)
	n, err := repo.FailStaleProcessing(s.ctx, time.Now().UTC().Add(time.Hour), "interrupted")
	s.Require().NoError(err)
	s.Require().Equal(int64(1), n)
	claimed, err := repo.ClaimForProcessing(s.ctx, batch.ID, uuid.New(), time.Now().UTC())
	s.Require().NoError(err)
	s.Require().True(claimed)

	close(release)
	s.ErrorIs(<-done, reconciliation.ErrConflict)

	stored := s.batch(batch.ID)
	s.Equal(models.ImportProcessing, stored.Status)
	s.Empty(stored.ErrorMessage)
	s.Nil(stored.ProcessedAt)
}

func (s *ServiceSuite) TestReconcile_HeartbeatAdvancesDuringPass() {
	var mu sync.Mutex
	tick := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	opts := reconciliation.DefaultOptions()
	opts.HeartbeatInterval = time.Second
	opts.Clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	svc := newService(s.db, s.vendors, opts)
	batch := s.importLines(standardLines()...)

	_, err := svc.Reconcile(s.ctx, batch.ID, false)
	s.Require().NoError(err)

	stored := s.batch(batch.ID)
	s.Require().NotNil(stored.ProcessingStartedAt)
	s.Require().NotNil(stored.HeartbeatAt)
	s.True(stored.HeartbeatAt.After(*stored.ProcessingStartedAt))
}
