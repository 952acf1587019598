package reconciliation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/services/reconciliation"
	"itc-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) Store(ctx context.Context, key string, raw []byte) (string, error) {
	args := m.Called(ctx, key, raw)
	return args.String(0), args.Error(1)
}

func (s *ServiceSuite) request(replace bool, lines ...testutil.Line) reconciliation.ImportRequest {
	return reconciliation.ImportRequest{
		CompanyID:    s.company,
		ReturnPeriod: period,
		Raw:          testutil.StatementJSON(recipientGSTIN, portalPeriod, lines...),
		FileName:     "gstr2b.json",
		Replace:      replace,
	}
}

// linesWithBlanks returns n lines of which the first blanks have no invoice
// number.
func linesWithBlanks(n, blanks int) []testutil.Line {
	lines := make([]testutil.Line, 0, n)
	for i := 0; i < n; i++ {
		number := fmt.Sprintf("INV-%03d", i+1)
		if i < blanks {
			number = ""
		}
		lines = append(lines, testutil.Line{Supplier: supplierA, Number: number, Date: "05-04-2024", Taxable: 1000, CGST: 90, SGST: 90})
	}
	return lines
}

func (s *ServiceSuite) TestImportStatement() {
	batch := s.importLines(standardLines()...)

	s.Equal(models.ImportPending, batch.Status)
	s.Equal(period, batch.ReturnPeriod)
	s.Equal(recipientGSTIN, batch.GSTIN)
	s.Equal(models.SourceGSTR2B, batch.Source)
	s.Equal(4, batch.TotalInvoices)
	s.Empty(batch.Warnings)

	stored := s.batch(batch.ID)
	s.Equal("900.00", stored.TotalIGSTCredit.StringFixed(2))
	s.Equal("855.00", stored.TotalCGSTCredit.StringFixed(2))
	s.Equal("855.00", stored.TotalSGSTCredit.StringFixed(2))
	s.Equal("2610.00", stored.TotalCreditAmount.StringFixed(2))

	note := s.invoice(batch.ID, "CN-1")
	s.Equal(models.DocumentCreditNote, note.DocumentType)
	s.Equal(models.MatchUnmatched, note.MatchStatus)
	s.Equal(models.ActionPending, note.ActionStatus)
	s.Nil(note.MatchedAt)
	s.Equal("90.00", note.TotalTax.StringFixed(2))
}

func (s *ServiceSuite) TestImportStatement_Validation() {
	cases := []struct {
		name  string
		req   reconciliation.ImportRequest
		field string
	}{
		{"bad period", reconciliation.ImportRequest{CompanyID: s.company, ReturnPeriod: "2024-13", Raw: []byte("{}")}, "return_period"},
		{"empty body", reconciliation.ImportRequest{CompanyID: s.company, ReturnPeriod: period}, "file"},
		{"not json", reconciliation.ImportRequest{CompanyID: s.company, ReturnPeriod: period, Raw: []byte("not json")}, "file"},
		{"period mismatch", reconciliation.ImportRequest{CompanyID: s.company, ReturnPeriod: "2024-05",
			Raw: testutil.StatementJSON(recipientGSTIN, portalPeriod, standardLines()...)}, "return_period"},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.ImportStatement(s.ctx, tc.req)

			s.Require().ErrorIs(err, reconciliation.ErrValidation)
			var svcErr *reconciliation.Error
			s.Require().True(errors.As(err, &svcErr))
			s.Equal(tc.field, svcErr.Field)
		})
	}
}

func (s *ServiceSuite) TestImportStatement_DuplicatePeriod() {
	first := s.importLines(standardLines()...)

	_, err := s.svc.ImportStatement(s.ctx, s.request(false, standardLines()...))
	s.ErrorIs(err, reconciliation.ErrConflict)

	replaced, err := s.svc.ImportStatement(s.ctx, s.request(true, standardLines()[:2]...))
	s.Require().NoError(err)
	s.NotEqual(first.ID, replaced.ID)
	s.Equal(2, replaced.TotalInvoices)

	_, err = s.svc.GetImportBatch(s.ctx, first.ID)
	s.ErrorIs(err, reconciliation.ErrNotFound)
	var leftover int64
	s.db.Model(&models.ReconciledInvoice{}).Where("import_batch_id = ?", first.ID).Count(&leftover)
	s.Zero(leftover)
}

func (s *ServiceSuite) TestImportStatement_SkipsMalformedWithinThreshold() {
	batch, err := s.svc.ImportStatement(s.ctx, s.request(false, linesWithBlanks(10, 1)...))

	s.Require().NoError(err)
	s.Equal(9, batch.TotalInvoices)
	s.Require().Len(batch.Warnings, 1)
	s.Contains(batch.Warnings[0], "inum")
}

func (s *ServiceSuite) TestImportStatement_TooMalformedFails() {
	_, err := s.svc.ImportStatement(s.ctx, s.request(false, linesWithBlanks(10, 2)...))
	s.Require().ErrorIs(err, reconciliation.ErrValidation)

	page, err := s.svc.ListImportBatches(s.ctx, s.company, models.ImportFailed, models.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	failed := page.Items[0]
	s.Zero(failed.TotalInvoices)
	s.Contains(failed.ErrorMessage, "2 of 10")
	var stored int64
	s.db.Model(&models.ReconciledInvoice{}).Where("import_batch_id = ?", failed.ID).Count(&stored)
	s.Zero(stored)

	// an empty failed import does not block a corrected upload
	batch, err := s.svc.ImportStatement(s.ctx, s.request(false, standardLines()...))
	s.Require().NoError(err)
	s.Equal(models.ImportPending, batch.Status)
}

func (s *ServiceSuite) TestImportStatement_FailedReplaceKeepsPriorBatch() {
	prior := s.importLines(standardLines()...)

	_, err := s.svc.ImportStatement(s.ctx, s.request(true, linesWithBlanks(4, 2)...))
	s.Require().ErrorIs(err, reconciliation.ErrValidation)

	kept := s.batch(prior.ID)
	s.Equal(models.ImportPending, kept.Status)
	s.Equal(4, kept.TotalInvoices)
}

func (s *ServiceSuite) TestImportStatement_ArchivesRawStatement() {
	archive := new(mockArchive)
	opts := reconciliation.DefaultOptions()
	opts.Archive = archive
	svc := newService(s.db, s.vendors, opts)
	req := s.request(false, standardLines()...)

	archive.On("Store", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "statements/"+s.company.String()+"/"+period+"/") && strings.HasSuffix(key, ".json")
	}), req.Raw).Return("s3://statements/key.json", nil).Once()

	batch, err := svc.ImportStatement(s.ctx, req)

	s.Require().NoError(err)
	s.Equal("s3://statements/key.json", batch.SourceURI)
	s.Equal("s3://statements/key.json", s.batch(batch.ID).SourceURI)
	archive.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestImportStatement_ArchiveFailureIsNotFatal() {
	archive := new(mockArchive)
	opts := reconciliation.DefaultOptions()
	opts.Archive = archive
	svc := newService(s.db, s.vendors, opts)
	archive.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket unreachable")).Once()

	batch, err := svc.ImportStatement(s.ctx, s.request(false, standardLines()...))

	s.Require().NoError(err)
	s.Empty(batch.SourceURI)
	archive.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestImportStatement_ConcurrentImportConflicts() {
	competing := false
	err := s.db.Callback().Create().Before("gorm:create").Register("test:competing_import", func(tx *gorm.DB) {
		if competing || tx.Statement.Table != "import_batches" {
			return
		}
		competing = true
		// another request stores the same period between the check and the insert
		other := &models.ImportBatch{
			ID:           uuid.New(),
			CompanyID:    s.company,
			ReturnPeriod: period,
			Status:       models.ImportPending,
			ImportedAt:   time.Now().UTC(),
		}
		_ = tx.Session(&gorm.Session{NewDB: true}).Create(other).Error
	})
	s.Require().NoError(err)

	_, err = s.svc.ImportStatement(s.ctx, s.request(false, standardLines()...))

	s.True(competing)
	s.ErrorIs(err, reconciliation.ErrConflict)
}
