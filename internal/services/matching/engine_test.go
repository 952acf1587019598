package matching

import (
	"testing"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var supplier = "29ABCDE1234F1Z5"

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func statementInvoice(number string, date time.Time, taxable, cgst, sgst string) *models.ReconciledInvoice {
	return &models.ReconciledInvoice{
		ID:            uuid.New(),
		SupplierGSTIN: supplier,
		InvoiceNumber: number,
		InvoiceDate:   date,
		DocumentType:  models.DocumentInvoice,
		TaxableValue:  decimal.RequireFromString(taxable),
		CGST:          decimal.RequireFromString(cgst),
		SGST:          decimal.RequireFromString(sgst),
	}
}

func booksInvoice(id uuid.UUID, number string, date time.Time, taxable, cgst, sgst string) models.InternalInvoice {
	return models.InternalInvoice{
		ID:            id,
		SupplierGSTIN: supplier,
		InvoiceNumber: number,
		InvoiceDate:   date,
		TaxableValue:  decimal.RequireFromString(taxable),
		CGST:          decimal.RequireFromString(cgst),
		SGST:          decimal.RequireFromString(sgst),
	}
}

func TestNormalizeInvoiceNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INV-001", "inv001"},
		{"inv 001", "inv001"},
		{"INV/001", "inv001"},
		{"00123", "123"},
		{" 0A-12 ", "a12"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeInvoiceNumber(tt.in), tt.in)
	}
	assert.Equal(t, NormalizeInvoiceNumber("INV-001"), NormalizeInvoiceNumber("INV001"))
}

func TestEngine_Match(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	bookID := uuid.MustParse("00000000-0000-0000-0000-000000000010")

	t.Run("exact match after number normalization", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		books := []models.InternalInvoice{booksInvoice(bookID, "INV001", day(2024, 4, 5), "10000", "450", "450")}

		res := engine.Match(inv, books)

		assert.Equal(t, models.MatchMatched, res.Status)
		require.NotNil(t, res.Confidence)
		assert.GreaterOrEqual(t, *res.Confidence, 85)
		require.NotNil(t, res.MatchedID)
		assert.Equal(t, bookID, *res.MatchedID)
		assert.Empty(t, res.Discrepancies)
		assert.NotNil(t, res.Discrepancies)
	})

	t.Run("taxable value off by five percent is partial", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		books := []models.InternalInvoice{booksInvoice(bookID, "INV001", day(2024, 4, 5), "10500", "450", "450")}

		res := engine.Match(inv, books)

		assert.Equal(t, models.MatchPartial, res.Status)
		require.NotNil(t, res.Confidence)
		assert.Equal(t, 91, *res.Confidence)
		assert.Equal(t, []string{"taxable value: statement 10000.00 vs books 10500.00"}, res.Discrepancies)
		require.NotNil(t, res.MatchedID)
	})

	t.Run("no candidates is unmatched", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")

		res := engine.Match(inv, nil)

		assert.Equal(t, models.MatchUnmatched, res.Status)
		assert.Nil(t, res.MatchedID)
		assert.Nil(t, res.Confidence)
		assert.Empty(t, res.Discrepancies)
	})

	t.Run("different number with agreeing amounts is a discrepancy", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		books := []models.InternalInvoice{booksInvoice(bookID, "BILL-77", day(2024, 4, 5), "10000", "450", "450")}

		res := engine.Match(inv, books)

		assert.Equal(t, models.MatchDiscrepancy, res.Status)
		require.NotNil(t, res.Confidence)
		assert.Equal(t, 50, *res.Confidence)
		assert.Nil(t, res.MatchedID)
		require.Len(t, res.Discrepancies, 2)
		assert.Contains(t, res.Discrepancies[0], "invoice number")
		assert.Contains(t, res.Discrepancies[1], "BILL-77")
	})

	t.Run("weak evidence below partial threshold stays unmatched", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		books := []models.InternalInvoice{booksInvoice(bookID, "X-9", day(2024, 5, 10), "20000", "900", "900")}

		res := engine.Match(inv, books)

		assert.Equal(t, models.MatchUnmatched, res.Status)
		assert.Nil(t, res.MatchedID)
		assert.Nil(t, res.Confidence)
	})

	t.Run("date decays linearly across the window", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		// 9 of 45 days apart keeps 80% of the date weight
		books := []models.InternalInvoice{booksInvoice(bookID, "INV-001", day(2024, 4, 14), "10000", "450", "450")}

		res := engine.Match(inv, books)

		assert.Equal(t, models.MatchMatched, res.Status)
		require.NotNil(t, res.Confidence)
		assert.Equal(t, 96, *res.Confidence)
	})

	t.Run("tie picks the lowest id and flags it", func(t *testing.T) {
		low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		high := uuid.MustParse("00000000-0000-0000-0000-000000000002")
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		books := []models.InternalInvoice{
			booksInvoice(high, "INV001", day(2024, 4, 5), "10000", "450", "450"),
			booksInvoice(low, "INV001", day(2024, 4, 5), "10000", "450", "450"),
		}

		res := engine.Match(inv, books)

		require.NotNil(t, res.MatchedID)
		assert.Equal(t, low, *res.MatchedID)
		assert.Equal(t, models.MatchPartial, res.Status)
		assert.Contains(t, res.Discrepancies, ambiguousNote)
	})

	t.Run("component split difference is reported per field", func(t *testing.T) {
		inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
		other := booksInvoice(bookID, "INV-001", day(2024, 4, 5), "10000", "0", "0")
		other.IGST = decimal.RequireFromString("900")

		res := engine.Match(inv, []models.InternalInvoice{other})

		assert.Equal(t, models.MatchPartial, res.Status)
		assert.Len(t, res.Discrepancies, 3)
	})
}

func TestEngine_MatchIsDeterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	inv := statementInvoice("INV-001", day(2024, 4, 5), "10000", "450", "450")
	books := []models.InternalInvoice{
		booksInvoice(uuid.New(), "INV-001", day(2024, 4, 7), "10020", "450", "450"),
		booksInvoice(uuid.New(), "INV-01", day(2024, 4, 4), "9990", "449", "449"),
		booksInvoice(uuid.New(), "OTHER", day(2024, 4, 5), "10000", "450", "450"),
	}

	first := engine.Match(inv, books)
	reversed := []models.InternalInvoice{books[2], books[1], books[0]}
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, engine.Match(inv, books))
		assert.Equal(t, first, engine.Match(inv, reversed))
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Weights.InvoiceNumber = 60
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PartialMatchThreshold = 90
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DateWindowDays = 0
	assert.Error(t, cfg.Validate())
}
