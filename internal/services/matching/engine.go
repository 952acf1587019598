package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const ambiguousNote = "ambiguous match, lowest id selected"

// scores closer than this are treated as a tie
const scoreEpsilon = 1e-9

// Result is the outcome of matching one statement invoice against the books.
type Result struct {
	Status        models.MatchStatus `json:"status"`
	Confidence    *int               `json:"confidence"`
	MatchedID     *uuid.UUID         `json:"matched_id"`
	Discrepancies []string           `json:"discrepancies"`
}

func (r Result) Snapshot() models.MatchSnapshot {
	return models.MatchSnapshot{
		Status:                   r.Status,
		MatchedInternalInvoiceID: r.MatchedID,
		Confidence:               r.Confidence,
		Discrepancies:            r.Discrepancies,
	}
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

type candidate struct {
	invoice *models.InternalInvoice

	numberMatch  bool
	dayGap       int
	taxableDev   float64
	taxDev       float64
	numberScore  float64
	dateScore    float64
	taxableScore float64
	taxScore     float64
	finalScore   float64
}

// Match scores every candidate and classifies the best one. It has no side
// effects; the caller persists the result.
func (e *Engine) Match(inv *models.ReconciledInvoice, candidates []models.InternalInvoice) Result {
	if len(candidates) == 0 {
		return Result{Status: models.MatchUnmatched, Discrepancies: []string{}}
	}

	// lowest id first so ties resolve deterministically
	ordered := make([]models.InternalInvoice, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	var best *candidate
	tie := false
	for i := range ordered {
		c := e.score(inv, &ordered[i])
		switch {
		case best == nil || c.finalScore > best.finalScore+scoreEpsilon:
			best = &c
			tie = false
		case math.Abs(c.finalScore-best.finalScore) <= scoreEpsilon:
			tie = true
		}
	}

	confidence := int(math.Round(best.finalScore))
	if confidence < e.cfg.PartialMatchThreshold {
		return Result{
			Status: models.MatchUnmatched,
			Discrepancies: []string{
				fmt.Sprintf("no candidate reached the match threshold (best score %d)", confidence),
			},
		}
	}

	matchedID := best.invoice.ID
	result := Result{Confidence: &confidence, MatchedID: &matchedID}

	if confidence >= e.cfg.FullMatchThreshold {
		diffs := e.amountDifferences(inv, best.invoice)
		if tie {
			diffs = append(diffs, ambiguousNote)
		}
		if len(diffs) == 0 {
			result.Status = models.MatchMatched
			result.Discrepancies = []string{}
		} else {
			result.Status = models.MatchPartial
			result.Discrepancies = diffs
		}
		return result
	}

	// a discrepancy is a suggestion only; the link is not recorded
	notes := e.weakEvidence(inv, best)
	notes = append(notes, fmt.Sprintf("closest books invoice %s (%s)", best.invoice.InvoiceNumber, matchedID))
	if tie {
		notes = append(notes, ambiguousNote)
	}
	return Result{
		Status:        models.MatchDiscrepancy,
		Confidence:    &confidence,
		Discrepancies: notes,
	}
}

func (e *Engine) score(inv *models.ReconciledInvoice, books *models.InternalInvoice) candidate {
	w := e.cfg.Weights
	c := candidate{invoice: books}

	c.numberMatch = NormalizeInvoiceNumber(inv.InvoiceNumber) == NormalizeInvoiceNumber(books.InvoiceNumber)
	if c.numberMatch {
		c.numberScore = w.InvoiceNumber
	}

	c.dayGap = dayGap(inv.InvoiceDate, books.InvoiceDate)
	window := float64(e.cfg.DateWindowDays)
	if c.dayGap == 0 {
		c.dateScore = w.InvoiceDate
	} else if float64(c.dayGap) < window {
		c.dateScore = w.InvoiceDate * (1 - float64(c.dayGap)/window)
	}

	c.taxableDev = relativeDeviation(inv.TaxableValue, books.TaxableValue)
	switch {
	case c.taxableDev <= e.cfg.AmountTolerance:
		c.taxableScore = w.TaxableValue
	case c.taxableDev < e.cfg.TaxableValueCutoff:
		c.taxableScore = w.TaxableValue * (e.cfg.TaxableValueCutoff - c.taxableDev) /
			(e.cfg.TaxableValueCutoff - e.cfg.AmountTolerance)
	}

	c.taxDev = relativeDeviation(inv.TaxSum(), books.TotalTax())
	if c.taxDev <= e.cfg.AmountTolerance {
		c.taxScore = w.TaxAmount
	}

	c.finalScore = c.numberScore + c.dateScore + c.taxableScore + c.taxScore
	return c
}

// amountDifferences lists every amount field outside tolerance.
func (e *Engine) amountDifferences(inv *models.ReconciledInvoice, books *models.InternalInvoice) []string {
	fields := []struct {
		name      string
		statement decimal.Decimal
		books     decimal.Decimal
	}{
		{"taxable value", inv.TaxableValue, books.TaxableValue},
		{"IGST", inv.IGST, books.IGST},
		{"CGST", inv.CGST, books.CGST},
		{"SGST", inv.SGST, books.SGST},
		{"cess", inv.Cess, books.Cess},
	}

	var diffs []string
	for _, f := range fields {
		if relativeDeviation(f.statement, f.books) > e.cfg.AmountTolerance {
			diffs = append(diffs, fmt.Sprintf("%s: statement %s vs books %s",
				f.name, f.statement.StringFixed(2), f.books.StringFixed(2)))
		}
	}
	return diffs
}

// weakEvidence explains which parts of a mid-range score fell short.
func (e *Engine) weakEvidence(inv *models.ReconciledInvoice, c *candidate) []string {
	var notes []string
	if !c.numberMatch {
		notes = append(notes, fmt.Sprintf("invoice number: statement %q vs books %q",
			inv.InvoiceNumber, c.invoice.InvoiceNumber))
	}
	if c.dayGap != 0 {
		notes = append(notes, fmt.Sprintf("invoice date: statement %s vs books %s (%d days apart)",
			inv.InvoiceDate.Format(time.DateOnly), c.invoice.InvoiceDate.Format(time.DateOnly), c.dayGap))
	}
	if c.taxableDev > e.cfg.AmountTolerance {
		notes = append(notes, fmt.Sprintf("taxable value: statement %s vs books %s (%.2f%% deviation)",
			inv.TaxableValue.StringFixed(2), c.invoice.TaxableValue.StringFixed(2), c.taxableDev*100))
	}
	if c.taxDev > e.cfg.AmountTolerance {
		notes = append(notes, fmt.Sprintf("total tax: statement %s vs books %s",
			inv.TaxSum().StringFixed(2), c.invoice.TotalTax().StringFixed(2)))
	}
	return notes
}

// NormalizeInvoiceNumber drops whitespace, punctuation and leading zeros and
// case-folds what remains, so "INV-001" and "inv001" compare equal.
func NormalizeInvoiceNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// relativeDeviation is |statement - books| relative to the statement value.
func relativeDeviation(statement, books decimal.Decimal) float64 {
	if statement.IsZero() {
		if books.IsZero() {
			return 0
		}
		return 1
	}
	return statement.Sub(books).Abs().Div(statement.Abs()).InexactFloat64()
}

func dayGap(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Round(da.Sub(db).Hours() / 24))
	if days < 0 {
		return -days
	}
	return days
}
