package testutil

import (
	"encoding/json"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line describes one statement record. A NoteType of "C" or "D" places it in
// the credit/debit note section.
type Line struct {
	Supplier     string
	Name         string
	Number       string
	Date         string
	Taxable      float64
	IGST         float64
	CGST         float64
	SGST         float64
	Cess         float64
	NoteType     string
	ITCAvailable string
}

// StatementJSON renders a GSTR-2B document for the given lines.
func StatementJSON(gstin, period string, lines ...Line) []byte {
	type group struct {
		GSTIN     string                   `json:"ctin"`
		TradeName string                   `json:"trdnm"`
		Invoices  []map[string]interface{} `json:"inv,omitempty"`
		Notes     []map[string]interface{} `json:"nt,omitempty"`
	}

	var b2b, cdnr []*group
	find := func(groups *[]*group, l Line) *group {
		for _, g := range *groups {
			if g.GSTIN == l.Supplier {
				return g
			}
		}
		g := &group{GSTIN: l.Supplier, TradeName: l.Name}
		*groups = append(*groups, g)
		return g
	}

	for _, l := range lines {
		itc := l.ITCAvailable
		if itc == "" {
			itc = "Y"
		}
		entry := map[string]interface{}{
			"dt":     l.Date,
			"val":    l.Taxable + l.IGST + l.CGST + l.SGST + l.Cess,
			"pos":    "29",
			"rev":    "N",
			"itcavl": itc,
			"txval":  l.Taxable,
			"igst":   l.IGST,
			"cgst":   l.CGST,
			"sgst":   l.SGST,
			"cess":   l.Cess,
		}
		if l.NoteType != "" {
			entry["ntnum"] = l.Number
			entry["typ"] = l.NoteType
			entry["suptyp"] = "R"
			g := find(&cdnr, l)
			g.Notes = append(g.Notes, entry)
			continue
		}
		entry["inum"] = l.Number
		entry["typ"] = "R"
		g := find(&b2b, l)
		g.Invoices = append(g.Invoices, entry)
	}

	doc := map[string]interface{}{
		"data": map[string]interface{}{
			"gstin":  gstin,
			"rtnprd": period,
			"gendt":  "14-05-2024",
			"docdata": map[string]interface{}{
				"b2b":  b2b,
				"cdnr": cdnr,
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}

// BooksInvoice builds a vendor invoice dated on an ISO day.
func BooksInvoice(companyID uuid.UUID, supplier, number, isoDate string, taxable, igst, cgst, sgst float64) models.InternalInvoice {
	date, err := time.Parse(time.DateOnly, isoDate)
	if err != nil {
		panic(err)
	}
	return models.InternalInvoice{
		ID:            uuid.New(),
		CompanyID:     companyID,
		SupplierGSTIN: supplier,
		InvoiceNumber: number,
		InvoiceDate:   date,
		TaxableValue:  decimal.NewFromFloat(taxable),
		IGST:          decimal.NewFromFloat(igst),
		CGST:          decimal.NewFromFloat(cgst),
		SGST:          decimal.NewFromFloat(sgst),
	}
}
