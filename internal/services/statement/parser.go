// Package statement parses GSTR-2B purchase-credit statements into flat,
// validated invoice records.
package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
)

// ErrMalformedStatement is returned when the document itself cannot be used.
// Problems with individual records are reported as RecordErrors instead.
var ErrMalformedStatement = errors.New("malformed statement")

var dateLayouts = []string{"02-01-2006", "2006-01-02", "02/01/2006"}

const (
	sectionB2B  = "b2b"
	sectionCDNR = "cdnr"
)

type Statement struct {
	GSTIN        string
	ReturnPeriod string
	GeneratedOn  string
	Records      []Record
	Rejected     []RecordError
}

// Record is one invoice or note as reported by a supplier.
type Record struct {
	SupplierGSTIN     string
	SupplierName      string
	SupplierTradeName string
	InvoiceNumber     string
	InvoiceDate       time.Time
	DocumentType      models.DocumentType
	TaxableValue      decimal.Decimal
	IGST              decimal.Decimal
	CGST              decimal.Decimal
	SGST              decimal.Decimal
	Cess              decimal.Decimal
	InvoiceValue      decimal.Decimal
	ITCEligible       bool
	ReverseCharge     bool
	PlaceOfSupply     string
	SupplyType        string
}

type RecordError struct {
	Section       string
	Position      int
	SupplierGSTIN string
	InvoiceNumber string
	Field         string
	Message       string
}

func (e RecordError) Error() string {
	ref := fmt.Sprintf("%s record %d", e.Section, e.Position)
	if e.SupplierGSTIN != "" {
		ref += " supplier " + e.SupplierGSTIN
	}
	if e.InvoiceNumber != "" {
		ref += " invoice " + e.InvoiceNumber
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ref, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", ref, e.Message)
}

func (s *Statement) TotalRecords() int {
	return len(s.Records) + len(s.Rejected)
}

// MalformedFraction is the share of records that failed validation.
func (s *Statement) MalformedFraction() float64 {
	total := s.TotalRecords()
	if total == 0 {
		return 0
	}
	return float64(len(s.Rejected)) / float64(total)
}

type document struct {
	Data *struct {
		GSTIN        string `json:"gstin"`
		ReturnPeriod string `json:"rtnprd"`
		GeneratedOn  string `json:"gendt"`
		DocData      struct {
			B2B  []supplierGroup `json:"b2b"`
			CDNR []supplierGroup `json:"cdnr"`
		} `json:"docdata"`
	} `json:"data"`
}

type supplierGroup struct {
	GSTIN     string            `json:"ctin"`
	TradeName string            `json:"trdnm"`
	LegalName string            `json:"lglnm"`
	Invoices  []json.RawMessage `json:"inv"`
	Notes     []json.RawMessage `json:"nt"`
}

type line struct {
	InvoiceNumber string          `json:"inum"`
	NoteNumber    string          `json:"ntnum"`
	Type          string          `json:"typ"`
	SupplyType    string          `json:"suptyp"`
	Date          string          `json:"dt"`
	Value         decimal.Decimal `json:"val"`
	PlaceOfSupply string          `json:"pos"`
	ReverseCharge string          `json:"rev"`
	ITCAvailable  string          `json:"itcavl"`
	TaxableValue  decimal.Decimal `json:"txval"`
	IGST          decimal.Decimal `json:"igst"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	Cess          decimal.Decimal `json:"cess"`
}

// Parse decodes a GSTR-2B JSON document. The returned error is non-nil only
// when the document as a whole is unusable.
func Parse(raw []byte) (*Statement, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStatement, err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("%w: missing data section", ErrMalformedStatement)
	}

	gstin := strings.ToUpper(strings.TrimSpace(doc.Data.GSTIN))
	if gstin == "" {
		return nil, fmt.Errorf("%w: missing gstin", ErrMalformedStatement)
	}
	period, err := models.ParseReturnPeriod(doc.Data.ReturnPeriod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStatement, err)
	}

	st := &Statement{
		GSTIN:        gstin,
		ReturnPeriod: period,
		GeneratedOn:  doc.Data.GeneratedOn,
	}

	position := 0
	for _, group := range doc.Data.DocData.B2B {
		for _, rawLine := range group.Invoices {
			position++
			st.add(parseLine(sectionB2B, position, group, rawLine))
		}
	}
	for _, group := range doc.Data.DocData.CDNR {
		for _, rawLine := range group.Notes {
			position++
			st.add(parseLine(sectionCDNR, position, group, rawLine))
		}
	}
	return st, nil
}

func (s *Statement) add(rec *Record, recErr *RecordError) {
	if recErr != nil {
		s.Rejected = append(s.Rejected, *recErr)
		return
	}
	s.Records = append(s.Records, *rec)
}

func parseLine(section string, position int, group supplierGroup, raw json.RawMessage) (*Record, *RecordError) {
	supplierGSTIN := strings.ToUpper(strings.TrimSpace(group.GSTIN))
	reject := func(number, field, msg string) (*Record, *RecordError) {
		return nil, &RecordError{
			Section:       section,
			Position:      position,
			SupplierGSTIN: supplierGSTIN,
			InvoiceNumber: number,
			Field:         field,
			Message:       msg,
		}
	}

	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return reject("", "", "invalid record: "+err.Error())
	}

	number := strings.TrimSpace(l.InvoiceNumber)
	docType := models.DocumentInvoice
	supplyType := l.Type
	if section == sectionCDNR {
		number = strings.TrimSpace(l.NoteNumber)
		supplyType = l.SupplyType
		switch strings.ToUpper(strings.TrimSpace(l.Type)) {
		case "C":
			docType = models.DocumentCreditNote
		case "D":
			docType = models.DocumentDebitNote
		default:
			return reject(number, "typ", fmt.Sprintf("unknown note type %q", l.Type))
		}
	}

	if supplierGSTIN == "" {
		return reject(number, "ctin", "supplier registration id is required")
	}
	if number == "" {
		return reject("", "inum", "invoice number is required")
	}
	if strings.TrimSpace(l.Date) == "" {
		return reject(number, "dt", "invoice date is required")
	}
	date, err := parseDate(l.Date)
	if err != nil {
		return reject(number, "dt", err.Error())
	}

	name := strings.TrimSpace(group.LegalName)
	trade := strings.TrimSpace(group.TradeName)
	if name == "" {
		name, trade = trade, ""
	}

	rec := &Record{
		SupplierGSTIN:     supplierGSTIN,
		SupplierName:      name,
		SupplierTradeName: trade,
		InvoiceNumber:     number,
		InvoiceDate:       date,
		DocumentType:      docType,
		TaxableValue:      l.TaxableValue,
		IGST:              l.IGST,
		CGST:              l.CGST,
		SGST:              l.SGST,
		Cess:              l.Cess,
		InvoiceValue:      l.Value,
		ITCEligible:       !strings.EqualFold(strings.TrimSpace(l.ITCAvailable), "N"),
		ReverseCharge:     strings.EqualFold(strings.TrimSpace(l.ReverseCharge), "Y"),
		PlaceOfSupply:     strings.TrimSpace(l.PlaceOfSupply),
		SupplyType:        strings.TrimSpace(supplyType),
	}
	return rec, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
