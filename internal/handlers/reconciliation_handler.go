package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/repository"
	service "itc-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxStatementSize caps uploaded GSTR-2B files.
const maxStatementSize = 32 << 20

type ReconciliationHandler struct {
	service *service.ReconciliationService
}

func NewReconciliationHandler(s *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

// ImportStatement accepts a multipart upload of the GSTR-2B JSON download.
func (h *ReconciliationHandler) ImportStatement(c *gin.Context) {
	companyID, ok := parseID(c, "companyId", "company")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxStatementSize)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "file", "file required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, "file", "cannot read uploaded file")
		return
	}

	replace, ok := parseBool(c, c.PostForm("replace"), "replace")
	if !ok {
		return
	}

	batch, err := h.service.ImportStatement(c.Request.Context(), service.ImportRequest{
		CompanyID:    companyID,
		ReturnPeriod: c.PostForm("return_period"),
		Raw:          raw,
		FileName:     header.Filename,
		Replace:      replace,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("Statement %s imported as batch %s (%d invoices)", header.Filename, batch.ID, batch.TotalInvoices)
	c.JSON(http.StatusCreated, batch)
}

func (h *ReconciliationHandler) ListImportBatches(c *gin.Context) {
	companyID, ok := parseID(c, "companyId", "company")
	if !ok {
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	batches, err := h.service.ListImportBatches(c.Request.Context(), companyID, models.ImportStatus(c.Query("status")), page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

func (h *ReconciliationHandler) GetImportBatch(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}

	batch, err := h.service.GetImportBatch(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *ReconciliationHandler) DeleteImportBatch(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}

	if err := h.service.DeleteImportBatch(c.Request.Context(), batchID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReconciliationHandler) GetProgress(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}

	progress, err := h.service.GetProgress(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Reconcile runs a pass synchronously. A forced re-run discards operator
// decisions, so it must be confirmed explicitly.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}
	force, ok := parseBool(c, c.Query("force"), "force")
	if !ok {
		return
	}
	confirm, ok := parseBool(c, c.Query("confirm"), "confirm")
	if !ok {
		return
	}
	if force && !confirm {
		badRequest(c, "confirm", "a forced re-run resets operator actions; repeat with confirm=true")
		return
	}

	summary, err := h.service.Reconcile(c.Request.Context(), batchID, force)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReconciliationHandler) ListInvoices(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	filter := repository.InvoiceFilter{
		MatchStatus:  models.MatchStatus(c.Query("match_status")),
		ActionStatus: models.ActionStatus(c.Query("action_status")),
		DocumentType: models.DocumentType(c.Query("invoice_type")),
		Search:       c.Query("search"),
	}

	invoices, err := h.service.ListInvoices(c.Request.Context(), batchID, filter, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (h *ReconciliationHandler) GetSummary(c *gin.Context) {
	companyID, ok := parseID(c, "companyId", "company")
	if !ok {
		return
	}

	summary, err := h.service.GetReconciliationSummary(c.Request.Context(), companyID, c.Param("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReconciliationHandler) GetSupplierSummary(c *gin.Context) {
	companyID, ok := parseID(c, "companyId", "company")
	if !ok {
		return
	}

	suppliers, err := h.service.GetSupplierSummary(c.Request.Context(), companyID, c.Param("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": suppliers})
}

func (h *ReconciliationHandler) GetCreditComparison(c *gin.Context) {
	companyID, ok := parseID(c, "companyId", "company")
	if !ok {
		return
	}

	comparison, err := h.service.GetCreditComparison(c.Request.Context(), companyID, c.Param("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (h *ReconciliationHandler) GetInvoice(c *gin.Context) {
	invoiceID, ok := parseID(c, "id", "invoice")
	if !ok {
		return
	}

	inv, err := h.service.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *ReconciliationHandler) AcceptMismatch(c *gin.Context) {
	invoiceID, ok := parseID(c, "id", "invoice")
	if !ok {
		return
	}
	var payload struct {
		Notes string `json:"notes"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}

	inv, err := h.service.AcceptMismatch(c.Request.Context(), invoiceID, payload.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mismatch accepted", "invoice": inv})
}

func (h *ReconciliationHandler) Reject(c *gin.Context) {
	invoiceID, ok := parseID(c, "id", "invoice")
	if !ok {
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}

	inv, err := h.service.Reject(c.Request.Context(), invoiceID, payload.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invoice rejected", "invoice": inv})
}

func (h *ReconciliationHandler) ManualMatch(c *gin.Context) {
	invoiceID, ok := parseID(c, "id", "invoice")
	if !ok {
		return
	}
	var payload struct {
		InternalInvoiceID string `json:"internal_invoice_id"`
		Notes             string `json:"notes"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}
	internalID, err := uuid.Parse(payload.InternalInvoiceID)
	if err != nil {
		badRequest(c, "internal_invoice_id", "invalid internal invoice ID")
		return
	}

	inv, err := h.service.ManualMatch(c.Request.Context(), invoiceID, internalID, payload.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invoice manually matched", "invoice": inv})
}

func (h *ReconciliationHandler) ResetAction(c *gin.Context) {
	invoiceID, ok := parseID(c, "id", "invoice")
	if !ok {
		return
	}

	inv, err := h.service.ResetAction(c.Request.Context(), invoiceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "action reset", "invoice": inv})
}

func (h *ReconciliationHandler) ActionHistory(c *gin.Context) {
	invoiceID, ok := parseID(c, "id", "invoice")
	if !ok {
		return
	}

	history, err := h.service.ActionHistory(c.Request.Context(), invoiceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

var statusByKind = map[service.ErrorKind]int{
	service.KindValidation:   http.StatusBadRequest,
	service.KindNotFound:     http.StatusNotFound,
	service.KindConflict:     http.StatusConflict,
	service.KindInvalidState: http.StatusUnprocessableEntity,
	service.KindInternal:     http.StatusInternalServerError,
}

func respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		svcErr = &service.Error{Kind: service.KindInternal, Message: "internal error", Err: err}
	}

	status, ok := statusByKind[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": svcErr.Error(), "kind": svcErr.Kind}
	if status == http.StatusInternalServerError {
		log.Printf("ERROR %s %s: %v", c.Request.Method, c.FullPath(), err)
		// storage details stay in the log
		body["error"] = (&service.Error{Kind: svcErr.Kind, Op: svcErr.Op, Message: svcErr.Message}).Error()
	}
	if svcErr.Field != "" {
		body["field"] = svcErr.Field
	}
	if svcErr.InvoiceID != nil {
		body["invoice_id"] = svcErr.InvoiceID.String()
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
		"kind":  service.KindValidation,
		"field": field,
	})
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, param, "invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func parseBool(c *gin.Context, raw, field string) (bool, bool) {
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, field, "invalid "+field+" flag")
		return false, false
	}
	return v, true
}

func parsePage(c *gin.Context) (models.PageRequest, bool) {
	var page models.PageRequest
	for field, dst := range map[string]*int{"page": &page.Page, "page_size": &page.PageSize} {
		raw := c.Query(field)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, field, "invalid "+field)
			return page, false
		}
		*dst = n
	}
	return page, true
}

// bindOptionalJSON accepts an empty body as the zero payload.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "body", "invalid payload")
		return false
	}
	return true
}
