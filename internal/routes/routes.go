package routes

import (
	"github.com/gin-gonic/gin"

	handler "itc-reconciliation-backend/internal/handlers"
	service "itc-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, reconService *service.ReconciliationService) {
	reconHandler := handler.NewReconciliationHandler(reconService)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Company-scoped statement imports and period reports
	companies := api.Group("/companies/:companyId")
	{
		companies.POST("/imports", reconHandler.ImportStatement)
		companies.GET("/imports", reconHandler.ListImportBatches)
		companies.GET("/periods/:period/summary", reconHandler.GetSummary)
		companies.GET("/periods/:period/suppliers", reconHandler.GetSupplierSummary)
		companies.GET("/periods/:period/credit-comparison", reconHandler.GetCreditComparison)
	}

	// Import batch routes
	imports := api.Group("/imports")
	imports.GET("/:batchId", reconHandler.GetImportBatch)
	imports.DELETE("/:batchId", reconHandler.DeleteImportBatch)
	imports.GET("/:batchId/progress", reconHandler.GetProgress)
	imports.POST("/:batchId/reconcile", reconHandler.Reconcile)
	imports.GET("/:batchId/invoices", reconHandler.ListInvoices)

	// Invoice-level workflow routes
	invoices := api.Group("/invoices")
	invoices.GET("/:id", reconHandler.GetInvoice)
	invoices.GET("/:id/history", reconHandler.ActionHistory)
	invoices.POST("/:id/accept", reconHandler.AcceptMismatch)
	invoices.POST("/:id/reject", reconHandler.Reject)
	invoices.POST("/:id/manual-match", reconHandler.ManualMatch)
	invoices.POST("/:id/reset", reconHandler.ResetAction)
}
