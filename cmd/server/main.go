package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"itc-reconciliation-backend/internal/caching"
	"itc-reconciliation-backend/internal/config"
	"itc-reconciliation-backend/internal/jobs"
	"itc-reconciliation-backend/internal/models"
	"itc-reconciliation-backend/internal/repository"
	"itc-reconciliation-backend/internal/routes"
	"itc-reconciliation-backend/internal/services/archive"
	service "itc-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db := config.InitDB(cfg.DatabaseURL)
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	batchRepo := repository.NewImportBatchRepository(db)
	opts := cfg.ReconciliationOptions()

	if cfg.Redis.Addr != "" {
		progress := caching.NewRedisProgress(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer progress.Close()
		opts.Progress = progress
	} else {
		log.Println("REDIS_ADDR not set, tracking progress in memory")
	}

	if cfg.Minio.Endpoint != "" {
		statementArchive, err := archive.NewMinioArchive(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
		if err != nil {
			log.Fatalf("Statement archive: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := statementArchive.EnsureBucket(ctx); err != nil {
			log.Printf("WARN: statement archive disabled, bucket %s unavailable: %v", cfg.Minio.Bucket, err)
		} else {
			opts.Archive = statementArchive
		}
		cancel()
	}

	reconService := service.NewReconciliationService(
		batchRepo,
		repository.NewReconciledInvoiceRepository(db),
		repository.NewActionLogRepository(db),
		repository.NewVendorInvoiceRepository(db),
		opts,
	)

	sweeper, err := jobs.NewStaleSweeper(batchRepo, cfg.SweepInterval, cfg.StaleProcessingAfter)
	if err != nil {
		log.Fatalf("Stale batch sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, reconService)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR during shutdown: %v", err)
	}
}
