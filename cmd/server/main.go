// Package main is the entry point for the settlement engine service. It
// initializes configuration, storage, cache, the worker pool and the engine
// services, then serves the thin trigger/poll HTTP surface.
package main

import (
	"context"
	"log"

	"payops/internal/async"
	"payops/internal/config"
	"payops/internal/handlers"
	"payops/internal/metrics"
	"payops/internal/repositories"
	"payops/internal/repositories/cache"
	"payops/internal/services/discovery"
	"payops/internal/services/franchise"
	"payops/internal/services/ledger"
	"payops/internal/services/settlement"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	config.LoadEnv()

	db, err := repositories.InitDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get database instance: %v", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			log.Printf("failed to close database connection: %v", err)
		}
	}()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	log.Println("connected to database")

	redisClient := cache.NewRedisClient(cache.LoadRedisConfig())
	cacheSvc := cache.NewService(redisClient)
	if err := cacheSvc.FlushAll(context.Background()); err != nil {
		log.Printf("failed to flush cache on startup: %v", err)
	}
	defer func() {
		if err := cacheSvc.Close(); err != nil {
			log.Printf("failed to close redis connection: %v", err)
		}
	}()

	collector := metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)

	pool := async.NewPool(
		config.GetIntEnv("WORKER_POOL_SIZE", 4),
		config.GetIntEnv("WORKER_QUEUE_DEPTH", 64),
	)
	defer pool.Shutdown()

	registry := repositories.NewRegistry(db)
	uow := repositories.NewUnitOfWork(db)

	ledgerSvc := ledger.NewService(uow, registry.Wallets, cacheSvc, collector)
	discoverySvc := discovery.NewService(registry.Merchants, registry.Devices, registry.VendorTransactions, registry.Pricing)
	executor := settlement.NewExecutor(uow, ledgerSvc, collector)
	processor := settlement.NewProcessor(registry.Batches, executor, collector)
	batchMgr := settlement.NewBatchManager(registry.Batches, registry.Merchants, discoverySvc, processor, pool, cacheSvc)
	franchiseSvc := franchise.NewService(
		registry.FranchiseBatches,
		registry.Batches,
		registry.Merchants,
		discoverySvc,
		processor,
		pool,
		collector,
		config.GetIntEnv("FRANCHISE_MERCHANT_PARALLELISM", franchise.DefaultMerchantParallelism),
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	handlers.SetupRoutes(app,
		handlers.NewSettlementHandler(batchMgr, discoverySvc),
		handlers.NewFranchiseHandler(franchiseSvc),
		handlers.NewWalletHandler(ledgerSvc),
	)

	port := config.GetEnv("PORT", "8080")
	log.Printf("settlement engine listening on :%s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
