package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes wires the engine's trigger and polling endpoints.
func SetupRoutes(app *fiber.App, settlementHdl *SettlementHandler, franchiseHdl *FranchiseHandler, walletHdl *WalletHandler) {
	app.Get("/health", HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/merchants/:merchantId/candidates", settlementHdl.DiscoverCandidates)

	batches := api.Group("/batches")
	batches.Post("/", settlementHdl.CreateBatch)
	batches.Get("/:batchId", settlementHdl.GetBatch)
	batches.Get("/:batchId/progress", settlementHdl.GetProgress)
	batches.Put("/:batchId/candidates", settlementHdl.UpdateCandidates)
	batches.Post("/:batchId/resume", settlementHdl.Resume)
	batches.Post("/:batchId/close", settlementHdl.Close)

	franchises := api.Group("/franchises")
	franchises.Post("/:franchiseId/batches", franchiseHdl.CreateBatch)
	franchises.Post("/batches/:batchId/process", franchiseHdl.Process)
	franchises.Get("/batches/:batchId", franchiseHdl.GetBatch)

	wallets := api.Group("/wallets")
	wallets.Get("/:ownerType/:ownerId", walletHdl.GetWallet)
	wallets.Get("/:ownerType/:ownerId/ledger", walletHdl.GetLedger)
}

// HealthCheck reports liveness.
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
