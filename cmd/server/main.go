package main

import (
	"log"
	"strings"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/auth"
	"kartoteka-backend/internal/config"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/guard"
	"kartoteka-backend/internal/ledger"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/seed"
	"kartoteka-backend/internal/snapshot"
	"kartoteka-backend/internal/transfer"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal(err)
	}
	db := database.Init(cfg)

	app, err := newApp(cfg, db, prometheus.NewRegistry())
	if err != nil {
		log.Fatal(err)
	}

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}

// newApp wires the services to one guard and one metrics registry and
// registers every route.
func newApp(cfg *config.Config, db *gorm.DB, reg *prometheus.Registry) (*fiber.App, error) {
	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, err
	}
	g := guard.New()
	engine := ledger.New(db, g, rec)
	snaps := snapshot.New(db, g, rec, cfg.BackupRetention)
	codec := transfer.New(db, g, rec)

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.FiberErrorHandler,
		BodyLimit:    64 * 1024 * 1024,
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	api.Use(auth.JWTMiddleware(cfg.JWTSecret))
	admin := auth.RequireRole(auth.RoleAdmin)

	api.Get("/auth/me", auth.MeHandler())

	// Products and their ledgers
	api.Get("/products", ledger.ListProductsHandler(engine))
	api.Post("/products", ledger.CreateProductHandler(engine, snaps))
	api.Get("/products/:id", ledger.GetProductHandler(engine))
	api.Put("/products/:id", ledger.UpdateProductHandler(engine, snaps))
	api.Delete("/products/:id", ledger.DeleteProductHandler(engine, snaps))
	api.Post("/products/:id/entries", ledger.AppendEntryHandler(engine, snaps))
	api.Post("/products/:id/recompute", ledger.RecomputeHandler(engine))
	api.Put("/entries/:id", ledger.AmendEntryHandler(engine, snaps))
	api.Delete("/entries/:id", ledger.RemoveEntryHandler(engine, snaps))
	api.Get("/ledger/verify", ledger.VerifyHandler(engine))

	// Backups
	api.Get("/backups", snapshot.ListBackupsHandler(snaps))
	api.Post("/backups", snapshot.CreateBackupHandler(snaps))
	api.Post("/backups/restore", admin, snapshot.RestoreBackupHandler(snaps))
	api.Delete("/backups/:id", admin, snapshot.DeleteBackupHandler(snaps))

	// Bulk data
	api.Get("/data/export", transfer.ExportHandler(codec))
	api.Post("/data/import", admin, transfer.ImportHandler(codec))
	api.Post("/data/seed", admin, seed.SeedHandler(engine))

	// Audit logs
	api.Get("/audit-logs", audit.ListAuditLogsHandler(db))

	return app, nil
}
