package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/authz/internal/admin"
	adminStore "github.com/frahmantamala/authz/internal/admin/postgres"
	"github.com/frahmantamala/authz/internal/audit"
	auditStore "github.com/frahmantamala/authz/internal/audit/postgres"
	"github.com/frahmantamala/authz/internal/core/events"
	"github.com/frahmantamala/authz/pkg/logger"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the default permission catalog and system roles",
	Long:  `Install the fixed permission catalog and the default system roles. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		auditRepo := auditStore.NewAuditRepository(gormDB)
		recorder := audit.NewRecorder(auditRepo, cfg.Audit, lg)
		defer recorder.Shutdown()

		// Seeding is a bootstrap action; no decision point involved.
		svc := admin.NewService(adminStore.NewAdminRepository(gormDB), nil, recorder, auditRepo, events.NewEventBus(lg), lg)
		if err := svc.SeedDefaultCatalog(context.Background()); err != nil {
			log.Fatalf("failed to seed default catalog: %v", err)
		}

		fmt.Println("default catalog seeded")
	},
}
