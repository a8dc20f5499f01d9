package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/internal/admin"
	adminStore "github.com/frahmantamala/authz/internal/admin/postgres"
	"github.com/frahmantamala/authz/internal/audit"
	auditStore "github.com/frahmantamala/authz/internal/audit/postgres"
	"github.com/frahmantamala/authz/internal/core/events"
	"github.com/frahmantamala/authz/internal/decision"
	"github.com/frahmantamala/authz/internal/obs"
	"github.com/frahmantamala/authz/internal/resolver"
	resolverStore "github.com/frahmantamala/authz/internal/resolver/postgres"
	"github.com/frahmantamala/authz/internal/transport/rest"
	"github.com/frahmantamala/authz/internal/transport/swagger"
	"github.com/frahmantamala/authz/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle decision and administration requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Router   *chi.Mux
	Recorder *audit.Recorder
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := internal.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		// Drain buffered audit records before the store connection goes away.
		deps.Recorder.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.LoggerWrapper()

	if config.Observability.Metrics.Enabled {
		obs.Init()
	}

	if err := swagger.ValidateSpec(context.Background(), "./api/openapi.yml"); err != nil {
		log.Warn("openapi spec validation failed, swagger UI may be broken", "error", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm rides the already-pooled pgx connection
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	bus := events.NewEventBus(log)

	var cache *resolver.SnapshotCache
	if config.Cache.Enabled {
		cache = resolver.NewSnapshotCache(config.Cache.Size, config.Cache.TTL)
	}

	resolverSvc := resolver.NewService(resolverStore.NewResolverRepository(gormDB), cache, log)
	if config.Cache.Enabled {
		resolverSvc.SubscribeInvalidation(bus)
	}

	auditRepo := auditStore.NewAuditRepository(gormDB)
	recorder := audit.NewRecorder(auditRepo, config.Audit, log)

	decisionSvc := decision.NewService(resolverSvc, recorder, log)
	adminSvc := admin.NewService(adminStore.NewAdminRepository(gormDB), decisionSvc, recorder, auditRepo, bus, log)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB,
		decision.NewHandler(decisionSvc),
		admin.NewHandler(adminSvc),
		config.Security.AccessTokenSecret,
		log)

	return &Dependencies{
		Config:   config,
		DB:       db,
		Router:   router,
		Recorder: recorder,
		Logger:   log,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
