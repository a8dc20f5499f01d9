package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/authz/internal/admin"
	"github.com/frahmantamala/authz/internal/decision"
	"github.com/frahmantamala/authz/internal/obs"
	"github.com/frahmantamala/authz/internal/transport/middleware"
	"github.com/frahmantamala/authz/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, decisionHandler *decision.Handler, adminHandler *admin.Handler, tokenSecret string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())
	// Prometheus scrape endpoint
	router.Handle("/metrics", obs.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Everything past this point needs an authenticated caller.
		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Identity(tokenSecret))
			pr.Use(middleware.Origin)

			if decisionHandler != nil {
				pr.Route("/access", func(ar chi.Router) {
					ar.Post("/decide", decisionHandler.Decide)
					ar.Post("/decide-any", decisionHandler.DecideAny)
					ar.Get("/permissions/{userID}", decisionHandler.ListPermissions)
				})
			}

			if adminHandler != nil {
				pr.Route("/admin", func(ar chi.Router) {
					ar.Route("/roles", func(rr chi.Router) {
						rr.Post("/", adminHandler.CreateRole)
						rr.Get("/", adminHandler.ListRoles)
						rr.Post("/{roleID}/permissions/{permissionID}", adminHandler.AttachPermission)
						rr.Delete("/{roleID}/permissions/{permissionID}", adminHandler.DetachPermission)
					})

					ar.Route("/permissions", func(prr chi.Router) {
						prr.Post("/", adminHandler.CreatePermission)
						prr.Get("/", adminHandler.ListPermissions)
					})

					ar.Post("/grants", adminHandler.GrantRole)
					ar.Delete("/users/{userID}/roles/{roleID}", adminHandler.RevokeRole)
					ar.Get("/users/{userID}/roles", adminHandler.ListUserRoles)
					ar.Post("/users", adminHandler.RegisterUser)

					ar.Get("/audit", adminHandler.ListAudit)
				})
			}
		})
	})
}
