package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/saq-app/backend/internal/auth"
	"github.com/saq-app/backend/internal/catalog"
	"github.com/saq-app/backend/internal/config"
	"github.com/saq-app/backend/internal/database"
	"github.com/saq-app/backend/internal/middleware"
	"github.com/saq-app/backend/internal/submissions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.Driver); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize services
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	catalogService := catalog.NewService(catalog.NewStore(db))
	submissionService := submissions.NewService(submissions.NewStore(db), catalogService)

	// Initialize handlers
	authHandler := auth.NewHandler(db, tokens)
	catalogHandler := catalog.NewHandler(catalogService)
	submissionHandler := submissions.NewHandler(submissionService)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.Logging)
	api := r.PathPrefix("/api/v1").Subrouter()

	requireAuth := middleware.RequireAuth(tokens)
	submitAuth := requireAuth
	if cfg.LazySignup {
		submitAuth = middleware.AllowLazyUser(tokens, auth.NewLazyUsers(db))
	}

	protected := api.PathPrefix("").Subrouter()
	protected.Use(requireAuth)
	authHandler.RegisterRoutes(api, protected)

	var admin *mux.Router
	if cfg.AdminAPIKey != "" {
		admin = api.PathPrefix("/admin").Subrouter()
		admin.Use(middleware.RequireAdminKey(cfg.AdminAPIKey))
	}
	catalogHandler.RegisterRoutes(api, admin)
	submissionHandler.RegisterRoutes(api, submitAuth, requireAuth)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Admin-Key"},
		ExposedHeaders:   []string{middleware.LazyTokenHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Server starting on :%s (driver=%s lazy_signup=%v admin=%v)",
		cfg.Port, cfg.Database.Driver, cfg.LazySignup, admin != nil)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
