package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"astapp/internal/config"
	"astapp/internal/metrics"
	"astapp/internal/service"
	"astapp/internal/transport/rest/handler"
	"astapp/internal/transport/rest/middleware"
	"astapp/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService       *service.AuthService
	FormService       *service.FormService
	SubmissionService *service.SubmissionService
	KeyStore          handler.KeyStore
	WSHub             *ws.Hub
	CORS              config.CORSConfig
	Logger            *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService, c.Logger)
	appHandler := handler.NewApplicationHandler(c.FormService, c.SubmissionService, c.WSHub, c.Logger)
	vaultHandler := handler.NewVaultHandler(c.KeyStore, c.Logger)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.FormService, c.Logger)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.CORS))
	r.Use(middleware.Logging(c.Logger))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/applications/{appId}", appHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/applications/{appId}/submissions", appHandler.Submit).Methods("POST", "OPTIONS")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/applications/{appId}/feed", wsHandler.FeedWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Creator routes (require creator auth)
	creatorRoutes := v1.NewRoute().Subrouter()
	creatorRoutes.Use(authMW.RequireCreator)

	creatorRoutes.HandleFunc("/applications", appHandler.ListMine).Methods("GET", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/generate", appHandler.Generate).Methods("POST", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/{appId}", appHandler.Put).Methods("PUT", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/{appId}", appHandler.Delete).Methods("DELETE", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/{appId}/submissions", appHandler.ListSubmissions).Methods("GET", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/{appId}/submissions/{submissionId}", appHandler.GetSubmission).Methods("GET", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/{appId}/ranking", appHandler.Ranking).Methods("GET", "OPTIONS")
	creatorRoutes.HandleFunc("/applications/{appId}/ranking/{applicantId}", appHandler.ApplicantRank).Methods("GET", "OPTIONS")
	creatorRoutes.HandleFunc("/vault/keys", vaultHandler.SaveKey).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(cfg config.CORSConfig) mux.MiddlewareFunc {
	origins := orDefault(cfg.AllowedOrigins, "*")
	methods := orDefault(cfg.AllowedMethods, "GET, POST, PUT, DELETE, OPTIONS")
	headers := orDefault(cfg.AllowedHeaders, "Content-Type, Authorization")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origins)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
