package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"astapp/internal/cache"
	"astapp/internal/config"
	"astapp/internal/events"
	"astapp/internal/formgen"
	"astapp/internal/grading"
	"astapp/internal/logging"
	"astapp/internal/promotion"
	"astapp/internal/repository"
	"astapp/internal/scoring"
	"astapp/internal/service"
	"astapp/internal/transport/rest"
	"astapp/internal/transport/ws"
)

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ASTAPP_CONFIG"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	logger.Info("grader configured",
		zap.String("endpoint", cfg.Grader.Endpoint()),
		zap.String("model", cfg.Grader.Model),
		zap.Bool("api_key_set", cfg.Grader.IsEnabled()),
	)

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return err
	}
	defer mongoClient.Disconnect(context.Background())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		return err
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
	db := mongoClient.Database(cfg.Mongo.Database)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return err
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Repositories
	formRepo := repository.NewFormRepo(db)
	submissionRepo, closeStore, err := openSubmissionStore(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	formCache := cache.NewFormCache(rdb, cfg.Redis.FormTTL)

	// Grading
	var audit grading.ResponseLog
	if cfg.Grader.ResponseLogPath != "" {
		fileLog, err := grading.NewFileResponseLog(cfg.Grader.ResponseLogPath)
		if err != nil {
			return err
		}
		defer fileLog.Close()
		audit = fileLog
	}
	grader := grading.NewClient(cfg.Grader, audit, logger)
	scorer := scoring.NewScorer(cfg.Scoring, cfg.Grader.DefaultCriteria, grader)

	// Promotion
	vault := promotion.NewVaultClient(cfg.Vault, logger)
	roblox := promotion.NewRobloxClient(cfg.Promotion, cfg.Vault.KeyPrefix, vault, logger)

	// Events
	publisher, err := events.NewEventPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// WebSocket hub (implements service.Broadcaster)
	wsHub := ws.NewHub(logger)
	defer wsHub.Close()

	// Services
	authSvc := service.NewAuthService(cfg.Auth)
	formSvc := service.NewFormService(formRepo, formCache, cfg.Scoring, logger)
	formSvc.SetGenerator(formgen.NewGenerator(grader, cfg.Generator, cfg.Scoring, logger))
	submissionSvc := service.NewSubmissionService(scorer, submissionRepo, roblox, publisher, wsHub,
		cfg.Scoring, cfg.Promotion, logger)
	submissionSvc.SetRanking(cache.NewRankingCache(rdb))

	router := rest.NewRouter(&rest.Container{
		AuthService:       authSvc,
		FormService:       formSvc,
		SubmissionService: submissionSvc,
		KeyStore:          roblox,
		WSHub:             wsHub,
		CORS:              cfg.CORS,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

// openSubmissionStore returns the configured submission repository and a
// function releasing its resources
func openSubmissionStore(ctx context.Context, cfg *config.Config, db *mongo.Database, logger *zap.Logger) (repository.SubmissionRepository, func(), error) {
	if cfg.Storage.Submissions != "postgres" {
		return repository.NewSubmissionRepository(db), func() {}, nil
	}

	pg, err := repository.OpenPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	repo, err := repository.NewPgSubmissionRepository(ctx, pg)
	if err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("submissions stored in PostgreSQL")
	return repo, func() { closeDB(pg, logger) }, nil
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close PostgreSQL", zap.Error(err))
	}
}
