package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dataflux/dataflux-backend/internal/analyzers"
	qdrantclients "github.com/dataflux/dataflux-backend/internal/clients/qdrant"
	redisclients "github.com/dataflux/dataflux-backend/internal/clients/redis"
	"github.com/dataflux/dataflux-backend/internal/db"
	"github.com/dataflux/dataflux-backend/internal/handlers"
	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/server"
	"github.com/dataflux/dataflux-backend/internal/services"
	"github.com/dataflux/dataflux-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Redis
	rdb, err := redisclients.NewClient()
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	statusCache := redisclients.NewStatusCache(log, rdb)
	workQueue := redisclients.NewWorkQueue(log, rdb)

	// Vector provider
	var vectorStore services.VectorStore
	switch provider := utils.GetEnv("VECTOR_PROVIDER", "redis", log); provider {
	case "qdrant":
		vectorStore, err = qdrantclients.NewVectorStore(log, qdrantclients.ConfigFromEnv(log))
		if err != nil {
			log.Error("Qdrant init failed", "error", err)
			os.Exit(1)
		}
	default:
		vectorStore = redisclients.NewVectorStore(log, rdb)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	assetRepo := repos.NewAssetRepo(thePG, log)
	segmentRepo := repos.NewSegmentRepo(thePG, log)
	featureRepo := repos.NewFeatureRepo(thePG, log)
	embeddingRepo := repos.NewEmbeddingRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	identityService := services.NewContentIdentityService(log, assetRepo)
	ingestService := services.NewIngestService(thePG, log, assetRepo, identityService, bucketService, workQueue, statusCache)
	statusTracker := services.NewStatusTracker(log, assetRepo, statusCache)
	registry := analyzers.NewRegistry(log)
	aggregator := services.NewResultAggregator(thePG, log, assetRepo, segmentRepo, featureRepo, embeddingRepo, vectorStore)
	dispatcher := services.NewDispatcher(log, assetRepo, workQueue, registry, aggregator, statusTracker, bucketService)
	assetService := services.NewAssetService(log, assetRepo, segmentRepo, bucketService)

	// Dispatcher worker pool
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go func() {
		if err := dispatcher.Start(workerCtx); err != nil {
			log.Error("Dispatcher stopped", "error", err)
		}
	}()

	// Handlers
	log.Info("Setting up handlers from main...")
	assetHandler := handlers.NewAssetHandler(log, ingestService, assetService, statusTracker, dispatcher)
	healthHandler := handlers.NewHealthHandler(thePG, rdb)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AssetHandler:  assetHandler,
		HealthHandler: healthHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
