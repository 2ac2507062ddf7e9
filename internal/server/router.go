package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dataflux/dataflux-backend/internal/handlers"
)

type RouterConfig struct {
	AssetHandler  *handlers.AssetHandler
	HealthHandler *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/assets", cfg.AssetHandler.UploadAsset)
		v1.GET("/assets", cfg.AssetHandler.ListAssets)
		v1.GET("/assets/:id", cfg.AssetHandler.GetAsset)
		v1.GET("/assets/:id/status", cfg.AssetHandler.GetStatus)
		v1.POST("/assets/:id/analyze", cfg.AssetHandler.TriggerReanalysis)
	}

	return router
}
