package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the API routes on a gin engine.
func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	api := router.Group("/api")
	{
		api.POST("/properties", handler.IngestProperties)
		api.GET("/properties", handler.GetProperties)
		api.GET("/properties/recent-sales", handler.GetRecentSales)
		api.GET("/stats", handler.GetStats)
		api.GET("/districts", handler.GetDistricts)
		api.POST("/update-coordinates", handler.UpdateCoordinates)
		api.GET("/health", handler.Health)
	}
}
