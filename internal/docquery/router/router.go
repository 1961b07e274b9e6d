// Package router provides document query service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/logger"
)

// New builds the gin engine with all service routes registered.
func New(h *handler.DocQueryHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.IngestFile)
			documents.POST("/text", h.IngestText)
			documents.GET("", h.Documents)
			documents.GET("/count", h.Count)
			documents.DELETE("", h.Clear)
		}

		v1.POST("/query", h.Query)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("Routes registered")
	return engine
}
