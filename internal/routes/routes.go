package routes

import (
	"net/http"

	"github.com/annalist/annalist-backend/internal/handler"
	"github.com/annalist/annalist-backend/internal/middleware"
	"github.com/annalist/annalist-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// Setup registers all API routes
func Setup(
	router *gin.Engine,
	jwtManager *jwt.Manager,
	documentHandler *handler.DocumentHandler,
	versionHandler *handler.VersionHandler,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	auth := middleware.Auth(jwtManager)

	docs := api.Group("/documents")
	{
		docs.GET("", documentHandler.List)
		docs.GET("/:id", documentHandler.Get)
		docs.POST("", auth, documentHandler.Create)
		docs.PUT("/:id", auth, documentHandler.Update)
		docs.DELETE("/:id", auth, documentHandler.Delete)

		docs.POST("/:id/revert", auth, documentHandler.Revert)
		docs.PUT("/:id/versioning", auth, documentHandler.SetGate)
		docs.DELETE("/:id/versioning", auth, documentHandler.ClearGate)

		docs.GET("/:id/versions", versionHandler.List)
		docs.GET("/:id/versions/:selector", versionHandler.Get)
		docs.GET("/:id/versions/:selector/next", versionHandler.Next)
		docs.GET("/:id/versions/:selector/previous", versionHandler.Previous)
	}
}
