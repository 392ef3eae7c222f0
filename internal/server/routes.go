package server

import (
	"github.com/knosphere/backend/internal/server/middleware"
	"github.com/knosphere/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document routes
	apiRoutes.POST("/documents", routes.CreateDocumentHandler)
	apiRoutes.GET("/documents/:id", routes.GetDocumentHandler)
	apiRoutes.GET("/documents/:id/archive", routes.GetDocumentArchiveHandler)

	// Query routes
	apiRoutes.POST("/query", routes.QueryHandler)
	apiRoutes.POST("/query/graph", routes.QueryGraphHandler)

	// Usage metrics
	apiRoutes.GET("/metrics", routes.GetMetricsHandler)
}
