package server

import (
	"github.com/knotworks/strata/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	apiRoutes.POST("/documents", routes.InsertDocumentsHandler)
	apiRoutes.POST("/query", routes.QueryHandler)
}
