package routes

import (
	"net/http"

	"github.com/knotworks/strata/internal/server/middleware"
	"github.com/knotworks/strata/pkg/graph"
	"github.com/knotworks/strata/pkg/logger"

	"github.com/labstack/echo/v4"
)

// QueryHandler answers a question against the knowledge graph in the
// requested mode.
func QueryHandler(c echo.Context) error {
	type queryBody struct {
		Query           string `json:"query" validate:"required"`
		Mode            string `json:"mode" validate:"omitempty,oneof=naive local hierarchical-local hierarchical-global hierarchical-bridge hierarchical-full"`
		ResponseType    string `json:"response_type"`
		TopK            int    `json:"top_k" validate:"omitempty,min=1"`
		Level           int    `json:"level" validate:"omitempty,min=0"`
		OnlyNeedContext bool   `json:"only_need_context"`
	}

	type queryResponse struct {
		Message  string `json:"message"`
		Response string `json:"response,omitempty"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	param := graph.DefaultQueryParam()
	if data.Mode != "" {
		param.Mode = graph.QueryMode(data.Mode)
	}
	if data.ResponseType != "" {
		param.ResponseType = data.ResponseType
	}
	if data.TopK > 0 {
		param.TopK = data.TopK
	}
	if data.Level > 0 {
		param.Level = data.Level
	}
	param.OnlyNeedContext = data.OnlyNeedContext

	ctx := c.Request().Context()
	client := c.(*middleware.AppContext).App.Graph
	response, err := client.Query(ctx, data.Query, param)
	if err != nil {
		logger.Error("Failed to answer query", "mode", param.Mode, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message:  "OK",
		Response: response,
	})
}
