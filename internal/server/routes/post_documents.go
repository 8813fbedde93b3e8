package routes

import (
	"encoding/json"
	"net/http"

	"github.com/knotworks/strata/internal/queue"
	"github.com/knotworks/strata/internal/server/middleware"
	"github.com/knotworks/strata/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// InsertDocumentsHandler accepts a batch of documents and queues them for
// indexing. Ingestion is slow (extraction, clustering, reports), so the
// request only enqueues and returns the job id.
func InsertDocumentsHandler(c echo.Context) error {
	type insertDocumentsBody struct {
		Docs map[string]string `json:"docs" validate:"required,min=1"`
	}

	type insertDocumentsResponse struct {
		Message string `json:"message"`
		JobID   string `json:"job_id,omitempty"`
	}

	data := new(insertDocumentsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, insertDocumentsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, insertDocumentsResponse{
			Message: "Invalid request body",
		})
	}

	jobID, err := gonanoid.New()
	if err != nil {
		logger.Error("Failed to generate job id", "err", err)
		return c.JSON(http.StatusInternalServerError, insertDocumentsResponse{
			Message: "Internal server error",
		})
	}

	msg := queue.IndexDocumentsMsg{
		JobID: jobID,
		Docs:  data.Docs,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode index message", "err", err)
		return c.JSON(http.StatusInternalServerError, insertDocumentsResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.IndexQueue, body); err != nil {
		logger.Error("Failed to queue index job", "job_id", jobID, "err", err)
		return c.JSON(http.StatusInternalServerError, insertDocumentsResponse{
			Message: "Internal server error",
		})
	}

	logger.Info("[Server] Queued index job", "job_id", jobID, "docs", len(data.Docs))
	return c.JSON(http.StatusAccepted, insertDocumentsResponse{
		Message: "Documents queued for indexing",
		JobID:   jobID,
	})
}
