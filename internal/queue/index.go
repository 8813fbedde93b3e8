package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knotworks/strata/pkg/graph"
	"github.com/knotworks/strata/pkg/logger"
)

// IndexDocumentsMsg is the payload of an index job: documents keyed by id.
type IndexDocumentsMsg struct {
	JobID string            `json:"job_id"`
	Docs  map[string]string `json:"docs"`
}

// ProcessIndexMessage ingests the documents of one index job into the
// knowledge graph.
func ProcessIndexMessage(ctx context.Context, client *graph.Client, msg string) error {
	data := new(IndexDocumentsMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to decode index message: %w", err)
	}
	if len(data.Docs) == 0 {
		logger.Warn("[Queue] Index job without documents", "job_id", data.JobID)
		return nil
	}

	start := time.Now()
	logger.Info("[Queue] Indexing documents", "job_id", data.JobID, "docs", len(data.Docs))
	if err := client.Insert(ctx, data.Docs); err != nil {
		return fmt.Errorf("failed to index job %s: %w", data.JobID, err)
	}
	logger.Info("[Queue] Index job done", "job_id", data.JobID, "took", time.Since(start).String())
	return nil
}
