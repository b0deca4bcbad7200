// pkg/search/tasks.go
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// taskProgress is the distilled state of an async update-by-query task
type taskProgress struct {
	Completed bool
	Total     int
	Updated   int
}

// parseTaskProgress reads a raw task status document. Depending on
// cluster version the completion flag appears either at the top level
// or nested under the task object; both are checked.
func parseTaskProgress(raw []byte) (taskProgress, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return taskProgress{}, fmt.Errorf("failed to decode task status: %w", err)
	}

	var progress taskProgress

	if completed, ok := doc["completed"].(bool); ok && completed {
		progress.Completed = true
	}

	task, _ := doc["task"].(map[string]interface{})
	if task != nil {
		if completed, ok := task["completed"].(bool); ok && completed {
			progress.Completed = true
		}
		if status, ok := task["status"].(map[string]interface{}); ok {
			progress.Total = intField(status, "total")
			progress.Updated = intField(status, "updated")
		}
	}

	// A finished task carries final counts in the response object
	if response, ok := doc["response"].(map[string]interface{}); ok {
		progress.Total = intField(response, "total")
		progress.Updated = intField(response, "updated")
	}

	return progress, nil
}

func intField(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

// waitForTask polls task status until the completion flag is observed
// or the poll window expires. An expired window returns completed=false
// with no error; the server-side task is left running.
func waitForTask(ctx context.Context, api API, logger *zap.Logger, taskID string, interval, timeout time.Duration) (taskProgress, bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last taskProgress
	for {
		raw, err := api.GetTask(ctx, taskID)
		if err != nil {
			return last, false, fmt.Errorf("task %s status poll failed: %w", taskID, err)
		}

		progress, err := parseTaskProgress(raw)
		if err != nil {
			return last, false, err
		}
		last = progress

		if progress.Completed {
			return progress, true, nil
		}

		if time.Now().After(deadline) {
			logger.Warn("Task did not complete within the poll window, leaving it running",
				zap.String("task_id", taskID),
				zap.Duration("timeout", timeout))
			return last, false, nil
		}

		select {
		case <-ctx.Done():
			return last, false, ctx.Err()
		case <-ticker.C:
		}
	}
}
