package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/litgraph/internal/storage"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CreateRunHandler records a queued run and hands it to the workers.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		Seed  string `json:"seed" validate:"required"`
		Limit int    `json:"limit" validate:"required,min=1,max=10000"`
	}

	type createRunResponse struct {
		Message string      `json:"message"`
		Run     *common.Run `json:"run,omitempty"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	run := common.Run{
		ID:        uuid.NewString(),
		SeedID:    data.Seed,
		Limit:     data.Limit,
		Status:    common.RunQueued,
		CreatedAt: time.Now(),
	}
	if err := app.Runs.CreateRun(ctx, run); err != nil {
		logger.Error("[Server] Failed to create run", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	req := queue.RunRequest{RunID: run.ID, Seed: run.SeedID, Limit: run.Limit}
	if err := queue.PublishRun(ctx, app.Queue, app.QueueName, req); err != nil {
		logger.Error("[Server] Failed to enqueue run", "run", run.ID, "err", err)
		run.Status = common.RunFailed
		run.Error = "could not enqueue run"
		if err := app.Runs.UpdateRun(ctx, run); err != nil {
			logger.Error("[Server] Failed to mark run failed", "run", run.ID, "err", err)
		}
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, createRunResponse{
		Message: "Run queued",
		Run:     &run,
	})
}

// GetRunHandler returns a run with the state of each of its papers.
func GetRunHandler(c echo.Context) error {
	type getRunResponse struct {
		Run   common.Run    `json:"run"`
		Tasks []common.Task `json:"tasks"`
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	id := c.Param("id")

	run, err := app.Runs.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Run not found"})
	}
	if err != nil {
		logger.Error("[Server] Failed to load run", "run", id, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	tasks, err := app.Runs.ListTasks(ctx, id)
	if err != nil {
		logger.Error("[Server] Failed to load tasks", "run", id, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if tasks == nil {
		tasks = []common.Task{}
	}

	return c.JSON(http.StatusOK, getRunResponse{Run: run, Tasks: tasks})
}

// GetRunReportHandler serves the stored report of a finished run.
func GetRunReportHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Objects == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Reports are not stored"})
	}

	id := c.Param("id")
	data, err := storage.GetFile(c.Request().Context(), app.Objects, app.Bucket, storage.RunReportKey(id))
	if err != nil {
		logger.Debug("[Server] Report not available", "run", id, "err", err)
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Report not found"})
	}
	return c.JSONBlob(http.StatusOK, data)
}
