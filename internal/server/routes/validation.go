package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/litgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetPaperValidationHandler validates the graph around a stored paper.
func GetPaperValidationHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	id := c.Param("id")

	report, err := app.Validate(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Paper not found"})
	}
	if err != nil {
		logger.Error("[Server] Validation failed", "paper", id, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, report)
}
