package middleware

import (
	"context"

	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/storage"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	Subject string
	Role    string
}

// App carries the dependencies every handler may use.
type App struct {
	Runs      store.RunStore
	Queue     queue.Publisher
	QueueName string
	Validate  func(ctx context.Context, paperID string) (graph.ValidationReport, error)
	// Keyfunc verifies bearer tokens. Nil disables authentication.
	Keyfunc jwt.Keyfunc
	// Objects holds run reports. Nil when no bucket is configured.
	Objects storage.ObjectStore
	Bucket  string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
