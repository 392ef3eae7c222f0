package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/knosphere/backend/internal/storage"
	"github.com/knosphere/backend/pkg/agent"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/graphrag"
	"github.com/knosphere/backend/pkg/store"
)

// AppUser is the authenticated principal of one request.
type AppUser struct {
	UserID string
	Role   string
}

// App bundles the service dependencies every handler can reach. All fields
// are constructed once at startup and safe for concurrent use.
type App struct {
	Store        store.Store
	Queue        *amqp091.Channel
	Key          *keyfunc.Keyfunc
	Archive      *storage.Archive
	AI           ai.Client
	Orchestrator *agent.Orchestrator
	GraphEngine  *graphrag.Engine

	MasterAPIKey string
	MasterUserID string
}

// AppContext wraps the echo context with the app dependencies and, after
// auth ran, the requesting user.
type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

// AppContextMiddleware injects the app dependencies into every request.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, app, nil})
		}
	}
}
