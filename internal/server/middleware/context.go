package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/knotworks/strata/pkg/graph"
)

// App holds the shared collaborators every handler may need.
type App struct {
	DBConn *pgxpool.Pool
	Queue  *amqp091.Channel
	Graph  *graph.Client
}

// AppContext wraps the echo context with the shared App.
type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, app})
		}
	}
}
