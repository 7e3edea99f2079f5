// Package server exposes the game operations over HTTP and server-sent events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/atlast/internal/progress"
	"github.com/mohammad-safakhou/atlast/models"
	"github.com/mohammad-safakhou/atlast/session"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Sessions is the buffer manager surface the handlers need.
type Sessions interface {
	StartSession(ctx context.Context, difficulty models.Difficulty) (string, error)
	PopOrTrigger(ctx context.Context, id string) (session.Pop, error)
	RecordAnswerAttempt(ctx context.Context, id, guess string) (session.AnswerResult, error)
}

// Streams opens a per-session progress subscription.
type Streams interface {
	Subscribe(ctx context.Context, sessionID string) (*progress.Stream, error)
}

// NameSearcher completes place names by prefix.
type NameSearcher interface {
	Prefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// NameStore completes names from previously served riddles.
type NameStore interface {
	SearchNamesByPrefix(ctx context.Context, q string, limit int) ([]string, error)
}

// Deps are the collaborators mounted by New. Streams, Index, Names and Metrics are optional.
type Deps struct {
	Sessions Sessions
	Streams  Streams
	Index    NameSearcher
	Names    NameStore
	Metrics  http.Handler
	Tracer   trace.Tracer
	Logger   *log.Logger
}

// New builds the echo instance with every route registered.
func New(deps Deps) *echo.Echo {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("server")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	api := e.Group("/api")
	gh := &GameHandler{sessions: deps.Sessions, streams: deps.Streams, tracer: tracer, logger: logger}
	gh.Register(api)
	lh := &LocationsHandler{index: deps.Index, names: deps.Names, tracer: tracer, logger: logger}
	lh.Register(api.Group("/locations"))
	return e
}

// httpError maps domain errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found or expired")
	case errors.Is(err, models.ErrNoActiveRiddle):
		return echo.NewHTTPError(http.StatusNotFound, "no active riddle found for this session")
	case errors.Is(err, models.ErrUnknownDifficulty):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
