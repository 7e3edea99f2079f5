package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/atlast/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// retryAfterSeconds is the poll hint sent while a session's buffer refills.
const retryAfterSeconds = 2

// GameHandler serves the session lifecycle: start, fetch riddle, answer, progress stream.
type GameHandler struct {
	sessions Sessions
	streams  Streams
	tracer   trace.Tracer
	logger   *log.Logger
}

func (h *GameHandler) Register(g *echo.Group) {
	g.POST("/session/start", h.startSession)
	g.GET("/question/:id", h.getQuestion)
	g.POST("/verify_answer", h.verifyAnswer)
	g.GET("/stream/:id", h.streamLogs)
}

// startSession creates a session and starts the cold-start fill.
//
//	@Summary	Start a game session
//	@Tags		game
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		StartSessionRequest	false	"Difficulty tier"
//	@Success	200		{object}	StartSessionResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/session/start [post]
func (h *GameHandler) startSession(c echo.Context) error {
	ctx, span := h.tracer.Start(c.Request().Context(), "GameHandler.startSession")
	defer span.End()

	var req StartSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	d := models.Difficulty(req.Difficulty).Normalize()
	if d == "" {
		d = models.GlobalEasy
	}
	span.SetAttributes(attribute.String("difficulty", string(d)))

	id, err := h.sessions.StartSession(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return httpError(err)
	}
	return c.JSON(http.StatusOK, StartSessionResponse{
		SessionID:  id,
		Difficulty: string(d),
		Status:     "initializing",
		Message:    "Session started. Riddles are being prepared.",
	})
}

// getQuestion pops the next riddle or reports that one is on its way.
//
//	@Summary	Next riddle for a session
//	@Tags		game
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	QuestionResponse
//	@Success	202	{object}	QuestionResponse
//	@Failure	404	{object}	HTTPError
//	@Failure	503	{object}	HTTPError
//	@Router		/api/question/{id} [get]
func (h *GameHandler) getQuestion(c echo.Context) error {
	id := c.Param("id")
	ctx, span := h.tracer.Start(c.Request().Context(), "GameHandler.getQuestion", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	pop, err := h.sessions.PopOrTrigger(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return httpError(err)
	}
	if !pop.Ready {
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		return c.JSON(http.StatusAccepted, QuestionResponse{
			Status:     "processing",
			Message:    "The riddle is being prepared. Please poll again shortly.",
			RetryAfter: retryAfterSeconds,
		})
	}
	return c.JSON(http.StatusOK, QuestionResponse{Status: "ready", Data: pop.Item, QueueStatus: "refilling"})
}

// verifyAnswer checks a guess against the session's current riddle.
//
//	@Summary	Verify an answer
//	@Tags		game
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		VerifyAnswerRequest	true	"Guess"
//	@Success	200		{object}	session.AnswerResult
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/verify_answer [post]
func (h *GameHandler) verifyAnswer(c echo.Context) error {
	ctx, span := h.tracer.Start(c.Request().Context(), "GameHandler.verifyAnswer")
	defer span.End()

	var req VerifyAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.UserAnswer = strings.TrimSpace(req.UserAnswer)
	if req.SessionID == "" || req.UserAnswer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing session_id or user_answer")
	}
	span.SetAttributes(attribute.String("session_id", req.SessionID))

	res, err := h.sessions.RecordAnswerAttempt(ctx, req.SessionID, req.UserAnswer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return httpError(err)
	}
	span.SetAttributes(attribute.Bool("correct", res.Correct), attribute.Int64("attempts", res.Attempts))
	return c.JSON(http.StatusOK, res)
}

// streamLogs mirrors a session's pipeline milestones as server-sent events until
// the client disconnects.
//
//	@Summary	Pipeline progress stream
//	@Tags		game
//	@Param		id	path	string	true	"Session ID"
//	@Produce	text/event-stream
//	@Success	200	{string}	string
//	@Failure	503	{object}	HTTPError
//	@Router		/api/stream/{id} [get]
func (h *GameHandler) streamLogs(c echo.Context) error {
	if h.streams == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress stream disabled")
	}
	id := c.Param("id")
	req := c.Request()
	ctx, span := h.tracer.Start(req.Context(), "GameHandler.streamLogs", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()
	if strings.TrimSpace(id) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id required")
	}

	stream, err := h.streams.Subscribe(ctx, id)
	if err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress stream unavailable")
	}
	defer stream.Close()

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-stream.Events():
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Printf("stream %s: encode event: %v", id, err)
				continue
			}
			if _, err := resp.Write([]byte("event: " + string(ev.Stage) + "\n")); err != nil {
				return nil
			}
			if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
