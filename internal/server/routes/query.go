package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	mid "github.com/knosphere/backend/internal/server/middleware"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/logger"
)

type queryRequest struct {
	Query  string `json:"query" validate:"required"`
	Stream bool   `json:"stream"`
}

// QueryHandler answers a question through the agent workflow. With
// "stream": true the response is server-sent events carrying step markers
// and answer fragments, followed by the final state; otherwise it is one
// JSON document.
func QueryHandler(c echo.Context) error {
	cc := c.(*mid.AppContext)

	req := new(queryRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	ctx := c.Request().Context()

	if !req.Stream {
		state, err := cc.App.Orchestrator.Run(ctx, req.Query, cc.User.UserID)
		if err != nil {
			logger.Error("query failed", "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error": "Query failed",
				"state": state,
			})
		}
		return c.JSON(http.StatusOK, state)
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)

	events := make(chan ai.StreamEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			writeSSE(response, event.Type, event)
		}
	}()

	state, err := cc.App.Orchestrator.RunStream(ctx, req.Query, cc.User.UserID, events)
	<-done
	if err != nil {
		writeSSE(response, "error", map[string]string{"error": err.Error()})
		return nil
	}
	writeSSE(response, "state", state)
	return nil
}

func writeSSE(response *echo.Response, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(response, "event: %s\ndata: %s\n\n", event, data)
	response.Flush()
}

// QueryGraphHandler answers a question with knowledge-graph augmentation.
func QueryGraphHandler(c echo.Context) error {
	cc := c.(*mid.AppContext)

	req := new(queryRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	result, err := cc.App.GraphEngine.Query(c.Request().Context(), req.Query, cc.User.UserID)
	if err != nil {
		logger.Error("graph query failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Query failed"})
	}
	return c.JSON(http.StatusOK, result)
}

// GetMetricsHandler reports accumulated model usage.
func GetMetricsHandler(c echo.Context) error {
	cc := c.(*mid.AppContext)
	return c.JSON(http.StatusOK, cc.App.AI.GetMetrics())
}
