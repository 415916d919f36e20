package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"modelbridge/internal/core"
	"modelbridge/internal/metrics"
	"modelbridge/internal/router"
)

// Handler holds the HTTP handlers.
type Handler struct {
	router  *router.Router
	metrics *metrics.Metrics
}

// NewHandler creates a handler over the given router. metrics may be nil.
func NewHandler(rt *router.Router, m *metrics.Metrics) *Handler {
	return &Handler{router: rt, metrics: m}
}

// completionRequest is the inbound body of POST /v1/chat/completions.
type completionRequest struct {
	Backend     string             `json:"backend"`
	Messages    []core.ChatMessage `json:"messages"`
	Stream      bool               `json:"stream"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
}

// backendParam resolves a backend kind from a request value.
func backendParam(value string) (core.BackendKind, error) {
	kind := core.BackendKind(strings.ToLower(value))
	if !kind.Valid() {
		return "", core.NewConfigurationError(kind, "unknown backend: "+value)
	}
	return kind, nil
}

// ChatCompletion handles POST /v1/chat/completions.
func (h *Handler) ChatCompletion(c echo.Context) error {
	var req completionRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewConfigurationError("", "invalid request body: "+err.Error()))
	}
	kind, err := backendParam(req.Backend)
	if err != nil {
		return handleError(c, err)
	}
	if len(req.Messages) == 0 {
		return handleError(c, core.NewConfigurationError(kind, "messages are required"))
	}

	opts := core.CompletionOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	}

	gen, err := h.router.Complete(c.Request().Context(), kind, req.Messages, opts)
	if err != nil {
		return handleError(c, err)
	}
	defer func() {
		_ = gen.Close()
	}()

	if h.metrics != nil {
		h.metrics.CompletionStarted(kind)
	}

	if req.Stream {
		return streamFragments(c, gen)
	}

	// Non-streaming: drain the stream into one completion body.
	var sb strings.Builder
	for {
		frag, err := gen.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return handleError(c, err)
		}
		sb.WriteString(frag)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id": gen.ID(),
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": sb.String()}},
		},
	})
}

// sseFrame is one outbound streaming chunk.
type sseFrame struct {
	ID      string      `json:"id"`
	Choices []sseChoice `json:"choices"`
}

type sseChoice struct {
	Delta sseDelta `json:"delta"`
}

type sseDelta struct {
	Content string `json:"content"`
}

func newSSEFrame(id, content string) sseFrame {
	return sseFrame{
		ID:      id,
		Choices: []sseChoice{{Delta: sseDelta{Content: content}}},
	}
}

// streamFragments writes the generation out as server-sent events,
// one data line per fragment, terminated by the done sentinel.
func streamFragments(c echo.Context, gen *router.Generation) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for {
		frag, err := gen.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Headers already sent; end the stream.
			break
		}

		payload, err := json.Marshal(newSSEFrame(gen.ID(), frag))
		if err != nil {
			break
		}
		if _, err := c.Response().Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return nil
		}
		c.Response().Flush()
	}

	_, _ = c.Response().Write([]byte("data: [DONE]\n\n"))
	c.Response().Flush()
	return nil
}

// ListModels handles GET /v1/models?backend=.
func (h *Handler) ListModels(c echo.Context) error {
	kind, err := backendParam(c.QueryParam("backend"))
	if err != nil {
		return handleError(c, err)
	}

	models, err := h.router.Models(c.Request().Context(), kind)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"backend": kind,
		"data":    models,
	})
}

// selectModelRequest is the inbound body of POST /v1/models/select.
type selectModelRequest struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// SelectModel handles POST /v1/models/select.
func (h *Handler) SelectModel(c echo.Context) error {
	var req selectModelRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewConfigurationError("", "invalid request body: "+err.Error()))
	}
	kind, err := backendParam(req.Backend)
	if err != nil {
		return handleError(c, err)
	}

	if err := h.router.SelectModel(c.Request().Context(), kind, req.Model); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"backend": string(kind),
		"model":   req.Model,
	})
}

// Status handles GET /v1/status?backend=.
func (h *Handler) Status(c echo.Context) error {
	kind, err := backendParam(c.QueryParam("backend"))
	if err != nil {
		return handleError(c, err)
	}

	report, err := h.router.Readiness(c.Request().Context(), kind)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"backend":   kind,
		"readiness": report,
	})
}

// Cancel handles POST /v1/cancel: cancels every in-flight generation.
func (h *Handler) Cancel(c echo.Context) error {
	cancelled := h.router.Active()
	h.router.CancelAll()
	if h.metrics != nil {
		h.metrics.CancelAllTriggered()
	}
	return c.JSON(http.StatusOK, map[string]int{"cancelled": cancelled})
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError converts taxonomy errors to HTTP responses.
func handleError(c echo.Context, err error) error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return c.JSON(statusFor(coreErr.Kind), map[string]interface{}{
			"error": map[string]interface{}{
				"type":    string(coreErr.Kind),
				"backend": string(coreErr.Backend),
				"message": coreErr.Error(),
			},
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.ErrorKindConfiguration:
		return http.StatusBadRequest
	case core.ErrorKindAuthentication:
		return http.StatusUnauthorized
	case core.ErrorKindUnavailable:
		return http.StatusServiceUnavailable
	case core.ErrorKindNetwork, core.ErrorKindFormat:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
