package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/platform/auth"
)

// ErrUnknownPatient is returned by a SummaryFunc when the patient does
// not exist; the handler maps it to 404.
var ErrUnknownPatient = errors.New("unknown patient")

// fallbackReply is returned when the collaborator cannot produce a reply.
// The endpoint degrades instead of failing.
const fallbackReply = "I'm sorry, I'm having trouble processing your request right now. Please try again later."

const fallbackModel = "local-fallback"

// SummaryFunc assembles the clinical context for a patient.
type SummaryFunc func(ctx context.Context, patientID string) (ContextData, error)

// Handler exposes the patient chat endpoint.
type Handler struct {
	client  *Client
	summary SummaryFunc
	logger  zerolog.Logger
}

// NewHandler creates a chat Handler.
func NewHandler(client *Client, summary SummaryFunc, logger zerolog.Logger) *Handler {
	return &Handler{client: client, summary: summary, logger: logger}
}

// RegisterRoutes binds the chat route onto the patients group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/:id/chat", h.Chat)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response  string    `json:"response"`
	Model     string    `json:"model"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat handles POST /patients/:id/chat.
func (h *Handler) Chat(c echo.Context) error {
	patientID := c.Param("id")
	if !auth.CanAccessPatient(c.Request().Context(), patientID) {
		return echo.NewHTTPError(http.StatusForbidden, "access restricted to own record")
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	message := Sanitize(strings.TrimSpace(req.Message))
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()

	var patientContext string
	data, err := h.summary(ctx, patientID)
	switch {
	case err == nil:
		patientContext = BuildContext(data)
	case errors.Is(err, ErrUnknownPatient):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	default:
		// Answer without context rather than failing the chat.
		h.logger.Warn().Err(err).Str("patient_id", patientID).Msg("chat context unavailable")
	}

	comp, err := h.client.Complete(ctx, message, patientContext)
	if err != nil {
		h.logger.Warn().Err(err).Str("patient_id", patientID).Msg("chat collaborator failed, returning fallback")
		return c.JSON(http.StatusOK, chatResponse{
			Response:  fallbackReply,
			Model:     fallbackModel,
			Success:   false,
			Timestamp: time.Now().UTC(),
		})
	}

	model := comp.Model
	if model == "" {
		model = "remote"
	}
	return c.JSON(http.StatusOK, chatResponse{
		Response:  comp.Text,
		Model:     model,
		Success:   true,
		Timestamp: time.Now().UTC(),
	})
}
