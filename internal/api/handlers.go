package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediachat/internal/dispatch"
	"mediachat/internal/models"
	"mediachat/internal/service/agent"
	"mediachat/internal/storage"
	"mediachat/internal/worker"
)

// Handler wires HTTP routes to the agent service and schedules turns
// through the per-session worker dispatcher.
type Handler struct {
	agent   *agent.Service
	workers *worker.Dispatcher
	log     zerolog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(agentService *agent.Service, workerCfg worker.Config, log zerolog.Logger) *Handler {
	return &Handler{
		agent:   agentService,
		workers: worker.NewDispatcher(workerCfg),
		log:     log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat", h.submitTurn)
	api.GET("/sessions", h.listSessions)
	api.GET("/sessions/:session_id/messages", h.listMessages)
	api.GET("/media", h.listMedia)
	api.POST("/media/edit", h.submitEdit)
}

type attachmentRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type chatRequest struct {
	SessionID   string              `json:"session_id"`
	Message     string              `json:"message"`
	Attachments []attachmentRequest `json:"attachments"`
}

func (h *Handler) submitTurn(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, models.Attachment{
			Name:     att.Name,
			MimeType: att.MimeType,
			Data:     att.Data,
		})
	}

	type turnOutcome struct {
		result *agent.TurnResult
		err    error
	}
	done := make(chan turnOutcome, 1)

	// The turn runs on a detached context: a dropped client does not cancel
	// an in-flight generation, its result is simply never delivered.
	err := h.workers.Submit(sessionID, func() {
		result, err := h.agent.HandleTurn(context.Background(), sessionID, req.Message, attachments)
		done <- turnOutcome{result: result, err: err}
	})
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	select {
	case outcome := <-done:
		if outcome.err != nil {
			h.log.Error().Err(outcome.err).Str("session_id", sessionID).Msg("turn failed")
			c.JSON(statusForError(outcome.err), gin.H{"error": outcome.err.Error()})
			return
		}
		c.JSON(http.StatusOK, outcome.result)
	case <-c.Request.Context().Done():
		h.log.Warn().Str("session_id", sessionID).Msg("client gone, discarding turn result")
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.agent.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = make([]models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) listMessages(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	messages, err := h.agent.ListMessages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) listMedia(c *gin.Context) {
	media, err := h.agent.ListMedia(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if media == nil {
		media = make([]models.MediaItem, 0)
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}

type editRequest struct {
	SessionID  string  `json:"session_id"`
	SourceURL  string  `json:"source_url"`
	SourceKind string  `json:"source_kind"`
	Prompt     string  `json:"prompt"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
}

func (h *Handler) submitEdit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" || req.SourceURL == "" || req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, source_url and prompt are required"})
		return
	}
	kind := models.MediaKind(req.SourceKind)
	if kind != models.MediaImage && kind != models.MediaVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_kind must be image or video"})
		return
	}
	if req.StartSec < 0 || req.EndSec <= req.StartSec {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trim window"})
		return
	}

	item, err := h.agent.EditMedia(c.Request.Context(), agent.EditRequest{
		SessionID: req.SessionID,
		SourceURL: req.SourceURL,
		Kind:      kind,
		Prompt:    req.Prompt,
		StartSec:  req.StartSec,
		EndSec:    req.EndSec,
	})
	if err != nil {
		h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("edit failed")
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"media_item": item})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dispatch.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
