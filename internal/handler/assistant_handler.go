package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/urbanism-api/internal/models"
	"github.com/civicdesk/urbanism-api/internal/service"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
	"github.com/civicdesk/urbanism-api/pkg/response"
)

type assistantService interface {
	Chat(ctx context.Context, userID string, payload service.ChatPayload) (*service.ChatResponse, error)
	History(ctx context.Context, userID, conversationID string) ([]models.AssistantMessage, error)
}

// AssistantHandler relays citizen chat to the assistant proxy.
type AssistantHandler struct {
	service assistantService
}

func NewAssistantHandler(service assistantService) *AssistantHandler {
	return &AssistantHandler{service: service}
}

// Chat godoc
// @Summary Send a message to the assistant
// @Tags Assistant
// @Accept json
// @Produce json
// @Param payload body service.ChatPayload true "Chat payload"
// @Success 200 {object} response.Envelope
// @Router /assistant/chat [post]
func (h *AssistantHandler) Chat(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload service.ChatPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chat payload"))
		return
	}
	reply, err := h.service.Chat(c.Request.Context(), claims.UserID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reply)
}

// History godoc
// @Summary Fetch a conversation transcript
// @Tags Assistant
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} response.Envelope
// @Router /assistant/conversations/{id} [get]
func (h *AssistantHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	messages, err := h.service.History(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, messages)
}
