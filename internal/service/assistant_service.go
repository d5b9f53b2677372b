package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type assistantMessageStore interface {
	CreateMessage(ctx context.Context, msg *models.AssistantMessage) error
	ListConversation(ctx context.Context, conversationID, userID string) ([]models.AssistantMessage, error)
}

// AssistantConfig points the proxy at the external completion service.
type AssistantConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ChatPayload is one citizen message to the assistant.
type ChatPayload struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" validate:"required,max=4000"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

// AssistantService proxies citizen chat to the external AI service and keeps
// the transcript. It performs no reasoning of its own.
type AssistantService struct {
	repo   assistantMessageStore
	client *http.Client
	cfg    AssistantConfig
	logger *zap.Logger
}

// NewAssistantService constructs the proxy.
func NewAssistantService(repo assistantMessageStore, client *http.Client, cfg AssistantConfig, logger *zap.Logger) *AssistantService {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantService{repo: repo, client: client, cfg: cfg, logger: logger}
}

// Chat forwards the citizen's message with conversation history to the
// upstream service and stores both turns.
func (s *AssistantService) Chat(ctx context.Context, userID string, payload ChatPayload) (*ChatResponse, error) {
	if strings.TrimSpace(payload.Message) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message must not be empty")
	}
	if s.cfg.BaseURL == "" {
		return nil, appErrors.Clone(appErrors.ErrUpstream, "assistant is not configured")
	}

	conversationID := payload.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	history, err := s.repo.ListConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}

	messages := make([]completionMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, completionMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, completionMessage{Role: string(models.AssistantRoleUser), Content: payload.Message})

	reply, err := s.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateMessage(ctx, &models.AssistantMessage{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.AssistantRoleUser,
		Content:        payload.Message,
	}); err != nil {
		s.logger.Warn("failed to store user message", zap.Error(err))
	}
	if err := s.repo.CreateMessage(ctx, &models.AssistantMessage{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.AssistantRoleAssistant,
		Content:        reply,
	}); err != nil {
		s.logger.Warn("failed to store assistant reply", zap.Error(err))
	}

	return &ChatResponse{ConversationID: conversationID, Reply: reply}, nil
}

// History returns a stored conversation for its owner.
func (s *AssistantService) History(ctx context.Context, userID, conversationID string) ([]models.AssistantMessage, error) {
	messages, err := s.repo.ListConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	return messages, nil
}

func (s *AssistantService) complete(ctx context.Context, messages []completionMessage) (string, error) {
	body, err := json.Marshal(completionRequest{Model: s.cfg.Model, Messages: messages})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode completion request")
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "assistant service unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		s.logger.Warn("assistant upstream returned error",
			zap.Int("status", resp.StatusCode), zap.ByteString("body", payload))
		return "", appErrors.Clone(appErrors.ErrUpstream, fmt.Sprintf("assistant service returned %d", resp.StatusCode))
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "invalid assistant response")
	}
	if len(completion.Choices) == 0 {
		return "", appErrors.Clone(appErrors.ErrUpstream, "assistant returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
