package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicdesk/urbanism-api/internal/models"
)

// AssistantRepository stores assistant conversation transcripts.
type AssistantRepository struct {
	db *sqlx.DB
}

// NewAssistantRepository constructs the repository.
func NewAssistantRepository(db *sqlx.DB) *AssistantRepository {
	return &AssistantRepository{db: db}
}

// CreateMessage appends one turn to a conversation.
func (r *AssistantRepository) CreateMessage(ctx context.Context, msg *models.AssistantMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assistant_messages (id, conversation_id, user_id, role, content, created_at)
		VALUES (:id, :conversation_id, :user_id, :role, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create assistant message: %w", err)
	}
	return nil
}

// ListConversation returns a user's conversation turns in chronological order.
func (r *AssistantRepository) ListConversation(ctx context.Context, conversationID, userID string) ([]models.AssistantMessage, error) {
	const query = `SELECT id, conversation_id, user_id, role, content, created_at
		FROM assistant_messages WHERE conversation_id = $1 AND user_id = $2
		ORDER BY created_at ASC, id ASC`
	var messages []models.AssistantMessage
	if err := r.db.SelectContext(ctx, &messages, query, conversationID, userID); err != nil {
		return nil, fmt.Errorf("list assistant conversation: %w", err)
	}
	return messages, nil
}
