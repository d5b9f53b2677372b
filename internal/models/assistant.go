package models

import "time"

// AssistantRole identifies the author of a conversation message.
type AssistantRole string

const (
	AssistantRoleUser      AssistantRole = "user"
	AssistantRoleAssistant AssistantRole = "assistant"
)

// AssistantMessage is one stored turn of a citizen's assistant conversation.
type AssistantMessage struct {
	ID             string        `db:"id" json:"id"`
	ConversationID string        `db:"conversation_id" json:"conversation_id"`
	UserID         string        `db:"user_id" json:"user_id"`
	Role           AssistantRole `db:"role" json:"role"`
	Content        string        `db:"content" json:"content"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}
