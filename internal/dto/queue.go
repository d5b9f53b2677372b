package dto

import "github.com/civicdesk/urbanism-api/internal/models"

// PrioritizedRequest is one ranked entry of the clerk work queue.
type PrioritizedRequest struct {
	Request           models.Request `json:"request"`
	DaysLeft          *int           `json:"days_left"`
	BacklogInCategory int            `json:"backlog_in_category"`
	PriorityScore     int            `json:"priority_score"`
	Urgent            bool           `json:"urgent"`
}

// AssignmentFailure records one request the balancer could not assign.
type AssignmentFailure struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// AutoAssignReport summarises a bulk assignment run.
type AutoAssignReport struct {
	AssignedCount int                 `json:"assigned_count"`
	Failures      []AssignmentFailure `json:"failures"`
}

// ClaimResponse confirms a successful single-request claim.
type ClaimResponse struct {
	RequestID string `json:"request_id"`
	ClerkID   string `json:"clerk_id"`
}
