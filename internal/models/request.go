package models

import "time"

// RequestType enumerates permit application categories.
type RequestType string

const (
	TypeCertificateUrbanism RequestType = "CERTIFICATE_URBANISM"
	TypeConstructionPermit  RequestType = "CONSTRUCTION_PERMIT"
	TypeDemolitionPermit    RequestType = "DEMOLITION_PERMIT"
	TypeOpportunityNotice   RequestType = "OPPORTUNITY_NOTICE"
	TypeOther               RequestType = "OTHER"
)

// RequestStatus enumerates lifecycle states of a permit request.
type RequestStatus string

const (
	StatusDraft             RequestStatus = "DRAFT"
	StatusPendingValidation RequestStatus = "PENDING_VALIDATION"
	StatusInReview          RequestStatus = "IN_REVIEW"
	StatusApproved          RequestStatus = "APPROVED"
	StatusRejected          RequestStatus = "REJECTED"
)

// statusTransitions describes the strict request lifecycle. The only skip
// allowed is direct rejection from PENDING_VALIDATION.
var statusTransitions = map[RequestStatus][]RequestStatus{
	StatusDraft:             {StatusPendingValidation},
	StatusPendingValidation: {StatusInReview, StatusRejected},
	StatusInReview:          {StatusApproved, StatusRejected},
	StatusApproved:          {},
	StatusRejected:          {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OpenStatuses are the states counted as active clerk workload and shown in
// the prioritized queue.
var OpenStatuses = []RequestStatus{StatusPendingValidation, StatusInReview}

// IsOpen reports whether the status counts toward backlog and workload.
func IsOpen(status RequestStatus) bool {
	return status == StatusPendingValidation || status == StatusInReview
}

// ValidRequestType reports whether the given type is a known category.
func ValidRequestType(t RequestType) bool {
	switch t {
	case TypeCertificateUrbanism, TypeConstructionPermit, TypeDemolitionPermit, TypeOpportunityNotice, TypeOther:
		return true
	}
	return false
}

// Request represents a citizen's permit application.
type Request struct {
	ID              string        `db:"id" json:"id"`
	CitizenID       string        `db:"citizen_id" json:"citizen_id"`
	Type            RequestType   `db:"request_type" json:"request_type"`
	Status          RequestStatus `db:"status" json:"status"`
	Title           string        `db:"title" json:"title"`
	Address         string        `db:"address" json:"address"`
	Description     string        `db:"description" json:"description"`
	LegalDeadline   *time.Time    `db:"legal_deadline" json:"legal_deadline,omitempty"`
	AssignedClerkID *string       `db:"assigned_clerk_id" json:"assigned_clerk_id,omitempty"`
	DecisionNote    string        `db:"decision_note" json:"decision_note,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestFilter captures filtering criteria for listing requests.
type RequestFilter struct {
	CitizenID       string
	AssignedClerkID string
	Statuses        []RequestStatus
	Type            *RequestType
	Page            int
	PageSize        int
}

// ClerkWorkload pairs a clerk with their current open request count.
type ClerkWorkload struct {
	ClerkID  string `db:"clerk_id" json:"clerk_id"`
	Workload int    `db:"workload" json:"workload"`
}

// CategoryBacklog pairs a request type with the count of open requests in it.
type CategoryBacklog struct {
	Type  RequestType `db:"request_type" json:"request_type"`
	Count int         `db:"count" json:"count"`
}
