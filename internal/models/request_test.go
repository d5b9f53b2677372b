package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from RequestStatus
		to   RequestStatus
		want bool
	}{
		{"draft submits", StatusDraft, StatusPendingValidation, true},
		{"pending enters review", StatusPendingValidation, StatusInReview, true},
		{"pending rejected directly", StatusPendingValidation, StatusRejected, true},
		{"pending cannot approve", StatusPendingValidation, StatusApproved, false},
		{"review approves", StatusInReview, StatusApproved, true},
		{"review rejects", StatusInReview, StatusRejected, true},
		{"draft cannot skip to review", StatusDraft, StatusInReview, false},
		{"approved is terminal", StatusApproved, StatusInReview, false},
		{"rejected is terminal", StatusRejected, StatusPendingValidation, false},
		{"unknown status goes nowhere", RequestStatus("ARCHIVED"), StatusInReview, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestIsOpen(t *testing.T) {
	assert.True(t, IsOpen(StatusPendingValidation))
	assert.True(t, IsOpen(StatusInReview))
	assert.False(t, IsOpen(StatusDraft))
	assert.False(t, IsOpen(StatusApproved))
	assert.False(t, IsOpen(StatusRejected))
}

func TestValidRequestType(t *testing.T) {
	assert.True(t, ValidRequestType(TypeConstructionPermit))
	assert.True(t, ValidRequestType(TypeOther))
	assert.False(t, ValidRequestType(RequestType("PARKING_PERMIT")))
	assert.False(t, ValidRequestType(RequestType("")))
}
