package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdesk/urbanism-api/internal/dto"
	"github.com/civicdesk/urbanism-api/internal/middleware"
	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type fakeQueueSrv struct {
	ranked    []dto.PrioritizedRequest
	rankedErr error

	report    *dto.AutoAssignReport
	reportErr error

	claim     *dto.ClaimResponse
	claimErr  error
	lastClaim struct {
		requestID string
		clerkID   string
	}
}

func (f *fakeQueueSrv) GetPrioritizedRequests(context.Context) ([]dto.PrioritizedRequest, error) {
	return f.ranked, f.rankedErr
}

func (f *fakeQueueSrv) AutoAssignRequests(context.Context) (*dto.AutoAssignReport, error) {
	return f.report, f.reportErr
}

func (f *fakeQueueSrv) ClaimRequest(_ context.Context, requestID, clerkID string) (*dto.ClaimResponse, error) {
	f.lastClaim.requestID = requestID
	f.lastClaim.clerkID = clerkID
	return f.claim, f.claimErr
}

type queueEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
}

func TestQueueHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeQueueSrv{ranked: []dto.PrioritizedRequest{
		{Request: models.Request{ID: "r-1"}, PriorityScore: 128, Urgent: true},
		{Request: models.Request{ID: "r-2"}, PriorityScore: 26},
	}}
	handler := NewQueueHandler(service, service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/queue", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope queueEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var ranked []dto.PrioritizedRequest
	require.NoError(t, json.Unmarshal(envelope.Data, &ranked))
	require.Len(t, ranked, 2)
	assert.Equal(t, "r-1", ranked[0].Request.ID)
	assert.True(t, ranked[0].Urgent)
}

func TestQueueHandlerAutoAssignNoClerks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeQueueSrv{
		reportErr: appErrors.Clone(appErrors.ErrUnprocessable, "no active clerks available"),
	}
	handler := NewQueueHandler(service, service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/queue/auto-assign", nil)

	handler.AutoAssign(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var envelope queueEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrUnprocessable.Code, envelope.Error["code"])
}

func TestQueueHandlerClaim(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeQueueSrv{claim: &dto.ClaimResponse{RequestID: "r-1", ClerkID: "c-1"}}
	handler := NewQueueHandler(service, service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/queue/r-1/claim", nil)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "c-1", Role: models.RoleClerk})

	handler.Claim(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r-1", service.lastClaim.requestID)
	assert.Equal(t, "c-1", service.lastClaim.clerkID)
}

func TestQueueHandlerClaimLostRace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeQueueSrv{
		claimErr: appErrors.Clone(appErrors.ErrConflict, "request already assigned"),
	}
	handler := NewQueueHandler(service, service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/queue/r-1/claim", nil)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "c-2", Role: models.RoleClerk})

	handler.Claim(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueHandlerClaimWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeQueueSrv{}
	handler := NewQueueHandler(service, service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/queue/r-1/claim", nil)

	handler.Claim(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, service.lastClaim.requestID)
}
