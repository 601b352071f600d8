package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/middleware"
	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type requestServiceMock struct {
	detail    *dto.RequestDetail
	list      *dto.RequestList
	responses *dto.ResponsesView
	err       error

	lastQuery dto.RequestQuery
}

func (m *requestServiceMock) Submit(ctx context.Context, payload dto.CreateRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *requestServiceMock) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) (*dto.RequestList, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

func (m *requestServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *requestServiceMock) Approve(ctx context.Context, id string, payload dto.ApproveRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *requestServiceMock) Reject(ctx context.Context, id string, payload dto.RejectRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *requestServiceMock) Close(ctx context.Context, id string, payload dto.CloseRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *requestServiceMock) Responses(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ResponsesView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.responses, nil
}

func (m *requestServiceMock) Export(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return []byte("Request ID\n"), "requests.csv", nil
}

type allocationFinalizerMock struct {
	allocations []models.Allocation
	err         error
}

func (m *allocationFinalizerMock) Finalize(ctx context.Context, requestID string, payload dto.FinalizePayload, actor *models.JWTClaims) ([]models.Allocation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.allocations, nil
}

func newRequestContext(t *testing.T, method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func staffContext(t *testing.T, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	return newRequestContext(t, method, target, body, &models.JWTClaims{UserID: "staff-1", Role: models.RoleAcademicStaff})
}

func TestRequestHandlerCreate(t *testing.T) {
	mock := &requestServiceMock{detail: &dto.RequestDetail{Request: models.Request{ID: "req-new", Status: models.StatusPendingReview}}}
	h := NewRequestHandler(mock, &allocationFinalizerMock{})
	c, w := newRequestContext(t, http.MethodPost, "/requests", dto.CreateRequestPayload{
		StartDate: "2026-03-10", EndDate: "2026-03-12", Venue: "Auditorium", Purpose: "Orientation",
		Items: []dto.CreateRequestItem{{EquipmentID: "eq-x", Quantity: 2}},
	}, &models.JWTClaims{UserID: "user-1", Role: models.RoleApplicant})
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "req-new")
}

func TestRequestHandlerCreateUnauthenticated(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, &allocationFinalizerMock{})
	c, w := newRequestContext(t, http.MethodPost, "/requests", dto.CreateRequestPayload{}, nil)
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestHandlerListParsesFilters(t *testing.T) {
	mock := &requestServiceMock{list: &dto.RequestList{}}
	h := NewRequestHandler(mock, &allocationFinalizerMock{})
	c, w := staffContext(t, http.MethodGet,
		"/requests?status=pending_review,pending_allocation&dateFrom=2026-03-01&dateTo=2026-03-31&page=2&pageSize=50&search=auditorium", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.RequestStatus{models.StatusPendingReview, models.StatusPendingAllocation}, mock.lastQuery.Status)
	require.NotNil(t, mock.lastQuery.DateFrom)
	assert.Equal(t, "2026-03-01", mock.lastQuery.DateFrom.Format("2006-01-02"))
	assert.Equal(t, 2, mock.lastQuery.Page)
	assert.Equal(t, 50, mock.lastQuery.PageSize)
	assert.Equal(t, "auditorium", mock.lastQuery.Search)
}

func TestRequestHandlerListRejectsBadDate(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{list: &dto.RequestList{}}, &allocationFinalizerMock{})
	c, w := staffContext(t, http.MethodGet, "/requests?dateFrom=03-01-2026", nil)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerFinalizeStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"plan exceeds availability", appErrors.ErrExceedsAvailability, http.StatusUnprocessableEntity},
		{"plan over-allocates", appErrors.ErrOverAllocation, http.StatusUnprocessableEntity},
		{"unknown reference", appErrors.ErrUnknownReference, http.StatusUnprocessableEntity},
		{"wrong status", appErrors.ErrInvalidTransition, http.StatusConflict},
		{"concurrent edit", appErrors.ErrConcurrentModification, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRequestHandler(&requestServiceMock{}, &allocationFinalizerMock{err: tc.err})
			c, w := staffContext(t, http.MethodPost, "/requests/req-1/allocations", dto.FinalizePayload{
				Entries: []models.AllocationEntry{{BuildingID: "bld-a", EquipmentID: "eq-x", Quantity: 1}},
			})
			c.Params = gin.Params{{Key: "id", Value: "req-1"}}
			h.Finalize(c)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestRequestHandlerFinalizeReturnsCommittedPlan(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, &allocationFinalizerMock{allocations: []models.Allocation{
		{RequestID: "req-1", BuildingID: "bld-a", EquipmentID: "eq-x", AllocatedQuantity: 2},
	}})
	c, w := staffContext(t, http.MethodPost, "/requests/req-1/allocations", dto.FinalizePayload{
		Entries: []models.AllocationEntry{{BuildingID: "bld-a", EquipmentID: "eq-x", Quantity: 2}},
	})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	h.Finalize(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "allocations")
	assert.Contains(t, w.Body.String(), "bld-a")
}

func TestRequestHandlerExport(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, &allocationFinalizerMock{})
	c, w := staffContext(t, http.MethodGet, "/requests/export", nil)
	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "requests.csv")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
}
