package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
	"github.com/noah-isme/equiloan-api/pkg/response"
)

type requestService interface {
	Submit(ctx context.Context, payload dto.CreateRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error)
	List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) (*dto.RequestList, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RequestDetail, error)
	Approve(ctx context.Context, id string, payload dto.ApproveRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error)
	Reject(ctx context.Context, id string, payload dto.RejectRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error)
	Close(ctx context.Context, id string, payload dto.CloseRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error)
	Responses(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ResponsesView, error)
	Export(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]byte, string, error)
}

type allocationFinalizer interface {
	Finalize(ctx context.Context, requestID string, payload dto.FinalizePayload, actor *models.JWTClaims) ([]models.Allocation, error)
}

// RequestHandler exposes the authenticated borrow-request lifecycle surface.
type RequestHandler struct {
	requests    requestService
	allocations allocationFinalizer
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(requests requestService, allocations allocationFinalizer) *RequestHandler {
	return &RequestHandler{requests: requests, allocations: allocations}
}

// Create godoc
// @Summary Submit a borrow request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	detail, err := h.requests.Submit(c.Request.Context(), payload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// List godoc
// @Summary List borrow requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param userId query string false "Filter by applicant (staff only)"
// @Param dateFrom query string false "Loan window start (YYYY-MM-DD)"
// @Param dateTo query string false "Loan window end (YYYY-MM-DD)"
// @Param search query string false "Venue or purpose search"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseRequestQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.requests.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"requests": list.Requests, "status_counts": list.StatusCounts}, &list.Pagination)
}

// Get godoc
// @Summary Get a borrow request with its history, responses and allocations
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.requests.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Approve godoc
// @Summary Approve a request and open its building response round
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveRequestPayload true "Buildings asked to respond"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.ApproveRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	detail, err := h.requests.Approve(c.Request.Context(), c.Param("id"), payload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Reject godoc
// @Summary Reject a borrow request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequestPayload true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.RejectRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	detail, err := h.requests.Reject(c.Request.Context(), c.Param("id"), payload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Close godoc
// @Summary Close a borrow request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CloseRequestPayload true "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/close [post]
func (h *RequestHandler) Close(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.CloseRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid close payload"))
		return
	}
	detail, err := h.requests.Close(c.Request.Context(), c.Param("id"), payload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Finalize godoc
// @Summary Commit an allocation plan and complete the request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.FinalizePayload true "Allocation plan"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/allocations [post]
func (h *RequestHandler) Finalize(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.FinalizePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid allocation plan"))
		return
	}
	allocations, err := h.allocations.Finalize(c.Request.Context(), c.Param("id"), payload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"allocations": allocations})
}

// Responses godoc
// @Summary List building responses and the aggregated availability
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/responses [get]
func (h *RequestHandler) Responses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.requests.Responses(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Export godoc
// @Summary Export the filtered request list as CSV
// @Tags Requests
// @Produce text/csv
// @Success 200 {string} string "CSV content"
// @Router /requests/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseRequestQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, filename, err := h.requests.Export(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func parseRequestQuery(c *gin.Context) (dto.RequestQuery, error) {
	query := dto.RequestQuery{
		ApplicantID: strings.TrimSpace(c.Query("userId")),
		Search:      strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.RequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RequestStatus(part))
		}
		query.Status = statuses
	}
	if raw := c.Query("dateFrom"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "dateFrom must be formatted YYYY-MM-DD")
		}
		query.DateFrom = &from
	}
	if raw := c.Query("dateTo"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "dateTo must be formatted YYYY-MM-DD")
		}
		query.DateTo = &to
	}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return query, nil
}
