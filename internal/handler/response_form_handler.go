package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/equiloan-api/internal/dto"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
	"github.com/noah-isme/equiloan-api/pkg/response"
)

type responseFormService interface {
	Form(ctx context.Context, secret string) (*dto.ResponseFormView, error)
	Submit(ctx context.Context, secret string, payload dto.SubmitResponsePayload, clientIP string) (*dto.SubmitResponseResult, error)
}

// ResponseFormHandler exposes the no-login building response surface. There
// is no principal here: the token secret in the URL is the whole credential,
// and its failure states map to distinct HTTP statuses (404 unknown, 410
// expired, 409 already used).
type ResponseFormHandler struct {
	service responseFormService
}

// NewResponseFormHandler constructs the handler.
func NewResponseFormHandler(service responseFormService) *ResponseFormHandler {
	return &ResponseFormHandler{service: service}
}

// Fetch godoc
// @Summary Fetch the availability form for a response token
// @Tags Response Forms
// @Produce json
// @Param secret path string true "Response token secret"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /response-forms/{secret} [get]
func (h *ResponseFormHandler) Fetch(c *gin.Context) {
	view, err := h.service.Form(c.Request.Context(), c.Param("secret"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Submit godoc
// @Summary Submit building availability for a response token
// @Tags Response Forms
// @Accept json
// @Produce json
// @Param secret path string true "Response token secret"
// @Param payload body dto.SubmitResponsePayload true "Per-item availability"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /response-forms/{secret} [post]
func (h *ResponseFormHandler) Submit(c *gin.Context) {
	var payload dto.SubmitResponsePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid response payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("secret"), payload, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}
