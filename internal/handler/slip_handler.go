package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
	"github.com/noah-isme/equiloan-api/pkg/response"
)

type slipService interface {
	Stream(ctx context.Context, requestID string, actor *models.JWTClaims) (string, string, error)
	StreamSigned(ctx context.Context, token string) (string, string, error)
	Resend(ctx context.Context, requestID string, actor *models.JWTClaims) error
}

// SlipHandler streams borrow-slip PDFs: authenticated for the owning
// applicant and staff, and via signed download tokens from the completion
// e-mail.
type SlipHandler struct {
	service slipService
}

// NewSlipHandler constructs the handler.
func NewSlipHandler(service slipService) *SlipHandler {
	return &SlipHandler{service: service}
}

// Stream godoc
// @Summary Download the borrow slip for a completed request
// @Tags Slips
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} file
// @Router /requests/{id}/slip [get]
func (h *SlipHandler) Stream(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	path, filename, err := h.service.Stream(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filename)
}

// Download godoc
// @Summary Download a borrow slip via a signed link
// @Tags Slips
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /slips/{token} [get]
func (h *SlipHandler) Download(c *gin.Context) {
	path, filename, err := h.service.StreamSigned(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filename)
}

// Resend godoc
// @Summary Re-send the completion e-mail with the slip link
// @Tags Slips
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/resend-email [post]
func (h *SlipHandler) Resend(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Resend(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"sent": true})
}
