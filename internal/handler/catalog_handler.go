package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/pkg/response"
)

type catalogService interface {
	Buildings(ctx context.Context) ([]dto.BuildingOption, error)
	Equipment(ctx context.Context) ([]dto.EquipmentOption, error)
}

// CatalogHandler serves the read-only reference catalogs used while
// composing a request.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// Buildings godoc
// @Summary List enabled buildings
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /buildings [get]
func (h *CatalogHandler) Buildings(c *gin.Context) {
	buildings, err := h.service.Buildings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, buildings)
}

// Equipment godoc
// @Summary List enabled equipment
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /equipment [get]
func (h *CatalogHandler) Equipment(c *gin.Context) {
	equipment, err := h.service.Equipment(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, equipment)
}
