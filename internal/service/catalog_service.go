package service

import (
	"context"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type catalogLister interface {
	ListBuildings(ctx context.Context, enabledOnly bool) ([]models.Building, error)
	ListEquipment(ctx context.Context, enabledOnly bool) ([]models.Equipment, error)
}

// CatalogService exposes the read-only building and equipment reference data
// applicants pick from. The catalogs themselves are maintained elsewhere.
type CatalogService struct {
	repo catalogLister
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo catalogLister) *CatalogService {
	return &CatalogService{repo: repo}
}

// Buildings returns the enabled buildings.
func (s *CatalogService) Buildings(ctx context.Context) ([]dto.BuildingOption, error) {
	buildings, err := s.repo.ListBuildings(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list buildings")
	}
	options := make([]dto.BuildingOption, 0, len(buildings))
	for _, building := range buildings {
		options = append(options, dto.BuildingOption{ID: building.ID, Name: building.Name})
	}
	return options, nil
}

// Equipment returns the enabled equipment catalog.
func (s *CatalogService) Equipment(ctx context.Context) ([]dto.EquipmentOption, error) {
	equipment, err := s.repo.ListEquipment(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list equipment")
	}
	options := make([]dto.EquipmentOption, 0, len(equipment))
	for _, item := range equipment {
		option := dto.EquipmentOption{ID: item.ID, Name: item.Name}
		if item.Description != nil {
			option.Description = *item.Description
		}
		options = append(options, option)
	}
	return options, nil
}
