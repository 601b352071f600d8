package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/equiloan-api/internal/models"
)

// CatalogRepository reads the shared building and equipment reference data.
// Rows are maintained by the asset-management system; nothing here writes.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListBuildings returns buildings, restricted to enabled ones when asked.
func (r *CatalogRepository) ListBuildings(ctx context.Context, enabledOnly bool) ([]models.Building, error) {
	query := `SELECT id, name, contact_email, line_user_id, enabled, created_at, updated_at FROM buildings`
	if enabledOnly {
		query += " WHERE enabled = TRUE"
	}
	query += " ORDER BY name ASC"

	var buildings []models.Building
	if err := r.db.SelectContext(ctx, &buildings, query); err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	return buildings, nil
}

// GetBuildings fetches the given buildings keyed by id.
func (r *CatalogRepository) GetBuildings(ctx context.Context, ids []string) (map[string]models.Building, error) {
	if len(ids) == 0 {
		return map[string]models.Building{}, nil
	}

	args := make([]interface{}, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT id, name, contact_email, line_user_id, enabled, created_at, updated_at
	FROM buildings WHERE id IN (%s)`, strings.Join(placeholders, ","))

	var buildings []models.Building
	if err := r.db.SelectContext(ctx, &buildings, query, args...); err != nil {
		return nil, fmt.Errorf("get buildings: %w", err)
	}

	byID := make(map[string]models.Building, len(buildings))
	for _, building := range buildings {
		byID[building.ID] = building
	}
	return byID, nil
}

// ListEquipment returns equipment, restricted to enabled ones when asked.
func (r *CatalogRepository) ListEquipment(ctx context.Context, enabledOnly bool) ([]models.Equipment, error) {
	query := `SELECT id, name, description, enabled, created_at, updated_at FROM equipment`
	if enabledOnly {
		query += " WHERE enabled = TRUE"
	}
	query += " ORDER BY name ASC"

	var equipment []models.Equipment
	if err := r.db.SelectContext(ctx, &equipment, query); err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	return equipment, nil
}

// GetEquipment fetches the given equipment keyed by id.
func (r *CatalogRepository) GetEquipment(ctx context.Context, ids []string) (map[string]models.Equipment, error) {
	if len(ids) == 0 {
		return map[string]models.Equipment{}, nil
	}

	args := make([]interface{}, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT id, name, description, enabled, created_at, updated_at
	FROM equipment WHERE id IN (%s)`, strings.Join(placeholders, ","))

	var equipment []models.Equipment
	if err := r.db.SelectContext(ctx, &equipment, query, args...); err != nil {
		return nil, fmt.Errorf("get equipment: %w", err)
	}

	byID := make(map[string]models.Equipment, len(equipment))
	for _, item := range equipment {
		byID[item.ID] = item
	}
	return byID, nil
}
