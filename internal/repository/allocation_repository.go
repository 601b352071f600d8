package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/equiloan-api/internal/models"
)

// AllocationRepository persists committed allocation plans.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs the repository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// CommitPlanParams carries everything one finalize writes.
type CommitPlanParams struct {
	RequestID          string
	FromVersion        int
	ActorID            string
	Note               *string
	At                 time.Time
	Allocations        []models.Allocation
	ApprovedQuantities map[string]int
}

// CommitPlan completes a request in one transaction: the version-guarded
// status move to completed, its history row, the full replacement of the
// allocation set, and the per-item approved quantities. A failed guard
// returns sql.ErrNoRows and writes nothing.
func (r *AllocationRepository) CommitPlan(ctx context.Context, params CommitPlanParams) (err error) {
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var fromStatus models.RequestStatus
	const current = `SELECT status FROM requests WHERE id = $1 AND version = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &fromStatus, current, params.RequestID, params.FromVersion); err != nil {
		return err
	}

	const update = `UPDATE requests SET status = $1, version = version + 1, updated_at = $2
	WHERE id = $3 AND version = $4`
	result, err := tx.ExecContext(ctx, update, models.StatusCompleted, params.At, params.RequestID, params.FromVersion)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check completion rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = insertHistoryTx(ctx, tx, &models.StatusHistoryEntry{
		RequestID:  params.RequestID,
		FromStatus: &fromStatus,
		ToStatus:   models.StatusCompleted,
		ActorID:    &params.ActorID,
		Note:       params.Note,
		CreatedAt:  params.At,
	}); err != nil {
		return err
	}

	const clear = `DELETE FROM allocations WHERE request_id = $1`
	if _, err = tx.ExecContext(ctx, clear, params.RequestID); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}

	const insert = `INSERT INTO allocations
	(id, request_id, building_id, equipment_id, allocated_quantity, allocated_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i := range params.Allocations {
		if params.Allocations[i].ID == "" {
			params.Allocations[i].ID = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, insert,
			params.Allocations[i].ID, params.RequestID,
			params.Allocations[i].BuildingID, params.Allocations[i].EquipmentID,
			params.Allocations[i].AllocatedQuantity, params.ActorID, params.At); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
	}

	const resetApproved = `UPDATE request_items SET approved_quantity = 0 WHERE request_id = $1`
	if _, err = tx.ExecContext(ctx, resetApproved, params.RequestID); err != nil {
		return fmt.Errorf("reset approved quantities: %w", err)
	}
	const setApproved = `UPDATE request_items SET approved_quantity = $1
	WHERE request_id = $2 AND equipment_id = $3`
	for equipmentID, quantity := range params.ApprovedQuantities {
		if _, err = tx.ExecContext(ctx, setApproved, quantity, params.RequestID, equipmentID); err != nil {
			return fmt.Errorf("set approved quantity: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}

// ListByRequest returns committed allocations with names resolved.
func (r *AllocationRepository) ListByRequest(ctx context.Context, requestID string) ([]models.Allocation, error) {
	const query = `SELECT a.id, a.request_id, a.building_id, b.name AS building_name,
       a.equipment_id, e.name AS equipment_name, a.allocated_quantity, a.allocated_by, a.created_at
	FROM allocations a
	JOIN buildings b ON b.id = a.building_id
	JOIN equipment e ON e.id = a.equipment_id
	WHERE a.request_id = $1
	ORDER BY e.name ASC, b.name ASC`
	var allocations []models.Allocation
	if err := r.db.SelectContext(ctx, &allocations, query, requestID); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return allocations, nil
}
