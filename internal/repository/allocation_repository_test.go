package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/equiloan-api/internal/models"
)

func newAllocationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAllocationRepositoryCommitPlan(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 AND version = $2 FOR UPDATE")).
		WithArgs("req-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending_allocation"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $1, version = version + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_status_history")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM allocations WHERE request_id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO allocations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO allocations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_items SET approved_quantity = 0")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_items SET approved_quantity = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CommitPlan(context.Background(), CommitPlanParams{
		RequestID:   "req-1",
		FromVersion: 3,
		ActorID:     "staff-1",
		Allocations: []models.Allocation{
			{BuildingID: "bld-1", EquipmentID: "eq-1", AllocatedQuantity: 3},
			{BuildingID: "bld-2", EquipmentID: "eq-1", AllocatedQuantity: 2},
		},
		ApprovedQuantities: map[string]int{"eq-1": 5},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryCommitPlanVersionConflict(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 AND version = $2 FOR UPDATE")).
		WithArgs("req-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := repo.CommitPlan(context.Background(), CommitPlanParams{
		RequestID:   "req-1",
		FromVersion: 3,
		ActorID:     "staff-1",
		Allocations: []models.Allocation{{BuildingID: "bld-1", EquipmentID: "eq-1", AllocatedQuantity: 1}},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryListByRequest(t *testing.T) {
	db, mock, cleanup := newAllocationRepoMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "request_id", "building_id", "building_name", "equipment_id", "equipment_name", "allocated_quantity", "allocated_by", "created_at"}).
		AddRow("alloc-1", "req-1", "bld-1", "Science Building", "eq-1", "Projector", 3, "staff-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM allocations a")).
		WithArgs("req-1").
		WillReturnRows(rows)

	allocations, err := repo.ListByRequest(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	require.Equal(t, "Projector", allocations[0].EquipmentName)
	require.Equal(t, 3, allocations[0].AllocatedQuantity)
	require.NoError(t, mock.ExpectationsWereMet())
}
