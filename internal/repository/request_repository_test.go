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

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_status_history")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.Request{
		ApplicantID: "user-1",
		StartDate:   time.Now(),
		EndDate:     time.Now().AddDate(0, 0, 2),
		Venue:       "Auditorium",
		Purpose:     "Orientation week",
		ExpiresAt:   time.Now().AddDate(0, 0, 30),
	}
	items := []models.RequestItem{
		{EquipmentID: "eq-1", RequestedQuantity: 5},
		{EquipmentID: "eq-2", RequestedQuantity: 2},
	}
	require.NoError(t, repo.Create(context.Background(), request, items))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.StatusPendingReview, request.Status)
	require.Equal(t, 1, request.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 AND version = $2 FOR UPDATE")).
		WithArgs("req-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending_review"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $1, version = version + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_status_history")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	actor := "staff-1"
	err := repo.Transition(context.Background(), TransitionParams{
		ID:          "req-1",
		FromVersion: 1,
		NewStatus:   models.StatusPendingBuildingResponse,
		ActorID:     &actor,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryTransitionVersionConflict(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 AND version = $2 FOR UPDATE")).
		WithArgs("req-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), TransitionParams{
		ID:          "req-1",
		FromVersion: 1,
		NewStatus:   models.StatusPendingBuildingResponse,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "applicant_id", "start_date", "end_date", "venue", "purpose", "notes",
		"status", "version", "slip_path", "email_sent", "expires_at", "created_at", "updated_at",
	}).AddRow("req-1", "user-1", now, now.AddDate(0, 0, 2), "Gym", "Sports day", nil,
		"pending_review", 1, nil, false, now.AddDate(0, 0, 30), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, applicant_id, start_date")).
		WithArgs("req-1").
		WillReturnRows(rows)

	request, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, "req-1", request.ID)
	require.Equal(t, models.StatusPendingReview, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending_review", 3).
		AddRow("completed", 7)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM requests WHERE applicant_id = $1 GROUP BY status")).
		WithArgs("user-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, models.StatusPendingReview, counts[0].Status)
	require.Equal(t, 3, counts[0].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListWindowExpired(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "applicant_id", "start_date", "end_date", "venue", "purpose", "notes",
		"status", "version", "slip_path", "email_sent", "expires_at", "created_at", "updated_at",
	}).AddRow("req-1", "user-1", now, now, "Hall", "Fair", nil,
		"pending_building_response", 2, nil, false, now.AddDate(0, 0, 30), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM requests r")).
		WithArgs(string(models.StatusPendingBuildingResponse), sqlmock.AnyArg()).
		WillReturnRows(rows)

	requests, err := repo.ListWindowExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, "req-1", requests[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
