package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/models"
)

// RequestRepository persists borrow requests, their items and the lifecycle
// history trail.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts the request, its items and the initial history row in one
// transaction.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request, items []models.RequestItem) (err error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt
	if request.Status == "" {
		request.Status = models.StatusPendingReview
	}
	request.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin request transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO requests
	(id, applicant_id, start_date, end_date, venue, purpose, notes, status, version, slip_path, email_sent, expires_at, created_at, updated_at)
	VALUES (:id, :applicant_id, :start_date, :end_date, :venue, :purpose, :notes, :status, :version, :slip_path, :email_sent, :expires_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	const insertItem = `INSERT INTO request_items
	(id, request_id, equipment_id, requested_quantity, approved_quantity)
	VALUES ($1, $2, $3, $4, NULL)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].RequestID = request.ID
		if _, err = tx.ExecContext(ctx, insertItem, items[i].ID, request.ID, items[i].EquipmentID, items[i].RequestedQuantity); err != nil {
			return fmt.Errorf("insert request item: %w", err)
		}
	}

	if err = insertHistoryTx(ctx, tx, &models.StatusHistoryEntry{
		RequestID: request.ID,
		ToStatus:  request.Status,
		ActorID:   &request.ApplicantID,
		CreatedAt: request.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	const query = `SELECT id, applicant_id, start_date, end_date, venue, purpose, notes, status, version,
       slip_path, email_sent, expires_at, created_at, updated_at
	FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListItems returns the request's items with equipment names resolved.
func (r *RequestRepository) ListItems(ctx context.Context, requestID string) ([]models.RequestItem, error) {
	const query = `SELECT ri.id, ri.request_id, ri.equipment_id, e.name AS equipment_name,
       ri.requested_quantity, ri.approved_quantity
	FROM request_items ri
	JOIN equipment e ON e.id = ri.equipment_id
	WHERE ri.request_id = $1
	ORDER BY e.name ASC`
	var items []models.RequestItem
	if err := r.db.SelectContext(ctx, &items, query, requestID); err != nil {
		return nil, fmt.Errorf("list request items: %w", err)
	}
	return items, nil
}

// ListHistory returns the lifecycle trail, oldest first.
func (r *RequestRepository) ListHistory(ctx context.Context, requestID string) ([]models.StatusHistoryEntry, error) {
	const query = `SELECT id, request_id, from_status, to_status, actor_id, note, created_at
	FROM request_status_history WHERE request_id = $1 ORDER BY created_at ASC`
	var history []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &history, query, requestID); err != nil {
		return nil, fmt.Errorf("list request history: %w", err)
	}
	return history, nil
}

// List returns request summaries matching the filter plus the total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]dto.RequestSummary, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.ApplicantID != "" {
		args = append(args, filter.ApplicantID)
		conditions = append(conditions, fmt.Sprintf("r.applicant_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("r.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("r.start_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("r.end_date <= $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(r.venue ILIKE $%d OR r.purpose ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM requests r" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	listQuery := `SELECT r.id, r.applicant_id, u.full_name AS applicant_name, r.status,
       r.start_date, r.end_date, r.venue,
       (SELECT COUNT(*) FROM request_items ri WHERE ri.request_id = r.id) AS item_count,
       r.created_at
	FROM requests r
	JOIN users u ON u.id = r.applicant_id` + where +
		fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	rows := make([]struct {
		ID            string               `db:"id"`
		ApplicantID   string               `db:"applicant_id"`
		ApplicantName string               `db:"applicant_name"`
		Status        models.RequestStatus `db:"status"`
		StartDate     time.Time            `db:"start_date"`
		EndDate       time.Time            `db:"end_date"`
		Venue         string               `db:"venue"`
		ItemCount     int                  `db:"item_count"`
		CreatedAt     time.Time            `db:"created_at"`
	}, 0)
	if err := r.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	summaries := make([]dto.RequestSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, dto.RequestSummary{
			ID:            row.ID,
			ApplicantID:   row.ApplicantID,
			ApplicantName: row.ApplicantName,
			Status:        row.Status,
			StartDate:     row.StartDate,
			EndDate:       row.EndDate,
			Venue:         row.Venue,
			ItemCount:     row.ItemCount,
			CreatedAt:     row.CreatedAt,
		})
	}
	return summaries, total, nil
}

// CountByStatus returns per-status totals, scoped to one applicant when set.
func (r *RequestRepository) CountByStatus(ctx context.Context, applicantID string) ([]models.StatusCount, error) {
	query := `SELECT status, COUNT(*) AS count FROM requests`
	args := make([]interface{}, 0, 1)
	if applicantID != "" {
		args = append(args, applicantID)
		query += " WHERE applicant_id = $1"
	}
	query += " GROUP BY status"

	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	return counts, nil
}

// TransitionParams groups the values of one optimistic status transition.
type TransitionParams struct {
	ID          string
	FromVersion int
	NewStatus   models.RequestStatus
	ActorID     *string
	Note        *string
	At          time.Time
}

// Transition applies a status change guarded by the version column and
// appends the history row in the same transaction. Returns sql.ErrNoRows
// when the guard matches nothing (version moved or request gone).
func (r *RequestRepository) Transition(ctx context.Context, params TransitionParams) (err error) {
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var fromStatus models.RequestStatus
	const current = `SELECT status FROM requests WHERE id = $1 AND version = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &fromStatus, current, params.ID, params.FromVersion); err != nil {
		return err
	}

	const update = `UPDATE requests SET status = $1, version = version + 1, updated_at = $2
	WHERE id = $3 AND version = $4`
	result, err := tx.ExecContext(ctx, update, params.NewStatus, params.At, params.ID, params.FromVersion)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = insertHistoryTx(ctx, tx, &models.StatusHistoryEntry{
		RequestID:  params.ID,
		FromStatus: &fromStatus,
		ToStatus:   params.NewStatus,
		ActorID:    params.ActorID,
		Note:       params.Note,
		CreatedAt:  params.At,
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// SetSlip records the generated slip path.
func (r *RequestRepository) SetSlip(ctx context.Context, id, slipPath string) error {
	const query = `UPDATE requests SET slip_path = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, slipPath, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set slip path: %w", err)
	}
	return nil
}

// MarkEmailSent toggles the completion e-mail flag.
func (r *RequestRepository) MarkEmailSent(ctx context.Context, id string, sent bool) error {
	const query = `UPDATE requests SET email_sent = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, sent, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// ListOverallExpired returns non-terminal requests whose overall deadline
// passed at the given instant.
func (r *RequestRepository) ListOverallExpired(ctx context.Context, now time.Time) ([]models.Request, error) {
	const query = `SELECT id, applicant_id, start_date, end_date, venue, purpose, notes, status, version,
       slip_path, email_sent, expires_at, created_at, updated_at
	FROM requests
	WHERE expires_at < $1 AND status NOT IN ($2, $3, $4)
	ORDER BY expires_at ASC`
	var requests []models.Request
	err := r.db.SelectContext(ctx, &requests, query, now,
		models.StatusCompleted, models.StatusRejected, models.StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("list expired requests: %w", err)
	}
	return requests, nil
}

// ListWindowExpired returns requests still awaiting building responses whose
// token deadline passed at the given instant.
func (r *RequestRepository) ListWindowExpired(ctx context.Context, now time.Time) ([]models.Request, error) {
	const query = `SELECT r.id, r.applicant_id, r.start_date, r.end_date, r.venue, r.purpose, r.notes, r.status, r.version,
       r.slip_path, r.email_sent, r.expires_at, r.created_at, r.updated_at
	FROM requests r
	WHERE r.status = $1
	  AND EXISTS (SELECT 1 FROM building_response_tokens t WHERE t.request_id = r.id AND t.expires_at < $2)
	ORDER BY r.created_at ASC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, models.StatusPendingBuildingResponse, now); err != nil {
		return nil, fmt.Errorf("list window-expired requests: %w", err)
	}
	return requests, nil
}

func insertHistoryTx(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO request_status_history
	(id, request_id, from_status, to_status, actor_id, note, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query, entry.ID, entry.RequestID, entry.FromStatus, entry.ToStatus, entry.ActorID, entry.Note, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}
