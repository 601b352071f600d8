package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/equiloan-api/internal/models"
)

// ResponseRepository persists building availability submissions.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs the repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// RecordParams groups one submission: the token being consumed and the
// response rows to persist.
type RecordParams struct {
	TokenID     string
	SubmittedAt time.Time
	Response    *models.BuildingResponse
	Items       []models.BuildingResponseItem
}

// Record consumes the token and stores the response atomically. The token
// update is guarded by used = FALSE; losing that race returns sql.ErrNoRows
// and persists nothing.
func (r *ResponseRepository) Record(ctx context.Context, params RecordParams) (err error) {
	if params.SubmittedAt.IsZero() {
		params.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin response record: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const consume = `UPDATE building_response_tokens SET used = TRUE, used_at = $1
	WHERE id = $2 AND used = FALSE`
	result, err := tx.ExecContext(ctx, consume, params.SubmittedAt, params.TokenID)
	if err != nil {
		return fmt.Errorf("consume response token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check token consume rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	response := params.Response
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	response.TokenID = params.TokenID
	response.SubmittedAt = params.SubmittedAt

	const insertResponse = `INSERT INTO building_responses
	(id, request_id, building_id, token_id, ip_address, submitted_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, insertResponse,
		response.ID, response.RequestID, response.BuildingID,
		response.TokenID, response.IPAddress, response.SubmittedAt); err != nil {
		return fmt.Errorf("insert building response: %w", err)
	}

	const insertItem = `INSERT INTO building_response_items
	(id, response_id, equipment_id, available_quantity)
	VALUES ($1, $2, $3, $4)`
	for i := range params.Items {
		if params.Items[i].ID == "" {
			params.Items[i].ID = uuid.NewString()
		}
		params.Items[i].ResponseID = response.ID
		if _, err = tx.ExecContext(ctx, insertItem,
			params.Items[i].ID, response.ID,
			params.Items[i].EquipmentID, params.Items[i].AvailableQuantity); err != nil {
			return fmt.Errorf("insert response item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit response record: %w", err)
	}
	return nil
}

// ListByRequest returns all recorded responses with their items, ordered by
// submission time.
func (r *ResponseRepository) ListByRequest(ctx context.Context, requestID string) ([]models.BuildingResponse, error) {
	const query = `SELECT br.id, br.request_id, br.building_id, b.name AS building_name,
       br.token_id, br.ip_address, br.submitted_at
	FROM building_responses br
	JOIN buildings b ON b.id = br.building_id
	WHERE br.request_id = $1
	ORDER BY br.submitted_at ASC`
	var responses []models.BuildingResponse
	if err := r.db.SelectContext(ctx, &responses, query, requestID); err != nil {
		return nil, fmt.Errorf("list building responses: %w", err)
	}
	if len(responses) == 0 {
		return responses, nil
	}

	ids := make([]string, len(responses))
	args := make([]interface{}, len(responses))
	placeholders := make([]string, len(responses))
	for i, response := range responses {
		ids[i] = response.ID
		args[i] = ids[i]
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	itemQuery := fmt.Sprintf(`SELECT id, response_id, equipment_id, available_quantity
	FROM building_response_items WHERE response_id IN (%s)`, strings.Join(placeholders, ","))
	var items []models.BuildingResponseItem
	if err := r.db.SelectContext(ctx, &items, itemQuery, args...); err != nil {
		return nil, fmt.Errorf("list response items: %w", err)
	}

	byResponse := make(map[string][]models.BuildingResponseItem, len(responses))
	for _, item := range items {
		byResponse[item.ResponseID] = append(byResponse[item.ResponseID], item)
	}
	for i := range responses {
		responses[i].Items = byResponse[responses[i].ID]
	}
	return responses, nil
}
