package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/equiloan-api/internal/models"
)

// TokenRepository persists the single-use building response tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// CreateBatch inserts one token per building in a single transaction. The
// unique (request_id, building_id) constraint rejects a second round.
func (r *TokenRepository) CreateBatch(ctx context.Context, tokens []models.ResponseToken) (err error) {
	if len(tokens) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin token batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO building_response_tokens
	(id, request_id, building_id, secret, issued_at, expires_at, used, used_at)
	VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL)`
	for i := range tokens {
		if tokens[i].ID == "" {
			tokens[i].ID = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, query,
			tokens[i].ID, tokens[i].RequestID, tokens[i].BuildingID,
			tokens[i].Secret, tokens[i].IssuedAt, tokens[i].ExpiresAt); err != nil {
			return fmt.Errorf("insert response token: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit token batch: %w", err)
	}
	return nil
}

// DeleteRound removes every token of a request's round. Only called while
// the request is still under review, where the tokens are not yet live.
func (r *TokenRepository) DeleteRound(ctx context.Context, requestID string) error {
	const query = `DELETE FROM building_response_tokens WHERE request_id = $1`
	if _, err := r.db.ExecContext(ctx, query, requestID); err != nil {
		return fmt.Errorf("delete response tokens: %w", err)
	}
	return nil
}

// GetBySecret fetches a token by its opaque secret.
func (r *TokenRepository) GetBySecret(ctx context.Context, secret string) (*models.ResponseToken, error) {
	const query = `SELECT id, request_id, building_id, secret, issued_at, expires_at, used, used_at
	FROM building_response_tokens WHERE secret = $1`
	var token models.ResponseToken
	if err := r.db.GetContext(ctx, &token, query, secret); err != nil {
		return nil, err
	}
	return &token, nil
}

// ListByRequest returns the round's tokens ordered by building.
func (r *TokenRepository) ListByRequest(ctx context.Context, requestID string) ([]models.ResponseToken, error) {
	const query = `SELECT t.id, t.request_id, t.building_id, t.secret, t.issued_at, t.expires_at, t.used, t.used_at
	FROM building_response_tokens t
	JOIN buildings b ON b.id = t.building_id
	WHERE t.request_id = $1
	ORDER BY b.name ASC`
	var tokens []models.ResponseToken
	if err := r.db.SelectContext(ctx, &tokens, query, requestID); err != nil {
		return nil, fmt.Errorf("list response tokens: %w", err)
	}
	return tokens, nil
}

// CountUnused returns how many of the round's tokens are still unconsumed.
func (r *TokenRepository) CountUnused(ctx context.Context, requestID string) (int, error) {
	const query = `SELECT COUNT(*) FROM building_response_tokens WHERE request_id = $1 AND used = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, requestID); err != nil {
		return 0, fmt.Errorf("count unused tokens: %w", err)
	}
	return count, nil
}
