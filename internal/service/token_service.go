package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type tokenStore interface {
	CreateBatch(ctx context.Context, tokens []models.ResponseToken) error
	DeleteRound(ctx context.Context, requestID string) error
	GetBySecret(ctx context.Context, secret string) (*models.ResponseToken, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.ResponseToken, error)
	CountUnused(ctx context.Context, requestID string) (int, error)
}

// TokenService issues and validates the single-use response tokens that let
// building administrators answer without an account. The secret is the sole
// credential; consumption happens atomically when the response is recorded.
type TokenService struct {
	repo     tokenStore
	validity time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(repo tokenStore, validity time.Duration, logger *zap.Logger) *TokenService {
	if validity <= 0 {
		validity = 48 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{repo: repo, validity: validity, logger: logger, now: time.Now}
}

// IssueRound creates one token per building for a request's response round.
// The unique (request, building) constraint makes a second round impossible.
func (s *TokenService) IssueRound(ctx context.Context, requestID string, buildings []models.Building) ([]models.ResponseToken, error) {
	if len(buildings) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one building is required")
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.validity)

	tokens := make([]models.ResponseToken, 0, len(buildings))
	for _, building := range buildings {
		secret, err := generateTokenSecret()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token secret")
		}
		tokens = append(tokens, models.ResponseToken{
			ID:         uuid.NewString(),
			RequestID:  requestID,
			BuildingID: building.ID,
			Secret:     secret,
			IssuedAt:   issuedAt,
			ExpiresAt:  expiresAt,
		})
	}

	if err := s.repo.CreateBatch(ctx, tokens); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist response tokens")
	}
	return tokens, nil
}

// DiscardRound removes a round's tokens again after their approval failed
// to commit. The tokens were never live: responses are only admitted once
// the request reaches pending_building_response.
func (s *TokenService) DiscardRound(ctx context.Context, requestID string) error {
	if err := s.repo.DeleteRound(ctx, requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard response tokens")
	}
	return nil
}

// Resolve looks up a token by secret and classifies its state. The checks
// run in a fixed order: unknown secret, then expiry, then consumption.
func (s *TokenService) Resolve(ctx context.Context, secret string) (*models.ResponseToken, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, appErrors.ErrTokenNotFound
	}

	token, err := s.repo.GetBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load response token")
	}

	if token.ExpiredAt(s.now().UTC()) {
		return nil, appErrors.ErrTokenExpired
	}
	if token.Used {
		return nil, appErrors.ErrTokenAlreadyUsed
	}
	return token, nil
}

// ListByRequest returns the round's tokens for the staff detail view.
func (s *TokenService) ListByRequest(ctx context.Context, requestID string) ([]models.ResponseToken, error) {
	tokens, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list response tokens")
	}
	return tokens, nil
}

// Outstanding returns how many tokens of the round are still unconsumed.
func (s *TokenService) Outstanding(ctx context.Context, requestID string) (int, error) {
	count, err := s.repo.CountUnused(ctx, requestID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count outstanding tokens")
	}
	return count, nil
}

func generateTokenSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
