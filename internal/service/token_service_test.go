package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type tokenStoreStub struct {
	created   []models.ResponseToken
	bySecret  map[string]models.ResponseToken
	unused    int
	createErr error
	deleteErr error
	getErr    error
}

func (s *tokenStoreStub) CreateBatch(ctx context.Context, tokens []models.ResponseToken) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, tokens...)
	return nil
}

func (s *tokenStoreStub) DeleteRound(ctx context.Context, requestID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	kept := s.created[:0]
	for _, token := range s.created {
		if token.RequestID != requestID {
			kept = append(kept, token)
		}
	}
	s.created = kept
	return nil
}

func (s *tokenStoreStub) GetBySecret(ctx context.Context, secret string) (*models.ResponseToken, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	token, ok := s.bySecret[secret]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &token, nil
}

func (s *tokenStoreStub) ListByRequest(ctx context.Context, requestID string) ([]models.ResponseToken, error) {
	return s.created, nil
}

func (s *tokenStoreStub) CountUnused(ctx context.Context, requestID string) (int, error) {
	return s.unused, nil
}

func TestTokenServiceIssueRound(t *testing.T) {
	repo := &tokenStoreStub{}
	svc := NewTokenService(repo, 48*time.Hour, nil)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	tokens, err := svc.IssueRound(context.Background(), "req-1", []models.Building{
		{ID: "bld-a", Name: "North Hall"},
		{ID: "bld-b", Name: "South Hall"},
	})
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Len(t, repo.created, 2)
	assert.NotEqual(t, tokens[0].Secret, tokens[1].Secret)
	for _, token := range tokens {
		assert.Equal(t, "req-1", token.RequestID)
		assert.NotEmpty(t, token.Secret)
		assert.Equal(t, issued, token.IssuedAt)
		assert.Equal(t, issued.Add(48*time.Hour), token.ExpiresAt)
		assert.False(t, token.Used)
	}
}

func TestTokenServiceIssueRoundRequiresBuildings(t *testing.T) {
	svc := NewTokenService(&tokenStoreStub{}, 48*time.Hour, nil)
	_, err := svc.IssueRound(context.Background(), "req-1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceDiscardRound(t *testing.T) {
	repo := &tokenStoreStub{created: []models.ResponseToken{
		{ID: "tok-1", RequestID: "req-1", BuildingID: "bld-a"},
		{ID: "tok-2", RequestID: "req-2", BuildingID: "bld-a"},
	}}
	svc := NewTokenService(repo, 48*time.Hour, nil)

	require.NoError(t, svc.DiscardRound(context.Background(), "req-1"))
	require.Len(t, repo.created, 1)
	assert.Equal(t, "req-2", repo.created[0].RequestID)

	repo.deleteErr = errors.New("connection reset")
	err := svc.DiscardRound(context.Background(), "req-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceResolveUnknownSecret(t *testing.T) {
	svc := NewTokenService(&tokenStoreStub{bySecret: map[string]models.ResponseToken{}}, 48*time.Hour, nil)
	_, err := svc.Resolve(context.Background(), "no-such-secret")
	require.ErrorIs(t, err, appErrors.ErrTokenNotFound)

	_, err = svc.Resolve(context.Background(), "  ")
	require.ErrorIs(t, err, appErrors.ErrTokenNotFound)
}

func TestTokenServiceResolveOrderExpiryBeforeConsumption(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	repo := &tokenStoreStub{bySecret: map[string]models.ResponseToken{
		"stale": {ID: "tok-1", Secret: "stale", ExpiresAt: now.Add(-time.Minute), Used: true},
	}}
	svc := NewTokenService(repo, 48*time.Hour, nil)
	svc.now = func() time.Time { return now }

	// An expired token reports expiry even when it was also consumed.
	_, err := svc.Resolve(context.Background(), "stale")
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestTokenServiceResolveConsumedToken(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	repo := &tokenStoreStub{bySecret: map[string]models.ResponseToken{
		"used": {ID: "tok-1", Secret: "used", ExpiresAt: now.Add(time.Hour), Used: true},
	}}
	svc := NewTokenService(repo, 48*time.Hour, nil)
	svc.now = func() time.Time { return now }

	_, err := svc.Resolve(context.Background(), "used")
	require.ErrorIs(t, err, appErrors.ErrTokenAlreadyUsed)
}

func TestTokenServiceResolveDeadlineBoundary(t *testing.T) {
	deadline := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	repo := &tokenStoreStub{bySecret: map[string]models.ResponseToken{
		"edge": {ID: "tok-1", Secret: "edge", ExpiresAt: deadline},
	}}
	svc := NewTokenService(repo, 48*time.Hour, nil)

	// Exactly at the deadline the token is still admissible.
	svc.now = func() time.Time { return deadline }
	token, err := svc.Resolve(context.Background(), "edge")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.ID)

	svc.now = func() time.Time { return deadline.Add(time.Nanosecond) }
	_, err = svc.Resolve(context.Background(), "edge")
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestTokenServiceResolveRepositoryFailure(t *testing.T) {
	repo := &tokenStoreStub{getErr: errors.New("connection reset")}
	svc := NewTokenService(repo, 48*time.Hour, nil)
	_, err := svc.Resolve(context.Background(), "secret")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
