package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/models"
	"github.com/noah-isme/equiloan-api/internal/repository"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type secretResolverStub struct {
	token       *models.ResponseToken
	resolveErr  error
	outstanding int
}

func (s *secretResolverStub) Resolve(ctx context.Context, secret string) (*models.ResponseToken, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.token, nil
}

func (s *secretResolverStub) Outstanding(ctx context.Context, requestID string) (int, error) {
	return s.outstanding, nil
}

type responseRecorderStub struct {
	recorded *repository.RecordParams
	err      error
}

func (s *responseRecorderStub) Record(ctx context.Context, params repository.RecordParams) error {
	if s.err != nil {
		return s.err
	}
	s.recorded = &params
	return nil
}

type windowCloserStub struct {
	closed []string
	forced []bool
	err    error
}

func (s *windowCloserStub) CloseResponseWindow(ctx context.Context, requestID string, forced bool) error {
	if s.err != nil {
		return s.err
	}
	s.closed = append(s.closed, requestID)
	s.forced = append(s.forced, forced)
	return nil
}

type directoryStub struct {
	users map[string]models.User
	staff []models.User
}

func (s *directoryStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return &user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *directoryStub) ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	return s.staff, nil
}

type responseNotifierStub struct {
	recorded int
}

func (s *responseNotifierStub) ResponseRecorded(request *models.Request, building *models.Building, reviewers []models.User) {
	s.recorded++
}

type responseFormFixture struct {
	tokens    *secretResolverStub
	requests  *planRequestStub
	catalog   *aggCatalogStub
	responses *responseRecorderStub
	projector *projectorStub
	lifecycle *windowCloserStub
	notifier  *responseNotifierStub
	audit     *auditRecorderStub
	svc       *ResponseFormService
}

func newResponseFormFixture() *responseFormFixture {
	f := &responseFormFixture{
		tokens: &secretResolverStub{
			token:       &models.ResponseToken{ID: "tok-a", RequestID: "req-1", BuildingID: "bld-a", ExpiresAt: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)},
			outstanding: 1,
		},
		requests: &planRequestStub{
			request: &models.Request{ID: "req-1", Status: models.StatusPendingBuildingResponse, Version: 2,
				StartDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
				Venue:     "Auditorium"},
			items: []models.RequestItem{
				{ID: "item-1", RequestID: "req-1", EquipmentID: "eq-x", EquipmentName: "Projector", RequestedQuantity: 5},
				{ID: "item-2", RequestID: "req-1", EquipmentID: "eq-y", EquipmentName: "Speaker", RequestedQuantity: 2},
			},
		},
		catalog:   &aggCatalogStub{buildings: map[string]models.Building{"bld-a": {ID: "bld-a", Name: "North Hall"}}},
		responses: &responseRecorderStub{},
		projector: &projectorStub{},
		lifecycle: &windowCloserStub{},
		notifier:  &responseNotifierStub{},
		audit:     &auditRecorderStub{},
	}
	f.svc = NewResponseFormService(ResponseFormServiceParams{
		Tokens:    f.tokens,
		Requests:  f.requests,
		Catalog:   f.catalog,
		Responses: f.responses,
		Projector: f.projector,
		Lifecycle: f.lifecycle,
		Users:     &directoryStub{},
		Notifier:  f.notifier,
		Audit:     f.audit,
	})
	return f
}

func TestResponseFormRendersRequestedItems(t *testing.T) {
	f := newResponseFormFixture()
	view, err := f.svc.Form(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "req-1", view.RequestID)
	assert.Equal(t, "North Hall", view.BuildingName)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 5, view.Items[0].RequestedQuantity)
}

func TestResponseFormPropagatesTokenTaxonomy(t *testing.T) {
	f := newResponseFormFixture()
	f.tokens.resolveErr = appErrors.ErrTokenExpired
	_, err := f.svc.Form(context.Background(), "secret")
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestResponseFormStatusGateAfterWindowCloses(t *testing.T) {
	f := newResponseFormFixture()
	f.requests.request.Status = models.StatusPendingAllocation
	_, err := f.svc.Form(context.Background(), "secret")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestSubmitRecordsResponseAndInvalidatesProjection(t *testing.T) {
	f := newResponseFormFixture()
	result, err := f.svc.Submit(context.Background(), "secret", dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{
		{EquipmentID: "eq-x", AvailableQuantity: 3},
	}}, "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, models.StatusPendingBuildingResponse, result.RequestStatus)

	require.NotNil(t, f.responses.recorded)
	assert.Equal(t, "tok-a", f.responses.recorded.TokenID)
	require.Len(t, f.responses.recorded.Items, 1)
	assert.Equal(t, []string{"req-1"}, f.projector.invalidated)
	assert.Equal(t, 1, f.notifier.recorded)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionResponseRecord, f.audit.entries[0].Action)
	assert.Empty(t, f.lifecycle.closed)
}

func TestSubmitLastTokenClosesWindowNaturally(t *testing.T) {
	f := newResponseFormFixture()
	f.tokens.outstanding = 0
	result, err := f.svc.Submit(context.Background(), "secret", dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{
		{EquipmentID: "eq-x", AvailableQuantity: 3},
	}}, "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingAllocation, result.RequestStatus)
	require.Equal(t, []string{"req-1"}, f.lifecycle.closed)
	assert.Equal(t, []bool{false}, f.lifecycle.forced)
}

func TestSubmitRaceLoserSeesTokenAlreadyUsed(t *testing.T) {
	f := newResponseFormFixture()
	// The conditional token update admitted the other submission; the
	// repository reports this as no rows updated.
	f.responses.err = sql.ErrNoRows
	_, err := f.svc.Submit(context.Background(), "secret", dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{
		{EquipmentID: "eq-x", AvailableQuantity: 3},
	}}, "10.0.0.9")
	require.ErrorIs(t, err, appErrors.ErrTokenAlreadyUsed)
	assert.Empty(t, f.projector.invalidated)
}

func TestSubmitRejectsItemsOutsideRequest(t *testing.T) {
	f := newResponseFormFixture()
	_, err := f.svc.Submit(context.Background(), "secret", dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{
		{EquipmentID: "eq-unrelated", AvailableQuantity: 3},
	}}, "10.0.0.9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.responses.recorded)
}

func TestSubmitAcceptsPartialItemList(t *testing.T) {
	f := newResponseFormFixture()
	// Omitting eq-y counts as zero available for it.
	_, err := f.svc.Submit(context.Background(), "secret", dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{
		{EquipmentID: "eq-y", AvailableQuantity: 1},
	}}, "10.0.0.9")
	require.NoError(t, err)
	require.Len(t, f.responses.recorded.Items, 1)
	assert.Equal(t, "eq-y", f.responses.recorded.Items[0].EquipmentID)
}

func TestSubmitRejectsDuplicateLines(t *testing.T) {
	f := newResponseFormFixture()
	_, err := f.svc.Submit(context.Background(), "secret", dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{
		{EquipmentID: "eq-x", AvailableQuantity: 3},
		{EquipmentID: "eq-x", AvailableQuantity: 1},
	}}, "10.0.0.9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
