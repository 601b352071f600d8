package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/models"
	"github.com/noah-isme/equiloan-api/internal/repository"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type secretResolver interface {
	Resolve(ctx context.Context, secret string) (*models.ResponseToken, error)
	Outstanding(ctx context.Context, requestID string) (int, error)
}

type responseRecorder interface {
	Record(ctx context.Context, params repository.RecordParams) error
}

type responseNotifier interface {
	ResponseRecorded(request *models.Request, building *models.Building, reviewers []models.User)
}

type windowCloser interface {
	CloseResponseWindow(ctx context.Context, requestID string, forced bool) error
}

// ResponseFormService serves the no-login building response path. The token
// secret is the only credential: it identifies the request and building,
// and consuming it is what admits exactly one submission.
type ResponseFormService struct {
	tokens    secretResolver
	requests  planRequestReader
	catalog   buildingLookup
	responses responseRecorder
	projector availabilityProjector
	lifecycle windowCloser
	users     directoryReader
	notifier  responseNotifier
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ResponseFormServiceParams groups constructor dependencies.
type ResponseFormServiceParams struct {
	Tokens    secretResolver
	Requests  planRequestReader
	Catalog   buildingLookup
	Responses responseRecorder
	Projector availabilityProjector
	Lifecycle windowCloser
	Users     directoryReader
	Notifier  responseNotifier
	Audit     auditRecorder
	Validate  *validator.Validate
	Logger    *zap.Logger
}

// NewResponseFormService constructs a ResponseFormService.
func NewResponseFormService(params ResponseFormServiceParams) *ResponseFormService {
	validate := params.Validate
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseFormService{
		tokens:    params.Tokens,
		requests:  params.Requests,
		catalog:   params.Catalog,
		responses: params.Responses,
		projector: params.Projector,
		lifecycle: params.Lifecycle,
		users:     params.Users,
		notifier:  params.Notifier,
		audit:     params.Audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Form returns everything the response page needs to render for the token's
// building: the loan window, the venue and the requested item list.
func (s *ResponseFormService) Form(ctx context.Context, secret string) (*dto.ResponseFormView, error) {
	token, request, building, err := s.admit(ctx, secret)
	if err != nil {
		return nil, err
	}

	items, err := s.requests.ListItems(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	formItems := make([]dto.ResponseFormItem, 0, len(items))
	for _, item := range items {
		formItems = append(formItems, dto.ResponseFormItem{
			EquipmentID:       item.EquipmentID,
			EquipmentName:     item.EquipmentName,
			RequestedQuantity: item.RequestedQuantity,
		})
	}

	return &dto.ResponseFormView{
		RequestID:    request.ID,
		BuildingID:   building.ID,
		BuildingName: building.Name,
		StartDate:    request.StartDate,
		EndDate:      request.EndDate,
		Venue:        request.Venue,
		Purpose:      request.Purpose,
		ExpiresAt:    token.ExpiresAt,
		Items:        formItems,
	}, nil
}

// Submit records the building's availability answer and consumes the token.
// Items the form omits count as zero available. When two submissions race on
// the same secret, the conditional token update lets exactly one through;
// the loser sees TOKEN_ALREADY_USED.
func (s *ResponseFormService) Submit(ctx context.Context, secret string, payload dto.SubmitResponsePayload, clientIP string) (*dto.SubmitResponseResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}

	token, request, building, err := s.admit(ctx, secret)
	if err != nil {
		return nil, err
	}

	items, err := s.requests.ListItems(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	requested := make(map[string]struct{}, len(items))
	for _, item := range items {
		requested[item.EquipmentID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(payload.Items))
	responseItems := make([]models.BuildingResponseItem, 0, len(payload.Items))
	for _, line := range payload.Items {
		if _, ok := requested[line.EquipmentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("equipment %s is not part of this request", line.EquipmentID))
		}
		if _, dup := seen[line.EquipmentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate equipment in response: %s", line.EquipmentID))
		}
		seen[line.EquipmentID] = struct{}{}
		responseItems = append(responseItems, models.BuildingResponseItem{
			EquipmentID:       line.EquipmentID,
			AvailableQuantity: line.AvailableQuantity,
		})
	}

	submittedAt := s.now().UTC()
	response := &models.BuildingResponse{
		RequestID:  request.ID,
		BuildingID: building.ID,
		IPAddress:  clientIP,
	}
	err = s.responses.Record(ctx, repository.RecordParams{
		TokenID:     token.ID,
		SubmittedAt: submittedAt,
		Response:    response,
		Items:       responseItems,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenAlreadyUsed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record building response")
	}

	s.projector.Invalidate(ctx, request.ID)
	s.emitAudit(ctx, request.ID, building.ID, clientIP, len(responseItems))
	if s.notifier != nil {
		s.notifier.ResponseRecorded(request, building, s.lookupReviewers(ctx))
	}

	status := request.Status
	outstanding, err := s.tokens.Outstanding(ctx, request.ID)
	if err != nil {
		s.logger.Warn("failed to count outstanding tokens", zap.String("request_id", request.ID), zap.Error(err))
	} else if outstanding == 0 {
		if err := s.lifecycle.CloseResponseWindow(ctx, request.ID, false); err != nil {
			s.logger.Warn("natural window close failed", zap.String("request_id", request.ID), zap.Error(err))
		} else {
			status = models.StatusPendingAllocation
		}
	}

	return &dto.SubmitResponseResult{
		RequestID:     request.ID,
		BuildingID:    building.ID,
		RequestStatus: status,
		SubmittedAt:   submittedAt,
	}, nil
}

// admit resolves the secret and checks the request still accepts responses.
// Token failures (unknown, expired, used) surface first; a valid token whose
// request already left the response state fails the status gate.
func (s *ResponseFormService) admit(ctx context.Context, secret string) (*models.ResponseToken, *models.Request, *models.Building, error) {
	token, err := s.tokens.Resolve(ctx, secret)
	if err != nil {
		return nil, nil, nil, err
	}

	request, err := s.requests.GetByID(ctx, token.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.ErrTokenNotFound
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status != models.StatusPendingBuildingResponse {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition, "the response window for this request has closed")
	}

	buildings, err := s.catalog.GetBuildings(ctx, []string{token.BuildingID})
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load building")
	}
	building, ok := buildings[token.BuildingID]
	if !ok {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrInternal, "token references an unknown building")
	}
	return token, request, &building, nil
}

func (s *ResponseFormService) lookupReviewers(ctx context.Context) []models.User {
	if s.users == nil {
		return nil
	}
	reviewers, err := s.users.ListActiveByRole(ctx, models.RoleAcademicStaff)
	if err != nil {
		s.logger.Warn("failed to resolve reviewer recipients", zap.Error(err))
		return nil
	}
	return reviewers
}

func (s *ResponseFormService) emitAudit(ctx context.Context, requestID, buildingID, clientIP string, items int) {
	if s.audit == nil {
		return
	}
	details, _ := json.Marshal(map[string]interface{}{"building_id": buildingID, "items": items})
	entry := &models.AuditLog{
		Action:     models.AuditActionResponseRecord,
		Resource:   "request",
		ResourceID: &requestID,
		Details:    details,
		IPAddress:  clientIP,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", models.AuditActionResponseRecord), zap.Error(err))
	}
}
