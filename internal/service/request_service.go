package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/dto"
	"github.com/noah-isme/equiloan-api/internal/models"
	"github.com/noah-isme/equiloan-api/internal/repository"
	"github.com/noah-isme/equiloan-api/pkg/export"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request, items []models.RequestItem) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListItems(ctx context.Context, requestID string) ([]models.RequestItem, error)
	ListHistory(ctx context.Context, requestID string) ([]models.StatusHistoryEntry, error)
	List(ctx context.Context, filter models.RequestFilter) ([]dto.RequestSummary, int, error)
	CountByStatus(ctx context.Context, applicantID string) ([]models.StatusCount, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type roundIssuer interface {
	IssueRound(ctx context.Context, requestID string, buildings []models.Building) ([]models.ResponseToken, error)
	DiscardRound(ctx context.Context, requestID string) error
	ListByRequest(ctx context.Context, requestID string) ([]models.ResponseToken, error)
}

type catalogReader interface {
	GetBuildings(ctx context.Context, ids []string) (map[string]models.Building, error)
	GetEquipment(ctx context.Context, ids []string) (map[string]models.Equipment, error)
}

type directoryReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type responseReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.BuildingResponse, error)
}

type allocationLister interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.Allocation, error)
}

type availabilityProjector interface {
	Project(ctx context.Context, request *models.Request) (*models.RequestAggregation, bool, error)
	Invalidate(ctx context.Context, requestID string)
}

type lifecycleNotifier interface {
	RequestSubmitted(request *models.Request, applicant *models.User, reviewers []models.User)
	RequestApproved(request *models.Request, tokens []models.ResponseToken, buildings map[string]models.Building)
	RequestRejected(request *models.Request, applicant *models.User, reason string)
	RequestClosed(request *models.Request, applicant *models.User, reason string)
	WindowClosed(request *models.Request, reviewers []models.User, complete bool)
	RequestExpired(request *models.Request, applicant *models.User)
}

type auditRecorder interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// RequestWorkflowConfig carries the lifecycle knobs the manager enforces.
type RequestWorkflowConfig struct {
	RequestExpiry time.Duration
	MaxItems      int
}

// RequestService owns the borrow-request state machine: every status
// transition, its history entry, and the orchestration of token issuance,
// aggregation and notification around those transitions.
type RequestService struct {
	requests    requestStore
	tokens      roundIssuer
	catalog     catalogReader
	users       directoryReader
	responses   responseReader
	allocations allocationLister
	projector   availabilityProjector
	notifier    lifecycleNotifier
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	csv         *export.CSVExporter
	cfg         RequestWorkflowConfig
	now         func() time.Time
}

// RequestServiceParams groups constructor dependencies.
type RequestServiceParams struct {
	Requests    requestStore
	Tokens      roundIssuer
	Catalog     catalogReader
	Users       directoryReader
	Responses   responseReader
	Allocations allocationLister
	Projector   availabilityProjector
	Notifier    lifecycleNotifier
	Audit       auditRecorder
	Validate    *validator.Validate
	Logger      *zap.Logger
	Config      RequestWorkflowConfig
}

// NewRequestService constructs a RequestService with sane defaults.
func NewRequestService(params RequestServiceParams) *RequestService {
	cfg := params.Config
	if cfg.RequestExpiry <= 0 {
		cfg.RequestExpiry = 30 * 24 * time.Hour
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 10
	}
	validate := params.Validate
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		requests:    params.Requests,
		tokens:      params.Tokens,
		catalog:     params.Catalog,
		users:       params.Users,
		responses:   params.Responses,
		allocations: params.Allocations,
		projector:   params.Projector,
		notifier:    params.Notifier,
		audit:       params.Audit,
		validator:   validate,
		logger:      logger,
		csv:         export.NewCSVExporter(),
		cfg:         cfg,
		now:         time.Now,
	}
}

// Submit creates a request in pending_review for the calling applicant.
func (s *RequestService) Submit(ctx context.Context, payload dto.CreateRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if len(payload.Items) > s.cfg.MaxItems {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a request may hold at most %d items", s.cfg.MaxItems))
	}

	startDate, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted YYYY-MM-DD")
	}
	endDate, err := time.Parse("2006-01-02", payload.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}

	equipmentIDs := make([]string, 0, len(payload.Items))
	seen := make(map[string]struct{}, len(payload.Items))
	for _, item := range payload.Items {
		if _, dup := seen[item.EquipmentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate equipment in item list: %s", item.EquipmentID))
		}
		seen[item.EquipmentID] = struct{}{}
		equipmentIDs = append(equipmentIDs, item.EquipmentID)
	}
	equipment, err := s.catalog.GetEquipment(ctx, equipmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment catalog")
	}
	for _, id := range equipmentIDs {
		entry, ok := equipment[id]
		if !ok || !entry.Enabled {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown equipment: %s", id))
		}
	}

	now := s.now().UTC()
	request := &models.Request{
		ApplicantID: actor.UserID,
		StartDate:   startDate,
		EndDate:     endDate,
		Venue:       strings.TrimSpace(payload.Venue),
		Purpose:     strings.TrimSpace(payload.Purpose),
		Notes:       optionalString(payload.Notes),
		Status:      models.StatusPendingReview,
		ExpiresAt:   now.Add(s.cfg.RequestExpiry),
		CreatedAt:   now,
	}
	items := make([]models.RequestItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, models.RequestItem{EquipmentID: item.EquipmentID, RequestedQuantity: item.Quantity})
	}

	if err := s.requests.Create(ctx, request, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitAudit(ctx, &actor.UserID, models.AuditActionRequestSubmit, request.ID, map[string]interface{}{"items": len(items)})
	if s.notifier != nil {
		applicant := s.lookupUser(ctx, request.ApplicantID)
		reviewers := s.lookupReviewers(ctx)
		s.notifier.RequestSubmitted(request, applicant, reviewers)
	}

	return s.buildDetail(ctx, request, actor)
}

// Approve moves a reviewed request into its building-response round: the
// status transition, one token per selected building, and the building
// notifications carrying the response-form links.
func (s *RequestService) Approve(ctx context.Context, id string, payload dto.ApproveRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if err := s.staffGate(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(models.StatusPendingBuildingResponse) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot approve a %s request", request.Status))
	}

	buildingIDs := make([]string, 0, len(payload.BuildingIDs))
	seen := make(map[string]struct{}, len(payload.BuildingIDs))
	for _, buildingID := range payload.BuildingIDs {
		if _, dup := seen[buildingID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate building in list: %s", buildingID))
		}
		seen[buildingID] = struct{}{}
		buildingIDs = append(buildingIDs, buildingID)
	}
	buildings, err := s.catalog.GetBuildings(ctx, buildingIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load building catalog")
	}
	ordered := make([]models.Building, 0, len(buildingIDs))
	for _, buildingID := range buildingIDs {
		building, ok := buildings[buildingID]
		if !ok || !building.Enabled {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown building: %s", buildingID))
		}
		ordered = append(ordered, building)
	}

	// Tokens go in first: while the request is still pending_review they
	// admit nothing, and a failed issuance leaves the request reviewable.
	// Were the transition committed first, a token-store failure would
	// strand the round with no tokens for the sweeper to expire.
	tokens, err := s.tokens.IssueRound(ctx, id, ordered)
	if err != nil {
		s.logger.Error("token issuance failed, approval aborted", zap.String("request_id", id), zap.Error(err))
		return nil, err
	}

	if err := s.requests.Transition(ctx, repository.TransitionParams{
		ID:          id,
		FromVersion: request.Version,
		NewStatus:   models.StatusPendingBuildingResponse,
		ActorID:     &actor.UserID,
		At:          s.now().UTC(),
	}); err != nil {
		if discardErr := s.tokens.DiscardRound(ctx, id); discardErr != nil {
			s.logger.Error("failed to discard tokens of an aborted approval", zap.String("request_id", id), zap.Error(discardErr))
		}
		return nil, s.mapTransitionErr(err)
	}

	s.projector.Invalidate(ctx, id)
	s.emitAudit(ctx, &actor.UserID, models.AuditActionRequestApprove, id, map[string]interface{}{"building_ids": buildingIDs})

	request, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.RequestApproved(request, tokens, buildings)
	}
	return s.buildDetail(ctx, request, actor)
}

// Reject declines a request, recording the mandatory reason.
func (s *RequestService) Reject(ctx context.Context, id string, payload dto.RejectRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if err := s.staffGate(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(models.StatusRejected) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot reject a %s request", request.Status))
	}

	reason := strings.TrimSpace(payload.Reason)
	if err := s.requests.Transition(ctx, repository.TransitionParams{
		ID:          id,
		FromVersion: request.Version,
		NewStatus:   models.StatusRejected,
		ActorID:     &actor.UserID,
		Note:        &reason,
		At:          s.now().UTC(),
	}); err != nil {
		return nil, s.mapTransitionErr(err)
	}

	s.projector.Invalidate(ctx, id)
	s.emitAudit(ctx, &actor.UserID, models.AuditActionRequestReject, id, map[string]interface{}{"reason": reason})

	request, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.RequestRejected(request, s.lookupUser(ctx, request.ApplicantID), reason)
	}
	return s.buildDetail(ctx, request, actor)
}

// Close cancels a request. Staff may close any non-terminal request; the
// owning applicant may withdraw theirs only while it is still under review.
func (s *RequestService) Close(ctx context.Context, id string, payload dto.CloseRequestPayload, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid close payload")
	}

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is already %s", request.Status))
	}
	if !actor.Role.IsStaff() {
		if request.ApplicantID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
		if request.Status != models.StatusPendingReview {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "applicants may only close requests still under review")
		}
	}

	reason := strings.TrimSpace(payload.Reason)
	if err := s.requests.Transition(ctx, repository.TransitionParams{
		ID:          id,
		FromVersion: request.Version,
		NewStatus:   models.StatusClosed,
		ActorID:     &actor.UserID,
		Note:        optionalString(reason),
		At:          s.now().UTC(),
	}); err != nil {
		return nil, s.mapTransitionErr(err)
	}

	s.projector.Invalidate(ctx, id)
	s.emitAudit(ctx, &actor.UserID, models.AuditActionRequestClose, id, map[string]interface{}{"reason": reason})

	closed, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil && request.ApplicantID != actor.UserID {
		s.notifier.RequestClosed(closed, s.lookupUser(ctx, closed.ApplicantID), reason)
	}
	return s.buildDetail(ctx, closed, actor)
}

// CloseResponseWindow moves a request from its building-response round to
// allocation. Reached naturally when the last token is consumed, or forced
// by the expiry sweep once the round deadline passes. Safe to call
// repeatedly: a request already past the round is left untouched.
func (s *RequestService) CloseResponseWindow(ctx context.Context, requestID string, forced bool) error {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != models.StatusPendingBuildingResponse {
		return nil
	}

	note := "all buildings responded"
	if forced {
		note = "response window expired"
	}
	err = s.requests.Transition(ctx, repository.TransitionParams{
		ID:          requestID,
		FromVersion: request.Version,
		NewStatus:   models.StatusPendingAllocation,
		Note:        &note,
		At:          s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another caller moved the request first; converging is fine.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close response window")
	}

	s.projector.Invalidate(ctx, requestID)
	if s.notifier != nil {
		request.Status = models.StatusPendingAllocation
		s.notifier.WindowClosed(request, s.lookupReviewers(ctx), !forced)
	}
	return nil
}

// Expire force-closes a request whose overall deadline has passed. Terminal
// requests are left untouched so repeated sweeps stay idempotent.
func (s *RequestService) Expire(ctx context.Context, requestID string) error {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status.IsTerminal() {
		return nil
	}

	note := "expired"
	err = s.requests.Transition(ctx, repository.TransitionParams{
		ID:          requestID,
		FromVersion: request.Version,
		NewStatus:   models.StatusClosed,
		Note:        &note,
		At:          s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire request")
	}

	s.projector.Invalidate(ctx, requestID)
	if s.notifier != nil {
		request.Status = models.StatusClosed
		s.notifier.RequestExpired(request, s.lookupUser(ctx, request.ApplicantID))
	}
	return nil
}

// List returns requests visible to the caller with pagination metadata and
// per-status counts. Applicants see their own; staff see everything.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) (*dto.RequestList, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	for _, status := range query.Status {
		if !status.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status: %s", status))
		}
	}

	filter := models.RequestFilter{
		Status:   query.Status,
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor.Role.IsStaff() {
		filter.ApplicantID = query.ApplicantID
	} else {
		filter.ApplicantID = actor.UserID
	}

	summaries, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	counts, err := s.requests.CountByStatus(ctx, filter.ApplicantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return &dto.RequestList{
		Requests:     summaries,
		StatusCounts: counts,
		Pagination:   models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}, nil
}

// Get returns the full request view the caller is entitled to.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && request.ApplicantID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return s.buildDetail(ctx, request, actor)
}

// Responses returns the recorded building responses plus the aggregated
// availability view staff use to build an allocation plan.
func (s *RequestService) Responses(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ResponsesView, error) {
	if err := s.staffGate(actor); err != nil {
		return nil, err
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status == models.StatusPendingReview {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no response round has been opened for this request")
	}

	responses, err := s.responses.ListByRequest(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list building responses")
	}
	aggregation, _, err := s.projector.Project(ctx, request)
	if err != nil {
		return nil, err
	}
	return &dto.ResponsesView{Responses: responses, Aggregation: aggregation}, nil
}

// Export renders the filtered request list as a CSV snapshot.
func (s *RequestService) Export(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]byte, string, error) {
	if err := s.staffGate(actor); err != nil {
		return nil, "", err
	}
	for _, status := range query.Status {
		if !status.IsValid() {
			return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status: %s", status))
		}
	}

	filter := models.RequestFilter{
		ApplicantID: query.ApplicantID,
		Status:      query.Status,
		DateFrom:    query.DateFrom,
		DateTo:      query.DateTo,
		Search:      strings.TrimSpace(query.Search),
		PageSize:    100,
	}

	rows := make([]map[string]string, 0, 128)
	for page := 1; ; page++ {
		filter.Page = page
		summaries, total, err := s.requests.List(ctx, filter)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export requests")
		}
		for _, summary := range summaries {
			rows = append(rows, map[string]string{
				"Request ID": summary.ID,
				"Applicant":  summary.ApplicantName,
				"Status":     string(summary.Status),
				"Start Date": summary.StartDate.Format("2006-01-02"),
				"End Date":   summary.EndDate.Format("2006-01-02"),
				"Venue":      summary.Venue,
				"Items":      fmt.Sprintf("%d", summary.ItemCount),
				"Created At": summary.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		// A short page means the listing is exhausted; the total guard
		// stops earlier when the count is known up front.
		if len(rows) >= total || len(summaries) < filter.PageSize {
			break
		}
	}

	data, err := s.csv.Render(export.Dataset{
		Headers: []string{"Request ID", "Applicant", "Status", "Start Date", "End Date", "Venue", "Items", "Created At"},
		Rows:    rows,
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("requests-%s.csv", s.now().UTC().Format("20060102-150405"))
	return data, filename, nil
}

func (s *RequestService) buildDetail(ctx context.Context, request *models.Request, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	items, err := s.requests.ListItems(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	history, err := s.requests.ListHistory(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}
	detail := &dto.RequestDetail{Request: *request, Items: items, History: history}

	roundOpened := request.Status != models.StatusPendingReview
	if actor != nil && actor.Role.IsStaff() && roundOpened {
		tokens, err := s.tokens.ListByRequest(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		detail.Tokens = tokens
		responses, err := s.responses.ListByRequest(ctx, request.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load building responses")
		}
		detail.Responses = responses
	}

	switch request.Status {
	case models.StatusPendingBuildingResponse, models.StatusPendingAllocation, models.StatusCompleted:
		aggregation, _, err := s.projector.Project(ctx, request)
		if err != nil {
			return nil, err
		}
		detail.Aggregation = aggregation
	}

	if request.Status == models.StatusCompleted {
		allocations, err := s.allocations.ListByRequest(ctx, request.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
		}
		detail.Allocations = allocations
	}
	return detail, nil
}

func (s *RequestService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) staffGate(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsStaff() {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *RequestService) mapTransitionErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConcurrentModification, "request was modified concurrently, reload and retry")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
}

func (s *RequestService) emitAudit(ctx context.Context, actorID *string, action, requestID string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if details != nil {
		payload, _ = json.Marshal(details)
	}
	entry := &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   "request",
		ResourceID: &requestID,
		Details:    payload,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *RequestService) lookupUser(ctx context.Context, id string) *models.User {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipient", zap.String("user_id", id), zap.Error(err))
		return nil
	}
	return user
}

func (s *RequestService) lookupReviewers(ctx context.Context) []models.User {
	reviewers, err := s.users.ListActiveByRole(ctx, models.RoleAcademicStaff)
	if err != nil {
		s.logger.Warn("failed to resolve reviewer recipients", zap.Error(err))
		return nil
	}
	return reviewers
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
