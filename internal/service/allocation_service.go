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

type planRequestReader interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListItems(ctx context.Context, requestID string) ([]models.RequestItem, error)
}

type planCommitter interface {
	CommitPlan(ctx context.Context, params repository.CommitPlanParams) error
	ListByRequest(ctx context.Context, requestID string) ([]models.Allocation, error)
}

type slipPublisher interface {
	Publish(ctx context.Context, requestID string) error
}

// AllocationService validates caller-proposed allocation plans against the
// aggregated availability and commits valid plans atomically. It never
// chooses allocations itself; which building covers which item is a policy
// decision made by staff in the planning UI.
type AllocationService struct {
	requests    planRequestReader
	allocations planCommitter
	projector   availabilityProjector
	slips       slipPublisher
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAllocationService constructs an AllocationService.
func NewAllocationService(requests planRequestReader, allocations planCommitter, projector availabilityProjector, slips slipPublisher, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		requests:    requests,
		allocations: allocations,
		projector:   projector,
		slips:       slips,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Finalize validates the plan and completes the request. The committed
// allocation set fully replaces any prior one; partial fulfilment is
// allowed, so the plan does not have to cover every requested unit.
func (s *AllocationService) Finalize(ctx context.Context, requestID string, payload dto.FinalizePayload, actor *models.JWTClaims) ([]models.Allocation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation plan")
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !request.Status.CanTransitionTo(models.StatusCompleted) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot finalize a %s request", request.Status))
	}

	items, err := s.requests.ListItems(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	aggregation, _, err := s.projector.Project(ctx, request)
	if err != nil {
		return nil, err
	}

	approved, err := validatePlan(payload.Entries, items, aggregation)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	allocations := make([]models.Allocation, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		// Zero lines are valid plan input ("nothing from this building")
		// but carry no allocation; the table only stores positive rows.
		if entry.Quantity == 0 {
			continue
		}
		allocations = append(allocations, models.Allocation{
			RequestID:         requestID,
			BuildingID:        entry.BuildingID,
			EquipmentID:       entry.EquipmentID,
			AllocatedQuantity: entry.Quantity,
			AllocatedBy:       actor.UserID,
			CreatedAt:         at,
		})
	}

	err = s.allocations.CommitPlan(ctx, repository.CommitPlanParams{
		RequestID:          requestID,
		FromVersion:        request.Version,
		ActorID:            actor.UserID,
		At:                 at,
		Allocations:        allocations,
		ApprovedQuantities: approved,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "request was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit allocation plan")
	}

	s.projector.Invalidate(ctx, requestID)
	s.emitAudit(ctx, actor.UserID, requestID, len(allocations))

	// Slip rendering and the completion e-mail ride behind the committed
	// transition; their failure never reverses it.
	if s.slips != nil {
		if err := s.slips.Publish(ctx, requestID); err != nil {
			s.logger.Warn("failed to publish borrow slip", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	committed, err := s.allocations.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed allocations")
	}
	return committed, nil
}

// validatePlan runs the plan checks in a fixed order: shape, references,
// per-pair availability, then per-item totals. It returns the approved
// quantity per equipment item for a valid plan.
func validatePlan(entries []models.AllocationEntry, items []models.RequestItem, aggregation *models.RequestAggregation) (map[string]int, error) {
	if aggregation == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "availability aggregation unavailable")
	}

	requested := make(map[string]int, len(items))
	for _, item := range items {
		requested[item.EquipmentID] = item.RequestedQuantity
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Quantity < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("negative quantity for equipment %s at building %s", entry.EquipmentID, entry.BuildingID))
		}
		pair := entry.BuildingID + "|" + entry.EquipmentID
		if _, dup := seen[pair]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate plan entry for equipment %s at building %s", entry.EquipmentID, entry.BuildingID))
		}
		seen[pair] = struct{}{}
	}

	for _, entry := range entries {
		if _, ok := requested[entry.EquipmentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownReference, fmt.Sprintf("equipment %s was not requested", entry.EquipmentID))
		}
		if _, ok := aggregation.AvailabilityFor(entry.BuildingID, entry.EquipmentID); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownReference, fmt.Sprintf("building %s did not participate in this round", entry.BuildingID))
		}
	}

	for _, entry := range entries {
		available, _ := aggregation.AvailabilityFor(entry.BuildingID, entry.EquipmentID)
		if entry.Quantity > available {
			return nil, appErrors.Clone(appErrors.ErrExceedsAvailability,
				fmt.Sprintf("building %s reported %d of equipment %s, plan asks for %d", entry.BuildingID, available, entry.EquipmentID, entry.Quantity))
		}
	}

	approved := make(map[string]int, len(items))
	for _, entry := range entries {
		approved[entry.EquipmentID] += entry.Quantity
	}
	for equipmentID, total := range approved {
		if total > requested[equipmentID] {
			return nil, appErrors.Clone(appErrors.ErrOverAllocation,
				fmt.Sprintf("plan allocates %d of equipment %s, only %d requested", total, equipmentID, requested[equipmentID]))
		}
	}
	return approved, nil
}

func (s *AllocationService) emitAudit(ctx context.Context, actorID, requestID string, entries int) {
	if s.audit == nil {
		return
	}
	details, _ := json.Marshal(map[string]interface{}{"entries": entries})
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRequestFinalize,
		Resource:   "request",
		ResourceID: &requestID,
		Details:    details,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", models.AuditActionRequestFinalize), zap.Error(err))
	}
}
