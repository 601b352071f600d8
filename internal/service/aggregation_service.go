package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type roundTokenReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.ResponseToken, error)
}

type aggregationItemReader interface {
	ListItems(ctx context.Context, requestID string) ([]models.RequestItem, error)
}

type buildingLookup interface {
	GetBuildings(ctx context.Context, ids []string) (map[string]models.Building, error)
}

type projectionCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// AggregationService builds the consolidated availability view for one
// request's response round. The projection is derived entirely from stored
// responses and tokens, so it can be recomputed at any time; buildings that
// never answered are zero-filled rather than omitted.
type AggregationService struct {
	items     aggregationItemReader
	tokens    roundTokenReader
	responses responseReader
	catalog   buildingLookup
	cache     projectionCache
	cacheTTL  time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAggregationService constructs an AggregationService.
func NewAggregationService(items aggregationItemReader, tokens roundTokenReader, responses responseReader, catalog buildingLookup, cache projectionCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *AggregationService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationService{
		items:     items,
		tokens:    tokens,
		responses: responses,
		catalog:   catalog,
		cache:     cache,
		cacheTTL:  cacheTTL,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func aggregationCacheKey(requestID string) string {
	return fmt.Sprintf("aggregation:request:%s", requestID)
}

// Project returns the availability aggregation for the request, serving a
// cached projection when one is fresh. The second return value reports a
// cache hit.
func (s *AggregationService) Project(ctx context.Context, request *models.Request) (*models.RequestAggregation, bool, error) {
	if request == nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "request is required")
	}
	if request.Status == models.StatusPendingReview {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidTransition, "no response round has been opened for this request")
	}

	key := aggregationCacheKey(request.ID)
	if s.cache != nil {
		var cached models.RequestAggregation
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	aggregation, err := s.build(ctx, request)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("aggregation_build", time.Since(start))
	}
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, aggregation, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache aggregation", zap.String("request_id", request.ID), zap.Error(err))
		}
	}
	return aggregation, false, nil
}

// Invalidate drops the cached projection after a response or transition.
func (s *AggregationService) Invalidate(ctx context.Context, requestID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, aggregationCacheKey(requestID)); err != nil {
		s.logger.Warn("failed to invalidate aggregation cache", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *AggregationService) build(ctx context.Context, request *models.Request) (*models.RequestAggregation, error) {
	items, err := s.items.ListItems(ctx, request.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	tokens, err := s.tokens.ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round tokens")
	}
	responses, err := s.responses.ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load building responses")
	}

	buildingIDs := make([]string, 0, len(tokens))
	for _, token := range tokens {
		buildingIDs = append(buildingIDs, token.BuildingID)
	}
	buildings, err := s.catalog.GetBuildings(ctx, buildingIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load building catalog")
	}

	// The round is closed once the request has moved past the response
	// state; only then does an unanswered building count as non-responsive.
	roundClosed := request.Status != models.StatusPendingBuildingResponse

	responseByBuilding := make(map[string]*models.BuildingResponse, len(responses))
	availability := make(map[string]map[string]int, len(responses))
	for i := range responses {
		response := &responses[i]
		responseByBuilding[response.BuildingID] = response
		quantities := make(map[string]int, len(response.Items))
		for _, item := range response.Items {
			quantities[item.EquipmentID] = item.AvailableQuantity
		}
		availability[response.BuildingID] = quantities
	}

	participation := make([]models.BuildingParticipation, 0, len(tokens))
	for _, token := range tokens {
		name := ""
		if building, ok := buildings[token.BuildingID]; ok {
			name = building.Name
		}
		entry := models.BuildingParticipation{
			BuildingID:   token.BuildingID,
			BuildingName: name,
		}
		if response, ok := responseByBuilding[token.BuildingID]; ok {
			entry.Responded = true
			submittedAt := response.SubmittedAt
			entry.SubmittedAt = &submittedAt
		} else {
			entry.NonResponsive = roundClosed
		}
		participation = append(participation, entry)
	}

	itemViews := make([]models.ItemAvailability, 0, len(items))
	for _, item := range items {
		view := models.ItemAvailability{
			EquipmentID:       item.EquipmentID,
			EquipmentName:     item.EquipmentName,
			RequestedQuantity: item.RequestedQuantity,
			Buildings:         make([]models.BuildingAvailability, 0, len(tokens)),
		}
		for _, token := range tokens {
			name := ""
			if building, ok := buildings[token.BuildingID]; ok {
				name = building.Name
			}
			quantities, responded := availability[token.BuildingID]
			available := 0
			if responded {
				available = quantities[item.EquipmentID]
			}
			view.TotalAvailable += available
			view.Buildings = append(view.Buildings, models.BuildingAvailability{
				BuildingID:   token.BuildingID,
				BuildingName: name,
				Available:    available,
				Responded:    responded,
			})
		}
		itemViews = append(itemViews, view)
	}

	complete := len(tokens) > 0
	for _, token := range tokens {
		if _, ok := responseByBuilding[token.BuildingID]; !ok {
			complete = false
			break
		}
	}

	return &models.RequestAggregation{
		RequestID:   request.ID,
		Items:       itemViews,
		Buildings:   participation,
		Complete:    complete,
		GeneratedAt: s.now().UTC(),
	}, nil
}
