package dto

import (
	"time"

	"github.com/noah-isme/equiloan-api/internal/models"
)

// CreateRequestItem is one requested equipment line in a submission.
type CreateRequestItem struct {
	EquipmentID string `json:"equipment_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
}

// CreateRequestPayload is the applicant's submission body.
type CreateRequestPayload struct {
	StartDate string              `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string              `json:"end_date" validate:"required,datetime=2006-01-02"`
	Venue     string              `json:"venue" validate:"required,max=200"`
	Purpose   string              `json:"purpose" validate:"required,max=500"`
	Notes     string              `json:"notes" validate:"max=1000"`
	Items     []CreateRequestItem `json:"items" validate:"required,min=1,dive"`
}

// ApproveRequestPayload selects the buildings asked to report availability.
type ApproveRequestPayload struct {
	BuildingIDs []string `json:"building_ids" validate:"required,min=1,dive,required"`
}

// RejectRequestPayload carries the mandatory rejection reason.
type RejectRequestPayload struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CloseRequestPayload carries the optional cancellation reason.
type CloseRequestPayload struct {
	Reason string `json:"reason" validate:"max=500"`
}

// FinalizePayload is the staff allocation plan.
type FinalizePayload struct {
	Entries []models.AllocationEntry `json:"entries" validate:"required,min=1,dive"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status      []models.RequestStatus
	ApplicantID string
	DateFrom    *time.Time
	DateTo      *time.Time
	Search      string
	Page        int
	PageSize    int
}

// RequestSummary is one row of the request list.
type RequestSummary struct {
	ID            string               `json:"id"`
	ApplicantID   string               `json:"applicant_id"`
	ApplicantName string               `json:"applicant_name"`
	Status        models.RequestStatus `json:"status"`
	StartDate     time.Time            `json:"start_date"`
	EndDate       time.Time            `json:"end_date"`
	Venue         string               `json:"venue"`
	ItemCount     int                  `json:"item_count"`
	CreatedAt     time.Time            `json:"created_at"`
}

// RequestList is the paginated listing with per-status counts.
type RequestList struct {
	Requests     []RequestSummary     `json:"requests"`
	StatusCounts []models.StatusCount `json:"status_counts"`
	Pagination   models.Pagination    `json:"pagination"`
}

// ResponsesView pairs the recorded building responses with the aggregated
// availability staff use to build an allocation plan.
type ResponsesView struct {
	Responses   []models.BuildingResponse  `json:"responses"`
	Aggregation *models.RequestAggregation `json:"aggregation"`
}

// RequestDetail is the full view of one request. Tokens are only populated
// for staff callers.
type RequestDetail struct {
	Request     models.Request             `json:"request"`
	Items       []models.RequestItem       `json:"items"`
	History     []models.StatusHistoryEntry `json:"history"`
	Tokens      []models.ResponseToken     `json:"tokens,omitempty"`
	Responses   []models.BuildingResponse  `json:"responses,omitempty"`
	Aggregation *models.RequestAggregation `json:"aggregation,omitempty"`
	Allocations []models.Allocation        `json:"allocations,omitempty"`
}
