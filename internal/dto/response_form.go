package dto

import (
	"time"

	"github.com/noah-isme/equiloan-api/internal/models"
)

// ResponseFormItem is one line the building administrator fills in.
type ResponseFormItem struct {
	EquipmentID       string `json:"equipment_id"`
	EquipmentName     string `json:"equipment_name"`
	RequestedQuantity int    `json:"requested_quantity"`
}

// ResponseFormView is everything the no-login form needs to render.
type ResponseFormView struct {
	RequestID    string             `json:"request_id"`
	BuildingID   string             `json:"building_id"`
	BuildingName string             `json:"building_name"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      time.Time          `json:"end_date"`
	Venue        string             `json:"venue"`
	Purpose      string             `json:"purpose"`
	ExpiresAt    time.Time          `json:"expires_at"`
	Items        []ResponseFormItem `json:"items"`
}

// ResponseItemPayload is one submitted availability line.
type ResponseItemPayload struct {
	EquipmentID       string `json:"equipment_id" validate:"required"`
	AvailableQuantity int    `json:"available_quantity" validate:"min=0"`
}

// SubmitResponsePayload is the building's submission body.
type SubmitResponsePayload struct {
	Items []ResponseItemPayload `json:"items" validate:"required,min=1,dive"`
}

// SubmitResponseResult confirms a recorded submission to the form.
type SubmitResponseResult struct {
	RequestID     string               `json:"request_id"`
	BuildingID    string               `json:"building_id"`
	RequestStatus models.RequestStatus `json:"request_status"`
	SubmittedAt   time.Time            `json:"submitted_at"`
}
